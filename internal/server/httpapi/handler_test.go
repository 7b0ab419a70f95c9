package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/leasekeeper/internal/common"
	"github.com/dmitrijs2005/leasekeeper/internal/logging"
	"github.com/dmitrijs2005/leasekeeper/internal/server/auth"
	"github.com/dmitrijs2005/leasekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/leasekeeper/internal/server/models"
	"github.com/dmitrijs2005/leasekeeper/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- fakes ----

var (
	adminID = &auth.Identity{UserID: 1, Username: "root", Role: models.RoleAdmin}
	aliceID = &auth.Identity{UserID: 2, Username: "alice", Role: models.RoleUser}
	created = time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC)
)

type fakeUsers struct {
	loginRes *services.LoginResult
	loginErr error

	lastCreate services.NewUser
	lastPatch  services.UserPatch
	updateErr  error
	deleteErr  error
}

func (f *fakeUsers) Login(_ context.Context, username, password string) (*services.LoginResult, error) {
	return f.loginRes, f.loginErr
}

func (f *fakeUsers) Authenticate(token string) (*auth.Identity, error) {
	switch token {
	case "admin-token":
		return adminID, nil
	case "alice-token":
		return aliceID, nil
	}
	return nil, common.ErrorUnauthorized
}

func (f *fakeUsers) Me(_ context.Context, caller *auth.Identity) (*models.User, error) {
	return &models.User{ID: caller.UserID, UserName: caller.Username, Role: caller.Role, RemainingSeconds: 3600, CreatedAt: created}, nil
}

func (f *fakeUsers) List(context.Context) ([]*models.User, error) {
	return []*models.User{
		{ID: 1, UserName: "root", Role: models.RoleAdmin, CreatedAt: created},
		{ID: 2, UserName: "alice", Role: models.RoleUser, RemainingSeconds: 43200, CreatedAt: created},
	}, nil
}

func (f *fakeUsers) Create(_ context.Context, req services.NewUser) (*models.User, error) {
	f.lastCreate = req
	if req.Username == "taken" {
		return nil, common.ErrorAlreadyExists
	}
	return &models.User{ID: 3, UserName: req.Username, Role: req.Role, RemainingSeconds: req.RemainingSeconds, CreatedAt: created}, nil
}

func (f *fakeUsers) Update(_ context.Context, id int64, patch services.UserPatch) (*models.User, error) {
	f.lastPatch = patch
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &models.User{ID: id, UserName: "bob", Role: models.RoleUser, CreatedAt: created}, nil
}

func (f *fakeUsers) Delete(_ context.Context, caller *auth.Identity, id int64) error {
	if caller.UserID == id {
		return common.ErrorBadRequest
	}
	return f.deleteErr
}

type fakeOccupancy struct {
	res    *services.OccupyResult
	err    error
	caller *auth.Identity
}

func (f *fakeOccupancy) Occupy(_ context.Context, caller *auth.Identity, resourceID string) (*services.OccupyResult, error) {
	f.caller = caller
	if f.err != nil {
		return nil, f.err
	}
	res := *f.res
	res.ResourceID = resourceID
	return &res, nil
}

type fakeHeartbeat struct {
	res    *services.HeartbeatResult
	active string
}

func (f *fakeHeartbeat) Heartbeat(_ context.Context, _ *auth.Identity, active string) (*services.HeartbeatResult, error) {
	f.active = active
	return f.res, nil
}

type fakeSync struct {
	doc       *models.SyncDocument
	getErr    error
	putErr    error
	deleteErr error
	putBase   int64
	deletedID string
}

func (f *fakeSync) Get(context.Context) (*models.SyncDocument, error) { return f.doc, f.getErr }

func (f *fakeSync) Put(_ context.Context, _ string, basedOn int64) (int64, error) {
	f.putBase = basedOn
	if f.putErr != nil {
		return 0, f.putErr
	}
	return 1775030400, nil
}

func (f *fakeSync) DeleteItem(_ context.Context, recordID string) (int64, error) {
	f.deletedID = recordID
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	return 1775030401, nil
}

type fixture struct {
	users     *fakeUsers
	occupancy *fakeOccupancy
	heartbeat *fakeHeartbeat
	sync      *fakeSync
	handler   http.Handler
}

func newFixture(t *testing.T, prefix string) *fixture {
	t.Helper()
	f := &fixture{
		users:     &fakeUsers{},
		occupancy: &fakeOccupancy{res: &services.OccupyResult{Granted: true}},
		heartbeat: &fakeHeartbeat{res: &services.HeartbeatResult{Status: services.StatusActive, RemainingSeconds: 40}},
		sync:      &fakeSync{doc: &models.SyncDocument{CipherText: "abc", Version: 7}},
	}
	mc := metrics.NewCollector()
	h := NewHandler(Services{
		Users:     f.users,
		Occupancy: f.occupancy,
		Heartbeat: f.heartbeat,
		Sync:      f.sync,
	}, mc, metrics.NewRegistry(mc), logging.Nop{}, prefix)
	f.handler = h.Router()
	return f
}

func (f *fixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, rec.Code, rec.Body.String())
	assert.Equal(t, code, decode(t, rec)["error"])
}

// ---- tests ----

func TestHealth(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestLogin(t *testing.T) {
	f := newFixture(t, "")
	f.users.loginRes = &services.LoginResult{
		Token: "tok",
		User:  &models.User{ID: 2, UserName: "alice", Role: models.RoleUser, RemainingSeconds: 172800, CreatedAt: created},
	}

	rec := f.do(http.MethodPost, "/login", "", `{"username":"alice","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "tok", body["token"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "alice", user["username"])
	assert.Equal(t, 2.0, user["remainingDays"])
	assert.Equal(t, 172800.0, user["remainingSeconds"])
}

func TestLogin_Failures(t *testing.T) {
	f := newFixture(t, "")

	f.users.loginErr = common.ErrorUnauthorized
	assertError(t, f.do(http.MethodPost, "/login", "", `{"username":"a","password":"b"}`), http.StatusUnauthorized, "unauthorized")

	f.users.loginErr = common.ErrorForbidden
	assertError(t, f.do(http.MethodPost, "/login", "", `{"username":"a","password":"b"}`), http.StatusForbidden, "forbidden")

	assertError(t, f.do(http.MethodPost, "/login", "", `{not json`), http.StatusBadRequest, "invalid_body")
	assertError(t, f.do(http.MethodPost, "/login", "", ""), http.StatusBadRequest, "invalid_body")
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t, "")

	assertError(t, f.do(http.MethodGet, "/me", "", ""), http.StatusUnauthorized, "unauthorized")
	assertError(t, f.do(http.MethodGet, "/me", "expired", ""), http.StatusUnauthorized, "unauthorized")
	assertError(t, f.do(http.MethodGet, "/sync", "", ""), http.StatusUnauthorized, "unauthorized")

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Basic alice-token")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMe(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(http.MethodGet, "/me", "alice-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, 2.0, body["id"])
	assert.Equal(t, "user", body["role"])
}

func TestOccupy(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(http.MethodPost, "/account/occupy", "alice-token", `{"resourceId":"acct-7"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["granted"])
	assert.Equal(t, "acct-7", body["resourceId"])
	assert.NotContains(t, body, "holderName")
	assert.Equal(t, aliceID, f.occupancy.caller)

	f.occupancy.res = &services.OccupyResult{Granted: false, HolderName: "bob"}
	body = decode(t, f.do(http.MethodPost, "/account/occupy", "alice-token", `{"resourceId":"acct-7"}`))
	assert.Equal(t, false, body["granted"])
	assert.Equal(t, "bob", body["holderName"])

	f.occupancy.err = common.ErrorStore
	assertError(t, f.do(http.MethodPost, "/account/occupy", "alice-token", `{"resourceId":"acct-7"}`), http.StatusInternalServerError, "store_error")

	f.occupancy.err = common.ErrorBadRequest
	assertError(t, f.do(http.MethodPost, "/account/occupy", "alice-token", `{"resourceId":""}`), http.StatusBadRequest, "bad_request")
}

func TestHeartbeat(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(http.MethodPost, "/heartbeat", "alice-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "active", body["status"])
	assert.Equal(t, 40.0, body["remainingQuotaSeconds"])
	assert.Equal(t, []any{}, body["occupancySnapshot"])

	f.heartbeat.res = &services.HeartbeatResult{
		Status:   services.StatusExpired,
		Snapshot: []*models.Occupancy{{ResourceID: "acct-7", HolderUserID: 2, HolderName: "alice"}},
	}
	body = decode(t, f.do(http.MethodPost, "/heartbeat", "alice-token", `{"activeResourceId":"acct-7"}`))
	assert.Equal(t, "acct-7", f.heartbeat.active)
	assert.Equal(t, "expired", body["status"])
	snap := body["occupancySnapshot"].([]any)
	require.Len(t, snap, 1)
	item := snap[0].(map[string]any)
	assert.Equal(t, "acct-7", item["resourceId"])
	assert.Equal(t, 2.0, item["holderId"])
	assert.Equal(t, "alice", item["holderName"])
}

func TestSync(t *testing.T) {
	f := newFixture(t, "")

	body := decode(t, f.do(http.MethodGet, "/sync", "alice-token", ""))
	assert.Equal(t, "abc", body["cipherText"])
	assert.Equal(t, 7.0, body["version"])

	body = decode(t, f.do(http.MethodPost, "/sync", "alice-token", `{"cipherText":"new","basedOnVersion":7}`))
	assert.Equal(t, 1775030400.0, body["newVersion"])
	assert.Equal(t, int64(7), f.sync.putBase)

	f.sync.putErr = common.ErrVersionConflict
	assertError(t, f.do(http.MethodPost, "/sync", "alice-token", `{"cipherText":"new","basedOnVersion":1}`), http.StatusConflict, "version_conflict")

	body = decode(t, f.do(http.MethodDelete, "/sync/account", "alice-token", `{"recordId":"x"}`))
	assert.Equal(t, 1775030401.0, body["newVersion"])
	assert.Equal(t, "x", f.sync.deletedID)

	assertError(t, f.do(http.MethodDelete, "/sync/account", "alice-token", `{}`), http.StatusBadRequest, "invalid_body")

	f.sync.deleteErr = common.ErrorBadRequest
	assertError(t, f.do(http.MethodDelete, "/sync/account", "alice-token", `{"recordId":"x"}`), http.StatusBadRequest, "bad_request")

	f.sync.getErr = common.ErrorNotFound
	assertError(t, f.do(http.MethodGet, "/sync", "alice-token", ""), http.StatusNotFound, "not_found")
}

func TestUsers_AdminOnly(t *testing.T) {
	f := newFixture(t, "")

	assertError(t, f.do(http.MethodGet, "/users", "alice-token", ""), http.StatusForbidden, "forbidden")
	assertError(t, f.do(http.MethodPost, "/users", "alice-token", `{"username":"x","password":"y"}`), http.StatusForbidden, "forbidden")
	assertError(t, f.do(http.MethodDelete, "/users/3", "", ""), http.StatusUnauthorized, "unauthorized")
}

func TestUsers_List(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(http.MethodGet, "/users", "admin-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, 0.5, list[1]["remainingDays"])
	assert.Equal(t, "2026-01-02T03:04:00Z", list[1]["createdAt"])
}

func TestUsers_Create(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(http.MethodPost, "/users", "admin-token", `{"username":"bob","password":"pw","role":"user","remainingDays":1.5}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, int64(129600), f.users.lastCreate.RemainingSeconds)
	assert.Equal(t, models.RoleUser, f.users.lastCreate.Role)

	assertError(t, f.do(http.MethodPost, "/users", "admin-token", `{"username":"bob","password":"pw","role":"root"}`), http.StatusBadRequest, "invalid_role")
	assertError(t, f.do(http.MethodPost, "/users", "admin-token", `{"username":"taken","password":"pw"}`), http.StatusBadRequest, "already_exists")
}

func TestUsers_UpdateDelete(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(http.MethodPut, "/users/3", "admin-token", `{"remainingDays":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.users.lastPatch.RemainingSeconds)
	assert.Equal(t, int64(172800), *f.users.lastPatch.RemainingSeconds)
	assert.Nil(t, f.users.lastPatch.Role)

	f.users.updateErr = common.ErrorNotFound
	assertError(t, f.do(http.MethodPut, "/users/9", "admin-token", `{}`), http.StatusNotFound, "not_found")

	rec = f.do(http.MethodDelete, "/users/3", "admin-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3.0, decode(t, rec)["deleted"])

	assertError(t, f.do(http.MethodDelete, "/users/1", "admin-token", ""), http.StatusBadRequest, "bad_request")

	rec = f.do(http.MethodDelete, "/users/abc", "admin-token", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPrefix(t *testing.T) {
	f := newFixture(t, "/api/")

	rec := f.do(http.MethodGet, "/api/me", "alice-token", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/me", "alice-token", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestID(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(http.MethodGet, "/health", "", "")
	assert.NotEmpty(t, rec.Header().Get(common.RequestIDHeaderName))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(common.RequestIDHeaderName, "req-123")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(common.RequestIDHeaderName))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, "")

	f.do(http.MethodPut, "/users/3", "admin-token", `{}`)
	rec := f.do(http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/users/{id:[0-9]+}"`)
}

func TestToHTTPError_Unknown(t *testing.T) {
	he := toHTTPError(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, he.Status)
	assert.Equal(t, "internal_error", he.Code)
}
