// Package httpapi exposes the lease, heartbeat, sync and user operations
// as a JSON API over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/leasekeeper/internal/logging"
	"github.com/dmitrijs2005/leasekeeper/internal/server/auth"
	"github.com/dmitrijs2005/leasekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/leasekeeper/internal/server/models"
	"github.com/dmitrijs2005/leasekeeper/internal/server/services"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

const maxBodyBytes = 32 << 20

var errEmptyBody = httpError{Status: http.StatusBadRequest, Code: "invalid_body", Detail: "request body required"}

type UserService interface {
	Login(ctx context.Context, username, password string) (*services.LoginResult, error)
	Authenticate(token string) (*auth.Identity, error)
	Me(ctx context.Context, caller *auth.Identity) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	Create(ctx context.Context, req services.NewUser) (*models.User, error)
	Update(ctx context.Context, id int64, patch services.UserPatch) (*models.User, error)
	Delete(ctx context.Context, caller *auth.Identity, id int64) error
}

type OccupancyService interface {
	Occupy(ctx context.Context, caller *auth.Identity, resourceID string) (*services.OccupyResult, error)
}

type HeartbeatService interface {
	Heartbeat(ctx context.Context, caller *auth.Identity, activeResourceID string) (*services.HeartbeatResult, error)
}

type SyncService interface {
	Get(ctx context.Context) (*models.SyncDocument, error)
	Put(ctx context.Context, cipherText string, basedOn int64) (int64, error)
	DeleteItem(ctx context.Context, recordID string) (int64, error)
}

// Services bundles what the handlers call into.
type Services struct {
	Users     UserService
	Occupancy OccupancyService
	Heartbeat HeartbeatService
	Sync      SyncService
}

type Handler struct {
	svc      Services
	metrics  *metrics.Collector
	registry *prometheus.Registry
	log      logging.Logger
	prefix   string
}

func NewHandler(svc Services, mc *metrics.Collector, reg *prometheus.Registry, log logging.Logger, prefix string) *Handler {
	return &Handler{
		svc:      svc,
		metrics:  mc,
		registry: reg,
		log:      log.With("module", "http_api"),
		prefix:   strings.TrimRight(prefix, "/"),
	}
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (h *Handler) wrap(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			h.handleError(r.Context(), w, err)
		}
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return httpError{Status: http.StatusBadRequest, Code: "invalid_body", Detail: err.Error()}
	}
	return nil
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "OK")
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) error {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	res, err := h.svc.Users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		return err
	}

	logging.FromContext(r.Context(), h.log).Info(r.Context(), "user logged in", "user_id", res.User.ID)
	writeJSON(w, http.StatusOK, loginResponse{Token: res.Token, User: newUserResponse(res.User)})
	return nil
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) error {
	u, err := h.svc.Users.Me(r.Context(), identityFromContext(r.Context()))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, newUserResponse(u))
	return nil
}

func (h *Handler) handleOccupy(w http.ResponseWriter, r *http.Request) error {
	var req occupyRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	res, err := h.svc.Occupancy.Occupy(r.Context(), identityFromContext(r.Context()), req.ResourceID)
	if err != nil {
		return err
	}

	logging.FromContext(r.Context(), h.log).Info(r.Context(), "occupy",
		"resource_id", res.ResourceID, "granted", res.Granted, "holder", res.HolderName)
	writeJSON(w, http.StatusOK, occupyResponse{ResourceID: res.ResourceID, Granted: res.Granted, HolderName: res.HolderName})
	return nil
}

func (h *Handler) handleHeartbeat(w http.ResponseWriter, r *http.Request) error {
	// the body is optional
	var req heartbeatRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		return err
	}

	res, err := h.svc.Heartbeat.Heartbeat(r.Context(), identityFromContext(r.Context()), req.ActiveResourceID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, newHeartbeatResponse(res))
	return nil
}

func (h *Handler) handleSyncGet(w http.ResponseWriter, r *http.Request) error {
	doc, err := h.svc.Sync.Get(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, syncDocumentResponse{CipherText: doc.CipherText, Version: doc.Version})
	return nil
}

func (h *Handler) handleSyncPut(w http.ResponseWriter, r *http.Request) error {
	var req syncPutRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	v, err := h.svc.Sync.Put(r.Context(), req.CipherText, req.BasedOnVersion)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, syncWriteResponse{NewVersion: v})
	return nil
}

func (h *Handler) handleSyncDeleteItem(w http.ResponseWriter, r *http.Request) error {
	var req syncDeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.RecordID == "" {
		return httpError{Status: http.StatusBadRequest, Code: "invalid_body", Detail: "recordId required"}
	}

	v, err := h.svc.Sync.DeleteItem(r.Context(), req.RecordID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, syncWriteResponse{NewVersion: v})
	return nil
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) error {
	users, err := h.svc.Users.List(r.Context())
	if err != nil {
		return err
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, newUserResponse(u))
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

func parseRole(s *string) (*models.Role, error) {
	if s == nil {
		return nil, nil
	}
	role, ok := models.ParseRole(*s)
	if !ok {
		return nil, httpError{Status: http.StatusBadRequest, Code: "invalid_role", Detail: "role must be admin or user"}
	}
	return &role, nil
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) error {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	role, err := parseRole(req.Role)
	if err != nil {
		return err
	}

	nu := services.NewUser{Username: req.Username, Password: req.Password}
	if role != nil {
		nu.Role = *role
	}
	if req.RemainingDays != nil {
		nu.RemainingSeconds = daysToSeconds(*req.RemainingDays)
	}

	u, err := h.svc.Users.Create(r.Context(), nu)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, newUserResponse(u))
	return nil
}

func userIDFromPath(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, httpError{Status: http.StatusBadRequest, Code: "invalid_id", Detail: "user id must be an integer"}
	}
	return id, nil
}

func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) error {
	id, err := userIDFromPath(r)
	if err != nil {
		return err
	}

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	role, err := parseRole(req.Role)
	if err != nil {
		return err
	}

	patch := services.UserPatch{Password: req.Password, Role: role}
	if req.RemainingDays != nil {
		secs := daysToSeconds(*req.RemainingDays)
		patch.RemainingSeconds = &secs
	}

	u, err := h.svc.Users.Update(r.Context(), id, patch)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, newUserResponse(u))
	return nil
}

func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) error {
	id, err := userIDFromPath(r)
	if err != nil {
		return err
	}

	if err := h.svc.Users.Delete(r.Context(), identityFromContext(r.Context()), id); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, deleteUserResponse{Deleted: id})
	return nil
}
