package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/leasekeeper/internal/common"
	"github.com/dmitrijs2005/leasekeeper/internal/dbx"
	"github.com/dmitrijs2005/leasekeeper/internal/logging"
	"github.com/dmitrijs2005/leasekeeper/internal/server/auth"
	"github.com/dmitrijs2005/leasekeeper/internal/server/config"
	"github.com/dmitrijs2005/leasekeeper/internal/server/models"
	leasesrepo "github.com/dmitrijs2005/leasekeeper/internal/server/repositories/leases"
	syncrepo "github.com/dmitrijs2005/leasekeeper/internal/server/repositories/syncdoc"
	usersrepo "github.com/dmitrijs2005/leasekeeper/internal/server/repositories/users"
)

var t0 = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	return cfg
}

func nopLogger() logging.Logger { return logging.Nop{} }

func identity(u *models.User) *auth.Identity {
	return &auth.Identity{UserID: u.ID, Username: u.UserName, Role: u.Role}
}

// --- users ---

type fakeUsersRepo struct {
	byID   map[int64]*models.User
	nextID int64
	err    error
}

func newFakeUsers(users ...*models.User) *fakeUsersRepo {
	f := &fakeUsersRepo{byID: map[int64]*models.User{}, nextID: 1}
	for _, u := range users {
		f.byID[u.ID] = u
		if u.ID >= f.nextID {
			f.nextID = u.ID + 1
		}
	}
	return f
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, existing := range f.byID {
		if existing.UserName == u.UserName {
			return nil, common.ErrorAlreadyExists
		}
	}
	cp := *u
	cp.ID = f.nextID
	f.nextID++
	f.byID[cp.ID] = &cp
	return &cp, nil
}

func (f *fakeUsersRepo) GetByUsername(_ context.Context, username string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.byID {
		if u.UserName == username {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetByID(_ context.Context, id int64) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

func (f *fakeUsersRepo) List(context.Context) ([]*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.User
	for _, u := range f.byID {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeUsersRepo) Update(_ context.Context, id int64, upd models.UserUpdate) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.RemainingSeconds != nil {
		u.RemainingSeconds = *upd.RemainingSeconds
	}
	return u, nil
}

func (f *fakeUsersRepo) Delete(_ context.Context, id int64) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.byID[id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeUsersRepo) ChargeQuota(_ context.Context, id int64, tick int64) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	u, ok := f.byID[id]
	if !ok {
		return 0, common.ErrorNotFound
	}
	u.RemainingSeconds = max(0, u.RemainingSeconds-tick)
	return u.RemainingSeconds, nil
}

func (f *fakeUsersRepo) RemainingSeconds(_ context.Context, id int64) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	u, ok := f.byID[id]
	if !ok {
		return 0, common.ErrorNotFound
	}
	return u.RemainingSeconds, nil
}

// --- leases ---

// fakeLeasesRepo serialises every call, standing in for the row lock
// the conditional upsert takes.
type fakeLeasesRepo struct {
	mu    sync.Mutex
	rows  map[string]*models.Lease
	users *fakeUsersRepo
	err   error
}

func newFakeLeases(users *fakeUsersRepo) *fakeLeasesRepo {
	return &fakeLeasesRepo{rows: map[string]*models.Lease{}, users: users}
}

func (f *fakeLeasesRepo) name(id int64) string {
	if u, ok := f.users.byID[id]; ok {
		return u.UserName
	}
	return ""
}

func (f *fakeLeasesRepo) Acquire(_ context.Context, resourceID string, holderID int64, now, staleBefore time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if l, ok := f.rows[resourceID]; ok && l.HolderUserID != holderID && l.LastRenewedAt.After(staleBefore) {
		return false, nil
	}
	f.rows[resourceID] = &models.Lease{ResourceID: resourceID, HolderUserID: holderID, LastRenewedAt: now}
	return true, nil
}

func (f *fakeLeasesRepo) Holder(_ context.Context, resourceID string) (*models.Occupancy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.rows[resourceID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &models.Occupancy{ResourceID: resourceID, HolderUserID: l.HolderUserID, HolderName: f.name(l.HolderUserID)}, nil
}

func (f *fakeLeasesRepo) ReleaseOthers(_ context.Context, holderID int64, keep string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, l := range f.rows {
		if l.HolderUserID == holderID && id != keep {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeLeasesRepo) Renew(_ context.Context, resourceID string, holderID int64, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.rows[resourceID]
	if !ok || l.HolderUserID != holderID {
		return false, nil
	}
	l.LastRenewedAt = now
	return true, nil
}

func (f *fakeLeasesRepo) Sweep(_ context.Context, staleBefore time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, l := range f.rows {
		if !l.LastRenewedAt.After(staleBefore) {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeLeasesRepo) ListActive(_ context.Context, staleBefore time.Time) ([]*models.Occupancy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.Occupancy{}
	for id, l := range f.rows {
		if l.LastRenewedAt.After(staleBefore) {
			out = append(out, &models.Occupancy{ResourceID: id, HolderUserID: l.HolderUserID, HolderName: f.name(l.HolderUserID)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceID < out[j].ResourceID })
	return out, nil
}

// --- sync document ---

type fakeSyncRepo struct {
	doc *models.SyncDocument
	err error
}

func (f *fakeSyncRepo) Get(context.Context) (*models.SyncDocument, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.doc == nil {
		return nil, common.ErrorNotFound
	}
	cp := *f.doc
	return &cp, nil
}

func (f *fakeSyncRepo) write(cipherText string, now int64) int64 {
	f.doc.CipherText = cipherText
	f.doc.Version = max(now, f.doc.Version+1)
	return f.doc.Version
}

func (f *fakeSyncRepo) CompareAndSwap(_ context.Context, cipherText string, basedOn int64, now int64) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.doc == nil {
		return 0, common.ErrorNotFound
	}
	if f.doc.Version != 0 && f.doc.Version != basedOn {
		return 0, common.ErrVersionConflict
	}
	return f.write(cipherText, now), nil
}

func (f *fakeSyncRepo) ForceWrite(_ context.Context, cipherText string, now int64) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.doc == nil {
		return 0, common.ErrorNotFound
	}
	return f.write(cipherText, now), nil
}

// --- manager ---

type fakeRepoManager struct {
	users  *fakeUsersRepo
	leases *fakeLeasesRepo
	sync   *fakeSyncRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) usersrepo.Repository          { return m.users }
func (m *fakeRepoManager) Leases(dbx.DBTX) leasesrepo.Repository        { return m.leases }
func (m *fakeRepoManager) SyncDocument(dbx.DBTX) syncrepo.Repository    { return m.sync }

type fakeArchiver struct {
	calls []int64
	err   error
}

func (a *fakeArchiver) Archive(_ context.Context, version int64, _ string) error {
	a.calls = append(a.calls, version)
	return a.err
}

var errBoom = errors.New("boom")

var authIdentityGhost = auth.Identity{UserID: 404, Username: "ghost", Role: models.RoleUser}
