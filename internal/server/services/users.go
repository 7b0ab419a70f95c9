package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/leasekeeper/internal/common"
	"github.com/dmitrijs2005/leasekeeper/internal/cryptox"
	"github.com/dmitrijs2005/leasekeeper/internal/logging"
	"github.com/dmitrijs2005/leasekeeper/internal/server/auth"
	"github.com/dmitrijs2005/leasekeeper/internal/server/config"
	"github.com/dmitrijs2005/leasekeeper/internal/server/models"
	"github.com/dmitrijs2005/leasekeeper/internal/server/repositories/repomanager"
	"github.com/juju/clock"
)

type LoginResult struct {
	Token string
	User  *models.User
}

// NewUser is an admin request to create an account.
type NewUser struct {
	Username         string
	Password         string
	Role             models.Role
	RemainingSeconds int64
}

// UserPatch is an admin request to change an account. Nil fields and an
// empty password are left unchanged.
type UserPatch struct {
	Password         *string
	Role             *models.Role
	RemainingSeconds *int64
}

// UserService covers login, token verification and admin user management.
type UserService struct {
	db               *sql.DB
	repomanager      repomanager.RepositoryManager
	clock            clock.Clock
	jwtSecret        []byte
	validityDuration time.Duration
	log              logging.Logger
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config,
	clk clock.Clock, log logging.Logger) *UserService {
	return &UserService{
		db:               db,
		repomanager:      m,
		clock:            clk,
		jwtSecret:        []byte(cfg.SecretKey),
		validityDuration: cfg.TokenValidityDuration,
		log:              log,
	}
}

func (s *UserService) internal(ctx context.Context, op string, err error) error {
	logging.FromContext(ctx, s.log).Error(ctx, "user store failure", "op", op, "error", err)
	return common.ErrorStore
}

// Login checks credentials and issues a token. A non-admin whose quota
// is used up gets common.ErrorForbidden.
func (s *UserService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, s.internal(ctx, "login", err)
	}

	pw := []byte(password)
	ok, err := cryptox.VerifyPassword(user.PasswordHash, pw)
	common.WipeByteArray(pw)
	if err != nil {
		logging.FromContext(ctx, s.log).Warn(ctx, "stored password hash unreadable", "user_id", user.ID, "error", err)
		return nil, common.ErrorUnauthorized
	}
	if !ok {
		return nil, common.ErrorUnauthorized
	}

	if user.Role.Policy().EnforceQuota && user.RemainingSeconds <= 0 {
		return nil, common.ErrorForbidden
	}

	token, err := auth.GenerateToken(user, s.jwtSecret, s.validityDuration, s.clock.Now())
	if err != nil {
		return nil, common.ErrorInternal
	}

	return &LoginResult{Token: token, User: user}, nil
}

// Authenticate verifies a bearer token.
func (s *UserService) Authenticate(token string) (*auth.Identity, error) {
	id, err := auth.ParseToken(token, s.jwtSecret, s.clock.Now())
	if err != nil {
		return nil, common.ErrorUnauthorized
	}
	return id, nil
}

// Me returns the caller's profile. A caller whose account was deleted is
// treated as unauthenticated.
func (s *UserService) Me(ctx context.Context, caller *auth.Identity) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, s.internal(ctx, "me", err)
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context) ([]*models.User, error) {
	users, err := s.repomanager.Users(s.db).List(ctx)
	if err != nil {
		return nil, s.internal(ctx, "list", err)
	}
	return users, nil
}

func (s *UserService) Create(ctx context.Context, req NewUser) (*models.User, error) {
	if strings.TrimSpace(req.Username) == "" || req.Password == "" || req.RemainingSeconds < 0 {
		return nil, common.ErrorBadRequest
	}
	if req.Role == "" {
		req.Role = models.RoleUser
	}
	if _, ok := models.ParseRole(string(req.Role)); !ok {
		return nil, common.ErrorBadRequest
	}

	user, err := s.repomanager.Users(s.db).Create(ctx, &models.User{
		UserName:         req.Username,
		PasswordHash:     cryptox.HashPassword([]byte(req.Password)),
		Role:             req.Role,
		RemainingSeconds: req.RemainingSeconds,
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, s.internal(ctx, "create", err)
	}

	logging.FromContext(ctx, s.log).Info(ctx, "user created", "user_id", user.ID, "username", user.UserName, "role", user.Role)
	return user, nil
}

func (s *UserService) Update(ctx context.Context, id int64, patch UserPatch) (*models.User, error) {
	var upd models.UserUpdate

	if patch.Password != nil && *patch.Password != "" {
		hash := cryptox.HashPassword([]byte(*patch.Password))
		upd.PasswordHash = &hash
	}
	if patch.Role != nil {
		if _, ok := models.ParseRole(string(*patch.Role)); !ok {
			return nil, common.ErrorBadRequest
		}
		upd.Role = patch.Role
	}
	if patch.RemainingSeconds != nil {
		if *patch.RemainingSeconds < 0 {
			return nil, common.ErrorBadRequest
		}
		upd.RemainingSeconds = patch.RemainingSeconds
	}

	user, err := s.repomanager.Users(s.db).Update(ctx, id, upd)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, s.internal(ctx, "update", err)
	}
	return user, nil
}

// Delete removes a user and, through the foreign key, their leases.
// Admins cannot delete themselves.
func (s *UserService) Delete(ctx context.Context, caller *auth.Identity, id int64) error {
	if caller.UserID == id {
		return common.ErrorBadRequest
	}
	if err := s.repomanager.Users(s.db).Delete(ctx, id); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return s.internal(ctx, "delete", err)
	}
	logging.FromContext(ctx, s.log).Info(ctx, "user deleted", "user_id", id)
	return nil
}

// EnsureAdmin creates an admin account unless username already exists.
// It reports whether an account was created.
func (s *UserService) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}

	repo := s.repomanager.Users(s.db)
	if _, err := repo.GetByUsername(ctx, username); err == nil {
		return false, nil
	} else if !errors.Is(err, common.ErrorNotFound) {
		return false, err
	}

	_, err := repo.Create(ctx, &models.User{
		UserName:     username,
		PasswordHash: cryptox.HashPassword([]byte(password)),
		Role:         models.RoleAdmin,
	})
	if errors.Is(err, common.ErrorAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
