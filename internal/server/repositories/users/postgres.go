// Package users provides the PostgreSQL-backed user repository.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/leasekeeper/internal/common"
	"github.com/dmitrijs2005/leasekeeper/internal/dbx"
	"github.com/dmitrijs2005/leasekeeper/internal/server/models"
)

const userColumns = `id, username, password_hash, role, remaining_seconds, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u    models.User
		role string
	)
	if err := row.Scan(&u.ID, &u.UserName, &u.PasswordHash, &role, &u.RemainingSeconds, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	return &u, nil
}

func notFoundOr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}
	return fmt.Errorf("db error: %w", err)
}

// Create inserts a user and returns it with the generated id and
// timestamps. A taken username yields common.ErrorAlreadyExists.
func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (username, password_hash, role, remaining_seconds)
		 VALUES ($1, $2, $3, $4)
		 RETURNING ` + userColumns

	u, err := scanUser(r.db.QueryRowContext(ctx, query,
		user.UserName, user.PasswordHash, string(user.Role), user.RemainingSeconds))
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`

	u, err := scanUser(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		return nil, notFoundOr(err)
	}
	return u, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err)
	}
	return u, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select users: %w", err)
	}
	defer rows.Close()

	var result []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Update applies the non-nil fields of upd. A missing id yields
// common.ErrorNotFound.
func (r *PostgresRepository) Update(ctx context.Context, id int64, upd models.UserUpdate) (*models.User, error) {
	query :=
		`UPDATE users SET
			password_hash = COALESCE($2, password_hash),
			role = COALESCE($3, role),
			remaining_seconds = COALESCE($4, remaining_seconds),
			updated_at = now()
		 WHERE id = $1
		 RETURNING ` + userColumns

	var passwordHash, role, remaining any
	if upd.PasswordHash != nil {
		passwordHash = *upd.PasswordHash
	}
	if upd.Role != nil {
		role = string(*upd.Role)
	}
	if upd.RemainingSeconds != nil {
		remaining = *upd.RemainingSeconds
	}

	u, err := scanUser(r.db.QueryRowContext(ctx, query, id, passwordHash, role, remaining))
	if err != nil {
		return nil, notFoundOr(err)
	}
	return u, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// ChargeQuota decrements and reads back the balance in one statement, so
// concurrent heartbeats of the same user cannot interleave.
func (r *PostgresRepository) ChargeQuota(ctx context.Context, id int64, tick int64) (int64, error) {
	query :=
		`UPDATE users SET remaining_seconds = GREATEST(0, remaining_seconds - $2)
		 WHERE id = $1
		 RETURNING remaining_seconds`

	var remaining int64
	if err := r.db.QueryRowContext(ctx, query, id, tick).Scan(&remaining); err != nil {
		return 0, notFoundOr(err)
	}
	return remaining, nil
}

func (r *PostgresRepository) RemainingSeconds(ctx context.Context, id int64) (int64, error) {
	var remaining int64
	if err := r.db.QueryRowContext(ctx, `SELECT remaining_seconds FROM users WHERE id = $1`, id).Scan(&remaining); err != nil {
		return 0, notFoundOr(err)
	}
	return remaining, nil
}
