// Package leases provides the PostgreSQL-backed lease repository. The
// primary key on resource_id is what keeps a resource single-holder.
package leases

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/leasekeeper/internal/common"
	"github.com/dmitrijs2005/leasekeeper/internal/dbx"
	"github.com/dmitrijs2005/leasekeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Acquire is a single conditional upsert. On conflict the existing row is
// only overwritten when it already belongs to holderID or is stale; a live
// row of another holder leaves zero rows affected.
func (r *PostgresRepository) Acquire(ctx context.Context, resourceID string, holderID int64, now, staleBefore time.Time) (bool, error) {
	query := `
		INSERT INTO leases (resource_id, holder_user_id, last_renewed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (resource_id)
		DO UPDATE SET
			holder_user_id = EXCLUDED.holder_user_id,
			last_renewed_at = EXCLUDED.last_renewed_at
			WHERE leases.holder_user_id = EXCLUDED.holder_user_id
			   OR leases.last_renewed_at <= $4;
	`
	res, err := r.db.ExecContext(ctx, query, resourceID, holderID, now, staleBefore)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) Holder(ctx context.Context, resourceID string) (*models.Occupancy, error) {
	query := `
		SELECT l.resource_id, l.holder_user_id, u.username
		FROM leases l JOIN users u ON l.holder_user_id = u.id
		WHERE l.resource_id = $1
	`
	var o models.Occupancy
	err := r.db.QueryRowContext(ctx, query, resourceID).Scan(&o.ResourceID, &o.HolderUserID, &o.HolderName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &o, nil
}

func (r *PostgresRepository) ReleaseOthers(ctx context.Context, holderID int64, keepResourceID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM leases WHERE holder_user_id = $1 AND resource_id <> $2`, holderID, keepResourceID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) Renew(ctx context.Context, resourceID string, holderID int64, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE leases SET last_renewed_at = $3 WHERE resource_id = $1 AND holder_user_id = $2`,
		resourceID, holderID, now)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresRepository) Sweep(ctx context.Context, staleBefore time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM leases WHERE last_renewed_at <= $1`, staleBefore)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) ListActive(ctx context.Context, staleBefore time.Time) ([]*models.Occupancy, error) {
	query := `
		SELECT l.resource_id, l.holder_user_id, u.username
		FROM leases l JOIN users u ON l.holder_user_id = u.id
		WHERE l.last_renewed_at > $1
		ORDER BY l.resource_id
	`
	rows, err := r.db.QueryContext(ctx, query, staleBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to select leases: %w", err)
	}
	defer rows.Close()

	result := []*models.Occupancy{}
	for rows.Next() {
		var o models.Occupancy
		if err := rows.Scan(&o.ResourceID, &o.HolderUserID, &o.HolderName); err != nil {
			return nil, err
		}
		result = append(result, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
