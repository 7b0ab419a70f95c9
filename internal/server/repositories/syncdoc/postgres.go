// Package syncdoc provides the PostgreSQL-backed singleton sync document.
//
// Versions are timestamp-shaped: a write stores max(now, version+1), so
// they stay close to unix seconds while still increasing strictly when
// two writes land in the same second or the clock steps back.
package syncdoc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

func (r *PostgresRepository) Get(ctx context.Context) (*models.SyncDocument, error) {
	query := `SELECT cipher_text, version, updated_at FROM sync_document WHERE id = $1`

	var d models.SyncDocument
	err := r.db.QueryRowContext(ctx, query, models.SyncDocumentID).Scan(&d.CipherText, &d.Version, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &d, nil
}

// CompareAndSwap checks and writes in one conditional UPDATE. When nothing
// is updated it tells a stale base (common.ErrVersionConflict) from a
// missing row (common.ErrorNotFound).
func (r *PostgresRepository) CompareAndSwap(ctx context.Context, cipherText string, basedOn int64, now int64) (int64, error) {
	query := `
		UPDATE sync_document
		SET cipher_text = $2, version = GREATEST($3, version + 1), updated_at = now()
		WHERE id = $1 AND (version = 0 OR version = $4)
		RETURNING version
	`
	var version int64
	err := r.db.QueryRowContext(ctx, query, models.SyncDocumentID, cipherText, now, basedOn).Scan(&version)
	if err == nil {
		return version, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("db error: %w", err)
	}

	if _, err := r.Get(ctx); err != nil {
		return 0, err
	}
	return 0, common.ErrVersionConflict
}

func (r *PostgresRepository) ForceWrite(ctx context.Context, cipherText string, now int64) (int64, error) {
	query := `
		UPDATE sync_document
		SET cipher_text = $2, version = GREATEST($3, version + 1), updated_at = now()
		WHERE id = $1
		RETURNING version
	`
	var version int64
	err := r.db.QueryRowContext(ctx, query, models.SyncDocumentID, cipherText, now).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return version, nil
}
