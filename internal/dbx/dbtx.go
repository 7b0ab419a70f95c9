// Package dbx holds the database/sql plumbing the repositories share:
// the DBTX handle a repository is bound to, the transaction runner the
// occupancy and heartbeat services build on, and pgx error classification.
package dbx

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is what a repository needs from its handle. *sql.DB binds a
// repository to the pool, *sql.Tx binds it to one unit of work.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn in one transaction. It commits when fn returns nil and
// rolls back when fn fails or panics; a panic is re-raised after the
// rollback. Errors from fn come back unwrapped so callers can match
// their sentinels, begin and commit failures are wrapped.
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    leases := manager.Leases(tx)
//	    ok, err := leases.Acquire(ctx, "acct-7", userID, now, now.Add(-ttl))
//	    ...
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		_ = tx.Rollback()
		if p := recover(); p != nil {
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}
