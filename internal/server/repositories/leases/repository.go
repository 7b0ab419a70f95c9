package leases

import (
	"context"
	"time"

	"github.com/dmitrijs2005/leasekeeper/internal/server/models"
)

// Repository is the lease table. Time thresholds are computed by the
// caller from its clock: a lease is active iff last_renewed_at > staleBefore.
type Repository interface {
	// Acquire upserts the lease for resourceID unless another holder
	// renewed it after staleBefore. It reports whether the row was written.
	Acquire(ctx context.Context, resourceID string, holderID int64, now, staleBefore time.Time) (bool, error)
	// Holder returns the current row for resourceID joined with the holder's name.
	Holder(ctx context.Context, resourceID string) (*models.Occupancy, error)
	// ReleaseOthers drops every lease of holderID except keepResourceID.
	ReleaseOthers(ctx context.Context, holderID int64, keepResourceID string) (int64, error)
	// Renew bumps last_renewed_at if holderID holds resourceID.
	Renew(ctx context.Context, resourceID string, holderID int64, now time.Time) (bool, error)
	// Sweep deletes every lease renewed at or before staleBefore.
	Sweep(ctx context.Context, staleBefore time.Time) (int64, error)
	// ListActive returns leases renewed after staleBefore, ordered by resource id.
	ListActive(ctx context.Context, staleBefore time.Time) ([]*models.Occupancy, error)
}
