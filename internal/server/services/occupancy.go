// Package services contains the server-side business logic: resource
// occupancy, heartbeats, the shared sync document and user management.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/leasekeeper/internal/common"
	"github.com/dmitrijs2005/leasekeeper/internal/dbx"
	"github.com/dmitrijs2005/leasekeeper/internal/logging"
	"github.com/dmitrijs2005/leasekeeper/internal/server/auth"
	"github.com/dmitrijs2005/leasekeeper/internal/server/config"
	"github.com/dmitrijs2005/leasekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/leasekeeper/internal/server/repositories/repomanager"
	"github.com/juju/clock"
)

type OccupyResult struct {
	ResourceID string
	Granted    bool
	HolderName string
}

// OccupancyService hands out exclusive leases on external resources.
type OccupancyService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	clock       clock.Clock
	ttl         time.Duration
	metrics     *metrics.Collector
	log         logging.Logger
}

func NewOccupancyService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config,
	clk clock.Clock, mc *metrics.Collector, log logging.Logger) *OccupancyService {
	return &OccupancyService{
		db:          db,
		repomanager: m,
		clock:       clk,
		ttl:         cfg.LeaseTTL,
		metrics:     mc,
		log:         log,
	}
}

// Occupy grants resourceID to the caller unless another user holds an
// active lease on it. A grant releases every other lease of the caller,
// so a user holds at most one resource. Acquire and release share one
// transaction, so a denied request never drops the caller's current lease.
func (s *OccupancyService) Occupy(ctx context.Context, caller *auth.Identity, resourceID string) (*OccupyResult, error) {
	if strings.TrimSpace(resourceID) == "" {
		return nil, common.ErrorBadRequest
	}

	now := s.clock.Now()
	staleBefore := now.Add(-s.ttl)

	var res *OccupyResult
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Leases(tx)

		granted, err := repo.Acquire(ctx, resourceID, caller.UserID, now, staleBefore)
		if err != nil {
			return err
		}

		if !granted {
			// the failed upsert still locks the conflicting row, so the
			// holder cannot change before commit
			holder, err := repo.Holder(ctx, resourceID)
			if err != nil {
				return fmt.Errorf("read holder: %w", err)
			}
			res = &OccupyResult{ResourceID: resourceID, HolderName: holder.HolderName}
			return nil
		}

		released, err := repo.ReleaseOthers(ctx, caller.UserID, resourceID)
		if err != nil {
			return err
		}
		if released > 0 {
			logging.FromContext(ctx, s.log).Debug(ctx, "released previous leases",
				"user_id", caller.UserID, "count", released)
		}

		res = &OccupyResult{ResourceID: resourceID, Granted: true}
		return nil
	})
	if err != nil {
		logging.FromContext(ctx, s.log).Error(ctx, "occupy failed", "resource_id", resourceID, "error", err)
		return nil, common.ErrorStore
	}

	if res.Granted {
		s.metrics.OccupyGranted()
	} else {
		s.metrics.OccupyDenied()
	}
	return res, nil
}
