package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/leasekeeper/internal/common"
	"github.com/dmitrijs2005/leasekeeper/internal/dbx"
	"github.com/dmitrijs2005/leasekeeper/internal/logging"
	"github.com/dmitrijs2005/leasekeeper/internal/server/auth"
	"github.com/dmitrijs2005/leasekeeper/internal/server/config"
	"github.com/dmitrijs2005/leasekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/leasekeeper/internal/server/models"
	"github.com/dmitrijs2005/leasekeeper/internal/server/repositories/repomanager"
	"github.com/juju/clock"
)

const (
	StatusActive  = "active"
	StatusExpired = "expired"
)

type HeartbeatResult struct {
	Status           string
	RemainingSeconds int64
	Snapshot         []*models.Occupancy
}

// HeartbeatService charges quota, renews the caller's lease and sweeps
// stale leases. There is no background timer: stale rows disappear on
// the next heartbeat of any user.
type HeartbeatService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	clock       clock.Clock
	ttl         time.Duration
	tick        int64
	metrics     *metrics.Collector
	log         logging.Logger
}

func NewHeartbeatService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config,
	clk clock.Clock, mc *metrics.Collector, log logging.Logger) *HeartbeatService {
	return &HeartbeatService{
		db:          db,
		repomanager: m,
		clock:       clk,
		ttl:         cfg.LeaseTTL,
		tick:        int64(cfg.QuotaTick / time.Second),
		metrics:     mc,
		log:         log,
	}
}

// Heartbeat runs quota accounting, renewal, sweep and snapshot in one
// transaction. Only activeResourceID is renewed, and only if the caller
// holds it.
func (s *HeartbeatService) Heartbeat(ctx context.Context, caller *auth.Identity, activeResourceID string) (*HeartbeatResult, error) {
	now := s.clock.Now()
	staleBefore := now.Add(-s.ttl)
	policy := caller.Role.Policy()

	var (
		res   HeartbeatResult
		swept int64
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		users := s.repomanager.Users(tx)
		leases := s.repomanager.Leases(tx)

		var err error
		if policy.ChargeQuota {
			res.RemainingSeconds, err = users.ChargeQuota(ctx, caller.UserID, s.tick)
		} else {
			res.RemainingSeconds, err = users.RemainingSeconds(ctx, caller.UserID)
		}
		if err != nil {
			return err
		}

		if activeResourceID != "" {
			if _, err := leases.Renew(ctx, activeResourceID, caller.UserID, now); err != nil {
				return err
			}
		}

		swept, err = leases.Sweep(ctx, staleBefore)
		if err != nil {
			return err
		}

		res.Snapshot, err = leases.ListActive(ctx, staleBefore)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		logging.FromContext(ctx, s.log).Error(ctx, "heartbeat failed", "user_id", caller.UserID, "error", err)
		return nil, common.ErrorStore
	}

	s.metrics.Heartbeat(string(caller.Role))
	s.metrics.LeasesSwept(swept)

	res.Status = StatusExpired
	if res.RemainingSeconds > 0 {
		res.Status = StatusActive
	}
	return &res, nil
}
