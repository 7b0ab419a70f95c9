package users

import (
	"context"

	"github.com/dmitrijs2005/leasekeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	Update(ctx context.Context, id int64, upd models.UserUpdate) (*models.User, error)
	Delete(ctx context.Context, id int64) error

	// ChargeQuota subtracts tick seconds, floored at zero, and returns the
	// remaining balance.
	ChargeQuota(ctx context.Context, id int64, tick int64) (int64, error)
	RemainingSeconds(ctx context.Context, id int64) (int64, error)
}
