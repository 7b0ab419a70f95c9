package syncdoc

import (
	"context"

	"github.com/dmitrijs2005/leasekeeper/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context) (*models.SyncDocument, error)
	// CompareAndSwap writes cipherText only if the stored version is 0 or
	// equals basedOn, and returns the new version.
	CompareAndSwap(ctx context.Context, cipherText string, basedOn int64, now int64) (int64, error)
	// ForceWrite writes cipherText without any version comparison. It is
	// the delete-item path only; every client write goes through
	// CompareAndSwap.
	ForceWrite(ctx context.Context, cipherText string, now int64) (int64, error)
}
