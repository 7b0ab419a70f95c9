package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/leasekeeper/internal/dbx"
	"github.com/dmitrijs2005/leasekeeper/internal/server/repositories/leases"
	"github.com/dmitrijs2005/leasekeeper/internal/server/repositories/syncdoc"
	"github.com/dmitrijs2005/leasekeeper/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Leases(db dbx.DBTX) leases.Repository
	SyncDocument(db dbx.DBTX) syncdoc.Repository
}
