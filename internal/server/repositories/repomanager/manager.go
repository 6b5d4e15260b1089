package repomanager

import (
	"context"
	"database/sql"

	"github.com/guinardelli/sheet-guardian-sub000/internal/dbx"
	"github.com/guinardelli/sheet-guardian-sub000/internal/server/repositories/proctokens"
	"github.com/guinardelli/sheet-guardian-sub000/internal/server/repositories/subscriptions"
)

// RepositoryManager vends repository implementations bound to a DBTX, so a
// service can use the same repositories against *sql.DB or inside a
// transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Subscriptions(db dbx.DBTX) subscriptions.Repository
	ProcessingTokens(db dbx.DBTX) proctokens.Repository
}
