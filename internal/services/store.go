package services

import (
	"context"

	"budgetbook/internal/core"
	"budgetbook/internal/storage"
)

// Store is the persistence the ledger services need. *storage.SQLiteRepository
// satisfies it; every multi-statement change runs through RunInTx.
type Store interface {
	RunInTx(ctx context.Context, fn func(q *storage.Queries) error) error

	ListRules(ctx context.Context) ([]core.RecurringRule, error)
	GetRule(ctx context.Context, id int64) (core.RecurringRule, error)
	GetEntry(ctx context.Context, id int64) (core.Entry, error)
	ListEntriesInRange(ctx context.Context, from, to core.Date) ([]core.Entry, error)
}

var _ Store = (*storage.SQLiteRepository)(nil)
