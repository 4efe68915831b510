package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/convexa/nameforge/common/db"
	"github.com/convexa/nameforge/common/engine"
)

// Stores exposes the engine's persistence interfaces over one shared
// pool, and runs propagation units inside real database transactions.
type Stores struct {
	db *db.DB

	Strings   *StringRepository
	Slots     *SlotRepository
	Audits    *AuditRepository
	Jobs      *JobRepository
	Errors    *ErrorRepository
	Templates *TemplateRepository
}

// NewStores creates the repository set over a connection pool
func NewStores(database *db.DB) *Stores {
	return &Stores{
		db:        database,
		Strings:   NewStringRepository(database),
		Slots:     NewSlotRepository(database),
		Audits:    NewAuditRepository(database),
		Jobs:      NewJobRepository(database),
		Errors:    NewErrorRepository(database),
		Templates: NewTemplateRepository(database),
	}
}

// InTx runs one propagation unit inside a database transaction. The
// store set handed to fn is bound to the open transaction, so a failed
// unit leaves no partial writes behind.
func (s *Stores) InTx(ctx context.Context, fn func(st engine.Stores) error) error {
	return s.db.InTx(ctx, func(tx pgx.Tx) error {
		return fn(engine.Stores{
			Strings:   NewStringRepository(tx),
			Slots:     NewSlotRepository(tx),
			Audits:    NewAuditRepository(tx),
			Templates: NewTemplateRepository(tx),
		})
	})
}
