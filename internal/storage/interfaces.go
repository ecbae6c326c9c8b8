package storage

import (
	"context"
	"time"

	"pump-cycle-bot/internal/domain"
)

// ProfitStore mirrors the profit ledger into a queryable store.
type ProfitStore interface {
	// Insert adds a record. Returns ErrDuplicateKey if entry_id exists.
	Insert(ctx context.Context, r *domain.ProfitRecord) error

	// GetBySession retrieves all records written by one process, ordered by cycle id ASC.
	GetBySession(ctx context.Context, sessionID string) ([]*domain.ProfitRecord, error)

	// GetByTimeRange retrieves records with timestamp in [start, end] (inclusive), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.ProfitRecord, error)

	// Total returns the sum of all recorded profits in lamports.
	Total(ctx context.Context) (int64, error)
}

// CycleEventStore holds the cycle event stream for analytics.
type CycleEventStore interface {
	// InsertBulk adds multiple events. Events are not keyed; duplicates are allowed.
	InsertBulk(ctx context.Context, events []*domain.CycleEvent) error

	// GetByCycle retrieves the events of one cycle, ordered by time ASC.
	GetByCycle(ctx context.Context, sessionID string, cycleID uint64) ([]*domain.CycleEvent, error)
}
