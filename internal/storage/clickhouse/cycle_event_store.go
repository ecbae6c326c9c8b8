package clickhouse

import (
	"context"
	"fmt"

	"pump-cycle-bot/internal/domain"
	"pump-cycle-bot/internal/storage"
)

// CycleEventStore implements storage.CycleEventStore using ClickHouse.
type CycleEventStore struct {
	conn *Conn
}

// NewCycleEventStore creates a new CycleEventStore.
func NewCycleEventStore(conn *Conn) *CycleEventStore {
	return &CycleEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CycleEventStore = (*CycleEventStore)(nil)

// InsertBulk appends events in one batch. A nil element rejects the batch.
func (s *CycleEventStore) InsertBulk(ctx context.Context, events []*domain.CycleEvent) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if e == nil {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO cycle_events (
			session_id, cycle_id, kind, from_state, to_state, at,
			mint, identity, reason, succeeded, error, duration_ms, profit
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		var succeeded uint8
		if e.Succeeded {
			succeeded = 1
		}
		err = batch.Append(
			e.SessionID, e.CycleID, string(e.Kind), string(e.FromState), string(e.ToState), e.At.UTC(),
			e.Mint, e.Identity, string(e.Reason), succeeded, e.Error, e.DurationMs, e.Profit,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByCycle retrieves the events of one cycle, ordered by time ASC.
func (s *CycleEventStore) GetByCycle(ctx context.Context, sessionID string, cycleID uint64) ([]*domain.CycleEvent, error) {
	query := `
		SELECT
			session_id, cycle_id, kind, from_state, to_state, at,
			mint, identity, reason, succeeded, error, duration_ms, profit
		FROM cycle_events
		WHERE session_id = ? AND cycle_id = ?
		ORDER BY at ASC
	`

	rows, err := s.conn.Query(ctx, query, sessionID, cycleID)
	if err != nil {
		return nil, fmt.Errorf("query cycle events: %w", err)
	}
	defer rows.Close()

	return scanCycleEvents(rows)
}

// chRows is the subset of driver.Rows used for scanning.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanCycleEvents(rows chRows) ([]*domain.CycleEvent, error) {
	var events []*domain.CycleEvent

	for rows.Next() {
		var (
			e                      domain.CycleEvent
			kind, from, to, reason string
			succeeded              uint8
		)
		err := rows.Scan(
			&e.SessionID, &e.CycleID, &kind, &from, &to, &e.At,
			&e.Mint, &e.Identity, &reason, &succeeded, &e.Error, &e.DurationMs, &e.Profit,
		)
		if err != nil {
			return nil, fmt.Errorf("scan cycle event row: %w", err)
		}
		e.Kind = domain.CycleEventKind(kind)
		e.FromState = domain.CycleState(from)
		e.ToState = domain.CycleState(to)
		e.Reason = domain.LiquidationReason(reason)
		e.Succeeded = succeeded == 1
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycle event rows: %w", err)
	}
	return events, nil
}
