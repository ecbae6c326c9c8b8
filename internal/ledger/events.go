package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"pump-cycle-bot/internal/domain"
	"pump-cycle-bot/internal/observability"
	"pump-cycle-bot/internal/storage"
)

// EventRecorder buffers a cycle's state changes and writes them with the
// cycle end in one batch. Write failures are logged only.
type EventRecorder struct {
	store   storage.CycleEventStore
	session string
	log     logrus.FieldLogger

	mu      sync.Mutex
	pending []*domain.CycleEvent
}

// NewEventRecorder creates an EventRecorder writing to store.
func NewEventRecorder(store storage.CycleEventStore, sessionID string, log logrus.FieldLogger) *EventRecorder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &EventRecorder{
		store:   store,
		session: sessionID,
		log:     log.WithField("component", "event_recorder"),
	}
}

// OnStateChange buffers a transition.
func (r *EventRecorder) OnStateChange(c domain.StateChange) {
	ev := &domain.CycleEvent{
		SessionID: r.session,
		CycleID:   c.CycleID,
		Kind:      domain.CycleEventTransition,
		FromState: c.From,
		ToState:   c.To,
		At:        c.At,
	}
	if c.Err != nil {
		ev.Error = c.Err.Error()
	}

	r.mu.Lock()
	r.pending = append(r.pending, ev)
	r.mu.Unlock()
}

// OnCycleEnd writes the buffered transitions and the end event.
func (r *EventRecorder) OnCycleEnd(e domain.CycleEnd) {
	ev := &domain.CycleEvent{
		SessionID:  r.session,
		CycleID:    e.Record.ID,
		Kind:       domain.CycleEventEnd,
		ToState:    e.Record.State,
		At:         e.Record.LastActivity,
		Mint:       e.Record.AssetAddress,
		Identity:   e.Record.IdentityAddress,
		Reason:     e.Record.LiquidationReason,
		Succeeded:  e.Succeeded,
		DurationMs: e.Duration.Milliseconds(),
	}
	if e.Err != nil {
		ev.Error = e.Err.Error()
	}
	if e.Profit != nil {
		ev.Profit = e.Profit.Profit
	}

	r.mu.Lock()
	batch := append(r.pending, ev)
	r.pending = nil
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	start := time.Now()
	err := r.store.InsertBulk(ctx, batch)
	observability.RecordDBQuery("clickhouse", "insert_cycle_events", time.Since(start).Seconds(), err)
	if err != nil {
		r.log.WithError(err).WithField("cycle_id", e.Record.ID).Warn("cycle event write failed")
	}
}
