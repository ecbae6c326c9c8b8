package memory

import (
	"context"
	"sort"
	"sync"

	"pump-cycle-bot/internal/domain"
	"pump-cycle-bot/internal/storage"
)

// CycleEventStore is an in-memory implementation of storage.CycleEventStore.
type CycleEventStore struct {
	mu   sync.RWMutex
	data []*domain.CycleEvent
}

// NewCycleEventStore creates a new in-memory cycle event store.
func NewCycleEventStore() *CycleEventStore {
	return &CycleEventStore{}
}

// InsertBulk appends events. A nil element rejects the whole batch.
func (s *CycleEventStore) InsertBulk(_ context.Context, events []*domain.CycleEvent) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if e == nil {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		copy := *e
		s.data = append(s.data, &copy)
	}
	return nil
}

// GetByCycle retrieves the events of one cycle, ordered by time ASC.
func (s *CycleEventStore) GetByCycle(_ context.Context, sessionID string, cycleID uint64) ([]*domain.CycleEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CycleEvent
	for _, e := range s.data {
		if e.SessionID == sessionID && e.CycleID == cycleID {
			copy := *e
			result = append(result, &copy)
		}
	}

	// Stable keeps insertion order for events sharing a timestamp.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].At.Before(result[j].At)
	})
	return result, nil
}

var _ storage.CycleEventStore = (*CycleEventStore)(nil)
