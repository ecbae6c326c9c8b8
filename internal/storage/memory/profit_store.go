package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"pump-cycle-bot/internal/domain"
	"pump-cycle-bot/internal/storage"
)

// ProfitStore is an in-memory implementation of storage.ProfitStore.
type ProfitStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ProfitRecord // keyed by entry_id
}

// NewProfitStore creates a new in-memory profit store.
func NewProfitStore() *ProfitStore {
	return &ProfitStore{
		data: make(map[string]*domain.ProfitRecord),
	}
}

// Insert adds a record. Returns ErrDuplicateKey if entry_id exists.
func (s *ProfitStore) Insert(_ context.Context, r *domain.ProfitRecord) error {
	if r == nil || r.EntryID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.EntryID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *r
	s.data[r.EntryID] = &copy
	return nil
}

// GetBySession retrieves all records of a session, ordered by cycle id ASC.
func (s *ProfitStore) GetBySession(_ context.Context, sessionID string) ([]*domain.ProfitRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ProfitRecord
	for _, r := range s.data {
		if r.SessionID == sessionID {
			copy := *r
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CycleID < result[j].CycleID
	})
	return result, nil
}

// GetByTimeRange retrieves records with timestamp in [start, end], ordered by timestamp ASC.
func (s *ProfitStore) GetByTimeRange(_ context.Context, start, end time.Time) ([]*domain.ProfitRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ProfitRecord
	for _, r := range s.data {
		if r.Timestamp.Before(start) || r.Timestamp.After(end) {
			continue
		}
		copy := *r
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].Timestamp.Before(result[j].Timestamp)
		}
		return result[i].EntryID < result[j].EntryID
	})
	return result, nil
}

// Total returns the sum of all recorded profits.
func (s *ProfitStore) Total(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, r := range s.data {
		total += r.Profit
	}
	return total, nil
}

var _ storage.ProfitStore = (*ProfitStore)(nil)
