package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"pump-cycle-bot/internal/domain"
	"pump-cycle-bot/internal/storage"
)

func record(id, session string, cycle uint64, initial, final uint64, at time.Time) *domain.ProfitRecord {
	return &domain.ProfitRecord{
		EntryID:     id,
		SessionID:   session,
		ProfitEntry: domain.NewProfitEntry(cycle, "mint-"+id, initial, final, domain.ReasonTimeout, at),
	}
}

func TestProfitStore_InsertAndGetBySession(t *testing.T) {
	store := NewProfitStore()
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	for _, r := range []*domain.ProfitRecord{
		record("e2", "s1", 2, 1_000, 900, base.Add(time.Minute)),
		record("e1", "s1", 1, 1_000, 1_200, base),
		record("e3", "s2", 1, 500, 500, base),
	} {
		if err := store.Insert(ctx, r); err != nil {
			t.Fatalf("Insert %s failed: %v", r.EntryID, err)
		}
	}

	got, err := store.GetBySession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetBySession failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].CycleID != 1 || got[1].CycleID != 2 {
		t.Errorf("expected cycle order 1,2, got %d,%d", got[0].CycleID, got[1].CycleID)
	}
	if got[0].Profit != 200 || got[1].Profit != -100 {
		t.Errorf("profit mismatch: %d, %d", got[0].Profit, got[1].Profit)
	}
}

func TestProfitStore_DuplicateKey(t *testing.T) {
	store := NewProfitStore()
	ctx := context.Background()
	r := record("e1", "s1", 1, 1_000, 1_100, time.Now())

	if err := store.Insert(ctx, r); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	if err := store.Insert(ctx, r); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestProfitStore_InvalidInput(t *testing.T) {
	store := NewProfitStore()
	if err := store.Insert(context.Background(), &domain.ProfitRecord{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestProfitStore_TimeRangeAndTotal(t *testing.T) {
	store := NewProfitStore()
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	store.Insert(ctx, record("a", "s", 1, 1_000, 1_500, base))
	store.Insert(ctx, record("b", "s", 2, 1_000, 800, base.Add(time.Hour)))
	store.Insert(ctx, record("c", "s", 3, 1_000, 1_050, base.Add(2*time.Hour)))

	got, err := store.GetByTimeRange(ctx, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(got) != 2 || got[0].EntryID != "a" || got[1].EntryID != "b" {
		t.Errorf("unexpected range result: %+v", got)
	}

	total, err := store.Total(ctx)
	if err != nil {
		t.Fatalf("Total failed: %v", err)
	}
	if total != 500-200+50 {
		t.Errorf("total = %d, want %d", total, 350)
	}
}

func TestCycleEventStore_GetByCycle(t *testing.T) {
	store := NewCycleEventStore()
	ctx := context.Background()
	at := time.Unix(1_700_000_000, 0)

	err := store.InsertBulk(ctx, []*domain.CycleEvent{
		{SessionID: "s", CycleID: 1, Kind: domain.CycleEventTransition, FromState: domain.StateInitializing, ToState: domain.StateCreatingAsset, At: at},
		{SessionID: "s", CycleID: 1, Kind: domain.CycleEventTransition, FromState: domain.StateCreatingAsset, ToState: domain.StateMonitoring, At: at},
		{SessionID: "s", CycleID: 2, Kind: domain.CycleEventTransition, ToState: domain.StateInitializing, At: at},
		{SessionID: "s", CycleID: 1, Kind: domain.CycleEventEnd, Succeeded: true, At: at.Add(time.Second)},
	})
	if err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByCycle(ctx, "s", 1)
	if err != nil {
		t.Fatalf("GetByCycle failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].ToState != domain.StateCreatingAsset || got[1].ToState != domain.StateMonitoring {
		t.Errorf("events sharing a timestamp should keep insertion order")
	}
	if got[2].Kind != domain.CycleEventEnd {
		t.Errorf("expected end event last, got %s", got[2].Kind)
	}

	if err := store.InsertBulk(ctx, []*domain.CycleEvent{nil}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}
