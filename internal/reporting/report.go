package reporting

import (
	"sort"
	"time"

	"pump-cycle-bot/internal/domain"
	"pump-cycle-bot/internal/ledger"
)

// Report is a rendered view of the profit ledger.
type Report struct {
	GeneratedAt time.Time
	// Source names where the entries came from (a ledger path or a mirror).
	Source  string
	Summary ledger.Summary

	// Entries sorted by timestamp, then cycle id.
	Entries []domain.ProfitEntry

	// RecordedTotal is the total stored alongside the entries, if any.
	// It is compared with the recomputed Summary.TotalProfit.
	RecordedTotal *int64
}

// New builds a Report over entries.
func New(source string, entries []domain.ProfitEntry, generatedAt time.Time) *Report {
	sorted := make([]domain.ProfitEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].CycleID < sorted[j].CycleID
	})
	return &Report{
		GeneratedAt: generatedAt,
		Source:      source,
		Summary:     ledger.Summarize(sorted),
		Entries:     sorted,
	}
}

// FromFile builds a Report from a ledger file and keeps its stored total.
func FromFile(source string, f *ledger.File, generatedAt time.Time) *Report {
	r := New(source, f.Cycles, generatedAt)
	total := f.TotalProfit
	r.RecordedTotal = &total
	return r
}

// FromRecords builds a Report from mirror rows.
func FromRecords(source string, records []*domain.ProfitRecord, generatedAt time.Time) *Report {
	entries := make([]domain.ProfitEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, rec.ProfitEntry)
	}
	return New(source, entries, generatedAt)
}

// TotalMismatch reports whether the stored total disagrees with the entries.
func (r *Report) TotalMismatch() bool {
	return r.RecordedTotal != nil && *r.RecordedTotal != r.Summary.TotalProfit
}
