package domain

import "time"

// LamportsPerSOL is the native-unit scale.
const LamportsPerSOL = 1_000_000_000

// ProfitEntry is one per-cycle financial record. Amounts are lamports.
type ProfitEntry struct {
	CycleID        uint64            `json:"cycleId"`
	Profit         int64             `json:"profit"`
	TokenAddress   string            `json:"tokenAddress"`
	Timestamp      time.Time         `json:"timestamp"`
	InitialBalance uint64            `json:"initialBalance"`
	FinalBalance   uint64            `json:"finalBalance"`
	Reason         LiquidationReason `json:"reason,omitempty"`
}

// NewProfitEntry builds an entry whose Profit is final minus initial.
func NewProfitEntry(cycleID uint64, token string, initial, final uint64, reason LiquidationReason, at time.Time) ProfitEntry {
	return ProfitEntry{
		CycleID:        cycleID,
		Profit:         int64(final) - int64(initial),
		TokenAddress:   token,
		Timestamp:      at,
		InitialBalance: initial,
		FinalBalance:   final,
		Reason:         reason,
	}
}

// IsSuspicious reports |profit| > 0.5 * initial balance.
func (e ProfitEntry) IsSuspicious() bool {
	p := e.Profit
	if p < 0 {
		p = -p
	}
	// 2|p| > initial avoids the fractional threshold.
	return uint64(p)*2 > e.InitialBalance
}

// LamportsToSOL converts for display only.
func LamportsToSOL(lamports int64) float64 {
	return float64(lamports) / LamportsPerSOL
}

// SOLToLamports converts a configured SOL amount, rounding to the nearest lamport.
func SOLToLamports(sol float64) uint64 {
	if sol <= 0 {
		return 0
	}
	return uint64(sol*LamportsPerSOL + 0.5)
}

// ProfitRecord is a ProfitEntry as stored in the external mirrors.
// EntryID is deterministic per (session, cycle, token).
type ProfitRecord struct {
	EntryID   string
	SessionID string
	ProfitEntry
}
