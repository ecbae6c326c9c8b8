package ledger

import "pump-cycle-bot/internal/domain"

// Summary aggregates a ledger for reporting.
type Summary struct {
	Cycles      int
	Wins        int
	Losses      int
	Flat        int
	TotalProfit int64
	Best        int64
	Worst       int64
	ByReason    map[domain.LiquidationReason]int
	Suspicious  int
}

// Summarize computes a Summary over entries.
func Summarize(entries []domain.ProfitEntry) Summary {
	s := Summary{ByReason: make(map[domain.LiquidationReason]int)}
	for i, e := range entries {
		s.Cycles++
		s.TotalProfit += e.Profit
		switch {
		case e.Profit > 0:
			s.Wins++
		case e.Profit < 0:
			s.Losses++
		default:
			s.Flat++
		}
		if i == 0 || e.Profit > s.Best {
			s.Best = e.Profit
		}
		if i == 0 || e.Profit < s.Worst {
			s.Worst = e.Profit
		}
		if e.Reason != "" {
			s.ByReason[e.Reason]++
		}
		if e.IsSuspicious() {
			s.Suspicious++
		}
	}
	return s
}

// WinRate is wins over cycles, zero for an empty ledger.
func (s Summary) WinRate() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Cycles)
}
