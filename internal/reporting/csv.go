package reporting

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"pump-cycle-bot/internal/domain"
)

var csvHeader = []string{
	"cycle_id", "timestamp", "token_address", "reason",
	"initial_balance", "final_balance", "profit_lamports", "profit_sol", "suspicious",
}

// WriteCSV writes one row per ledger entry.
func WriteCSV(w io.Writer, entries []domain.ProfitEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range entries {
		row := []string{
			strconv.FormatUint(e.CycleID, 10),
			e.Timestamp.UTC().Format(time.RFC3339),
			e.TokenAddress,
			string(e.Reason),
			strconv.FormatUint(e.InitialBalance, 10),
			strconv.FormatUint(e.FinalBalance, 10),
			strconv.FormatInt(e.Profit, 10),
			strconv.FormatFloat(domain.LamportsToSOL(e.Profit), 'f', 9, 64),
			strconv.FormatBool(e.IsSuspicious()),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
