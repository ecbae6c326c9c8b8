package reporting

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"pump-cycle-bot/internal/domain"
)

// RenderMarkdown renders the report as Markdown.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder
	s := r.Summary

	sb.WriteString("# Cycle Profit Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.UTC().Format(time.RFC3339)))
	if r.Source != "" {
		sb.WriteString(fmt.Sprintf("Source: `%s`\n\n", r.Source))
	}

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Cycles | %d |\n", s.Cycles))
	sb.WriteString(fmt.Sprintf("| Wins / Losses / Flat | %d / %d / %d |\n", s.Wins, s.Losses, s.Flat))
	sb.WriteString(fmt.Sprintf("| Win Rate | %.2f%% |\n", s.WinRate()*100))
	sb.WriteString(fmt.Sprintf("| Total Profit | %s |\n", formatSOL(s.TotalProfit)))
	if s.Cycles > 0 {
		sb.WriteString(fmt.Sprintf("| Best Cycle | %s |\n", formatSOL(s.Best)))
		sb.WriteString(fmt.Sprintf("| Worst Cycle | %s |\n", formatSOL(s.Worst)))
	}
	sb.WriteString(fmt.Sprintf("| Suspicious | %d |\n", s.Suspicious))
	sb.WriteString("\n")

	if r.TotalMismatch() {
		sb.WriteString(fmt.Sprintf("**Stored total %s differs from recomputed total %s.**\n\n",
			formatSOL(*r.RecordedTotal), formatSOL(s.TotalProfit)))
	}

	if len(s.ByReason) > 0 {
		reasons := make([]string, 0, len(s.ByReason))
		for reason := range s.ByReason {
			reasons = append(reasons, string(reason))
		}
		sort.Strings(reasons)

		sb.WriteString("## Liquidation Reasons\n\n")
		sb.WriteString("| Reason | Cycles |\n")
		sb.WriteString("|--------|--------|\n")
		for _, reason := range reasons {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", reason, s.ByReason[domain.LiquidationReason(reason)]))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Cycles\n\n")
	if len(r.Entries) == 0 {
		sb.WriteString("No cycles recorded.\n")
		return sb.String()
	}
	sb.WriteString("| Cycle | Time | Token | Reason | Initial | Final | Profit |\n")
	sb.WriteString("|-------|------|-------|--------|---------|-------|--------|\n")
	for _, e := range r.Entries {
		flag := ""
		if e.IsSuspicious() {
			flag = " ⚠"
		}
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %d | %d | %s%s |\n",
			e.CycleID,
			e.Timestamp.UTC().Format(time.RFC3339),
			shortAddress(e.TokenAddress),
			e.Reason,
			e.InitialBalance,
			e.FinalBalance,
			formatSOL(e.Profit),
			flag,
		))
	}
	return sb.String()
}

func formatSOL(lamports int64) string {
	return fmt.Sprintf("%+.9f SOL", domain.LamportsToSOL(lamports))
}

func shortAddress(a string) string {
	if len(a) <= 12 {
		return a
	}
	return a[:4] + "…" + a[len(a)-4:]
}
