// Package main renders the profit ledger as Markdown, CSV or JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"pump-cycle-bot/internal/ledger"
	"pump-cycle-bot/internal/reporting"
	pgstore "pump-cycle-bot/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	ledgerPath := flag.String("ledger", envOr("LEDGER_PATH", "data/profits.json"), "Profit ledger file")
	postgresDSN := flag.String("postgres-dsn", "", "Read from the Postgres mirror instead of the ledger file")
	session := flag.String("session", "", "With --postgres-dsn: only this session")
	since := flag.Duration("since", 0, "With --postgres-dsn: only entries newer than this")
	format := flag.String("format", "markdown", "Output format: markdown, csv or json")
	output := flag.String("output", "", "Output file (default stdout)")
	flag.Parse()

	ctx := context.Background()
	now := time.Now()

	var (
		report *reporting.Report
		err    error
	)
	if *postgresDSN != "" {
		report, err = fromPostgres(ctx, *postgresDSN, *session, *since, now)
	} else {
		report, err = fromLedger(*ledgerPath, now)
	}
	if err != nil {
		logrus.WithError(err).Fatal("load entries")
	}
	if report.TotalMismatch() {
		logrus.WithFields(logrus.Fields{
			"stored":     *report.RecordedTotal,
			"recomputed": report.Summary.TotalProfit,
		}).Warn("ledger total does not match its entries")
	}

	var out io.Writer = os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			logrus.WithError(err).Fatal("create output")
		}
		defer f.Close()
		out = f
	}

	if err := render(out, report, *format); err != nil {
		logrus.WithError(err).Fatal("render report")
	}
}

func fromLedger(path string, now time.Time) (*reporting.Report, error) {
	f, err := ledger.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return reporting.FromFile(path, f, now), nil
}

func fromPostgres(ctx context.Context, dsn, session string, since time.Duration, now time.Time) (*reporting.Report, error) {
	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	defer pool.Close()
	store := pgstore.NewProfitStore(pool)

	if session != "" {
		recs, err := store.GetBySession(ctx, session)
		if err != nil {
			return nil, err
		}
		return reporting.FromRecords("postgres session "+session, recs, now), nil
	}

	start := time.Unix(0, 0)
	if since > 0 {
		start = now.Add(-since)
	}
	recs, err := store.GetByTimeRange(ctx, start, now)
	if err != nil {
		return nil, err
	}
	return reporting.FromRecords("postgres", recs, now), nil
}

func render(w io.Writer, r *reporting.Report, format string) error {
	switch format {
	case "markdown", "md":
		_, err := io.WriteString(w, reporting.RenderMarkdown(r))
		return err
	case "csv":
		return reporting.WriteCSV(w, r.Entries)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ledger.File{TotalProfit: r.Summary.TotalProfit, Cycles: r.Entries})
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
