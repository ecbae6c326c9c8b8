// Package ledger persists per-cycle profit records and running totals.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"pump-cycle-bot/internal/domain"
	"pump-cycle-bot/internal/idhash"
	"pump-cycle-bot/internal/observability"
	"pump-cycle-bot/internal/storage"
)

const mirrorTimeout = 5 * time.Second

// File is the persisted ledger layout.
type File struct {
	TotalProfit int64                `json:"totalProfit"`
	Cycles      []domain.ProfitEntry `json:"cycles"`
}

// Options configures a Ledger.
type Options struct {
	Path string
	// Mirror, if set, receives a copy of every appended entry. Mirror
	// failures are logged and never fail Append.
	Mirror    storage.ProfitStore
	SessionID string
	Logger    logrus.FieldLogger
}

// Ledger appends profit entries to a single JSON file. It assumes one writer.
type Ledger struct {
	mu      sync.Mutex
	path    string
	mirror  storage.ProfitStore
	session string
	log     logrus.FieldLogger
}

// New creates a Ledger.
func New(opts Options) *Ledger {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Ledger{
		path:    opts.Path,
		mirror:  opts.Mirror,
		session: opts.SessionID,
		log:     log.WithField("component", "ledger"),
	}
}

// Path returns the ledger file location.
func (l *Ledger) Path() string { return l.path }

// Load reads the ledger. A missing file is an empty ledger.
func (l *Ledger) Load() (*File, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

func (l *Ledger) load() (*File, error) {
	return ReadFile(l.path)
}

// ReadFile reads a ledger file without a Ledger. A missing file is empty.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &File{Cycles: []domain.ProfitEntry{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse ledger %s: %w", path, err)
	}
	if f.Cycles == nil {
		f.Cycles = []domain.ProfitEntry{}
	}
	return &f, nil
}

// Append adds e, rewrites the whole file atomically, and returns the new
// running total. The total is recomputed from all entries.
func (l *Ledger) Append(ctx context.Context, e domain.ProfitEntry) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.load()
	if err != nil {
		return 0, err
	}
	f.Cycles = append(f.Cycles, e)
	f.TotalProfit = Total(f.Cycles)

	if err := l.write(f); err != nil {
		return 0, err
	}

	observability.SetProfit(e.Profit, f.TotalProfit)
	l.log.WithFields(logrus.Fields{
		"cycle_id":     e.CycleID,
		"profit":       e.Profit,
		"total_profit": f.TotalProfit,
	}).Info("profit recorded")

	l.mirrorEntry(ctx, e)
	return f.TotalProfit, nil
}

func (l *Ledger) write(f *File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create ledger dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), filepath.Base(l.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create ledger temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close ledger: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}

func (l *Ledger) mirrorEntry(ctx context.Context, e domain.ProfitEntry) {
	if l.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
	defer cancel()

	rec := &domain.ProfitRecord{
		EntryID:     idhash.ComputeEntryID(l.session, e.CycleID, e.TokenAddress),
		SessionID:   l.session,
		ProfitEntry: e,
	}
	start := time.Now()
	err := l.mirror.Insert(ctx, rec)
	observability.RecordDBQuery("postgres", "insert_profit", time.Since(start).Seconds(), err)
	if err != nil {
		l.log.WithError(err).WithField("cycle_id", e.CycleID).Warn("profit mirror write failed")
	}
}

// Total sums profits.
func Total(entries []domain.ProfitEntry) int64 {
	var total int64
	for _, e := range entries {
		total += e.Profit
	}
	return total
}
