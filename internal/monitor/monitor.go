// Package monitor watches chain activity on a launched asset and reports
// external purchases.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"pump-cycle-bot/internal/domain"
	"pump-cycle-bot/internal/observability"
	"pump-cycle-bot/internal/solana"
)

// Default configuration values.
const (
	DefaultScanLimit    = 20
	DefaultPollInterval = 2 * time.Second
	DefaultMaxEventAge  = 30 * time.Second
	unsubscribeTimeout  = 5 * time.Second
)

// RPC is the node API used to read activity.
type RPC interface {
	GetSignaturesForAddress(ctx context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error)
	GetTransaction(ctx context.Context, signature string) (*solana.Transaction, error)
}

// Subscriber is the live notification source. solana.WSClientImpl satisfies it.
type Subscriber interface {
	SubscribeLogs(ctx context.Context, filter solana.LogsFilter) (*solana.Subscription, error)
	SubscribeAccount(ctx context.Context, account string) (*solana.Subscription, error)
	Unsubscribe(ctx context.Context, sub *solana.Subscription) error
}

// Options configures a Monitor.
type Options struct {
	RPC RPC
	// WS may be nil; the monitor then relies on the backward scan and polling.
	WS Subscriber
	// ScanLimit is how many recent signatures each poll reads.
	ScanLimit int
	// ScanDelay postpones the initial backward scan.
	ScanDelay time.Duration
	// PollInterval re-polls even without notifications.
	PollInterval time.Duration
	// MaxEventAge drops purchases older than this. Zero disables the check.
	MaxEventAge         time.Duration
	IndeterminatePolicy domain.IndeterminatePolicy
	Logger              logrus.FieldLogger
}

// Monitor starts watches.
type Monitor struct {
	opts Options
	log  logrus.FieldLogger
	now  func() time.Time
}

// New creates a Monitor. Zero option values fall back to defaults, except
// MaxEventAge which is taken as given.
func New(opts Options) *Monitor {
	if opts.ScanLimit <= 0 {
		opts.ScanLimit = DefaultScanLimit
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.IndeterminatePolicy == "" {
		opts.IndeterminatePolicy = domain.IndeterminateIgnore
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Monitor{
		opts: opts,
		log:  log.WithField("component", "monitor"),
		now:  time.Now,
	}
}

// Watch is a running monitor for one asset.
type Watch struct {
	m       *Monitor
	target  Target
	onEvent func(domain.ChainEvent)
	log     logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	pokes  chan struct{}

	scanTimer *time.Timer
	subs      []*solana.Subscription

	mu   sync.Mutex
	seen map[string]struct{}

	cancelOnce sync.Once
}

// Start watches target and calls onEvent for each fresh external purchase.
// onEvent runs on the watch goroutine; it must not block for long. Live
// subscription failures are logged and polling continues.
func (m *Monitor) Start(ctx context.Context, target Target, onEvent func(domain.ChainEvent)) *Watch {
	wctx, cancel := context.WithCancel(ctx)
	w := &Watch{
		m:       m,
		target:  target,
		onEvent: onEvent,
		log:     m.log.WithField("mint", target.Mint),
		ctx:     wctx,
		cancel:  cancel,
		pokes:   make(chan struct{}, 1),
		seen:    make(map[string]struct{}),
	}

	// Catches activity between creation and subscription setup.
	w.scanTimer = time.AfterFunc(m.opts.ScanDelay, w.poke)

	if m.opts.WS != nil {
		w.subscribe()
	}

	go w.loop()
	return w
}

func (w *Watch) subscribe() {
	ws := w.m.opts.WS

	if w.target.BondingCurve != "" {
		sub, err := ws.SubscribeAccount(w.ctx, w.target.BondingCurve)
		if err != nil {
			w.log.WithError(err).Warn("account subscription failed, polling only")
		} else {
			w.subs = append(w.subs, sub)
		}
	}

	sub, err := ws.SubscribeLogs(w.ctx, solana.LogsFilter{Mentions: []string{w.target.Mint}})
	if err != nil {
		w.log.WithError(err).Warn("logs subscription failed, polling only")
	} else {
		w.subs = append(w.subs, sub)
	}

	for _, sub := range w.subs {
		go w.forward(sub)
	}
}

// forward turns notifications into polls.
func (w *Watch) forward(sub *solana.Subscription) {
	for {
		select {
		case <-w.ctx.Done():
			return
		case _, ok := <-sub.C:
			if !ok {
				return
			}
			w.poke()
		}
	}
}

func (w *Watch) poke() {
	select {
	case w.pokes <- struct{}{}:
	default:
	}
}

func (w *Watch) loop() {
	ticker := time.NewTicker(w.m.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.pokes:
		case <-ticker.C:
		}
		w.poll()
	}
}

// poll reads recent signatures for the mint and classifies unseen ones,
// oldest first.
func (w *Watch) poll() {
	sigs, err := w.m.opts.RPC.GetSignaturesForAddress(w.ctx, w.target.Mint, &solana.SignaturesOpts{Limit: w.m.opts.ScanLimit})
	if err != nil {
		if w.ctx.Err() == nil {
			w.log.WithError(err).Debug("signature poll failed")
		}
		return
	}
	for i := len(sigs) - 1; i >= 0; i-- {
		if w.ctx.Err() != nil {
			return
		}
		w.process(sigs[i])
	}
}

// process classifies one activity record at most once.
func (w *Watch) process(info solana.SignatureInfo) {
	if !w.markSeen(info.Signature) {
		observability.RecordDuplicateEvent()
		return
	}

	var ev domain.ChainEvent
	if info.Err != nil {
		ev = domain.ChainEvent{Signature: info.Signature, Classification: domain.NotPurchase, Reason: "execution failed"}
	} else {
		tx, err := w.m.opts.RPC.GetTransaction(w.ctx, info.Signature)
		if err != nil || tx == nil {
			// Not yet visible; forget it so a later poll retries.
			w.unmark(info.Signature)
			if err != nil && w.ctx.Err() == nil {
				w.log.WithError(err).WithField("signature", info.Signature).Debug("transaction fetch failed")
			}
			return
		}
		ev = Classify(tx, w.target)
		ev.OccurredAt = w.occurredAt(tx, info)
	}

	w.handle(ev)
}

func (w *Watch) occurredAt(tx *solana.Transaction, info solana.SignatureInfo) time.Time {
	switch {
	case tx.BlockTime > 0:
		return time.Unix(tx.BlockTime, 0)
	case info.BlockTime != nil && *info.BlockTime > 0:
		return time.Unix(*info.BlockTime, 0)
	default:
		return w.m.now()
	}
}

func (w *Watch) handle(ev domain.ChainEvent) {
	observability.RecordClassification(ev.Classification.String())
	log := w.log.WithFields(logrus.Fields{
		"signature":      ev.Signature,
		"classification": ev.Classification.String(),
		"reason":         ev.Reason,
	})

	switch ev.Classification {
	case domain.NotPurchase:
		log.Debug("activity ignored")
		return
	case domain.Indeterminate:
		if w.m.opts.IndeterminatePolicy != domain.IndeterminateLiquidate {
			log.Warn("indeterminate activity ignored")
			return
		}
		log.Warn("indeterminate activity treated as purchase")
	}

	if age := ev.Age(w.m.now()); w.m.opts.MaxEventAge > 0 && age > w.m.opts.MaxEventAge {
		observability.RecordStaleEvent()
		log.WithField("age", age).Warn("stale purchase not delivered")
		return
	}

	if w.ctx.Err() != nil {
		return
	}
	log.WithField("initiator", ev.Initiator).Info("external purchase detected")
	w.onEvent(ev)
}

func (w *Watch) markSeen(sig string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.seen[sig]; ok {
		return false
	}
	w.seen[sig] = struct{}{}
	return true
}

func (w *Watch) unmark(sig string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.seen, sig)
}

// Cancel stops the watch: it unsubscribes, stops the pending scan, and clears
// the deduplication set. Later calls do nothing.
func (w *Watch) Cancel() {
	w.cancelOnce.Do(func() {
		w.cancel()
		w.scanTimer.Stop()

		if ws := w.m.opts.WS; ws != nil {
			ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
			defer cancel()
			for _, sub := range w.subs {
				if err := ws.Unsubscribe(ctx, sub); err != nil {
					w.log.WithError(err).Debug("unsubscribe failed")
				}
			}
		}

		w.mu.Lock()
		w.seen = make(map[string]struct{})
		w.mu.Unlock()
	})
}

// Done is closed once the watch is cancelled.
func (w *Watch) Done() <-chan struct{} {
	return w.ctx.Done()
}
