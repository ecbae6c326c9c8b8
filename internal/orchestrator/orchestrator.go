// Package orchestrator drives launch and liquidate cycles through their
// state machine.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"pump-cycle-bot/internal/domain"
	"pump-cycle-bot/internal/metadata"
	"pump-cycle-bot/internal/monitor"
	"pump-cycle-bot/internal/observability"
	"pump-cycle-bot/internal/pumpfun"
	"pump-cycle-bot/internal/submitter"
	"pump-cycle-bot/internal/wallet"
)

// Default delays between cycles.
const (
	DefaultRestartDelay      = 5 * time.Second
	DefaultErrorRestartDelay = 30 * time.Second
	DefaultSellTimeout       = 15 * time.Second
)

// Wallets provisions and funds identities. *wallet.Store satisfies it.
type Wallets interface {
	Create() (*wallet.Identity, error)
	Persist(id *wallet.Identity) (string, error)
	Load(locator string) (*wallet.Identity, error)
	FindPrior(exclude string) ([]string, error)
	NativeBalance(ctx context.Context, address solanago.PublicKey) (uint64, error)
	TokenBalance(ctx context.Context, owner, mint solanago.PublicKey) (uint64, error)
	TransferAll(ctx context.Context, from *wallet.Identity, to solanago.PublicKey) (string, uint64, error)
}

// Submitter sends transactions. *submitter.Submitter satisfies it.
type Submitter interface {
	Submit(ctx context.Context, req submitter.Request) (string, error)
}

// RentSource reports the rent-exempt minimum for an account size.
type RentSource interface {
	GetMinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error)
}

// Ledger records cycle profits and returns the running total.
type Ledger interface {
	Append(ctx context.Context, e domain.ProfitEntry) (int64, error)
}

// Watcher is a running monitor.
type Watcher interface {
	Cancel()
}

// StartMonitor starts watching target and calls onEvent for purchases.
type StartMonitor func(ctx context.Context, target monitor.Target, onEvent func(domain.ChainEvent)) Watcher

// MonitorStarter adapts a *monitor.Monitor.
func MonitorStarter(m *monitor.Monitor) StartMonitor {
	return func(ctx context.Context, target monitor.Target, onEvent func(domain.ChainEvent)) Watcher {
		return m.Start(ctx, target, onEvent)
	}
}

// Observer receives cycle notifications. Calls are made synchronously from
// the cycle goroutine and must not block.
type Observer interface {
	OnStateChange(domain.StateChange)
	OnCycleEnd(domain.CycleEnd)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	StateChange func(domain.StateChange)
	CycleEnd    func(domain.CycleEnd)
}

func (f ObserverFuncs) OnStateChange(c domain.StateChange) {
	if f.StateChange != nil {
		f.StateChange(c)
	}
}

func (f ObserverFuncs) OnCycleEnd(e domain.CycleEnd) {
	if f.CycleEnd != nil {
		f.CycleEnd(e)
	}
}

// Options configures the orchestrator.
type Options struct {
	Wallets      Wallets
	Submitter    Submitter
	Rent         RentSource
	Metadata     metadata.Generator
	StartMonitor StartMonitor
	Ledger       Ledger
	Observers    []Observer

	// Purchase amounts in lamports; each cycle draws uniformly from [Min, Max].
	MinPurchase uint64
	MaxPurchase uint64
	SlippageBps uint16
	FeeBps      uint16
	FeeBuffer   uint64

	SellTimeout       time.Duration
	RestartDelay      time.Duration
	ErrorRestartDelay time.Duration

	Logger logrus.FieldLogger
	Rand   *rand.Rand
}

// Orchestrator runs cycles one at a time.
type Orchestrator struct {
	opts Options
	log  logrus.FieldLogger
	now  func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand

	cycleID      atomic.Uint64
	shuttingDown atomic.Bool

	mu     sync.Mutex
	record domain.CycleRecord
	active  *cycle
	stop    context.CancelFunc
	runDone chan struct{}
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.SellTimeout <= 0 {
		opts.SellTimeout = DefaultSellTimeout
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = DefaultRestartDelay
	}
	if opts.ErrorRestartDelay <= 0 {
		opts.ErrorRestartDelay = DefaultErrorRestartDelay
	}
	if opts.MaxPurchase < opts.MinPurchase {
		opts.MaxPurchase = opts.MinPurchase
	}
	rnd := opts.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Orchestrator{
		opts: opts,
		log:  log.WithField("component", "orchestrator"),
		now:  time.Now,
		rnd:  rnd,
	}
}

// cycle is the per-cycle context. The latch and trigger coordinate the
// timer and monitor callbacks; everything else belongs to the cycle goroutine.
type cycle struct {
	id  uint64
	log logrus.FieldLogger

	identity *wallet.Identity
	source   *wallet.Identity
	launch   *domain.AssetLaunch
	purchase uint64
	initial  uint64
	final    uint64

	latch   atomic.Bool
	reason  domain.LiquidationReason
	trigger chan struct{}
	done    chan struct{}

	timerMu sync.Mutex
	timer   *time.Timer
	watch   Watcher
}

func (c *cycle) stopTimer() {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
}

// Run executes cycles until ctx is cancelled or Shutdown is called. A failed
// cycle is followed by the error restart delay, a finished one by the
// normal restart delay.
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	o.mu.Lock()
	o.stop = cancel
	o.runDone = done
	o.mu.Unlock()
	defer close(done)

	for {
		if o.shuttingDown.Load() || ctx.Err() != nil {
			return nil
		}

		end := o.RunCycle(ctx)

		if o.shuttingDown.Load() || ctx.Err() != nil {
			o.log.Info("shutdown requested, no further cycles")
			return nil
		}

		delay := o.opts.RestartDelay
		if !end.Succeeded {
			delay = o.opts.ErrorRestartDelay
		}
		o.log.WithField("delay", delay).Info("next cycle scheduled")

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// Shutdown suppresses further cycles and interrupts a cycle waiting in
// MONITORING. It then waits until the active cycle has cleaned up and Run has
// returned, or ctx is done. Transactions already in flight are not aborted.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if o.shuttingDown.CompareAndSwap(false, true) {
		o.log.Info("shutting down")
	}

	o.mu.Lock()
	c, stop, runDone := o.active, o.stop, o.runDone
	o.mu.Unlock()

	if c != nil {
		o.fire(c, domain.ReasonShutdown)
	}
	if stop != nil {
		stop()
	}

	if c != nil {
		select {
		case <-c.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if runDone != nil {
		select {
		case <-runDone:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// ShuttingDown reports whether Shutdown was called.
func (o *Orchestrator) ShuttingDown() bool {
	return o.shuttingDown.Load()
}

// Snapshot returns a copy of the current cycle record.
func (o *Orchestrator) Snapshot() domain.CycleRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.record
}

// RunCycle runs one cycle to completion, always ending with CLEANING_UP.
func (o *Orchestrator) RunCycle(ctx context.Context) domain.CycleEnd {
	id := o.cycleID.Add(1)
	c := &cycle{
		id:      id,
		log:     o.log.WithField("cycle", id),
		trigger: make(chan struct{}),
		done:    make(chan struct{}),
	}
	defer close(c.done)
	started := o.now()

	o.mu.Lock()
	o.record = domain.CycleRecord{ID: id, StartedAt: started, LastActivity: started}
	o.active = c
	o.mu.Unlock()
	observability.SetCurrentCycle(id)
	c.log.Info("cycle started")

	// Network work outlives shutdown; only waiting observes ctx.
	opCtx := context.WithoutCancel(ctx)

	profit, err := o.execute(ctx, opCtx, c)
	if err != nil {
		o.transition(c, domain.StateError, err)
		c.log.WithError(err).Error("cycle failed")
	}

	o.transition(c, domain.StateCleaningUp, nil)
	o.cleanup(c)

	o.mu.Lock()
	o.active = nil
	record := o.record
	o.mu.Unlock()

	end := domain.CycleEnd{
		Record:    record,
		Succeeded: err == nil,
		Err:       err,
		Profit:    profit,
		Duration:  o.now().Sub(started),
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	observability.RecordCycle(outcome, end.Duration)

	for _, obs := range o.opts.Observers {
		obs.OnCycleEnd(end)
	}
	c.log.WithFields(logrus.Fields{
		"succeeded": end.Succeeded,
		"duration":  end.Duration,
	}).Info("cycle ended")
	return end
}

func (o *Orchestrator) execute(ctx, opCtx context.Context, c *cycle) (*domain.ProfitEntry, error) {
	o.transition(c, domain.StateInitializing, nil)
	if err := o.initialize(opCtx, c); err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}

	if o.shuttingDown.Load() {
		return nil, nil
	}

	o.transition(c, domain.StateCreatingAsset, nil)
	if err := o.createAsset(opCtx, c); err != nil {
		return nil, fmt.Errorf("create asset: %w", err)
	}

	o.transition(c, domain.StateMonitoring, nil)
	o.awaitTrigger(ctx, c)

	o.mu.Lock()
	o.record.LiquidationReason = c.reason
	o.mu.Unlock()

	if c.reason == domain.ReasonShutdown {
		c.log.Warn("shutdown during monitoring, skipping liquidation")
		return nil, nil
	}

	o.transition(c, domain.StateLiquidating, nil)
	if err := o.liquidate(opCtx, c); err != nil {
		return nil, fmt.Errorf("liquidate: %w", err)
	}

	o.transition(c, domain.StateAccounting, nil)
	entry, err := o.account(opCtx, c)
	if err != nil {
		return nil, fmt.Errorf("account: %w", err)
	}
	return entry, nil
}

// initialize provisions a fresh identity and moves the newest sufficiently
// funded prior identity's balance into it.
func (o *Orchestrator) initialize(ctx context.Context, c *cycle) error {
	w := o.opts.Wallets

	id, err := w.Create()
	if err != nil {
		return err
	}
	// Persist before funding so no balance sits under an unsaved key.
	if _, err := w.Persist(id); err != nil {
		return err
	}
	c.identity = id
	o.touch(func(r *domain.CycleRecord) { r.IdentityAddress = id.Address().String() })

	c.purchase = o.pickPurchase()
	rent, err := o.opts.Rent.GetMinimumBalanceForRentExemption(ctx, pumpfun.TokenAccountSize)
	if err != nil {
		return err
	}
	required := pumpfun.RequiredFundingLamports(c.purchase, o.opts.FeeBps, rent, o.opts.FeeBuffer)

	c.log.WithFields(logrus.Fields{
		"identity": id.Address(),
		"purchase": c.purchase,
		"required": required,
	}).Info("identity provisioned")

	source, err := o.findFundingSource(ctx, id.Locator, required)
	if err != nil {
		return err
	}
	c.source = source

	if _, _, err := w.TransferAll(ctx, source, id.Address()); err != nil {
		return err
	}

	initial, err := w.NativeBalance(ctx, id.Address())
	if err != nil {
		return err
	}
	if initial < required {
		return &domain.InsufficientFundsError{
			Address:   id.Address().String(),
			Have:      initial,
			Need:      required,
			Operation: "launch",
		}
	}
	c.initial = initial
	c.log.WithField("initial_balance", initial).Info("identity funded")
	return nil
}

// findFundingSource returns the newest prior identity whose balance meets
// required.
func (o *Orchestrator) findFundingSource(ctx context.Context, exclude string, required uint64) (*wallet.Identity, error) {
	w := o.opts.Wallets

	locators, err := w.FindPrior(exclude)
	if err != nil {
		return nil, err
	}
	if len(locators) == 0 {
		return nil, &domain.InsufficientFundsError{Operation: "funding: no prior identity"}
	}

	var best *domain.InsufficientFundsError
	for _, loc := range locators {
		prior, err := w.Load(loc)
		if err != nil {
			o.log.WithError(err).WithField("locator", loc).Warn("skipping unreadable identity")
			continue
		}
		bal, err := w.NativeBalance(ctx, prior.Address())
		if err != nil {
			return nil, err
		}
		if bal >= required {
			o.log.WithFields(logrus.Fields{
				"source":  prior.Address(),
				"balance": bal,
			}).Info("funding source selected")
			return prior, nil
		}
		if best == nil || bal > best.Have {
			best = &domain.InsufficientFundsError{
				Address:   prior.Address().String(),
				Have:      bal,
				Need:      required,
				Operation: "funding",
			}
		}
	}
	if best == nil {
		return nil, &domain.InsufficientFundsError{Operation: "funding: no readable prior identity"}
	}
	return nil, best
}

func (o *Orchestrator) pickPurchase() uint64 {
	lo, hi := o.opts.MinPurchase, o.opts.MaxPurchase
	if hi <= lo {
		return lo
	}
	o.rndMu.Lock()
	defer o.rndMu.Unlock()
	return lo + uint64(o.rnd.Int63n(int64(hi-lo+1)))
}

// createAsset launches the asset and makes the initial purchase in one
// transaction.
func (o *Orchestrator) createAsset(ctx context.Context, c *cycle) error {
	md, err := o.opts.Metadata.Generate(ctx)
	if err != nil {
		var genErr *domain.GenerationError
		if !errors.As(err, &genErr) {
			err = &domain.GenerationError{Err: err}
		}
		return err
	}

	mintKey, err := solanago.NewRandomPrivateKey()
	if err != nil {
		return fmt.Errorf("generate mint key: %w", err)
	}
	launch, err := pumpfun.NewAssetLaunch(mintKey.PublicKey(), c.identity.Address(), md)
	if err != nil {
		return err
	}
	ixs, err := pumpfun.LaunchBundle(launch, c.purchase, o.opts.SlippageBps)
	if err != nil {
		return err
	}

	sig, err := o.opts.Submitter.Submit(ctx, submitter.Request{
		Label:        "launch",
		Instructions: ixs,
		Payer:        c.identity.Key,
		Signers:      []solanago.PrivateKey{mintKey},
	})
	if err != nil {
		return err
	}

	c.launch = launch
	o.touch(func(r *domain.CycleRecord) { r.AssetAddress = launch.Mint.String() })
	c.log.WithFields(logrus.Fields{
		"mint":      launch.Mint,
		"name":      launch.Name,
		"symbol":    launch.Symbol,
		"signature": sig,
	}).Info("asset launched")
	return nil
}

// awaitTrigger starts the sell timer and the monitor and blocks until one of
// them, or shutdown, wins the latch.
func (o *Orchestrator) awaitTrigger(ctx context.Context, c *cycle) {
	c.timerMu.Lock()
	c.timer = time.AfterFunc(o.opts.SellTimeout, func() {
		o.fire(c, domain.ReasonTimeout)
	})
	c.timerMu.Unlock()

	if o.opts.StartMonitor != nil {
		target := monitor.TargetFor(c.launch, c.identity.Address())
		c.watch = o.opts.StartMonitor(ctx, target, func(ev domain.ChainEvent) {
			c.log.WithFields(logrus.Fields{
				"signature": ev.Signature,
				"initiator": ev.Initiator,
			}).Info("purchase observed")
			o.fire(c, domain.ReasonPurchaseDetected)
		})
	}

	select {
	case <-c.trigger:
	case <-ctx.Done():
		o.fire(c, domain.ReasonShutdown)
		<-c.trigger
	}
	c.log.WithField("reason", c.reason).Info("liquidation triggered")
}

// fire is the single-flight liquidation trigger. Only the first caller per
// cycle records its reason; later calls are no-ops.
func (o *Orchestrator) fire(c *cycle, reason domain.LiquidationReason) {
	if !c.latch.CompareAndSwap(false, true) {
		c.log.WithField("reason", reason).Debug("liquidation already triggered")
		return
	}
	c.reason = reason
	c.stopTimer()
	observability.RecordLiquidation(string(reason))
	close(c.trigger)
}

// liquidate sells the identity's whole token balance, if any.
func (o *Orchestrator) liquidate(ctx context.Context, c *cycle) error {
	w := o.opts.Wallets
	owner := c.identity.Address()

	pre, err := w.NativeBalance(ctx, owner)
	if err != nil {
		return err
	}

	amount, err := w.TokenBalance(ctx, owner, c.launch.Mint)
	if err != nil {
		return err
	}

	log := c.log.WithFields(logrus.Fields{
		"reason":      c.reason,
		"tokens":      amount,
		"pre_balance": pre,
	})

	if amount == 0 {
		log.Warn("no tokens to sell")
	} else {
		ix, err := pumpfun.SellInstruction(c.launch, owner, amount, o.opts.SlippageBps)
		if err != nil {
			return err
		}
		sig, err := o.opts.Submitter.Submit(ctx, submitter.Request{
			Label:        "sell",
			Instructions: []solanago.Instruction{ix},
			Payer:        c.identity.Key,
		})
		if err != nil {
			return err
		}
		log = log.WithField("signature", sig)
	}

	post, err := w.NativeBalance(ctx, owner)
	if err != nil {
		return err
	}
	c.final = post
	log.WithField("post_balance", post).Info("liquidated")
	return nil
}

func (o *Orchestrator) account(ctx context.Context, c *cycle) (*domain.ProfitEntry, error) {
	entry := domain.NewProfitEntry(c.id, c.launch.Mint.String(), c.initial, c.final, c.reason, o.now())

	log := c.log.WithFields(logrus.Fields{
		"profit":          entry.Profit,
		"profit_sol":      domain.LamportsToSOL(entry.Profit),
		"initial_balance": entry.InitialBalance,
		"final_balance":   entry.FinalBalance,
	})
	if entry.IsSuspicious() {
		log.Warn("suspicious profit, more than half the initial balance")
	}

	if o.opts.Ledger == nil {
		log.Info("cycle accounted")
		return &entry, nil
	}
	total, err := o.opts.Ledger.Append(ctx, entry)
	if err != nil {
		return nil, err
	}
	log.WithField("total_profit", total).Info("cycle accounted")
	return &entry, nil
}

// cleanup releases the timer and monitor regardless of which trigger won.
func (o *Orchestrator) cleanup(c *cycle) {
	c.stopTimer()
	if c.watch != nil {
		c.watch.Cancel()
	}
}

func (o *Orchestrator) transition(c *cycle, to domain.CycleState, err error) {
	now := o.now()

	o.mu.Lock()
	from := o.record.State
	o.record.State = to
	o.record.LastActivity = now
	o.mu.Unlock()

	observability.RecordStateTransition(string(to))
	c.log.WithFields(logrus.Fields{"from": from, "to": to}).Debug("state transition")

	change := domain.StateChange{CycleID: c.id, From: from, To: to, At: now, Err: err}
	for _, obs := range o.opts.Observers {
		obs.OnStateChange(change)
	}
}

func (o *Orchestrator) touch(fn func(*domain.CycleRecord)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.record)
	o.record.LastActivity = o.now()
}
