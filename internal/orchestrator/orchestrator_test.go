package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pump-cycle-bot/internal/domain"
	"pump-cycle-bot/internal/metadata"
	"pump-cycle-bot/internal/monitor"
	"pump-cycle-bot/internal/submitter"
	"pump-cycle-bot/internal/wallet"
)

const (
	testRent     = 2_039_280
	testReserve  = 5_000
	testTokens   = 1_000_000
	testProceeds = 120_000_000
)

// fakeWallets keeps identities and balances in memory.
type fakeWallets struct {
	mu       sync.Mutex
	ids      map[string]*wallet.Identity
	order    []string // oldest first
	balances map[solanago.PublicKey]uint64
	tokens   map[solanago.PublicKey]uint64
}

func newFakeWallets() *fakeWallets {
	return &fakeWallets{
		ids:      make(map[string]*wallet.Identity),
		balances: make(map[solanago.PublicKey]uint64),
		tokens:   make(map[solanago.PublicKey]uint64),
	}
}

func (w *fakeWallets) seed(t *testing.T, lamports uint64) *wallet.Identity {
	t.Helper()
	id, err := w.Create()
	require.NoError(t, err)
	_, err = w.Persist(id)
	require.NoError(t, err)
	w.mu.Lock()
	w.balances[id.Address()] = lamports
	w.mu.Unlock()
	return id
}

func (w *fakeWallets) Create() (*wallet.Identity, error) {
	key, err := solanago.NewRandomPrivateKey()
	if err != nil {
		return nil, err
	}
	return &wallet.Identity{Key: key}, nil
}

func (w *fakeWallets) Persist(id *wallet.Identity) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	loc := fmt.Sprintf("mem-%d", len(w.order))
	id.Locator = loc
	w.ids[loc] = id
	w.order = append(w.order, loc)
	return loc, nil
}

func (w *fakeWallets) Load(locator string) (*wallet.Identity, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id, ok := w.ids[locator]
	if !ok {
		return nil, errors.New("not found")
	}
	return id, nil
}

func (w *fakeWallets) FindPrior(exclude string) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for i := len(w.order) - 1; i >= 0; i-- {
		if w.order[i] != exclude {
			out = append(out, w.order[i])
		}
	}
	return out, nil
}

func (w *fakeWallets) NativeBalance(_ context.Context, address solanago.PublicKey) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[address], nil
}

func (w *fakeWallets) TokenBalance(_ context.Context, owner, _ solanago.PublicKey) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tokens[owner], nil
}

func (w *fakeWallets) TransferAll(_ context.Context, from *wallet.Identity, to solanago.PublicKey) (string, uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	bal := w.balances[from.Address()]
	if bal <= testReserve {
		return "", 0, &domain.InsufficientFundsError{Address: from.Address().String(), Have: bal, Need: testReserve + 1, Operation: "transfer"}
	}
	amount := bal - testReserve
	w.balances[from.Address()] = testReserve
	w.balances[to] += amount
	return "transfer-sig", amount, nil
}

// fakeSubmitter settles launch and sell transactions against fakeWallets.
type fakeSubmitter struct {
	w *fakeWallets

	mu     sync.Mutex
	labels []string
	err    error
}

func (s *fakeSubmitter) Submit(_ context.Context, req submitter.Request) (string, error) {
	s.mu.Lock()
	s.labels = append(s.labels, req.Label)
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	payer := req.Payer.PublicKey()
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	switch req.Label {
	case "launch":
		s.w.balances[payer] -= 60_000_000
		s.w.tokens[payer] = testTokens
	case "sell":
		s.w.balances[payer] += testProceeds
		s.w.tokens[payer] = 0
	}
	return req.Label + "-sig", nil
}

func (s *fakeSubmitter) count(label string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.labels {
		if l == label {
			n++
		}
	}
	return n
}

func (s *fakeSubmitter) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.labels)
}

type fakeRent struct{}

func (fakeRent) GetMinimumBalanceForRentExemption(context.Context, uint64) (uint64, error) {
	return testRent, nil
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []domain.ProfitEntry
}

func (l *fakeLedger) Append(_ context.Context, e domain.ProfitEntry) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	var total int64
	for _, x := range l.entries {
		total += x.Profit
	}
	return total, nil
}

type fakeWatch struct {
	mu        sync.Mutex
	cancelled int
}

func (w *fakeWatch) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancelled++
}

type recorder struct {
	mu     sync.Mutex
	states []domain.CycleState
	ends   []domain.CycleEnd
}

func (r *recorder) OnStateChange(c domain.StateChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, c.To)
}

func (r *recorder) OnCycleEnd(e domain.CycleEnd) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ends = append(r.ends, e)
}

type harness struct {
	wallets *fakeWallets
	sub     *fakeSubmitter
	ledger  *fakeLedger
	watch   *fakeWatch
	rec     *recorder
	target  monitor.Target
}

// newHarness builds an orchestrator whose monitor calls fire (if set) once
// started.
func newHarness(t *testing.T, sellTimeout time.Duration, fire func(onEvent func(domain.ChainEvent))) (*Orchestrator, *harness) {
	t.Helper()
	w := newFakeWallets()
	h := &harness{
		wallets: w,
		sub:     &fakeSubmitter{w: w},
		ledger:  &fakeLedger{},
		watch:   &fakeWatch{},
		rec:     &recorder{},
	}
	o := New(Options{
		Wallets:   w,
		Submitter: h.sub,
		Rent:      fakeRent{},
		Metadata:  metadata.Static(domain.AssetMetadata{Name: "Cycle", Symbol: "CYC", MetadataURI: "https://example.com/c.json"}),
		StartMonitor: func(_ context.Context, target monitor.Target, onEvent func(domain.ChainEvent)) Watcher {
			h.target = target
			if fire != nil {
				fire(onEvent)
			}
			return h.watch
		},
		Ledger:      h.ledger,
		Observers:   []Observer{h.rec},
		MinPurchase: 50_000_000,
		MaxPurchase: 100_000_000,
		SlippageBps: 500,
		FeeBps:      100,
		FeeBuffer:   10_000_000,
		SellTimeout: sellTimeout,
		Rand:        rand.New(rand.NewSource(1)),
	})
	return o, h
}

func TestRunCycle_PurchaseDetected(t *testing.T) {
	o, h := newHarness(t, time.Hour, func(onEvent func(domain.ChainEvent)) {
		go onEvent(domain.ChainEvent{Signature: "ext", Classification: domain.Purchase, Initiator: "buyer"})
	})
	h.wallets.seed(t, domain.LamportsPerSOL)

	end := o.RunCycle(context.Background())

	require.True(t, end.Succeeded, "cycle error: %v", end.Err)
	require.NotNil(t, end.Profit)
	assert.Equal(t, domain.ReasonPurchaseDetected, end.Record.LiquidationReason)
	assert.Equal(t, 1, h.sub.count("launch"))
	assert.Equal(t, 1, h.sub.count("sell"))

	initial := uint64(domain.LamportsPerSOL - testReserve)
	assert.Equal(t, initial, end.Profit.InitialBalance)
	assert.Equal(t, initial-60_000_000+testProceeds, end.Profit.FinalBalance)
	assert.Equal(t, int64(end.Profit.FinalBalance)-int64(end.Profit.InitialBalance), end.Profit.Profit)

	require.Len(t, h.ledger.entries, 1)
	assert.Equal(t, end.Record.AssetAddress, h.ledger.entries[0].TokenAddress)
	assert.Equal(t, end.Record.AssetAddress, h.target.Mint)
	assert.Equal(t, end.Record.IdentityAddress, h.target.Exclude)
	assert.Equal(t, 1, h.watch.cancelled)

	assert.Equal(t, []domain.CycleState{
		domain.StateInitializing,
		domain.StateCreatingAsset,
		domain.StateMonitoring,
		domain.StateLiquidating,
		domain.StateAccounting,
		domain.StateCleaningUp,
	}, h.rec.states)
	require.Len(t, h.rec.ends, 1)
}

func TestRunCycle_TimeoutLiquidates(t *testing.T) {
	o, h := newHarness(t, 20*time.Millisecond, nil)
	h.wallets.seed(t, domain.LamportsPerSOL)

	end := o.RunCycle(context.Background())

	require.True(t, end.Succeeded, "cycle error: %v", end.Err)
	assert.Equal(t, domain.ReasonTimeout, end.Record.LiquidationReason)
	assert.Equal(t, domain.ReasonTimeout, end.Profit.Reason)
	assert.Equal(t, 1, h.sub.count("sell"))
}

func TestRunCycle_ConcurrentTriggersSellOnce(t *testing.T) {
	for i := 0; i < 20; i++ {
		o, h := newHarness(t, time.Millisecond, func(onEvent func(domain.ChainEvent)) {
			for j := 0; j < 8; j++ {
				go onEvent(domain.ChainEvent{Signature: fmt.Sprintf("ext-%d", j), Classification: domain.Purchase})
			}
		})
		h.wallets.seed(t, domain.LamportsPerSOL)

		end := o.RunCycle(context.Background())

		require.True(t, end.Succeeded, "cycle error: %v", end.Err)
		require.Equal(t, 1, h.sub.count("sell"), "iteration %d", i)
		require.Len(t, h.ledger.entries, 1)
	}
}

func TestFire_LatchIsSingleFlight(t *testing.T) {
	o := New(Options{})
	c := &cycle{id: 1, log: o.log, trigger: make(chan struct{})}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		reason := domain.ReasonTimeout
		if i%2 == 0 {
			reason = domain.ReasonPurchaseDetected
		}
		go func() {
			defer wg.Done()
			o.fire(c, reason)
		}()
	}
	wg.Wait()

	select {
	case <-c.trigger:
	default:
		t.Fatal("trigger not closed")
	}
	assert.True(t, c.latch.Load())
	assert.Contains(t, []domain.LiquidationReason{domain.ReasonTimeout, domain.ReasonPurchaseDetected}, c.reason)
}

func TestRunCycle_InsufficientFunds(t *testing.T) {
	o, h := newHarness(t, time.Hour, nil)
	h.wallets.seed(t, domain.LamportsPerSOL/100)

	end := o.RunCycle(context.Background())

	require.False(t, end.Succeeded)
	assert.ErrorIs(t, end.Err, domain.ErrInsufficientFunds)
	var insufficient *domain.InsufficientFundsError
	require.ErrorAs(t, end.Err, &insufficient)
	assert.Equal(t, uint64(domain.LamportsPerSOL/100), insufficient.Have)
	assert.Greater(t, insufficient.Need, insufficient.Have)

	assert.Zero(t, h.sub.total(), "no transaction may be submitted")
	assert.Nil(t, end.Profit)
	assert.Empty(t, h.ledger.entries)
	assert.Equal(t, []domain.CycleState{
		domain.StateInitializing,
		domain.StateError,
		domain.StateCleaningUp,
	}, h.rec.states)
}

func TestRunCycle_NoPriorIdentity(t *testing.T) {
	o, h := newHarness(t, time.Hour, nil)

	end := o.RunCycle(context.Background())

	require.False(t, end.Succeeded)
	assert.ErrorIs(t, end.Err, domain.ErrInsufficientFunds)
	assert.Zero(t, h.sub.total())
}

func TestRunCycle_PicksNewestFundedPrior(t *testing.T) {
	o, h := newHarness(t, time.Millisecond, nil)
	rich := h.wallets.seed(t, 2*domain.LamportsPerSOL)
	h.wallets.seed(t, 1_000) // newer but empty

	end := o.RunCycle(context.Background())

	require.True(t, end.Succeeded, "cycle error: %v", end.Err)
	assert.Equal(t, uint64(2*domain.LamportsPerSOL-testReserve), end.Profit.InitialBalance)
	bal, _ := h.wallets.NativeBalance(context.Background(), rich.Address())
	assert.Equal(t, uint64(testReserve), bal)
}

func TestRunCycle_LaunchFailure(t *testing.T) {
	o, h := newHarness(t, time.Hour, nil)
	h.wallets.seed(t, domain.LamportsPerSOL)
	h.sub.err = &domain.ExecutionError{Signature: "x", Kind: domain.ErrExecutionRejected, Detail: "custom program error"}

	end := o.RunCycle(context.Background())

	require.False(t, end.Succeeded)
	assert.ErrorIs(t, end.Err, domain.ErrExecutionRejected)
	assert.Equal(t, 1, h.sub.total())
	assert.Zero(t, h.watch.cancelled, "monitor never started")
}

func TestRunCycle_GenerationFailure(t *testing.T) {
	o, h := newHarness(t, time.Hour, nil)
	h.wallets.seed(t, domain.LamportsPerSOL)
	o.opts.Metadata = metadata.GeneratorFunc(func(context.Context) (domain.AssetMetadata, error) {
		return domain.AssetMetadata{}, errors.New("upstream down")
	})

	end := o.RunCycle(context.Background())

	require.False(t, end.Succeeded)
	assert.ErrorIs(t, end.Err, domain.ErrGeneration)
	assert.Zero(t, h.sub.total())
}

func TestRunCycle_NothingToSell(t *testing.T) {
	o, h := newHarness(t, time.Millisecond, nil)
	h.wallets.seed(t, domain.LamportsPerSOL)
	o.opts.Submitter = submitterFunc(func(_ context.Context, req submitter.Request) (string, error) {
		// Launch lands but leaves no tokens.
		return h.sub.Submit(context.Background(), submitter.Request{Label: req.Label + "-bare", Payer: req.Payer})
	})

	end := o.RunCycle(context.Background())

	require.True(t, end.Succeeded, "cycle error: %v", end.Err)
	assert.Equal(t, 0, h.sub.count("sell-bare"))
	assert.Equal(t, end.Profit.InitialBalance, end.Profit.FinalBalance)
	assert.Zero(t, end.Profit.Profit)
}

type submitterFunc func(ctx context.Context, req submitter.Request) (string, error)

func (f submitterFunc) Submit(ctx context.Context, req submitter.Request) (string, error) {
	return f(ctx, req)
}

func TestShutdown_DuringMonitoringSkipsSell(t *testing.T) {
	started := make(chan struct{})
	o, h := newHarness(t, time.Hour, func(func(domain.ChainEvent)) { close(started) })
	h.wallets.seed(t, domain.LamportsPerSOL)

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background()) }()

	<-started
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, o.Shutdown(ctx))
	require.NoError(t, o.Shutdown(ctx))

	// Shutdown returns only after the cycle cleaned up.
	h.rec.mu.Lock()
	ends := len(h.rec.ends)
	h.rec.mu.Unlock()
	assert.Equal(t, 1, ends)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}

	assert.True(t, o.ShuttingDown())
	assert.Equal(t, 0, h.sub.count("sell"))
	assert.Equal(t, 1, h.watch.cancelled)
	assert.Equal(t, domain.ReasonShutdown, o.Snapshot().LiquidationReason)
	assert.Equal(t, domain.StateCleaningUp, o.Snapshot().State)
	require.Len(t, h.rec.ends, 1)
}

func TestShutdown_WaitsForInFlightLaunch(t *testing.T) {
	o, h := newHarness(t, time.Hour, nil)
	h.wallets.seed(t, domain.LamportsPerSOL)

	submitting := make(chan struct{})
	release := make(chan struct{})
	o.opts.Submitter = submitterFunc(func(ctx context.Context, req submitter.Request) (string, error) {
		if req.Label == "launch" {
			close(submitting)
			<-release
		}
		return h.sub.Submit(ctx, req)
	})

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background()) }()
	<-submitting

	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	err := o.Shutdown(short)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, h.sub.count("launch"), "in-flight launch is not aborted")

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, o.Shutdown(ctx))
	require.NoError(t, <-done)

	assert.Equal(t, 1, h.sub.count("launch"))
	assert.Equal(t, 0, h.sub.count("sell"))
	assert.Equal(t, domain.StateCleaningUp, o.Snapshot().State)
}

func TestRun_RestartsAfterError(t *testing.T) {
	o, h := newHarness(t, time.Hour, nil)
	o.opts.ErrorRestartDelay = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	require.Eventually(t, func() bool {
		h.rec.mu.Lock()
		defer h.rec.mu.Unlock()
		return len(h.rec.ends) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.GreaterOrEqual(t, o.Snapshot().ID, uint64(2))
}

func TestPickPurchase_WithinBounds(t *testing.T) {
	o := New(Options{MinPurchase: 10, MaxPurchase: 20, Rand: rand.New(rand.NewSource(7))})
	for i := 0; i < 200; i++ {
		p := o.pickPurchase()
		assert.GreaterOrEqual(t, p, uint64(10))
		assert.LessOrEqual(t, p, uint64(20))
	}

	fixed := New(Options{MinPurchase: 5, MaxPurchase: 5})
	assert.Equal(t, uint64(5), fixed.pickPurchase())
}
