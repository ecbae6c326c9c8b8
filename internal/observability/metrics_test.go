package observability

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_IsolatedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.CyclesTotal.WithLabelValues("success").Inc()
	m.LiquidationsTotal.WithLabelValues("timeout").Add(2)
	m.CumulativeProfitLamports.Set(-1_500)

	if got := testutil.ToFloat64(m.CyclesTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("cycles = %v", got)
	}
	if got := testutil.ToFloat64(m.LiquidationsTotal.WithLabelValues("timeout")); got != 2 {
		t.Errorf("liquidations = %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "test_ledger_total_profit_lamports" {
			found = true
		}
		if !strings.HasPrefix(f.GetName(), "test_") {
			t.Errorf("metric %s missing namespace", f.GetName())
		}
	}
	if !found {
		t.Error("cumulative profit gauge not registered")
	}
}

func TestRecordHelpers(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.StaleEvents)
	RecordStaleEvent()
	if got := testutil.ToFloat64(DefaultMetrics.StaleEvents); got != before+1 {
		t.Errorf("stale events = %v, want %v", got, before+1)
	}

	errsBefore := testutil.ToFloat64(DefaultMetrics.RPCCallErrors.WithLabelValues("getBalance"))
	RecordRPCLatency("getBalance", 10*time.Millisecond, nil)
	RecordRPCLatency("getBalance", 10*time.Millisecond, errors.New("timeout"))
	if got := testutil.ToFloat64(DefaultMetrics.RPCCallErrors.WithLabelValues("getBalance")); got != errsBefore+1 {
		t.Errorf("rpc errors = %v, want %v", got, errsBefore+1)
	}

	SetProfit(250, 1_000)
	if got := testutil.ToFloat64(DefaultMetrics.CumulativeProfitLamports); got != 1_000 {
		t.Errorf("cumulative profit = %v", got)
	}

	SetCurrentCycle(7)
	if got := testutil.ToFloat64(DefaultMetrics.CurrentCycleID); got != 7 {
		t.Errorf("current cycle = %v", got)
	}
}

func TestHandler(t *testing.T) {
	RecordStateTransition("MONITORING")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "pump_cycle_bot_cycle_state_transitions_total") {
		t.Error("state transition counter not exposed")
	}
}
