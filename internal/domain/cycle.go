package domain

import "time"

// CycleState is a state of the trading cycle state machine.
type CycleState string

const (
	StateInitializing  CycleState = "INITIALIZING"
	StateCreatingAsset CycleState = "CREATING_ASSET"
	StateMonitoring    CycleState = "MONITORING"
	StateLiquidating   CycleState = "LIQUIDATING"
	StateAccounting    CycleState = "ACCOUNTING"
	StateCleaningUp    CycleState = "CLEANING_UP"
	StateError         CycleState = "ERROR"
)

// LiquidationReason records which trigger won the single-flight latch.
type LiquidationReason string

const (
	ReasonPurchaseDetected LiquidationReason = "purchase_detected"
	ReasonTimeout          LiquidationReason = "timeout"
	ReasonShutdown         LiquidationReason = "shutdown"
)

// CycleRecord is the live view of one cycle. Only the orchestrator mutates it.
type CycleRecord struct {
	ID                uint64
	State             CycleState
	IdentityAddress   string
	AssetAddress      string
	StartedAt         time.Time
	LastActivity      time.Time
	LiquidationReason LiquidationReason
}

// StateChange is emitted on every transition.
type StateChange struct {
	CycleID uint64
	From    CycleState
	To      CycleState
	At      time.Time
	Err     error // set when To is StateError
}

// CycleEnd is emitted once per cycle after cleanup.
type CycleEnd struct {
	Record    CycleRecord
	Succeeded bool
	Err       error
	Profit    *ProfitEntry // nil when the cycle never reached accounting
	Duration  time.Duration
}

// CycleEventKind distinguishes rows in the cycle event stream.
type CycleEventKind string

const (
	CycleEventTransition CycleEventKind = "transition"
	CycleEventEnd        CycleEventKind = "end"
)

// CycleEvent is a flattened StateChange or CycleEnd for analytics sinks.
type CycleEvent struct {
	SessionID  string
	CycleID    uint64
	Kind       CycleEventKind
	FromState  CycleState
	ToState    CycleState
	At         time.Time
	Mint       string
	Identity   string
	Reason     LiquidationReason
	Succeeded  bool
	Error      string
	DurationMs int64
	Profit     int64
}
