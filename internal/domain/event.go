package domain

import "time"

// Classification is the outcome of classifying one activity record.
type Classification int

const (
	// NotPurchase is anything that is definitely not an external buy.
	NotPurchase Classification = iota
	// Purchase is a confirmed external buy of the monitored asset.
	Purchase
	// Indeterminate means the record references the asset but neither
	// balance deltas nor instruction data could decide it.
	Indeterminate
)

func (c Classification) String() string {
	switch c {
	case Purchase:
		return "purchase"
	case Indeterminate:
		return "indeterminate"
	default:
		return "not_purchase"
	}
}

// IndeterminatePolicy decides what the monitor does with Indeterminate records.
type IndeterminatePolicy string

const (
	// IndeterminateIgnore logs the record and keeps monitoring.
	IndeterminateIgnore IndeterminatePolicy = "ignore"
	// IndeterminateLiquidate delivers the record like a purchase.
	IndeterminateLiquidate IndeterminatePolicy = "liquidate"
)

// ChainEvent is one classified activity record for the monitored asset.
type ChainEvent struct {
	Signature      string
	Classification Classification
	Initiator      string
	OccurredAt     time.Time
	Slot           int64
	Reason         string // why the classifier decided as it did
}

// Age returns how old the event is relative to now.
func (e ChainEvent) Age(now time.Time) time.Duration {
	return now.Sub(e.OccurredAt)
}
