package solana

import "context"

// WSClient defines the Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeLogs subscribes to transaction logs mentioning the filter addresses.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (*Subscription, error)

	// SubscribeAccount subscribes to changes of a single account.
	SubscribeAccount(ctx context.Context, account string) (*Subscription, error)

	// Unsubscribe removes the subscription and closes its channel.
	// Unsubscribing twice is a no-op.
	Unsubscribe(ctx context.Context, sub *Subscription) error

	// Close closes the WebSocket connection and every subscription channel.
	Close() error
}

// LogsFilter defines subscription filter for logs.
type LogsFilter struct {
	// Mentions filters logs that mention any of these addresses.
	Mentions []string
}

// NotificationKind tells which subscription produced a notification.
type NotificationKind string

const (
	NotificationLogs    NotificationKind = "logs"
	NotificationAccount NotificationKind = "account"
)

// Notification is a single subscription message. Signature, Logs and Err are
// set for logs notifications; Lamports for account notifications.
type Notification struct {
	Kind      NotificationKind
	Slot      int64
	Signature string
	Logs      []string
	Err       interface{}
	Lamports  uint64
}

// Subscription is a handle returned by Subscribe*. C is closed once the
// subscription is removed or the client is closed.
type Subscription struct {
	ID uint64
	C  <-chan Notification
}
