package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ErrClientClosed is returned by calls made after Close.
var ErrClientClosed = errors.New("websocket client closed")

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// RequestTimeout bounds the wait for a subscribe/unsubscribe response.
	RequestTimeout time.Duration
	// BufferSize is the per-subscription channel capacity.
	BufferSize int
	// Commitment is sent with every subscription.
	Commitment string
	// Logger receives connection events. Nil uses the standard logger.
	Logger logrus.FieldLogger
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		RequestTimeout:    30 * time.Second,
		BufferSize:        1024,
		Commitment:        DefaultCommitment,
	}
}

// subscription is the client-side record behind a Subscription handle. The
// server id changes across reconnects; the handle id does not.
type subscription struct {
	handle   *Subscription
	kind     NotificationKind
	method   string
	params   []interface{}
	serverID int64

	ch       chan Notification
	stop     chan struct{}
	stopOnce sync.Once
}

func (s *subscription) unsubscribeMethod() string {
	if s.kind == NotificationAccount {
		return "accountUnsubscribe"
	}
	return "logsUnsubscribe"
}

// WSClientImpl implements WSClient using gorilla/websocket.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig
	log      logrus.FieldLogger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64
	handleID  atomic.Uint64

	// subs by handle id, byServer by current server subscription id.
	subs     map[uint64]*subscription
	byServer map[int64]*subscription
	subsMu   sync.RWMutex

	// pending maps request ID to the channel waiting for its response.
	pending   map[uint64]*pendingRequest
	pendingMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultWSConfig().BufferSize
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultWSConfig().RequestTimeout
	}
	if cfg.Commitment == "" {
		cfg.Commitment = DefaultCommitment
	}
	var log logrus.FieldLogger = logrus.StandardLogger()
	if cfg.Logger != nil {
		log = cfg.Logger
	}

	c := &WSClientImpl{
		endpoint: endpoint,
		config:   cfg,
		log:      log.WithField("component", "ws"),
		subs:     make(map[uint64]*subscription),
		byServer: make(map[int64]*subscription),
		pending:  make(map[uint64]*pendingRequest),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

func (c *WSClientImpl) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// SubscribeLogs subscribes to logs of transactions mentioning the filter addresses.
func (c *WSClientImpl) SubscribeLogs(ctx context.Context, filter LogsFilter) (*Subscription, error) {
	mentions := make(map[string]interface{})
	if len(filter.Mentions) > 0 {
		mentions["mentions"] = filter.Mentions
	} else {
		mentions["all"] = nil
	}
	params := []interface{}{
		mentions,
		map[string]string{"commitment": c.config.Commitment},
	}
	return c.subscribe(ctx, NotificationLogs, "logsSubscribe", params)
}

// SubscribeAccount subscribes to lamport/data changes of account.
func (c *WSClientImpl) SubscribeAccount(ctx context.Context, account string) (*Subscription, error) {
	params := []interface{}{
		account,
		map[string]string{"encoding": "base64", "commitment": c.config.Commitment},
	}
	return c.subscribe(ctx, NotificationAccount, "accountSubscribe", params)
}

func (c *WSClientImpl) subscribe(ctx context.Context, kind NotificationKind, method string, params []interface{}) (*Subscription, error) {
	ch := make(chan Notification, c.config.BufferSize)
	s := &subscription{
		handle: &Subscription{ID: c.handleID.Add(1), C: ch},
		kind:   kind,
		method: method,
		params: params,
		ch:     ch,
		stop:   make(chan struct{}),
	}

	serverID, err := c.requestSubscription(ctx, s)
	if err != nil {
		c.drop(s)
		return nil, err
	}

	c.log.WithFields(logrus.Fields{"method": method, "subscription": serverID}).Debug("subscribed")
	return s.handle, nil
}

// requestSubscription issues s.method. The read loop registers s under the
// returned server id before any later message is dispatched, so a
// notification sent right after the response is not lost.
func (c *WSClientImpl) requestSubscription(ctx context.Context, s *subscription) (int64, error) {
	raw, err := c.request(ctx, s.method, s.params, s)
	if err != nil {
		return 0, err
	}
	var serverID int64
	if err := json.Unmarshal(raw, &serverID); err != nil {
		return 0, fmt.Errorf("%s: unexpected result %s", s.method, string(raw))
	}
	return serverID, nil
}

// register maps s to serverID. Stopped subscriptions are not revived.
func (c *WSClientImpl) register(s *subscription, serverID int64) {
	select {
	case <-s.stop:
		return
	default:
	}

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if c.closed.Load() {
		return
	}
	if cur, ok := c.byServer[s.serverID]; ok && cur == s {
		delete(c.byServer, s.serverID)
	}
	s.serverID = serverID
	c.subs[s.handle.ID] = s
	c.byServer[serverID] = s
}

// drop removes s locally without notifying the server.
func (c *WSClientImpl) drop(s *subscription) {
	s.stopOnce.Do(func() { close(s.stop) })

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if _, ok := c.subs[s.handle.ID]; !ok {
		return
	}
	delete(c.subs, s.handle.ID)
	if cur, ok := c.byServer[s.serverID]; ok && cur == s {
		delete(c.byServer, s.serverID)
	}
	close(s.ch)
}

// Unsubscribe removes sub and tells the server to stop sending. The local
// channel is closed even if the server request fails.
func (c *WSClientImpl) Unsubscribe(ctx context.Context, sub *Subscription) error {
	if sub == nil {
		return nil
	}

	c.subsMu.RLock()
	s, ok := c.subs[sub.ID]
	if !ok {
		c.subsMu.RUnlock()
		return nil
	}

	serverID := s.serverID
	c.subsMu.RUnlock()
	c.drop(s)

	if c.closed.Load() {
		return nil
	}
	if _, err := c.request(ctx, s.unsubscribeMethod(), []interface{}{serverID}, nil); err != nil {
		return fmt.Errorf("%s: %w", s.unsubscribeMethod(), err)
	}
	return nil
}

// request sends a JSON-RPC request over the socket and waits for its response.
func (c *WSClientImpl) request(ctx context.Context, method string, params []interface{}, sub *subscription) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	reqID := c.requestID.Add(1)
	respCh := make(chan wsResponse, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = &pendingRequest{ch: respCh, sub: sub}
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}()

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		return nil, fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(wsRequest{JSONRPC: "2.0", ID: reqID, Method: method, Params: params})
	c.connMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", method, err)
	}

	timer := time.NewTimer(c.config.RequestTimeout)
	defer timer.Stop()

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-timer.C:
		return nil, fmt.Errorf("%s: no response after %s", method, c.config.RequestTimeout)
	case <-c.done:
		return nil, ErrClientClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the WebSocket connection.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()

	c.subsMu.Lock()
	for id, s := range c.subs {
		s.stopOnce.Do(func() { close(s.stop) })
		close(s.ch)
		delete(c.subs, id)
	}
	c.byServer = make(map[int64]*subscription)
	c.subsMu.Unlock()

	return nil
}

// readLoop reads messages from WebSocket and dispatches to subscribers.
func (c *WSClientImpl) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			if !c.reconnecting.Swap(true) {
				c.log.WithError(err).WithField("delay", reconnectDelay).Warn("connection lost, reconnecting")
				go c.reconnect(reconnectDelay)
			}

			reconnectDelay *= 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = c.config.ReconnectDelay
		c.handleMessage(message)
	}
}

// reconnect attempts to reconnect and resubscribe.
func (c *WSClientImpl) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		// The next read error schedules another attempt.
		c.log.WithError(err).Warn("reconnect failed")
		return
	}

	c.resubscribeAll()
}

// resubscribeAll re-issues every live subscription on the new connection and
// remaps server ids. Handles and channels are unchanged.
func (c *WSClientImpl) resubscribeAll() {
	c.subsMu.RLock()
	live := make([]*subscription, 0, len(c.subs))
	for _, s := range c.subs {
		live = append(live, s)
	}
	c.subsMu.RUnlock()

	for _, s := range live {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := c.requestSubscription(ctx, s)
		cancel()
		if err != nil {
			c.log.WithError(err).WithField("method", s.method).Warn("resubscribe failed")
		}
	}
}

// handleMessage routes responses to pending requests and notifications to
// subscribers.
func (c *WSClientImpl) handleMessage(message []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		c.log.WithError(err).Debug("discarding malformed message")
		return
	}

	if env.Method != "" {
		c.handleNotification(&env)
		return
	}

	if env.ID == 0 {
		return
	}

	c.pendingMu.Lock()
	p, ok := c.pending[env.ID]
	c.pendingMu.Unlock()
	if !ok {
		if env.Error != nil {
			c.log.WithField("code", env.Error.Code).Warn(env.Error.Message)
		}
		return
	}

	if p.sub != nil && env.Error == nil {
		var serverID int64
		if err := json.Unmarshal(env.Result, &serverID); err == nil {
			c.register(p.sub, serverID)
		}
	}

	select {
	case p.ch <- wsResponse{Result: env.Result, Error: env.Error}:
	default:
	}
}

func (c *WSClientImpl) handleNotification(env *wsEnvelope) {
	var kind NotificationKind
	switch env.Method {
	case "logsNotification":
		kind = NotificationLogs
	case "accountNotification":
		kind = NotificationAccount
	default:
		return
	}

	var params wsNotificationParams
	if err := json.Unmarshal(env.Params, &params); err != nil {
		c.log.WithError(err).WithField("method", env.Method).Debug("discarding malformed notification")
		return
	}

	n := Notification{Kind: kind}
	if params.Result.Context != nil {
		n.Slot = params.Result.Context.Slot
	}

	switch kind {
	case NotificationLogs:
		var v wsLogsValue
		if err := json.Unmarshal(params.Result.Value, &v); err != nil {
			return
		}
		n.Signature, n.Logs, n.Err = v.Signature, v.Logs, v.Err
	case NotificationAccount:
		var v wsAccountValue
		if err := json.Unmarshal(params.Result.Value, &v); err != nil {
			return
		}
		n.Lamports = v.Lamports
	}

	// The read lock is held across the send so Unsubscribe cannot close
	// the channel underneath it; Unsubscribe closes s.stop first.
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()

	s, ok := c.byServer[params.Subscription]
	if !ok {
		return
	}
	select {
	case s.ch <- n:
	case <-s.stop:
	case <-c.done:
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClientImpl) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					c.log.WithError(err).Debug("ping failed")
				}
			}
			c.connMu.Unlock()
		}
	}
}

var _ WSClient = (*WSClientImpl)(nil)

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Method  string          `json:"method"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
	Params  json.RawMessage `json:"params"`
}

type pendingRequest struct {
	ch  chan wsResponse
	sub *subscription
}

type wsResponse struct {
	Result json.RawMessage
	Error  *RPCError
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext      `json:"context"`
	Value   json.RawMessage `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsLogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}

type wsAccountValue struct {
	Lamports uint64 `json:"lamports"`
	Owner    string `json:"owner"`
}
