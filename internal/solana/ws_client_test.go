package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// fakeNode answers subscribe requests with increasing ids, pushes one
// notification per subscription and records every method it receives.
type fakeNode struct {
	mu      sync.Mutex
	methods []string
}

func (f *fakeNode) seen(method string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.methods {
		if m == method {
			return true
		}
	}
	return false
}

func (f *fakeNode) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		nextID := int64(100)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req wsRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				t.Errorf("unmarshal request: %v", err)
				return
			}
			f.mu.Lock()
			f.methods = append(f.methods, req.Method)
			f.mu.Unlock()

			switch req.Method {
			case "logsSubscribe", "accountSubscribe":
				subID := nextID
				nextID++
				conn.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": subID})
				conn.WriteJSON(notificationFor(req.Method, subID))
			case "logsUnsubscribe", "accountUnsubscribe":
				conn.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": true})
			default:
				conn.WriteJSON(map[string]interface{}{
					"jsonrpc": "2.0", "id": req.ID,
					"error": map[string]interface{}{"code": CodeMethodNotFound, "message": "method not found"},
				})
			}
		}
	}
}

func notificationFor(method string, subID int64) map[string]interface{} {
	if method == "accountSubscribe" {
		return map[string]interface{}{
			"jsonrpc": "2.0",
			"method":  "accountNotification",
			"params": map[string]interface{}{
				"subscription": subID,
				"result": map[string]interface{}{
					"context": map[string]interface{}{"slot": 200},
					"value":   map[string]interface{}{"lamports": 5_000_000, "owner": "prog"},
				},
			},
		}
	}
	return map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "logsNotification",
		"params": map[string]interface{}{
			"subscription": subID,
			"result": map[string]interface{}{
				"context": map[string]interface{}{"slot": 100},
				"value": map[string]interface{}{
					"signature": "testsig",
					"logs":      []string{"Program log: Instruction: Buy"},
					"err":       nil,
				},
			},
		},
	}
}

func startFakeNode(t *testing.T) (*fakeNode, string) {
	t.Helper()
	node := &fakeNode{}
	server := httptest.NewServer(node.handler(t))
	t.Cleanup(server.Close)
	return node, "ws" + strings.TrimPrefix(server.URL, "http")
}

func receive(t *testing.T, sub *Subscription) Notification {
	t.Helper()
	select {
	case n, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription channel closed unexpectedly")
		}
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
	return Notification{}
}

func TestWSClient_SubscribeLogs(t *testing.T) {
	_, url := startFakeNode(t)

	ctx := context.Background()
	client, err := NewWSClient(ctx, url, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	sub, err := client.SubscribeLogs(ctx, LogsFilter{Mentions: []string{"mint"}})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}

	n := receive(t, sub)
	if n.Kind != NotificationLogs {
		t.Errorf("expected logs notification, got %s", n.Kind)
	}
	if n.Signature != "testsig" {
		t.Errorf("expected testsig, got %s", n.Signature)
	}
	if n.Slot != 100 {
		t.Errorf("expected slot 100, got %d", n.Slot)
	}
}

func TestWSClient_SubscribeAccount(t *testing.T) {
	_, url := startFakeNode(t)

	ctx := context.Background()
	client, err := NewWSClient(ctx, url, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	sub, err := client.SubscribeAccount(ctx, "curve")
	if err != nil {
		t.Fatalf("SubscribeAccount: %v", err)
	}

	n := receive(t, sub)
	if n.Kind != NotificationAccount {
		t.Errorf("expected account notification, got %s", n.Kind)
	}
	if n.Lamports != 5_000_000 || n.Slot != 200 {
		t.Errorf("unexpected notification: %+v", n)
	}
}

func TestWSClient_Unsubscribe(t *testing.T) {
	node, url := startFakeNode(t)

	ctx := context.Background()
	client, err := NewWSClient(ctx, url, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	sub, err := client.SubscribeAccount(ctx, "curve")
	if err != nil {
		t.Fatalf("SubscribeAccount: %v", err)
	}
	receive(t, sub)

	if err := client.Unsubscribe(ctx, sub); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if _, ok := <-sub.C; ok {
		t.Error("channel should be closed after unsubscribe")
	}
	if !node.seen("accountUnsubscribe") {
		t.Error("server should have received accountUnsubscribe")
	}

	// Second call is a no-op.
	if err := client.Unsubscribe(ctx, sub); err != nil {
		t.Errorf("second Unsubscribe: %v", err)
	}
}

func TestWSClient_Close(t *testing.T) {
	_, url := startFakeNode(t)

	ctx := context.Background()
	client, err := NewWSClient(ctx, url, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}

	sub, err := client.SubscribeLogs(ctx, LogsFilter{})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}
	receive(t, sub)

	if err := client.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if !client.closed.Load() {
		t.Error("client should be closed")
	}
	if _, ok := <-sub.C; ok {
		t.Error("subscription channel should be closed by Close")
	}

	// Double close should be safe
	if err := client.Close(); err != nil {
		t.Errorf("double Close: %v", err)
	}
	if err := client.Unsubscribe(ctx, sub); err != nil {
		t.Errorf("Unsubscribe after Close: %v", err)
	}
}

func TestWSClient_SubscribeAfterClose(t *testing.T) {
	_, url := startFakeNode(t)

	ctx := context.Background()
	client, err := NewWSClient(ctx, url, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	client.Close()

	if _, err := client.SubscribeLogs(ctx, LogsFilter{}); err == nil {
		t.Error("expected error subscribing after close")
	}
}

func TestWSClient_CustomConfig(t *testing.T) {
	_, url := startFakeNode(t)

	config := &WSClientConfig{
		ReconnectDelay:    100 * time.Millisecond,
		MaxReconnectDelay: 1 * time.Second,
		PingInterval:      5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Second,
	}

	client, err := NewWSClient(context.Background(), url, config)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	if client.config.PingInterval != 5*time.Second {
		t.Errorf("expected PingInterval 5s, got %v", client.config.PingInterval)
	}
	if client.config.BufferSize != DefaultWSConfig().BufferSize {
		t.Errorf("zero BufferSize should fall back to default, got %d", client.config.BufferSize)
	}
}
