// Package kickchat ingests Kick chat over the platform's Pusher-protocol
// WebSocket feed. Bootstrap resolves the channel slug to a numeric chatroom id
// over REST, then the connector subscribes to that chatroom's event channel
// and normalizes inbound chat events.
package kickchat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/chat-overlay/backend/chat"
	"github.com/onnwee/chat-overlay/backend/status"
	"github.com/onnwee/chat-overlay/backend/store"
	"github.com/onnwee/chat-overlay/backend/telemetry"
)

// pusherAppKey is Kick's public Pusher application key, lifted from the web
// client. It is not a secret.
const pusherAppKey = "32cbd69e4b950bf97679f200fe23482493"

const defaultWSURL = "wss://ws-us2.pusher.com/app/" + pusherAppKey + "?protocol=7&client=js&version=8.4.0&flash=false"

const (
	baseBackoff = time.Second
	maxBackoff  = 30 * time.Second
)

// envelope is the outer Pusher frame. The data field is itself a JSON string.
type envelope struct {
	Event   string `json:"event"`
	Data    string `json:"data"`
	Channel string `json:"channel,omitempty"`
}

// Config holds the connector's inputs. ChatroomID skips REST resolution when
// pre-configured; APIBase and WSURL are test seams.
type Config struct {
	Channel    string
	ChatroomID int
	APIBase    string
	WSURL      string
}

// Connector is a chat.Source for Kick.
type Connector struct {
	cfg    Config
	store  *store.Store
	status *status.Tracker

	chatroomID int
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
	conn   *websocket.Conn
}

func New(cfg Config, st *store.Store, tracker *status.Tracker) *Connector {
	return &Connector{cfg: cfg, store: st, status: tracker}
}

func (c *Connector) Platform() chat.Platform { return chat.PlatformKick }

// Connect resolves the chatroom id and opens the first WebSocket session.
// A channel that cannot be resolved or whose first dial fails is a bootstrap
// error; later transport drops are retried internally with backoff.
func (c *Connector) Connect(ctx context.Context) error {
	if c.cfg.Channel == "" && c.cfg.ChatroomID == 0 {
		return fmt.Errorf("kick: channel not configured")
	}
	ctx, span := telemetry.StartSpan(ctx, "kickchat", "connect")
	defer span.End()

	c.chatroomID = c.cfg.ChatroomID
	if c.chatroomID == 0 {
		id, err := resolveChatroomID(ctx, c.apiBase(), c.cfg.Channel)
		if err != nil {
			c.status.SetError(chat.PlatformKick, err)
			telemetry.RecordError(span, err)
			return err
		}
		c.chatroomID = id
		slog.Info("resolved kick channel", slog.String("slug", c.cfg.Channel), slog.Int("chatroom_id", id))
	}

	conn, err := c.dial(ctx)
	if err != nil {
		c.status.SetError(chat.PlatformKick, err)
		telemetry.RecordError(span, err)
		return fmt.Errorf("kick: dial: %w", err)
	}
	c.setConn(conn)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.wg.Add(1)
	go c.run(runCtx, conn)
	return nil
}

// Disconnect tears the session down. It blocks until the read loop has
// exited; no message reaches the store after it returns.
func (c *Connector) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if conn != nil {
		_ = conn.Close() //nolint:errcheck
	}
	c.wg.Wait()
	c.status.SetConnected(chat.PlatformKick, false)
}

func (c *Connector) apiBase() string {
	if c.cfg.APIBase != "" {
		return c.cfg.APIBase
	}
	return defaultAPIBase
}

func (c *Connector) wsURL() string {
	if c.cfg.WSURL != "" {
		return c.cfg.WSURL
	}
	return defaultWSURL
}

func (c *Connector) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close() //nolint:errcheck
	}
	return conn, err
}

func (c *Connector) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Connector) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// run reads frames until the connection drops, then redials with exponential
// backoff until the context is canceled.
func (c *Connector) run(ctx context.Context, conn *websocket.Conn) {
	defer c.wg.Done()
	backoff := baseBackoff
	for {
		err := c.readLoop(conn)
		if ctx.Err() != nil || c.isClosed() {
			return
		}
		c.status.SetError(chat.PlatformKick, fmt.Errorf("kick: connection lost: %w", err))
		slog.Warn("kick connection lost", slog.Any("err", err))

		for {
			if !sleepWithContext(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, baseBackoff, maxBackoff)
			telemetry.IncReconnect(string(chat.PlatformKick))
			next, err := c.dial(ctx)
			if err != nil {
				slog.Warn("kick redial failed", slog.Any("err", err), slog.Duration("backoff", backoff))
				continue
			}
			if c.isClosed() {
				_ = next.Close() //nolint:errcheck
				return
			}
			c.setConn(next)
			conn = next
			backoff = baseBackoff
			break
		}
	}
}

func (c *Connector) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handleFrame(conn, data)
	}
}

func (c *Connector) handleFrame(conn *websocket.Conn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		slog.Debug("kick frame decode failed", slog.Any("err", err))
		return
	}
	switch env.Event {
	case "pusher:connection_established":
		c.subscribe(conn)
	case "pusher_internal:subscription_succeeded":
		slog.Info("kick chat subscribed", slog.Int("chatroom_id", c.chatroomID))
		c.status.SetConnected(chat.PlatformKick, true)
	case "pusher:ping":
		_ = conn.WriteJSON(envelope{Event: "pusher:pong", Data: "{}"}) //nolint:errcheck
	case "pusher:subscription_error", "pusher_internal:subscription_error":
		err := fmt.Errorf("kick: subscription failed: %s", env.Data)
		c.status.SetError(chat.PlatformKick, err)
		slog.Warn("kick subscription error", slog.String("data", env.Data))
	case "pusher:error":
		err := fmt.Errorf("kick: pusher error: %s", env.Data)
		c.status.SetError(chat.PlatformKick, err)
		slog.Warn("kick pusher error", slog.String("data", env.Data))
	case `App\Events\ChatMessageEvent`:
		c.handleChatMessage(env.Data)
	}
}

func (c *Connector) subscribe(conn *websocket.Conn) {
	sub := map[string]any{
		"event": "pusher:subscribe",
		"data": map[string]string{
			"auth":    "",
			"channel": fmt.Sprintf("chatrooms.%d.v2", c.chatroomID),
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		slog.Warn("kick subscribe write failed", slog.Any("err", err))
	}
}

func (c *Connector) handleChatMessage(data string) {
	var ev chatMessageEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		telemetry.AddDropped(string(chat.PlatformKick))
		slog.Debug("kick chat event decode failed", slog.Any("err", err))
		return
	}
	if ev.ID == "" {
		telemetry.AddDropped(string(chat.PlatformKick))
		return
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	c.store.Add(normalize(ev))
}

func nextBackoff(cur, base, max time.Duration) time.Duration {
	if cur < base {
		return base
	}
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
