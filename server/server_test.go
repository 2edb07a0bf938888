package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/onnwee/chat-overlay/backend/chat"
	"github.com/onnwee/chat-overlay/backend/status"
	"github.com/onnwee/chat-overlay/backend/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store, *status.Tracker, *bool) {
	t.Helper()
	st := store.New(100)
	tracker := status.NewTracker()
	visible := true
	h := &Handlers{
		Store:         st,
		Status:        tracker,
		SetVisibility: func(v bool) { visible = v },
	}
	srv := httptest.NewServer(NewMux(h, nil))
	t.Cleanup(srv.Close)
	return srv, st, tracker, &visible
}

func seedMessage(st *store.Store, id, user, text string) {
	st.Add(chat.Message{
		ID:        id,
		Platform:  chat.PlatformTwitch,
		Username:  user,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
}

func TestHealthz(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if corr := resp.Header.Get("X-Correlation-ID"); corr == "" {
		t.Error("missing correlation id header")
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, st, tracker, _ := newTestServer(t)
	tracker.SetConnected(chat.PlatformTwitch, true)
	seedMessage(st, "twitch-1", "Bob", "hi")

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	var body struct {
		Platforms map[chat.Platform]status.State `json:"platforms"`
		StoreSize int                            `json:"storeSize"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Platforms[chat.PlatformTwitch].Connected {
		t.Error("twitch should be connected")
	}
	if body.StoreSize != 1 {
		t.Errorf("storeSize = %d", body.StoreSize)
	}
}

func TestMessagesEndpoint(t *testing.T) {
	srv, st, _, _ := newTestServer(t)
	seedMessage(st, "twitch-1", "Bob", "first")
	seedMessage(st, "kick-2", "Alice", "second")

	resp, err := http.Get(srv.URL + "/messages")
	if err != nil {
		t.Fatalf("GET /messages: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	var msgs []chat.Message
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[0].ID != "twitch-1" || msgs[1].ID != "kick-2" {
		t.Errorf("order: %q, %q", msgs[0].ID, msgs[1].ID)
	}
}

func TestVisibilityEndpoint(t *testing.T) {
	srv, _, _, visible := newTestServer(t)

	resp, err := http.Post(srv.URL+"/visibility", "application/json",
		bytes.NewBufferString(`{"visible":false}`))
	if err != nil {
		t.Fatalf("POST /visibility: %v", err)
	}
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if *visible {
		t.Error("visibility hook not invoked")
	}

	resp, err = http.Post(srv.URL+"/visibility", "application/json",
		bytes.NewBufferString(`not json`))
	if err != nil {
		t.Fatalf("POST invalid body: %v", err)
	}
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid body status = %d", resp.StatusCode)
	}
}

func TestVisibilityRequiresPost(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/visibility")
	if err != nil {
		t.Fatalf("GET /visibility: %v", err)
	}
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
