package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/chat-overlay/backend/chat"
	"github.com/onnwee/chat-overlay/backend/status"
	"github.com/onnwee/chat-overlay/backend/telemetry"
)

// heartbeatInterval keeps idle SSE connections from being reaped by proxies.
const heartbeatInterval = 15 * time.Second

// MessageStore is the read surface of the retention store.
type MessageStore interface {
	Messages() []chat.Message
	Len() int
	Subscribe() (<-chan chat.Message, func())
}

// StatusSource is the read surface of the connection-status tracker.
type StatusSource interface {
	Snapshot() map[chat.Platform]status.State
}

// HandleHealthz reports liveness.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// HandleStatus returns per-platform connection state plus the window size.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	out := struct {
		Platforms map[chat.Platform]status.State `json:"platforms"`
		StoreSize int                            `json:"storeSize"`
	}{
		Platforms: h.Status.Snapshot(),
		StoreSize: h.Store.Len(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		telemetry.LoggerWithCorr(r.Context()).Warn("status encode failed", slog.Any("err", err))
	}
}

// HandleMessages returns the current retention window, oldest first.
func (h *Handlers) HandleMessages(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.Store.Messages()); err != nil {
		telemetry.LoggerWithCorr(r.Context()).Warn("messages encode failed", slog.Any("err", err))
	}
}

// HandleVisibility accepts the renderer's overlay shown/hidden hint and
// forwards it to the polling adapter so it can widen its interval.
func (h *Handlers) HandleVisibility(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Visible bool `json:"visible"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if h.SetVisibility != nil {
		h.SetVisibility(body.Visible)
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleStream pushes the message feed over Server-Sent Events: first the
// current window, then every newly accepted message. Replacements of an
// existing id are not re-pushed; the renderer reconciles by id from
// /messages if it needs them.
func (h *Handlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	// Subscribe before snapshotting so nothing slips between the two.
	live, cancel := h.Store.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for _, m := range h.Store.Messages() {
		if !writeEvent(w, m) {
			return
		}
	}
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case m, open := <-live:
			if !open {
				return
			}
			if !writeEvent(w, m) {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, m chat.Message) bool {
	payload, err := json.Marshal(m)
	if err != nil {
		slog.Warn("sse encode failed", slog.Any("err", err), slog.String("id", m.ID))
		return true
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return false
	}
	if _, err := w.Write(payload); err != nil {
		return false
	}
	_, err = w.Write([]byte("\n\n"))
	return err == nil
}
