// Package status tracks per-platform connection state. Adapters report every
// transition here; the HTTP layer reads it. The UI only ever needs the
// boolean connected flag — the last error text exists for diagnostics and
// never blocks another platform's delivery.
package status

import (
	"sync"
	"time"

	"github.com/onnwee/chat-overlay/backend/chat"
	"github.com/onnwee/chat-overlay/backend/telemetry"
)

// State is one platform's connection snapshot.
type State struct {
	Connected bool      `json:"connected"`
	LastError string    `json:"lastError,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	states map[chat.Platform]State
}

func NewTracker() *Tracker {
	return &Tracker{states: make(map[chat.Platform]State)}
}

// SetConnected records a transition. Reconnecting clears the last error.
func (t *Tracker) SetConnected(p chat.Platform, connected bool) {
	t.mu.Lock()
	st := t.states[p]
	st.Connected = connected
	st.UpdatedAt = time.Now().UTC()
	if connected {
		st.LastError = ""
	}
	t.states[p] = st
	t.mu.Unlock()
	telemetry.SetConnected(string(p), connected)
}

// SetError marks the platform disconnected and keeps the error text for
// diagnostics.
func (t *Tracker) SetError(p chat.Platform, err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	st := t.states[p]
	st.Connected = false
	st.LastError = err.Error()
	st.UpdatedAt = time.Now().UTC()
	t.states[p] = st
	t.mu.Unlock()
	telemetry.SetConnected(string(p), false)
}

// Connected reports the current flag for a platform.
func (t *Tracker) Connected(p chat.Platform) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.states[p].Connected
}

// Snapshot returns a copy of all tracked platform states.
func (t *Tracker) Snapshot() map[chat.Platform]State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[chat.Platform]State, len(t.states))
	for p, st := range t.states {
		out[p] = st
	}
	return out
}
