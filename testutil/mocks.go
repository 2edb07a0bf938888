// Package testutil centralizes httptest doubles for the external services the
// adapters talk to: Twitch Helix + OAuth, the Kick channels API, and the
// chat resolver proxy used by the polling adapter.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockHelixServer mocks the Twitch Helix endpoints the IRC adapter uses.
type MockHelixServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockHelixServer creates a new mock Helix API server.
func NewMockHelixServer(t *testing.T) *MockHelixServer {
	t.Helper()
	m := &MockHelixServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockUserResponse adds a handler for /helix/users.
func (m *MockHelixServer) MockUserResponse(userID, login string) {
	m.Handlers["/helix/users"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"data": []map[string]string{
				{"id": userID, "login": login},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockEmptyUsers makes /helix/users return no matches.
func (m *MockHelixServer) MockEmptyUsers() {
	m.Handlers["/helix/users"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[]}`))
	}
}

// BadgeVersion is one version entry in a mocked badge set.
type BadgeVersion struct {
	ID       string
	ImageURL string
	Title    string
}

func badgePayload(sets map[string][]BadgeVersion) map[string]interface{} {
	data := make([]map[string]interface{}, 0, len(sets))
	for setID, versions := range sets {
		vs := make([]map[string]string, 0, len(versions))
		for _, v := range versions {
			vs = append(vs, map[string]string{
				"id":           v.ID,
				"image_url_2x": v.ImageURL,
				"title":        v.Title,
			})
		}
		data = append(data, map[string]interface{}{"set_id": setID, "versions": vs})
	}
	return map[string]interface{}{"data": data}
}

// MockGlobalBadges adds a handler for /helix/chat/badges/global.
func (m *MockHelixServer) MockGlobalBadges(sets map[string][]BadgeVersion) {
	m.Handlers["/helix/chat/badges/global"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(badgePayload(sets)) //nolint:errcheck // test mock response
	}
}

// MockChannelBadges adds a handler for /helix/chat/badges.
func (m *MockHelixServer) MockChannelBadges(sets map[string][]BadgeVersion) {
	m.Handlers["/helix/chat/badges"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(badgePayload(sets)) //nolint:errcheck // test mock response
	}
}

// NewMockTokenServer returns a server answering any POST with a client
// credentials token response carrying accessToken.
func NewMockTokenServer(t *testing.T, accessToken string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck // test mock response
			"access_token": accessToken,
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// NewMockKickAPI mocks the Kick channel resolution endpoint
// (/api/v2/channels/{slug}). A chatroomID of 0 simulates a channel without a
// chatroom.
func NewMockKickAPI(t *testing.T, slug string, chatroomID int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/channels/"+slug {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck // test mock response
			"id":       77,
			"slug":     slug,
			"chatroom": map[string]int{"id": chatroomID},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// ProxyResponse mirrors the chat resolver proxy's JSON answer. Messages are
// raw upstream actions passed through undecoded.
type ProxyResponse struct {
	Messages     []json.RawMessage `json:"messages"`
	VideoID      string            `json:"videoId"`
	Continuation string            `json:"continuation"`
	EmoteMap     map[string]string `json:"emoteMap,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// ProxyRequest mirrors the resolver proxy's request body.
type ProxyRequest struct {
	ChannelName  string `json:"channelName"`
	Continuation string `json:"continuation,omitempty"`
	VideoID      string `json:"videoId,omitempty"`
}

// MockChatProxy is a scripted resolver proxy: each request pops the next
// queued response (the last one repeats). It always answers 200; failures
// ride in the error field, like the real collaborator.
type MockChatProxy struct {
	*httptest.Server

	mu        sync.Mutex
	responses []ProxyResponse
	Requests  []ProxyRequest
}

// NewMockChatProxy creates a scripted proxy server.
func NewMockChatProxy(t *testing.T, responses ...ProxyResponse) *MockChatProxy {
	t.Helper()
	m := &MockChatProxy{responses: responses}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ProxyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		m.mu.Lock()
		m.Requests = append(m.Requests, req)
		var resp ProxyResponse
		if len(m.responses) > 0 {
			resp = m.responses[0]
			if len(m.responses) > 1 {
				m.responses = m.responses[1:]
			}
		}
		m.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp) //nolint:errcheck // test mock response
	}))
	t.Cleanup(m.Close)
	return m
}

// RequestCount returns how many poll requests the proxy served.
func (m *MockChatProxy) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// LastRequest returns the most recent request, if any.
func (m *MockChatProxy) LastRequest() (ProxyRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return ProxyRequest{}, false
	}
	return m.Requests[len(m.Requests)-1], true
}
