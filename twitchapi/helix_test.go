package twitchapi

import (
	"context"
	"net/http"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/onnwee/chat-overlay/backend/testutil"
)

func newTestClient(srv *testutil.MockHelixServer) *HelixClient {
	return &HelixClient{
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}),
		ClientID:    "client-id",
		BaseURL:     srv.URL,
	}
}

func TestGetUserID(t *testing.T) {
	srv := testutil.NewMockHelixServer(t)
	srv.MockUserResponse("12345", "somechannel")

	hc := newTestClient(srv)
	id, err := hc.GetUserID(context.Background(), "somechannel")
	if err != nil {
		t.Fatalf("GetUserID: %v", err)
	}
	if id != "12345" {
		t.Fatalf("id = %q, want 12345", id)
	}
}

func TestGetUserIDEmptyLogin(t *testing.T) {
	hc := &HelixClient{TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "t"})}
	if _, err := hc.GetUserID(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty login")
	}
}

func TestGetUserIDNotFound(t *testing.T) {
	srv := testutil.NewMockHelixServer(t)
	srv.MockEmptyUsers()

	hc := newTestClient(srv)
	if _, err := hc.GetUserID(context.Background(), "ghost"); err == nil {
		t.Fatal("expected user not found error")
	}
}

func TestGetChatBadgesMergesChannelOverGlobal(t *testing.T) {
	srv := testutil.NewMockHelixServer(t)
	srv.MockGlobalBadges(map[string][]testutil.BadgeVersion{
		"subscriber": {{ID: "0", ImageURL: "https://cdn/global-sub", Title: "Subscriber"}},
		"moderator":  {{ID: "1", ImageURL: "https://cdn/mod", Title: "Moderator"}},
	})
	srv.MockChannelBadges(map[string][]testutil.BadgeVersion{
		"subscriber": {{ID: "0", ImageURL: "https://cdn/channel-sub", Title: "Channel Sub"}},
	})

	hc := newTestClient(srv)
	table, err := hc.GetChatBadges(context.Background(), "12345")
	if err != nil {
		t.Fatalf("GetChatBadges: %v", err)
	}

	sub, ok := table.Lookup("subscriber", "0")
	if !ok {
		t.Fatal("subscriber/0 missing")
	}
	if sub.URL != "https://cdn/channel-sub" {
		t.Fatalf("channel badge should override global, got %s", sub.URL)
	}
	mod, ok := table.Lookup("moderator", "1")
	if !ok || mod.URL != "https://cdn/mod" {
		t.Fatalf("global moderator badge missing or wrong: %+v", mod)
	}
	if _, ok := table.Lookup("subscriber", "99"); ok {
		t.Fatal("unknown version should not resolve")
	}
}

func TestNewTokenSourceUsesTokenURL(t *testing.T) {
	srv := testutil.NewMockTokenServer(t, "app-access-token")

	ts := NewTokenSource(context.Background(), "id", "secret", srv.URL+"/oauth2/token")
	tok, err := ts.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok.AccessToken != "app-access-token" {
		t.Fatalf("access token = %q", tok.AccessToken)
	}
}

func TestDefaultClientHasTimeout(t *testing.T) {
	hc := &HelixClient{}
	if hc.http().Timeout <= 0 {
		t.Fatal("default helix client must carry a request timeout")
	}
	custom := &HelixClient{HTTPClient: &http.Client{Timeout: time.Second}}
	if got := custom.http().Timeout; got != time.Second {
		t.Fatalf("custom client timeout = %v", got)
	}
}
