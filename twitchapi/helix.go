package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/onnwee/chat-overlay/backend/chat"
)

const DefaultBaseURL = "https://api.twitch.tv"

// defaultHTTPTimeout bounds every Helix request when no custom client is
// provided. Bootstrap must never hang on a stalled peer.
const defaultHTTPTimeout = 15 * time.Second

var defaultHTTPClient = &http.Client{Timeout: defaultHTTPTimeout}

// HelixClient provides the minimal Helix surface the IRC adapter needs.
type HelixClient struct {
	TokenSource oauth2.TokenSource
	ClientID    string
	BaseURL     string // defaults to DefaultBaseURL
	HTTPClient  *http.Client
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return defaultHTTPClient
}

func (hc *HelixClient) base() string {
	if hc.BaseURL != "" {
		return hc.BaseURL
	}
	return DefaultBaseURL
}

func (hc *HelixClient) get(ctx context.Context, path string, query map[string]string, out any) error {
	tok, err := hc.TokenSource.Token()
	if err != nil {
		return fmt.Errorf("app token: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.base()+path, nil)
	if err != nil {
		return err
	}
	q := req.URL.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	resp, err := hc.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("helix %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetUserID resolves a login name to its user ID.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := hc.get(ctx, "/helix/users", map[string]string{"login": login}, &body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("user not found")
	}
	return body.Data[0].ID, nil
}

// BadgeTable maps "set/version" keys to resolved badges.
type BadgeTable map[string]chat.Badge

// Lookup resolves a tag set/version pair against the table.
func (bt BadgeTable) Lookup(setID, version string) (chat.Badge, bool) {
	b, ok := bt[setID+"/"+version]
	return b, ok
}

type badgeResponse struct {
	Data []struct {
		SetID    string `json:"set_id"`
		Versions []struct {
			ID          string `json:"id"`
			ImageURL2x  string `json:"image_url_2x"`
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"versions"`
	} `json:"data"`
}

// GetChatBadges fetches the global badge table merged with the channel's own
// badge versions (channel entries win). Fetched once per connection and owned
// by the adapter that fetched it.
func (hc *HelixClient) GetChatBadges(ctx context.Context, broadcasterID string) (BadgeTable, error) {
	table := make(BadgeTable)

	var global badgeResponse
	if err := hc.get(ctx, "/helix/chat/badges/global", nil, &global); err != nil {
		return nil, fmt.Errorf("global badges: %w", err)
	}
	mergeBadges(table, global)

	if broadcasterID != "" {
		var channel badgeResponse
		if err := hc.get(ctx, "/helix/chat/badges", map[string]string{"broadcaster_id": broadcasterID}, &channel); err != nil {
			return nil, fmt.Errorf("channel badges: %w", err)
		}
		mergeBadges(table, channel)
	}
	return table, nil
}

func mergeBadges(table BadgeTable, resp badgeResponse) {
	for _, set := range resp.Data {
		for _, v := range set.Versions {
			table[set.SetID+"/"+v.ID] = chat.Badge{
				SetID:       set.SetID,
				Version:     v.ID,
				URL:         v.ImageURL2x,
				Description: firstNonEmpty(v.Title, v.Description),
			}
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
