// Package twitchapi contains minimal helpers to interact with Twitch Helix
// APIs: resolving a login to its user id and fetching chat badge tables,
// using an app access token.
package twitchapi

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const defaultTokenURL = "https://id.twitch.tv/oauth2/token" //nolint:gosec // G101: OAuth endpoint, not a credential

// NewTokenSource returns an auto-refreshing app access (client credentials)
// token source. NOTE: app tokens CANNOT be used for IRC chat; chat requires a
// user token with chat:read scope, or an anonymous connection.
func NewTokenSource(ctx context.Context, clientID, clientSecret, tokenURL string) oauth2.TokenSource {
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}
	return cfg.TokenSource(ctx)
}
