// Package youtubeapi wraps the YouTube Data API for the single purpose of
// finding a channel's currently-live video. It is an optional fallback
// resolution strategy for the polling adapter, enabled by YOUTUBE_API_KEY.
package youtubeapi

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

// Client wraps a Data API service.
type Client struct {
	svc *yt.Service
}

// New builds a Client authenticated by API key. Extra options are test seams
// (custom endpoint, no-auth HTTP client).
func New(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Client, error) {
	all := append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := yt.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// ResolveChannelID maps a channel reference (UC id, @handle, or legacy
// username) to the canonical channel id.
func (c *Client) ResolveChannelID(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("channel reference empty")
	}
	if strings.HasPrefix(ref, "UC") && len(ref) == 24 {
		return ref, nil
	}
	call := c.svc.Channels.List([]string{"id"}).Context(ctx).MaxResults(1)
	if strings.HasPrefix(ref, "@") {
		call = call.ForHandle(ref)
	} else {
		call = call.ForUsername(ref)
	}
	resp, err := call.Do()
	if err != nil {
		return "", fmt.Errorf("channel lookup: %w", err)
	}
	if len(resp.Items) == 0 {
		return "", fmt.Errorf("channel %q not found", ref)
	}
	return resp.Items[0].Id, nil
}

// FindLiveVideoID searches for the channel's live broadcast. No live video is
// a normal condition for the caller to classify, not an API failure.
func (c *Client) FindLiveVideoID(ctx context.Context, channelID string) (string, error) {
	resp, err := c.svc.Search.List([]string{"id"}).
		Context(ctx).
		ChannelId(channelID).
		EventType("live").
		Type("video").
		MaxResults(1).
		Do()
	if err != nil {
		return "", fmt.Errorf("live search: %w", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Id == nil || resp.Items[0].Id.VideoId == "" {
		return "", fmt.Errorf("channel %s has no live content", channelID)
	}
	return resp.Items[0].Id.VideoId, nil
}
