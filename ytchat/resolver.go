package ytchat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const resolverTimeout = 15 * time.Second

// resolverRequest is the body posted to the chat resolver proxy.
type resolverRequest struct {
	ChannelName  string `json:"channelName"`
	Continuation string `json:"continuation,omitempty"`
	VideoID      string `json:"videoId,omitempty"`
}

// resolverResponse mirrors the proxy's answer. The proxy always returns HTTP
// 200; failures ride in the error field so the adapter can classify them from
// payload content. Messages are raw upstream actions, decoded by this
// package.
type resolverResponse struct {
	Messages     []json.RawMessage `json:"messages"`
	VideoID      string            `json:"videoId"`
	Continuation string            `json:"continuation"`
	EmoteMap     map[string]string `json:"emoteMap,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// resolverClient talks to the external channel-resolution/polling proxy.
type resolverClient struct {
	url        string
	httpClient *http.Client
}

func newResolverClient(url string) *resolverClient {
	return &resolverClient{
		url:        url,
		httpClient: &http.Client{Timeout: resolverTimeout},
	}
}

// fetch posts one request and maps in-band errors to classified Go errors.
func (rc *resolverClient) fetch(ctx context.Context, req resolverRequest) (*resolverResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, rc.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := rc.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("resolver request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("resolver returned status %d", resp.StatusCode)
	}
	var out resolverResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("resolver decode: %w", err)
	}
	if out.Error != "" {
		return nil, mapResolverError(out.Error)
	}
	return &out, nil
}

// mapResolverError lifts in-band error strings to sentinels where the text
// identifies a known category; everything else stays a plain (retryable)
// error carrying the original text.
func mapResolverError(msg string) error {
	err := fmt.Errorf("resolver: %s", msg)
	switch Classify(err) {
	case ClassNoLive:
		return fmt.Errorf("%w: %s", ErrNoLiveContent, msg)
	case ClassIncompatible:
		return fmt.Errorf("%w: %s", ErrParserIncompatible, msg)
	case ClassMissingCursor:
		return fmt.Errorf("%w: %s", ErrMissingCursor, msg)
	default:
		return err
	}
}
