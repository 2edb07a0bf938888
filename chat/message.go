package chat

import (
	"context"
	"strings"
	"time"
)

// Platform identifies which streaming service a message (or adapter) belongs to.
type Platform string

const (
	PlatformTwitch  Platform = "twitch"
	PlatformKick    Platform = "kick"
	PlatformYouTube Platform = "youtube"
)

// MaxMessageLen caps message text before any emote/link/mention positions are
// computed. Truncation happens first so position offsets always stay valid
// against the final string.
const MaxMessageLen = 300

// Ellipsis is appended whenever a message is cut at MaxMessageLen.
const Ellipsis = "…"

// Emote maps spans of message text to a replacement image. An empty URL
// signals a textual/Unicode glyph with no image to fetch.
type Emote struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	// Positions holds [start,end] inclusive rune offsets into the message
	// text. Adapters emit one Emote per protocol occurrence, so a single
	// Emote normally carries exactly one span.
	Positions [][2]int `json:"positions"`
	// Source names the emote provider (twitch, 7tv, bttv, kick, youtube).
	// It is distinct from the message platform: overlay-emote services
	// annotate messages from other platforms.
	Source string `json:"source,omitempty"`
}

// Badge describes a resolved chat badge (subscriber, moderator, ...).
type Badge struct {
	SetID       string `json:"setId"`
	Version     string `json:"version"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
}

// Message is the canonical chat event record. It is immutable once built: an
// adapter constructs one Message per inbound protocol event, pushes it into
// the store exactly once, and never touches it again. IDs are prefixed with
// the platform name so ids never collide across platforms.
type Message struct {
	ID          string    `json:"id"`
	Platform    Platform  `json:"platform"`
	Username    string    `json:"username"`
	Text        string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	Emotes      []Emote   `json:"emotes,omitempty"`
	Badges      []Badge   `json:"badges,omitempty"`
	Color       string    `json:"userColor,omitempty"`
	EventType   string    `json:"eventType,omitempty"`
	IsFirstTime bool      `json:"isFirstTime,omitempty"`
}

// Truncate caps s at MaxMessageLen runes, appending Ellipsis when cut.
func Truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxMessageLen {
		return s
	}
	return string(runes[:MaxMessageLen]) + Ellipsis
}

// BodyLen returns the number of runes of s that positional annotations may
// reference. The ellipsis Truncate appends is excluded: it replaced cut text
// and never carries an annotation. Only a truncated string can be exactly
// MaxMessageLen+1 runes long, so the check is unambiguous.
func BodyLen(s string) int {
	n := len([]rune(s))
	if n == MaxMessageLen+1 && strings.HasSuffix(s, Ellipsis) {
		return MaxMessageLen
	}
	return n
}

// Source is the capability every platform adapter exposes. Connect performs
// bootstrap (identity resolution, socket open, catalog fetches) and returns
// an error only when bootstrap fails; steady-state failures are classified
// internally and surfaced through the status sink instead of escaping.
// Disconnect synchronously stops all retry/poll timers and closes the
// transport: no store mutation happens after it returns, and a disconnected
// adapter never resurrects itself.
type Source interface {
	Platform() Platform
	Connect(ctx context.Context) error
	Disconnect()
}
