// Package twitchchat ingests Twitch chat over IRC and normalizes it into the
// canonical message model. Credentials are optional: without them the
// connector reads chat anonymously and skips the Helix badge/identity lookups.
package twitchchat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
	"github.com/google/uuid"

	"github.com/onnwee/chat-overlay/backend/chat"
	"github.com/onnwee/chat-overlay/backend/status"
	"github.com/onnwee/chat-overlay/backend/store"
	"github.com/onnwee/chat-overlay/backend/telemetry"
	"github.com/onnwee/chat-overlay/backend/twitchapi"
)

// twitchEmoteURL is the CDN template for native Twitch emotes.
const twitchEmoteURL = "https://static-cdn.jtvnw.net/emoticons/v2/%s/default/dark/2.0"

// anonymousPass is the password the IRC edge accepts for justinfan reads.
const anonymousPass = "oauth:59301"

// bootstrapTimeout bounds the Helix lookups and community emote catalog
// fetches so Connect cannot stall on a hung endpoint.
const bootstrapTimeout = 30 * time.Second

// Config holds everything the connector needs. Username and OAuthToken enable
// an authenticated session; ClientID and ClientSecret enable Helix lookups
// (badge images, community emote catalogs). All are optional.
type Config struct {
	Channel      string
	Username     string
	OAuthToken   string
	ClientID     string
	ClientSecret string

	// Test seams. Zero values mean production endpoints.
	TokenURL     string
	HelixBaseURL string
}

// Connector is a chat.Source for Twitch.
type Connector struct {
	cfg    Config
	store  *store.Store
	status *status.Tracker

	client    *twitch.Client
	badges    twitchapi.BadgeTable
	community []*communityEmotes

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func New(cfg Config, st *store.Store, tracker *status.Tracker) *Connector {
	return &Connector{cfg: cfg, store: st, status: tracker}
}

func (c *Connector) Platform() chat.Platform { return chat.PlatformTwitch }

// Connect bootstraps Helix state when credentials allow, then opens the IRC
// session. It returns once the session is established or the first attempt
// fails; gempir handles reconnects internally afterwards.
func (c *Connector) Connect(ctx context.Context) error {
	if c.cfg.Channel == "" {
		return fmt.Errorf("twitch: channel not configured")
	}
	ctx, span := telemetry.StartSpan(ctx, "twitchchat", "connect")
	defer span.End()

	if c.cfg.ClientID != "" && c.cfg.ClientSecret != "" {
		if err := c.bootstrapHelix(ctx); err != nil {
			c.status.SetError(chat.PlatformTwitch, err)
			telemetry.RecordError(span, err)
			return err
		}
	} else {
		slog.Info("twitch helix creds not set; skipping badge and community emote lookup")
	}

	nick, pass := c.cfg.Username, c.cfg.OAuthToken
	if nick == "" || pass == "" {
		nick = anonymousNick()
		pass = anonymousPass
		slog.Info("connecting to twitch chat anonymously", slog.String("nick", nick))
	}
	client := twitch.NewClient(nick, pass)
	client.OnPrivateMessage(c.handlePrivateMessage)
	client.OnUserNoticeMessage(c.handleUserNotice)

	connected := make(chan struct{})
	var connectOnce sync.Once
	first := true
	client.OnConnect(func() {
		c.status.SetConnected(chat.PlatformTwitch, true)
		if !first {
			telemetry.IncReconnect(string(chat.PlatformTwitch))
		}
		first = false
		connectOnce.Do(func() { close(connected) })
	})
	client.Join(c.cfg.Channel)
	c.client = client

	errCh := make(chan error, 1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := client.Connect()
		if err != nil && !errors.Is(err, twitch.ErrClientDisconnected) {
			c.status.SetError(chat.PlatformTwitch, err)
			slog.Error("twitch chat session ended", slog.Any("err", err))
		}
		errCh <- err
	}()

	select {
	case <-connected:
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, twitch.ErrClientDisconnected) {
			return fmt.Errorf("twitch: connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		c.Disconnect()
		return ctx.Err()
	}
}

// Disconnect closes the IRC session. It blocks until the reader goroutine has
// exited; no message reaches the store after it returns.
func (c *Connector) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	if c.client != nil {
		if err := c.client.Disconnect(); err != nil && !errors.Is(err, twitch.ErrConnectionIsNotOpen) {
			slog.Warn("twitch disconnect", slog.Any("err", err))
		}
	}
	c.wg.Wait()
	c.status.SetConnected(chat.PlatformTwitch, false)
}

func (c *Connector) bootstrapHelix(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
	defer cancel()
	ts := twitchapi.NewTokenSource(ctx, c.cfg.ClientID, c.cfg.ClientSecret, c.cfg.TokenURL)
	hc := &twitchapi.HelixClient{TokenSource: ts, ClientID: c.cfg.ClientID, BaseURL: c.cfg.HelixBaseURL}

	roomID, err := hc.GetUserID(ctx, c.cfg.Channel)
	if err != nil {
		return fmt.Errorf("twitch: resolve channel %q: %w", c.cfg.Channel, err)
	}
	badges, err := hc.GetChatBadges(ctx, roomID)
	if err != nil {
		// Badges are decoration; chat still flows without them.
		slog.Warn("twitch badge lookup failed", slog.Any("err", err))
	} else {
		c.badges = badges
	}
	c.community = loadCommunityEmotes(ctx, roomID)
	return nil
}

func (c *Connector) handlePrivateMessage(msg twitch.PrivateMessage) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	c.store.Add(c.normalize(msg))
}

// normalize maps one PRIVMSG into the canonical model. Text is truncated
// before any emote span is computed so every recorded position is valid
// against the stored string.
func (c *Connector) normalize(msg twitch.PrivateMessage) chat.Message {
	text := chat.Truncate(msg.Message)
	runeLen := chat.BodyLen(text)

	// Each tag range becomes its own emote token; a repeated emote therefore
	// yields one entry per occurrence, never one entry spanning all of them.
	var emotes []chat.Emote
	for _, e := range msg.Emotes {
		if e == nil {
			continue
		}
		for _, p := range e.Positions {
			if p.Start < 0 || p.End >= runeLen || p.Start > p.End {
				continue
			}
			emotes = append(emotes, chat.Emote{
				Name:      e.Name,
				URL:       fmt.Sprintf(twitchEmoteURL, e.ID),
				Positions: [][2]int{{p.Start, p.End}},
				Source:    "twitch",
			})
		}
	}
	emotes = append(emotes, scanCommunity(text, takenSpans(emotes), c.community)...)

	username := msg.User.DisplayName
	if username == "" {
		username = msg.User.Name
	}
	color := msg.User.Color
	if color == "" {
		color = chat.ColorFor(username)
	}

	ts := msg.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return chat.Message{
		ID:          "twitch-" + msg.ID,
		Platform:    chat.PlatformTwitch,
		Username:    username,
		Text:        text,
		Timestamp:   ts,
		Emotes:      emotes,
		Badges:      c.resolveBadges(msg.User.Badges),
		Color:       color,
		IsFirstTime: msg.FirstMessage,
	}
}

func (c *Connector) handleUserNotice(msg twitch.UserNoticeMessage) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	eventType := noticeEventType(msg.MsgID)
	if eventType == "" {
		return
	}
	text := msg.SystemMsg
	if msg.Message != "" {
		text = msg.Message
	}
	username := msg.User.DisplayName
	if username == "" {
		username = msg.User.Name
	}
	color := msg.User.Color
	if color == "" {
		color = chat.ColorFor(username)
	}
	ts := msg.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	c.store.Add(chat.Message{
		ID:        "twitch-" + msg.ID,
		Platform:  chat.PlatformTwitch,
		Username:  username,
		Text:      chat.Truncate(text),
		Timestamp: ts,
		Badges:    c.resolveBadges(msg.User.Badges),
		Color:     color,
		EventType: eventType,
	})
}

// noticeEventType maps USERNOTICE msg-id tags to overlay event types. Tags we
// do not render are dropped at the source.
func noticeEventType(msgID string) string {
	switch msgID {
	case "sub", "resub":
		return "subscription"
	case "subgift", "anonsubgift", "submysterygift":
		return "gift"
	case "raid":
		return "raid"
	case "announcement":
		return "announcement"
	default:
		return ""
	}
}

// resolveBadges maps IRC badge tags through the Helix badge table. Keys are
// sorted so repeated messages from the same user serialize identically.
func (c *Connector) resolveBadges(tags map[string]int) []chat.Badge {
	if len(tags) == 0 || c.badges == nil {
		return nil
	}
	sets := make([]string, 0, len(tags))
	for setID := range tags {
		sets = append(sets, setID)
	}
	sort.Strings(sets)
	var out []chat.Badge
	for _, setID := range sets {
		if b, ok := c.badges.Lookup(setID, strconv.Itoa(tags[setID])); ok {
			out = append(out, b)
		}
	}
	return out
}

func takenSpans(emotes []chat.Emote) [][2]int {
	var spans [][2]int
	for _, e := range emotes {
		spans = append(spans, e.Positions...)
	}
	return spans
}

// anonymousNick derives a throwaway justinfan nick. The IRC edge only needs
// it to be unique-ish per session.
func anonymousNick() string {
	return "justinfan" + strconv.FormatUint(uint64(uuid.New().ID()), 10)
}
