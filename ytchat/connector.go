// Package ytchat ingests YouTube live chat by polling an external resolver
// proxy with an opaque continuation cursor. The proxy owns video resolution
// and page parsing; this package owns the poll loop, the adaptive interval,
// decoding the heterogeneous action payloads, and normalization.
package ytchat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onnwee/chat-overlay/backend/chat"
	"github.com/onnwee/chat-overlay/backend/status"
	"github.com/onnwee/chat-overlay/backend/store"
	"github.com/onnwee/chat-overlay/backend/telemetry"
	"github.com/onnwee/chat-overlay/backend/youtubeapi"
)

const (
	defaultMinInterval = time.Second
	defaultMaxInterval = 10 * time.Second

	// maxConsecutiveFailures halts polling instead of retrying forever.
	maxConsecutiveFailures = 12
)

// Config holds the connector's inputs.
type Config struct {
	ChannelName string
	ResolverURL string

	// Poll interval bounds. Zero values take the defaults.
	MinInterval time.Duration
	MaxInterval time.Duration
}

// Connector is a chat.Source for YouTube live chat.
type Connector struct {
	cfg    Config
	store  *store.Store
	status *status.Tracker

	resolver *resolverClient
	direct   *youtubeapi.Client
	dec      *decoder

	videoID      string
	continuation string
	pace         pacer
	visible      atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func New(cfg Config, st *store.Store, tracker *status.Tracker) *Connector {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = defaultMinInterval
	}
	if cfg.MaxInterval < cfg.MinInterval {
		cfg.MaxInterval = defaultMaxInterval
	}
	c := &Connector{
		cfg:      cfg,
		store:    st,
		status:   tracker,
		resolver: newResolverClient(cfg.ResolverURL),
		pace:     pacer{min: cfg.MinInterval, max: cfg.MaxInterval},
	}
	c.visible.Store(true)
	return c
}

// UseDirectLookup attaches a Data API client used as a fallback resolution
// strategy when the proxy cannot find a live video on its own.
func (c *Connector) UseDirectLookup(client *youtubeapi.Client) {
	c.direct = client
}

func (c *Connector) Platform() chat.Platform { return chat.PlatformYouTube }

// SetVisible widens the poll interval while the overlay is hidden and lets it
// narrow again once shown.
func (c *Connector) SetVisible(visible bool) {
	c.visible.Store(visible)
	slog.Debug("youtube poll visibility changed", slog.Bool("visible", visible))
}

// Connect resolves the live video, the initial continuation cursor and the
// emote catalog snapshot, then starts the poll loop. Bootstrap failures
// return; the adapter never enters steady state without a cursor.
func (c *Connector) Connect(ctx context.Context) error {
	if c.cfg.ChannelName == "" {
		return fmt.Errorf("youtube: channel not configured")
	}
	if c.cfg.ResolverURL == "" {
		return fmt.Errorf("youtube: resolver url not configured")
	}
	ctx, span := telemetry.StartSpan(ctx, "ytchat", "connect")
	defer span.End()

	resp, err := c.resolver.fetch(ctx, resolverRequest{ChannelName: c.cfg.ChannelName})
	if err != nil && errors.Is(err, ErrNoLiveContent) && c.direct != nil {
		resp, err = c.bootstrapDirect(ctx, err)
	}
	if err != nil {
		c.status.SetError(chat.PlatformYouTube, err)
		telemetry.RecordError(span, err)
		return fmt.Errorf("youtube: bootstrap: %w", err)
	}
	if resp.Continuation == "" {
		err := fmt.Errorf("youtube: bootstrap: %w", ErrMissingCursor)
		c.status.SetError(chat.PlatformYouTube, err)
		telemetry.RecordError(span, err)
		return err
	}

	c.videoID = resp.VideoID
	c.continuation = resp.Continuation
	c.dec = &decoder{catalog: newEmoteCatalog(resp.EmoteMap)}
	slog.Info("youtube live chat resolved",
		slog.String("channel", c.cfg.ChannelName),
		slog.String("video_id", c.videoID),
		slog.Int("emotes", len(resp.EmoteMap)))

	if msgs := c.dec.decodeBatch(resp.Messages); len(msgs) > 0 {
		c.store.AddBatch(msgs)
	}
	c.status.SetConnected(chat.PlatformYouTube, true)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.wg.Add(1)
	go c.poll(runCtx)
	return nil
}

// bootstrapDirect retries bootstrap with a video id found through the Data
// API when the proxy's own strategies came up empty.
func (c *Connector) bootstrapDirect(ctx context.Context, resolverErr error) (*resolverResponse, error) {
	channelID, err := c.direct.ResolveChannelID(ctx, c.cfg.ChannelName)
	if err != nil {
		return nil, resolverErr
	}
	videoID, err := c.direct.FindLiveVideoID(ctx, channelID)
	if err != nil {
		return nil, resolverErr
	}
	slog.Info("youtube live video found via data api", slog.String("video_id", videoID))
	return c.resolver.fetch(ctx, resolverRequest{ChannelName: c.cfg.ChannelName, VideoID: videoID})
}

// Disconnect stops the poll loop. It blocks until the loop has exited; no
// store mutation happens after it returns and the adapter never resurrects.
func (c *Connector) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.status.SetConnected(chat.PlatformYouTube, false)
}

func (c *Connector) poll(ctx context.Context) {
	defer c.wg.Done()
	failures := 0
	for {
		interval := c.pace.next(c.visible.Load())
		telemetry.SetPollInterval(interval)
		if !sleepWithContext(ctx, interval) {
			return
		}
		err := c.pollOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			if failures > 0 || !c.status.Connected(chat.PlatformYouTube) {
				c.status.SetConnected(chat.PlatformYouTube, true)
			}
			failures = 0
			c.pace.recordSuccess()
			continue
		}

		class := Classify(err)
		telemetry.IncPollError(class.String())
		if !class.Retryable() {
			c.status.SetError(chat.PlatformYouTube, err)
			slog.Error("youtube polling halted", slog.String("class", class.String()), slog.Any("err", err))
			return
		}
		failures++
		c.pace.recordError()
		c.status.SetError(chat.PlatformYouTube, err)
		if failures >= maxConsecutiveFailures {
			slog.Error("youtube polling halted after repeated failures",
				slog.Int("failures", failures), slog.Any("err", err))
			return
		}
		slog.Warn("youtube poll failed", slog.Int("failures", failures), slog.Any("err", err))
	}
}

// pollOnce exchanges the current cursor for one batch. The cursor is opaque
// and passed through unchanged; a response without a new cursor ends the
// session.
func (c *Connector) pollOnce(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "ytchat", "poll")
	defer span.End()
	telemetry.IncPollCycle()

	if c.continuation == "" {
		return ErrMissingCursor
	}
	var resp *resolverResponse
	var err error
	telemetry.TimeFunc(telemetry.PollDuration, func() {
		resp, err = c.resolver.fetch(ctx, resolverRequest{
			ChannelName:  c.cfg.ChannelName,
			VideoID:      c.videoID,
			Continuation: c.continuation,
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	if len(resp.EmoteMap) > 0 {
		c.dec.catalog.merge(resp.EmoteMap)
	}
	msgs := c.dec.decodeBatch(resp.Messages)
	if len(msgs) == 0 {
		c.pace.recordEmpty()
	} else {
		c.pace.recordActivity()
	}

	c.mu.RLock()
	if !c.closed {
		c.store.AddBatch(msgs)
	}
	c.mu.RUnlock()

	if resp.VideoID != "" {
		c.videoID = resp.VideoID
	}
	if resp.Continuation == "" {
		return ErrMissingCursor
	}
	c.continuation = resp.Continuation
	telemetry.SetSpanSuccess(span)
	return nil
}

// pacer derives the next poll delay from recent activity. Consecutive empty
// batches and errors widen the interval toward max; any activity snaps it
// back toward min. A hidden overlay always polls at max.
type pacer struct {
	min, max    time.Duration
	emptyStreak int
	errStreak   int
}

func (p *pacer) next(visible bool) time.Duration {
	if !visible {
		return p.max
	}
	d := p.min
	widenings := p.errStreak + p.emptyStreak/3
	for i := 0; i < widenings; i++ {
		d *= 2
		if d >= p.max {
			return p.max
		}
	}
	return d
}

func (p *pacer) recordEmpty()    { p.emptyStreak++ }
func (p *pacer) recordActivity() { p.emptyStreak = 0 }
func (p *pacer) recordError()    { p.errStreak++ }
func (p *pacer) recordSuccess()  { p.errStreak = 0 }

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
