// Command backend is the main entrypoint for the chat-overlay ingestion
// service. It:
//   - Loads configuration and initializes structured logging.
//   - Starts one connector per configured platform (Twitch IRC, Kick pub/sub,
//     YouTube polling) feeding a shared bounded message store.
//   - Optionally archives accepted messages to Postgres.
//   - Exposes an HTTP server with /healthz, /status, /messages, /stream,
//     /visibility, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/chat-overlay/backend/archive"
	"github.com/onnwee/chat-overlay/backend/chat"
	"github.com/onnwee/chat-overlay/backend/config"
	"github.com/onnwee/chat-overlay/backend/kickchat"
	"github.com/onnwee/chat-overlay/backend/server"
	"github.com/onnwee/chat-overlay/backend/status"
	"github.com/onnwee/chat-overlay/backend/store"
	"github.com/onnwee/chat-overlay/backend/telemetry"
	"github.com/onnwee/chat-overlay/backend/twitchchat"
	"github.com/onnwee/chat-overlay/backend/youtubeapi"
	"github.com/onnwee/chat-overlay/backend/ytchat"
)

// connector is the lifecycle every platform adapter exposes.
type connector interface {
	Platform() chat.Platform
	Connect(ctx context.Context) error
	Disconnect()
}

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load("backend/.env")

	initLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("chat-overlay", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	st := store.New(cfg.StoreLimit)
	tracker := status.NewTracker()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional Postgres archive of every accepted message.
	if cfg.ArchiveEnabled() {
		database, err := archive.Connect()
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		if err := archive.Migrate(ctx, database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
		feed, cancelFeed := st.Subscribe()
		defer cancelFeed()
		go archive.NewRecorder(database).Run(ctx, feed)
		slog.Info("archive enabled")
	}

	var connectors []connector

	if cfg.TwitchEnabled() {
		connectors = append(connectors, twitchchat.New(twitchchat.Config{
			Channel:      cfg.TwitchChannel,
			Username:     cfg.TwitchBotUsername,
			OAuthToken:   cfg.TwitchOAuthToken,
			ClientID:     cfg.TwitchClientID,
			ClientSecret: cfg.TwitchClientSecret,
		}, st, tracker))
	}
	if cfg.KickEnabled() {
		connectors = append(connectors, kickchat.New(kickchat.Config{
			Channel:    cfg.KickChannel,
			ChatroomID: cfg.KickChatroomID,
		}, st, tracker))
	}

	var setVisibility func(bool)
	if cfg.YouTubeEnabled() {
		yt := ytchat.New(ytchat.Config{
			ChannelName: cfg.YouTubeChannel,
			ResolverURL: cfg.ResolverURL,
			MinInterval: cfg.PollMinInterval,
			MaxInterval: cfg.PollMaxInterval,
		}, st, tracker)
		if cfg.YouTubeAPIKey != "" {
			client, err := youtubeapi.New(ctx, cfg.YouTubeAPIKey)
			if err != nil {
				slog.Warn("youtube data api client init failed", slog.Any("err", err))
			} else {
				yt.UseDirectLookup(client)
			}
		}
		setVisibility = yt.SetVisible
		connectors = append(connectors, yt)
	}

	if len(connectors) == 0 {
		slog.Warn("no platforms configured; serving the API with an empty store")
	}

	for _, c := range connectors {
		slog.Info("connecting", slog.String("platform", string(c.Platform())))
		if err := c.Connect(ctx); err != nil {
			slog.Error("connect failed", slog.String("platform", string(c.Platform())), slog.Any("err", err))
			tracker.SetError(c.Platform(), err)
		}
	}

	startPprof()

	// HTTP server (health/status/messages/stream/visibility/metrics)
	h := &server.Handlers{Store: st, Status: tracker, SetVisibility: setVisibility}
	go func() {
		if err := server.Start(ctx, h, cfg.HTTPAddr, cfg.AllowedOrigins); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal, then stop connectors synchronously so no
	// store mutation outlives main.
	<-ctx.Done()
	slog.Info("shutting down")
	for _, c := range connectors {
		c.Disconnect()
	}
}

// initLogging configures slog from LOG_LEVEL and LOG_FORMAT.
// Defaults: level=info, format=text.
func initLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))
}

// startPprof enables profiling endpoints in debug mode (ENABLE_PPROF=1).
func startPprof() {
	if os.Getenv("ENABLE_PPROF") != "1" {
		return
	}
	pprofAddr := os.Getenv("PPROF_ADDR")
	if pprofAddr == "" {
		pprofAddr = "localhost:6060"
	}
	go func() {
		slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
		// Use an http.Server with timeouts to satisfy G114 and avoid DoS risks
		srv := &http.Server{
			Addr:              pprofAddr,
			Handler:           nil, // default mux exposes /debug/pprof
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("pprof server error", slog.Any("err", err))
		}
	}()
}
