// Package config loads environment variables and provides a typed Config used
// across the service. It applies sensible defaults so the binary can run
// locally with minimal setup. A platform whose channel variable is absent is
// simply not started.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Twitch
	TwitchChannel      string
	TwitchBotUsername  string
	TwitchOAuthToken   string
	TwitchClientID     string
	TwitchClientSecret string

	// Kick
	KickChannel    string
	KickChatroomID int

	// YouTube
	YouTubeChannel  string
	ResolverURL     string
	YouTubeAPIKey   string
	PollMinInterval time.Duration
	PollMaxInterval time.Duration

	// HTTP API
	HTTPAddr       string
	AllowedOrigins []string

	// Retention / archive
	StoreLimit int
	DBDsn      string
}

// Load reads environment variables and applies defaults. Missing platform
// channels disable those adapters; missing DB_DSN disables the archiver.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.TwitchChannel = os.Getenv("TWITCH_CHANNEL")
	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")
	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")

	cfg.KickChannel = os.Getenv("KICK_CHANNEL")
	if v := os.Getenv("KICK_CHATROOM_ID"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid KICK_CHATROOM_ID: %w", err)
		}
		cfg.KickChatroomID = n
	}

	cfg.YouTubeChannel = os.Getenv("YOUTUBE_CHANNEL")
	cfg.ResolverURL = os.Getenv("CHAT_RESOLVER_URL")
	cfg.YouTubeAPIKey = os.Getenv("YOUTUBE_API_KEY")

	var err error
	if cfg.PollMinInterval, err = durationEnv("POLL_MIN_INTERVAL_MS", time.Second); err != nil {
		return nil, err
	}
	if cfg.PollMaxInterval, err = durationEnv("POLL_MAX_INTERVAL_MS", 10*time.Second); err != nil {
		return nil, err
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	cfg.StoreLimit = 100
	if v := os.Getenv("STORE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid STORE_LIMIT %q", v)
		}
		cfg.StoreLimit = n
	}

	cfg.DBDsn = os.Getenv("DB_DSN")

	return cfg, nil
}

// TwitchEnabled reports whether the IRC adapter should start.
func (c *Config) TwitchEnabled() bool { return c.TwitchChannel != "" }

// KickEnabled reports whether the pub/sub adapter should start.
func (c *Config) KickEnabled() bool { return c.KickChannel != "" || c.KickChatroomID > 0 }

// YouTubeEnabled reports whether the polling adapter should start. The
// resolver proxy is required; the Data API key is an optional extra strategy.
func (c *Config) YouTubeEnabled() bool { return c.YouTubeChannel != "" && c.ResolverURL != "" }

// ArchiveEnabled reports whether the Postgres archiver should start.
func (c *Config) ArchiveEnabled() bool { return c.DBDsn != "" }

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("invalid %s %q (milliseconds)", key, v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
