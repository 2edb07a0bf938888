package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{
		"TWITCH_CHANNEL", "KICK_CHANNEL", "KICK_CHATROOM_ID", "YOUTUBE_CHANNEL",
		"CHAT_RESOLVER_URL", "POLL_MIN_INTERVAL_MS", "POLL_MAX_INTERVAL_MS",
		"HTTP_ADDR", "CORS_ALLOWED_ORIGINS", "STORE_LIMIT", "DB_DSN",
	} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.StoreLimit != 100 {
		t.Errorf("StoreLimit = %d", cfg.StoreLimit)
	}
	if cfg.PollMinInterval != time.Second || cfg.PollMaxInterval != 10*time.Second {
		t.Errorf("poll intervals = %v / %v", cfg.PollMinInterval, cfg.PollMaxInterval)
	}
	if cfg.TwitchEnabled() || cfg.KickEnabled() || cfg.YouTubeEnabled() || cfg.ArchiveEnabled() {
		t.Error("no adapters should be enabled with an empty environment")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TWITCH_CHANNEL", "somechannel")
	t.Setenv("KICK_CHATROOM_ID", "12345")
	t.Setenv("YOUTUBE_CHANNEL", "@somebody")
	t.Setenv("CHAT_RESOLVER_URL", "http://localhost:9090/chat")
	t.Setenv("POLL_MIN_INTERVAL_MS", "500")
	t.Setenv("POLL_MAX_INTERVAL_MS", "20000")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.example, http://b.example ,")
	t.Setenv("STORE_LIMIT", "250")
	t.Setenv("DB_DSN", "postgres://localhost/overlay")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.TwitchEnabled() || !cfg.KickEnabled() || !cfg.YouTubeEnabled() || !cfg.ArchiveEnabled() {
		t.Error("all adapters should be enabled")
	}
	if cfg.KickChatroomID != 12345 {
		t.Errorf("KickChatroomID = %d", cfg.KickChatroomID)
	}
	if cfg.PollMinInterval != 500*time.Millisecond || cfg.PollMaxInterval != 20*time.Second {
		t.Errorf("poll intervals = %v / %v", cfg.PollMinInterval, cfg.PollMaxInterval)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.StoreLimit != 250 {
		t.Errorf("StoreLimit = %d", cfg.StoreLimit)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"KICK_CHATROOM_ID":     "abc",
		"POLL_MIN_INTERVAL_MS": "-5",
		"STORE_LIMIT":          "0",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := Load(); err == nil {
				t.Fatalf("Load accepted %s=%q", key, val)
			}
		})
	}
}
