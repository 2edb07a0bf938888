package twitchchat

import (
	"context"
	"log/slog"
	"unicode"

	"github.com/jdavasligil/emodl"

	"github.com/onnwee/chat-overlay/backend/chat"
)

// communityEmotes is one provider's name-to-image catalog (7TV, BTTV). These
// annotate plain words in the message text; native Twitch emotes arrive with
// positions already attached and always win on overlap.
type communityEmotes struct {
	source string
	byName map[string]string
}

// loadCommunityEmotes fetches the 7TV and BTTV catalogs for a channel. Each
// provider is loaded separately so the source attribution on annotated emotes
// stays distinct and a failing provider does not take the other down. The
// downloader carries no context, so each load runs in a goroutine bounded by
// ctx; a provider that outlives the deadline is abandoned.
func loadCommunityEmotes(ctx context.Context, twitchUserID string) []*communityEmotes {
	var out []*communityEmotes
	providers := []struct {
		source string
		opts   emodl.DownloaderOptions
	}{
		{"7tv", emodl.DownloaderOptions{SevenTV: &emodl.SevenTVOptions{Platform: "twitch", PlatformID: twitchUserID}}},
		{"bttv", emodl.DownloaderOptions{BTTV: &emodl.BTTVOptions{Platform: "twitch", PlatformID: twitchUserID}}},
	}
	for _, p := range providers {
		type result struct {
			catalog map[string]emodl.Emote
			err     error
		}
		done := make(chan result, 1)
		go func(opts emodl.DownloaderOptions) {
			dl := emodl.NewDownloader(opts)
			catalog, err := dl.Load()
			done <- result{catalog, err}
		}(p.opts)

		var res result
		select {
		case res = <-done:
		case <-ctx.Done():
			slog.Warn("community emote load canceled", slog.String("source", p.source), slog.Any("err", ctx.Err()))
			return out
		}
		if res.err != nil {
			slog.Warn("community emote load failed", slog.String("source", p.source), slog.Any("err", res.err))
			continue
		}
		ce := &communityEmotes{source: p.source, byName: make(map[string]string, len(res.catalog))}
		for name, e := range res.catalog {
			if len(e.Images) == 0 {
				continue
			}
			ce.byName[name] = e.Images[0].URL
		}
		out = append(out, ce)
		slog.Info("community emotes loaded", slog.String("source", p.source), slog.Int("count", len(ce.byName)))
	}
	return out
}

// scanCommunity matches whole whitespace-delimited words against provider
// catalogs. Spans already claimed by native emotes are skipped; when several
// providers know a word the first one in provider order wins.
func scanCommunity(text string, taken [][2]int, providers []*communityEmotes) []chat.Emote {
	if len(providers) == 0 {
		return nil
	}
	var out []chat.Emote
	runes := []rune(text)
	i := 0
	for i < len(runes) {
		for i < len(runes) && unicode.IsSpace(runes[i]) {
			i++
		}
		start := i
		for i < len(runes) && !unicode.IsSpace(runes[i]) {
			i++
		}
		if start == i {
			continue
		}
		end := i - 1
		if overlapsAny(start, end, taken) {
			continue
		}
		word := string(runes[start:i])
		for _, p := range providers {
			url, ok := p.byName[word]
			if !ok {
				continue
			}
			out = append(out, chat.Emote{
				Name:      word,
				URL:       url,
				Positions: [][2]int{{start, end}},
				Source:    p.source,
			})
			break
		}
	}
	return out
}

func overlapsAny(start, end int, spans [][2]int) bool {
	for _, s := range spans {
		if start <= s[1] && end >= s[0] {
			return true
		}
	}
	return false
}
