package ytchat

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/onnwee/chat-overlay/backend/chat"
)

func rawActions(actions ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(actions))
	for i, a := range actions {
		out[i] = json.RawMessage(a)
	}
	return out
}

const textAction = `{"addChatItemAction":{"item":{"liveChatTextMessageRenderer":{
	"id":"msg-1","timestampUsec":"1700000000000000",
	"authorName":{"simpleText":"Alice"},
	"message":{"runs":[{"text":"hello world"}]}}}}}`

func TestDecodeAddChatItemAction(t *testing.T) {
	d := &decoder{catalog: newEmoteCatalog(nil)}
	msgs := d.decodeBatch(rawActions(textAction))
	if len(msgs) != 1 {
		t.Fatalf("decoded %d messages", len(msgs))
	}
	got := msgs[0]
	if got.ID != "youtube-msg-1" || got.Platform != chat.PlatformYouTube {
		t.Errorf("identity: %+v", got)
	}
	if got.Username != "Alice" || got.Text != "hello world" {
		t.Errorf("content: %+v", got)
	}
	if got.Timestamp.UnixMicro() != 1700000000000000 {
		t.Errorf("timestamp = %v", got.Timestamp)
	}
	if got.Color != chat.ColorFor("Alice") {
		t.Errorf("color = %q", got.Color)
	}
}

func TestDecodeAlternateShapes(t *testing.T) {
	d := &decoder{catalog: newEmoteCatalog(nil)}
	tests := []struct {
		name   string
		action string
		wantID string
	}{
		{
			name: "replay wrapper",
			action: `{"replayChatItemAction":{"actions":[` + textAction + `]}}`,
			wantID: "youtube-msg-1",
		},
		{
			name: "bare item",
			action: `{"item":{"liveChatTextMessageRenderer":{"id":"msg-2",
				"timestampUsec":"1700000000000000",
				"authorName":{"simpleText":"Bob"},
				"message":{"runs":[{"text":"hi"}]}}}}`,
			wantID: "youtube-msg-2",
		},
		{
			name: "top-level renderer",
			action: `{"liveChatTextMessageRenderer":{"id":"msg-3",
				"timestampUsec":"1700000000000000",
				"authorName":{"simpleText":"Cid"},
				"message":{"runs":[{"text":"yo"}]}}}`,
			wantID: "youtube-msg-3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := d.decodeBatch(rawActions(tt.action))
			if len(msgs) != 1 {
				t.Fatalf("decoded %d messages", len(msgs))
			}
			if msgs[0].ID != tt.wantID {
				t.Fatalf("id = %q, want %q", msgs[0].ID, tt.wantID)
			}
		})
	}
}

func TestDecodeFlatLegacyShape(t *testing.T) {
	d := &decoder{catalog: newEmoteCatalog(nil)}
	msgs := d.decodeBatch(rawActions(`{"author":"Dana","message":"old style","timestamp":1700000000000}`))
	if len(msgs) != 1 {
		t.Fatalf("decoded %d messages", len(msgs))
	}
	got := msgs[0]
	if got.Username != "Dana" || got.Text != "old style" {
		t.Errorf("content: %+v", got)
	}
	if got.Timestamp.UnixMilli() != 1700000000000 {
		t.Errorf("timestamp = %v", got.Timestamp)
	}
}

func TestDecodeSkipsUnknownAndMalformed(t *testing.T) {
	d := &decoder{catalog: newEmoteCatalog(nil)}
	msgs := d.decodeBatch(rawActions(
		`{"removeChatItemAction":{"targetItemId":"x"}}`,
		`not json at all`,
		textAction,
	))
	if len(msgs) != 1 {
		t.Fatalf("decoded %d messages, want the one good action", len(msgs))
	}
}

func TestDecodeBatchCap(t *testing.T) {
	d := &decoder{catalog: newEmoteCatalog(nil)}
	var actions []json.RawMessage
	for i := 0; i < maxBatchDecode+20; i++ {
		actions = append(actions, json.RawMessage(fmt.Sprintf(
			`{"addChatItemAction":{"item":{"liveChatTextMessageRenderer":{
				"id":"m-%d","timestampUsec":"1700000000000000",
				"authorName":{"simpleText":"A"},
				"message":{"runs":[{"text":"x"}]}}}}}`, i)))
	}
	msgs := d.decodeBatch(actions)
	if len(msgs) != maxBatchDecode {
		t.Fatalf("decoded %d messages, want cap %d", len(msgs), maxBatchDecode)
	}
}

func TestAssembleRunsTextualFallback(t *testing.T) {
	d := &decoder{catalog: newEmoteCatalog(nil)}
	text, emotes := d.assembleRuns([]run{
		{Text: "hi "},
		{Emoji: &emojiRun{EmojiID: "UCxx/abc", Shortcuts: []string{":wave:"}}},
	})
	if text != "hi :wave:" {
		t.Fatalf("text = %q", text)
	}
	// The fallback consumed len("wave")+2 = 6 characters and produced no token.
	if len(text) != len("hi ")+6 {
		t.Fatalf("fallback width = %d", len(text)-len("hi "))
	}
	if len(emotes) != 0 {
		t.Fatalf("textual fallback should not emit a token: %+v", emotes)
	}
}

func TestAssembleRunsImageEmoji(t *testing.T) {
	d := &decoder{catalog: newEmoteCatalog(nil)}
	r := &emojiRun{EmojiID: "customID123", Shortcuts: []string{":pog:"}, IsCustomEmoji: true}
	r.Image.Thumbnails = []struct {
		URL string `json:"url"`
	}{{URL: "https://yt3/pog.png"}}

	text, emotes := d.assembleRuns([]run{{Text: "go "}, {Emoji: r}, {Text: "!"}})
	if text != "go □!" {
		t.Fatalf("text = %q", text)
	}
	if len(emotes) != 1 {
		t.Fatalf("emotes = %+v", emotes)
	}
	e := emotes[0]
	if e.Name != "pog" || e.URL != "https://yt3/pog.png" || e.Source != "youtube" {
		t.Errorf("emote = %+v", e)
	}
	if e.Positions[0] != [2]int{3, 3} {
		t.Errorf("positions = %v", e.Positions)
	}
}

func TestAssembleRunsUnicodeEmojiPlaceholder(t *testing.T) {
	d := &decoder{catalog: newEmoteCatalog(nil)}
	r := &emojiRun{EmojiID: "🎉"}
	r.Image.Thumbnails = []struct {
		URL string `json:"url"`
	}{{URL: "https://yt3/tada.png"}}

	text, _ := d.assembleRuns([]run{{Emoji: r}})
	if text != "🎉" {
		t.Fatalf("single code point id should be its own placeholder, got %q", text)
	}
}

func TestAssembleRunsCatalogResolution(t *testing.T) {
	d := &decoder{catalog: newEmoteCatalog(map[string]string{":pog:": "https://cdn/pog"})}
	text, emotes := d.assembleRuns([]run{{Emoji: &emojiRun{EmojiID: "id-1", Shortcuts: []string{":pog:"}}}})
	if text != "□" {
		t.Fatalf("text = %q", text)
	}
	if len(emotes) != 1 || emotes[0].URL != "https://cdn/pog" {
		t.Fatalf("emotes = %+v", emotes)
	}
}

func TestRewriteOpaqueIDs(t *testing.T) {
	catalog := newEmoteCatalog(map[string]string{
		"UCaaaaaaaaaaaaaaaaaaaaaa/pogchamp": "https://cdn/pog",
	})
	text, emotes := rewriteOpaqueIDs("nice UCaaaaaaaaaaaaaaaaaaaaaa/pogchamp play", nil, catalog)
	if text != "nice :pogchamp: play" {
		t.Fatalf("text = %q", text)
	}
	if len(emotes) != 0 {
		t.Fatalf("emotes = %+v", emotes)
	}
}

func TestRewriteShiftsLaterEmotePositions(t *testing.T) {
	catalog := newEmoteCatalog(map[string]string{
		"UCaaaaaaaaaaaaaaaaaaaaaa/pogchamp": "https://cdn/pog",
	})
	// An emote token placed after the opaque id must shift by the rewrite's
	// length delta. The id span (runes 5..37, 33 runes) becomes ":pogchamp:"
	// (10 runes), delta -23, so the token at 39 lands on 16.
	in := "nice UCaaaaaaaaaaaaaaaaaaaaaa/pogchamp □ end"
	emotes := []chat.Emote{{Name: "x", URL: "u", Positions: [][2]int{{39, 39}}}}
	text, shifted := rewriteOpaqueIDs(in, emotes, catalog)
	if text != "nice :pogchamp: □ end" {
		t.Fatalf("text = %q", text)
	}
	if shifted[0].Positions[0] != [2]int{16, 16} {
		t.Fatalf("positions = %v", shifted[0].Positions)
	}
	if r := []rune(text)[16]; r != '□' {
		t.Fatalf("shifted span points at %q", r)
	}
}

func TestRewriteDerivedNameFallback(t *testing.T) {
	text, _ := rewriteOpaqueIDs("see AAAAAAAAAAAAAAAAAAAAAAAAAAAA now", nil, newEmoteCatalog(nil))
	if text != "see :AAAAAAAA: now" {
		t.Fatalf("text = %q", text)
	}
}

func TestFinishTruncatesAfterRewrite(t *testing.T) {
	d := &decoder{catalog: newEmoteCatalog(nil)}
	long := strings.Repeat("y", 400)
	msg, ok := d.fromText(&textRenderer{
		ID:            "long-1",
		TimestampUsec: "1700000000000000",
		AuthorName:    simple{SimpleText: "A"},
		Message:       runList{Runs: []run{{Text: long}}},
	})
	if !ok {
		t.Fatal("decode failed")
	}
	wantLen := chat.MaxMessageLen + len([]rune(chat.Ellipsis))
	if got := len([]rune(msg.Text)); got != wantLen {
		t.Fatalf("text rune length = %d, want %d", got, wantLen)
	}
}

func TestPaidRendererPrefixesAmount(t *testing.T) {
	d := &decoder{catalog: newEmoteCatalog(nil)}
	r := &emojiRun{EmojiID: "🎉"}
	r.Image.Thumbnails = []struct {
		URL string `json:"url"`
	}{{URL: "https://yt3/tada.png"}}

	msg, ok := d.fromPaid(&paidRenderer{
		ID:                 "paid-1",
		TimestampUsec:      "1700000000000000",
		AuthorName:         simple{SimpleText: "Eve"},
		Message:            runList{Runs: []run{{Emoji: r}, {Text: " thanks"}}},
		PurchaseAmountText: simple{SimpleText: "$5.00"},
	})
	if !ok {
		t.Fatal("decode failed")
	}
	if msg.EventType != "superchat" {
		t.Errorf("eventType = %q", msg.EventType)
	}
	if msg.Text != "$5.00 🎉 thanks" {
		t.Errorf("text = %q", msg.Text)
	}
	// "$5.00 " is 6 runes, so the emoji token moved from 0 to 6.
	if msg.Emotes[0].Positions[0] != [2]int{6, 6} {
		t.Errorf("positions = %v", msg.Emotes[0].Positions)
	}
}

func TestEmoteCatalogAliases(t *testing.T) {
	c := newEmoteCatalog(map[string]string{
		":wave:":     "https://cdn/wave",
		"UCxx/heart": "https://cdn/heart",
	})
	for _, key := range []string{":wave:", "wave"} {
		if url, ok := c.lookupURL(key); !ok || url != "https://cdn/wave" {
			t.Errorf("lookup %q = %q, %v", key, url, ok)
		}
	}
	if url, ok := c.lookupURL("heart"); !ok || url != "https://cdn/heart" {
		t.Errorf("last-segment alias lookup = %q, %v", url, ok)
	}
	if name, ok := c.nameForID("UCxx/heart"); !ok || name != "heart" {
		t.Errorf("nameForID = %q, %v", name, ok)
	}
}

func TestFinishDropsEmoteOnEllipsis(t *testing.T) {
	d := &decoder{catalog: newEmoteCatalog(nil)}
	r := &emojiRun{EmojiID: "customID123", Shortcuts: []string{":pog:"}}
	r.Image.Thumbnails = []struct {
		URL string `json:"url"`
	}{{URL: "https://yt3/pog.png"}}

	// 300 runes of text put the emoji placeholder at rune 300, exactly where
	// truncation writes the ellipsis. The span must not survive to claim it.
	msg, ok := d.fromText(&textRenderer{
		ID:            "edge-1",
		TimestampUsec: "1700000000000000",
		AuthorName:    simple{SimpleText: "A"},
		Message:       runList{Runs: []run{{Text: strings.Repeat("a", chat.MaxMessageLen)}, {Emoji: r}}},
	})
	if !ok {
		t.Fatal("decode failed")
	}
	if !strings.HasSuffix(msg.Text, chat.Ellipsis) {
		t.Fatalf("text = %q, want truncated", msg.Text)
	}
	if len(msg.Emotes) != 0 {
		t.Fatalf("emote claimed the ellipsis rune: %+v", msg.Emotes)
	}
}
