package ytchat

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/onnwee/chat-overlay/backend/chat"
	"github.com/onnwee/chat-overlay/backend/telemetry"
)

// maxBatchDecode caps how many messages one poll cycle may extract. Bursts
// beyond the cap are dropped from the tail; the retention window would evict
// them anyway.
const maxBatchDecode = 50

// The upstream payload has gone through several schema generations. Every
// shape below has been seen in production captures; unknown shapes are
// skipped, never errors.
type action struct {
	AddChatItemAction *struct {
		Item json.RawMessage `json:"item"`
	} `json:"addChatItemAction"`
	ReplayChatItemAction *struct {
		Actions []json.RawMessage `json:"actions"`
	} `json:"replayChatItemAction"`
	Item json.RawMessage `json:"item"`

	// Renderers attached directly at the top level (oldest shape).
	LiveChatTextMessageRenderer *textRenderer `json:"liveChatTextMessageRenderer"`

	// Flat legacy shape emitted by early resolver builds.
	Author    string          `json:"author"`
	Message   string          `json:"message"`
	Timestamp json.RawMessage `json:"timestamp"`
}

type item struct {
	LiveChatTextMessageRenderer    *textRenderer       `json:"liveChatTextMessageRenderer"`
	LiveChatPaidMessageRenderer    *paidRenderer       `json:"liveChatPaidMessageRenderer"`
	LiveChatMembershipItemRenderer *membershipRenderer `json:"liveChatMembershipItemRenderer"`
}

type textRenderer struct {
	ID            string  `json:"id"`
	TimestampUsec string  `json:"timestampUsec"`
	AuthorName    simple  `json:"authorName"`
	Message       runList `json:"message"`
}

type paidRenderer struct {
	ID                 string  `json:"id"`
	TimestampUsec      string  `json:"timestampUsec"`
	AuthorName         simple  `json:"authorName"`
	Message            runList `json:"message"`
	PurchaseAmountText simple  `json:"purchaseAmountText"`
}

type membershipRenderer struct {
	ID            string  `json:"id"`
	TimestampUsec string  `json:"timestampUsec"`
	AuthorName    simple  `json:"authorName"`
	HeaderSubtext runList `json:"headerSubtext"`
	Message       runList `json:"message"`
}

type simple struct {
	SimpleText string `json:"simpleText"`
}

type runList struct {
	Runs []run `json:"runs"`
}

type run struct {
	Text  string    `json:"text"`
	Emoji *emojiRun `json:"emoji"`
}

type emojiRun struct {
	EmojiID   string   `json:"emojiId"`
	Shortcuts []string `json:"shortcuts"`
	Image     struct {
		Thumbnails []struct {
			URL string `json:"url"`
		} `json:"thumbnails"`
	} `json:"image"`
	IsCustomEmoji bool `json:"isCustomEmoji"`
}

// decoder turns raw upstream actions into canonical messages.
type decoder struct {
	catalog *emoteCatalog
}

// decodeBatch processes up to maxBatchDecode messages out of one poll
// response. Individual malformed actions are counted and skipped; they never
// fail the batch.
func (d *decoder) decodeBatch(raw []json.RawMessage) []chat.Message {
	var out []chat.Message
	for _, r := range raw {
		if len(out) >= maxBatchDecode {
			break
		}
		msg, ok := d.decodeAction(r)
		if !ok {
			continue
		}
		out = append(out, msg)
	}
	return out
}

func (d *decoder) decodeAction(raw json.RawMessage) (chat.Message, bool) {
	var a action
	if err := json.Unmarshal(raw, &a); err != nil {
		telemetry.AddDropped(string(chat.PlatformYouTube))
		return chat.Message{}, false
	}
	switch {
	case a.ReplayChatItemAction != nil:
		// Replay wrappers nest the real action one level down; take the
		// first decodable one.
		for _, inner := range a.ReplayChatItemAction.Actions {
			if msg, ok := d.decodeAction(inner); ok {
				return msg, true
			}
		}
		return chat.Message{}, false
	case a.AddChatItemAction != nil:
		return d.decodeItem(a.AddChatItemAction.Item)
	case len(a.Item) > 0 && string(a.Item) != "null":
		return d.decodeItem(a.Item)
	case a.LiveChatTextMessageRenderer != nil:
		return d.fromText(a.LiveChatTextMessageRenderer)
	case a.Author != "" && a.Message != "":
		return d.fromFlat(a)
	default:
		return chat.Message{}, false
	}
}

func (d *decoder) decodeItem(raw json.RawMessage) (chat.Message, bool) {
	var it item
	if err := json.Unmarshal(raw, &it); err != nil {
		telemetry.AddDropped(string(chat.PlatformYouTube))
		return chat.Message{}, false
	}
	switch {
	case it.LiveChatTextMessageRenderer != nil:
		return d.fromText(it.LiveChatTextMessageRenderer)
	case it.LiveChatPaidMessageRenderer != nil:
		return d.fromPaid(it.LiveChatPaidMessageRenderer)
	case it.LiveChatMembershipItemRenderer != nil:
		return d.fromMembership(it.LiveChatMembershipItemRenderer)
	default:
		return chat.Message{}, false
	}
}

func (d *decoder) fromText(r *textRenderer) (chat.Message, bool) {
	if r.ID == "" {
		telemetry.AddDropped(string(chat.PlatformYouTube))
		return chat.Message{}, false
	}
	text, emotes := d.assembleRuns(r.Message.Runs)
	return d.finish(r.ID, r.AuthorName.SimpleText, text, emotes, r.TimestampUsec, ""), true
}

func (d *decoder) fromPaid(r *paidRenderer) (chat.Message, bool) {
	if r.ID == "" {
		telemetry.AddDropped(string(chat.PlatformYouTube))
		return chat.Message{}, false
	}
	text, emotes := d.assembleRuns(r.Message.Runs)
	if amount := r.PurchaseAmountText.SimpleText; amount != "" {
		prefix := amount + " "
		shift := utf8.RuneCountInString(prefix)
		for i := range emotes {
			for j := range emotes[i].Positions {
				emotes[i].Positions[j][0] += shift
				emotes[i].Positions[j][1] += shift
			}
		}
		text = prefix + text
	}
	return d.finish(r.ID, r.AuthorName.SimpleText, text, emotes, r.TimestampUsec, "superchat"), true
}

func (d *decoder) fromMembership(r *membershipRenderer) (chat.Message, bool) {
	if r.ID == "" {
		telemetry.AddDropped(string(chat.PlatformYouTube))
		return chat.Message{}, false
	}
	runs := r.Message.Runs
	if len(runs) == 0 {
		runs = r.HeaderSubtext.Runs
	}
	text, emotes := d.assembleRuns(runs)
	return d.finish(r.ID, r.AuthorName.SimpleText, text, emotes, r.TimestampUsec, "membership"), true
}

func (d *decoder) fromFlat(a action) (chat.Message, bool) {
	ts := parseFlatTimestamp(a.Timestamp)
	id := "youtube-flat-" + a.Author + "-" + strconv.FormatInt(ts.UnixMilli(), 10)
	text := chat.Truncate(a.Message)
	return chat.Message{
		ID:        id,
		Platform:  chat.PlatformYouTube,
		Username:  a.Author,
		Text:      text,
		Timestamp: ts,
		Color:     chat.ColorFor(a.Author),
	}, true
}

// finish applies the shared tail of every renderer path: identifier rewrite,
// truncation, dropping spans the truncation invalidated.
func (d *decoder) finish(id, author, text string, emotes []chat.Emote, tsUsec, eventType string) chat.Message {
	text, emotes = rewriteOpaqueIDs(text, emotes, d.catalog)
	text = chat.Truncate(text)
	emotes = dropOutOfBounds(emotes, chat.BodyLen(text))

	if author == "" {
		author = "youtube-user"
	}
	return chat.Message{
		ID:        "youtube-" + id,
		Platform:  chat.PlatformYouTube,
		Username:  author,
		Text:      text,
		Timestamp: parseUsec(tsUsec),
		Emotes:    emotes,
		Color:     chat.ColorFor(author),
		EventType: eventType,
	}
}

// assembleRuns flattens a run sequence into one string plus emote tokens,
// tracking a rune cursor. An emoji run with a resolvable image consumes one
// character of cursor width; one without falls back to a bracketed :name:
// form consuming len(name)+2.
func (d *decoder) assembleRuns(runs []run) (string, []chat.Emote) {
	var b []rune
	var emotes []chat.Emote
	for _, r := range runs {
		if r.Emoji == nil {
			b = append(b, []rune(r.Text)...)
			continue
		}
		e := r.Emoji
		name := emojiName(e)
		url, ok := d.resolveEmojiURL(e)
		if ok {
			placeholder := placeholderRune(e.EmojiID)
			pos := len(b)
			b = append(b, placeholder)
			emotes = append(emotes, chat.Emote{
				Name:      name,
				URL:       url,
				Positions: [][2]int{{pos, pos}},
				Source:    "youtube",
			})
			continue
		}
		b = append(b, []rune(":"+name+":")...)
	}
	return string(b), emotes
}

// resolveEmojiURL tries the run's own thumbnails first, then the catalog
// under every key the run offers.
func (d *decoder) resolveEmojiURL(e *emojiRun) (string, bool) {
	if len(e.Image.Thumbnails) > 0 && e.Image.Thumbnails[0].URL != "" {
		return e.Image.Thumbnails[0].URL, true
	}
	if d.catalog == nil {
		return "", false
	}
	keys := make([]string, 0, len(e.Shortcuts)+2)
	keys = append(keys, e.Shortcuts...)
	keys = append(keys, e.EmojiID)
	if i := strings.LastIndex(e.EmojiID, "/"); i >= 0 && i < len(e.EmojiID)-1 {
		keys = append(keys, e.EmojiID[i+1:])
	}
	return d.catalog.lookupURL(keys...)
}

func emojiName(e *emojiRun) string {
	for _, s := range e.Shortcuts {
		if trimmed := trimColons(s); trimmed != "" {
			return trimmed
		}
	}
	if e.EmojiID != "" {
		return derivedName(e.EmojiID)
	}
	return "emoji"
}

// placeholderRune picks the single character an image emote occupies: the
// literal emoji when the id is one code point, a placeholder box otherwise.
func placeholderRune(emojiID string) rune {
	runes := []rune(emojiID)
	if len(runes) == 1 {
		return runes[0]
	}
	return '□'
}

func dropOutOfBounds(emotes []chat.Emote, runeLen int) []chat.Emote {
	var out []chat.Emote
	for _, e := range emotes {
		var spans [][2]int
		for _, p := range e.Positions {
			if p[0] < 0 || p[1] >= runeLen || p[0] > p[1] {
				continue
			}
			spans = append(spans, p)
		}
		if len(spans) == 0 {
			continue
		}
		e.Positions = spans
		out = append(out, e)
	}
	return out
}

func parseUsec(usec string) time.Time {
	if usec == "" {
		return time.Now().UTC()
	}
	n, err := strconv.ParseInt(usec, 10, 64)
	if err != nil {
		return time.Now().UTC()
	}
	return time.UnixMicro(n).UTC()
}

// parseFlatTimestamp accepts the legacy shape's timestamp as either a JSON
// number (epoch millis) or a string.
func parseFlatTimestamp(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Now().UTC()
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC()
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
			return time.UnixMilli(n).UTC()
		}
	}
	return time.Now().UTC()
}

func trimColons(s string) string {
	return strings.Trim(s, ":")
}
