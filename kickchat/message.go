package kickchat

import (
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/onnwee/chat-overlay/backend/chat"
)

// kickEmoteURL is the CDN template for Kick emote images.
const kickEmoteURL = "https://files.kick.com/emotes/%s/fullsize"

// emoteMarkup matches Kick's inline emote notation, e.g. [emote:37221:KEKW].
var emoteMarkup = regexp.MustCompile(`\[emote:(\d+):([^\]]+)\]`)

// chatMessageEvent is the payload carried inside App\Events\ChatMessageEvent
// frames (the envelope's data field is a JSON string holding one of these).
type chatMessageEvent struct {
	ID         string    `json:"id"`
	ChatroomID int       `json:"chatroom_id"`
	Content    string    `json:"content"`
	Type       string    `json:"type"`
	CreatedAt  time.Time `json:"created_at"`
	Sender     struct {
		ID       int    `json:"id"`
		Username string `json:"username"`
		Slug     string `json:"slug"`
		Identity struct {
			Color  string `json:"color"`
			Badges []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"badges"`
		} `json:"identity"`
	} `json:"sender"`
}

// normalize maps a Kick chat event into the canonical model. Content is
// truncated first; emote markup spans are then located in the final string so
// positions never dangle. A markup sequence cut in half by truncation simply
// stops matching and renders as text.
func normalize(ev chatMessageEvent) chat.Message {
	text := chat.Truncate(ev.Content)

	var emotes []chat.Emote
	for _, m := range emoteMarkup.FindAllStringSubmatchIndex(text, -1) {
		start := utf8.RuneCountInString(text[:m[0]])
		length := utf8.RuneCountInString(text[m[0]:m[1]])
		id := text[m[2]:m[3]]
		name := text[m[4]:m[5]]
		emotes = append(emotes, chat.Emote{
			Name:      name,
			URL:       fmt.Sprintf(kickEmoteURL, id),
			Positions: [][2]int{{start, start + length - 1}},
			Source:    "kick",
		})
	}

	username := ev.Sender.Username
	if username == "" {
		username = ev.Sender.Slug
	}
	if username == "" {
		username = "kick-user"
	}
	color := ev.Sender.Identity.Color
	if color == "" {
		color = chat.ColorFor(username)
	}

	var badges []chat.Badge
	for _, b := range ev.Sender.Identity.Badges {
		badges = append(badges, chat.Badge{SetID: b.Type, Description: b.Text})
	}

	ts := ev.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	eventType := ""
	if ev.Type != "" && ev.Type != "message" {
		eventType = ev.Type
	}

	return chat.Message{
		ID:        "kick-" + ev.ID,
		Platform:  chat.PlatformKick,
		Username:  username,
		Text:      text,
		Timestamp: ts,
		Emotes:    emotes,
		Badges:    badges,
		Color:     color,
		EventType: eventType,
	}
}
