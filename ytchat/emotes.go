package ytchat

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/onnwee/chat-overlay/backend/chat"
)

// opaqueEmoteID matches the two identifier shapes upstream leaks into plain
// text: a channel-scoped id (UC... channel id, slash, emote key) and a bare
// long base64url token.
var opaqueEmoteID = regexp.MustCompile(`UC[0-9A-Za-z_-]{22}/[0-9A-Za-z_-]+|\b[0-9A-Za-z_-]{24,}\b`)

// emoteCatalog indexes the resolver's emote snapshot under every alias a run
// might reference it by: the raw key, the key stripped of colons, and the
// last path segment when the key is an opaque channel-scoped id.
type emoteCatalog struct {
	urlByAlias  map[string]string
	nameByAlias map[string]string
}

func newEmoteCatalog(snapshot map[string]string) *emoteCatalog {
	c := &emoteCatalog{
		urlByAlias:  make(map[string]string),
		nameByAlias: make(map[string]string),
	}
	c.merge(snapshot)
	return c
}

// merge adds entries from a later snapshot. Existing aliases keep their first
// binding; catalogs only grow within a session.
func (c *emoteCatalog) merge(snapshot map[string]string) {
	for key, url := range snapshot {
		name := strings.Trim(key, ":")
		if i := strings.LastIndex(name, "/"); i >= 0 && i < len(name)-1 {
			name = name[i+1:]
		}
		for _, alias := range aliasesFor(key) {
			if _, ok := c.urlByAlias[alias]; ok {
				continue
			}
			c.urlByAlias[alias] = url
			c.nameByAlias[alias] = name
		}
	}
}

func aliasesFor(key string) []string {
	aliases := []string{key}
	if trimmed := strings.Trim(key, ":"); trimmed != key && trimmed != "" {
		aliases = append(aliases, trimmed)
	}
	if i := strings.LastIndex(key, "/"); i >= 0 && i < len(key)-1 {
		aliases = append(aliases, key[i+1:])
	}
	return aliases
}

// lookupURL tries each candidate key in order.
func (c *emoteCatalog) lookupURL(keys ...string) (string, bool) {
	for _, k := range keys {
		if k == "" {
			continue
		}
		if url, ok := c.urlByAlias[k]; ok && url != "" {
			return url, true
		}
	}
	return "", false
}

// nameForID resolves a display name for an opaque identifier, trying the full
// id then its last path segment.
func (c *emoteCatalog) nameForID(id string) (string, bool) {
	if name, ok := c.nameByAlias[id]; ok {
		return name, true
	}
	if i := strings.LastIndex(id, "/"); i >= 0 && i < len(id)-1 {
		if name, ok := c.nameByAlias[id[i+1:]]; ok {
			return name, true
		}
	}
	return "", false
}

// derivedName shortens an opaque identifier into something readable when the
// catalog has no binding for it.
func derivedName(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 && i < len(id)-1 {
		id = id[i+1:]
	}
	if utf8.RuneCountInString(id) > 8 {
		return string([]rune(id)[:8])
	}
	return id
}

// rewriteOpaqueIDs rewrites literal opaque emote identifiers that leaked into
// the assembled text as plain words (older upstream payloads do this) into
// the bracketed :name: textual form. Spans claimed by already-placed emotes
// are left alone; emote positions after each rewrite shift by the length
// delta so they stay valid against the new string.
func rewriteOpaqueIDs(text string, emotes []chat.Emote, catalog *emoteCatalog) (string, []chat.Emote) {
	matches := opaqueEmoteID.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text, emotes
	}

	taken := make([][2]int, 0)
	for _, e := range emotes {
		taken = append(taken, e.Positions...)
	}

	var b strings.Builder
	prevByte := 0
	type shift struct{ after, by int }
	var shifts []shift

	for _, m := range matches {
		start := utf8.RuneCountInString(text[:m[0]])
		end := start + utf8.RuneCountInString(text[m[0]:m[1]]) - 1
		if overlapsTaken(start, end, taken) {
			continue
		}
		id := text[m[0]:m[1]]
		name, ok := catalog.nameForID(id)
		if !ok {
			name = derivedName(id)
		}
		replacement := ":" + name + ":"

		b.WriteString(text[prevByte:m[0]])
		b.WriteString(replacement)
		prevByte = m[1]

		oldLen := end - start + 1
		newLen := utf8.RuneCountInString(replacement)
		if d := newLen - oldLen; d != 0 {
			shifts = append(shifts, shift{after: end, by: d})
		}
	}
	if prevByte == 0 {
		return text, emotes
	}
	b.WriteString(text[prevByte:])

	out := make([]chat.Emote, len(emotes))
	copy(out, emotes)
	for i := range out {
		positions := make([][2]int, len(out[i].Positions))
		copy(positions, out[i].Positions)
		for j := range positions {
			adj := 0
			for _, s := range shifts {
				if positions[j][0] > s.after {
					adj += s.by
				}
			}
			positions[j][0] += adj
			positions[j][1] += adj
		}
		out[i].Positions = positions
	}
	return b.String(), out
}

func overlapsTaken(start, end int, spans [][2]int) bool {
	for _, s := range spans {
		if start <= s[1] && end >= s[0] {
			return true
		}
	}
	return false
}
