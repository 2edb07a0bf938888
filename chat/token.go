package chat

import (
	"regexp"
	"sort"
	"strings"
)

// TokenType discriminates entries in the flat token stream consumed by the
// overlay renderer.
type TokenType string

const (
	TokenText    TokenType = "text"
	TokenEmote   TokenType = "emote"
	TokenLink    TokenType = "link"
	TokenMention TokenType = "mention"
)

// Token is one run of the rendered message. The stream is flat and ordered;
// concatenating the Text fields of all tokens reproduces the message.
type Token struct {
	Type TokenType `json:"type"`
	Text string    `json:"text"`
	// URL carries the image URL for emote tokens and the target for links.
	URL string `json:"url,omitempty"`
	// Name is the emote name or the mentioned username (without the @).
	Name string `json:"name,omitempty"`
	// Color is set on mention tokens.
	Color string `json:"color,omitempty"`
}

// TokenizeOptions tune link/mention detection and self-mention coloring.
type TokenizeOptions struct {
	DetectLinks    bool
	DetectMentions bool
	// Author and AuthorColor make a mention of the message's own author use
	// the author's assigned color instead of the deterministic palette color.
	Author      string
	AuthorColor string
}

var (
	linkPattern    = regexp.MustCompile(`https?://[^\s]+`)
	mentionPattern = regexp.MustCompile(`@(\w+)`)
)

// Overlap priority: image emotes beat links beat mentions. A lower-priority
// range that intersects a kept higher-priority range is dropped entirely,
// never clipped.
const (
	prioEmote = iota
	prioLink
	prioMention
)

type span struct {
	start, end int // inclusive rune offsets
	prio       int
	tok        Token
}

// Tokenize scans text for annotated emote ranges, links, and @mentions and
// emits the ordered, non-overlapping token stream. Emote annotations whose
// positions fall outside the text are dropped. Emote text appearing in plain
// text without a protocol annotation is left as plain text; best-effort
// textual substitution is an adapter concern, not the tokenizer's.
func Tokenize(text string, emotes []Emote, opts TokenizeOptions) []Token {
	runes := []rune(text)
	if len(runes) == 0 {
		return []Token{}
	}

	var spans []span
	for _, e := range emotes {
		for _, p := range e.Positions {
			if p[0] < 0 || p[1] < p[0] || p[1] >= len(runes) {
				continue
			}
			spans = append(spans, span{
				start: p[0],
				end:   p[1],
				prio:  prioEmote,
				tok:   Token{Type: TokenEmote, Text: string(runes[p[0] : p[1]+1]), URL: e.URL, Name: e.Name},
			})
		}
	}

	byteToRune := runeOffsets(text)
	if opts.DetectLinks {
		for _, m := range linkPattern.FindAllStringIndex(text, -1) {
			start, end := byteToRune[m[0]], byteToRune[m[1]]-1
			spans = append(spans, span{
				start: start,
				end:   end,
				prio:  prioLink,
				tok:   Token{Type: TokenLink, Text: string(runes[start : end+1]), URL: string(runes[start : end+1])},
			})
		}
	}
	if opts.DetectMentions {
		for _, m := range mentionPattern.FindAllStringSubmatchIndex(text, -1) {
			start, end := byteToRune[m[0]], byteToRune[m[1]]-1
			name := text[m[2]:m[3]]
			color := ColorFor(name)
			if opts.Author != "" && strings.EqualFold(name, opts.Author) {
				color = opts.AuthorColor
			}
			spans = append(spans, span{
				start: start,
				end:   end,
				prio:  prioMention,
				tok:   Token{Type: TokenMention, Text: string(runes[start : end+1]), Name: name, Color: color},
			})
		}
	}

	kept := resolveOverlaps(spans)

	tokens := make([]Token, 0, 2*len(kept)+1)
	cursor := 0
	for _, s := range kept {
		if s.start > cursor {
			tokens = append(tokens, Token{Type: TokenText, Text: string(runes[cursor:s.start])})
		}
		tokens = append(tokens, s.tok)
		cursor = s.end + 1
	}
	if cursor < len(runes) {
		tokens = append(tokens, Token{Type: TokenText, Text: string(runes[cursor:])})
	}
	return tokens
}

// resolveOverlaps keeps spans greedily in priority order and returns the
// survivors sorted by start offset. Survivors are guaranteed disjoint.
func resolveOverlaps(spans []span) []span {
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].prio != spans[j].prio {
			return spans[i].prio < spans[j].prio
		}
		return spans[i].start < spans[j].start
	})
	kept := spans[:0]
	for _, s := range spans {
		clash := false
		for _, k := range kept {
			if s.start <= k.end && k.start <= s.end {
				clash = true
				break
			}
		}
		if !clash {
			kept = append(kept, s)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].start < kept[j].start })
	return kept
}

// runeOffsets maps every byte offset of s (plus len(s)) to a rune offset so
// regexp byte indices can be translated to rune indices. Bytes inside a
// multi-byte rune map to that rune's index.
func runeOffsets(s string) []int {
	offsets := make([]int, len(s)+1)
	r := -1
	for i := 0; i < len(s); i++ {
		if s[i]&0xC0 != 0x80 { // rune start
			r++
		}
		offsets[i] = r
	}
	offsets[len(s)] = r + 1
	return offsets
}
