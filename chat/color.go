package chat

// userColors is the fixed fallback palette applied when a platform supplies
// no explicit user color. Matches the classic Twitch default color set.
var userColors = [...]string{
	"#FF0000", "#0000FF", "#008000", "#B22222", "#FF7F50",
	"#9ACD32", "#FF4500", "#2E8B57", "#DAA520", "#D2691E",
	"#5F9EA0", "#1E90FF", "#FF69B4", "#8A2BE2", "#00FF7F",
}

// ColorFor deterministically maps a username onto the palette so the same
// user keeps the same color across sessions without any network lookup. The
// hash is the Java-style s[i] + (h<<5) - h accumulation over the name's
// runes, reduced with absolute value modulo the palette size.
func ColorFor(username string) string {
	var hash int32
	for _, r := range username {
		hash = r + (hash << 5) - hash
	}
	idx := int(hash) % len(userColors)
	if idx < 0 {
		idx = -idx
	}
	return userColors[idx]
}
