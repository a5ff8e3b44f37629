package domain

import "time"

// Message is a single raw post pulled from a channel feed.
type Message struct {
	Source   string
	ID       int64
	Text     string
	PostedAt time.Time
}

// fingerprintPrefixLen bounds how much of the text participates in the
// dedup key. Two long messages sharing the same prefix collapse to one
// fingerprint; that is an accepted approximation of the heuristic, not
// a defect.
const fingerprintPrefixLen = 500

// Fingerprint derives the dedup key for a message: source id plus a
// truncated text prefix. It is a cheap near-duplicate detector, not a
// content hash.
func Fingerprint(source, text string) string {
	runes := []rune(text)
	if len(runes) > fingerprintPrefixLen {
		runes = runes[:fingerprintPrefixLen]
	}
	return source + "::" + string(runes)
}
