package knol

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

const separator = "\x00"

// Normalize joins the cleaned front and back of a card.
// Each part is lowercased, trimmed, and has its line endings normalized.
func Normalize(front, back string) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		p = strings.ReplaceAll(p, separator, "")
		return p
	}

	// Parts may span lines; NUL is stripped from them so it can separate.
	return normalizePart(front) + separator + normalizePart(back)
}

// ID returns the SHA-256 of the normalized word pair as a hex string.
// The same pair always gets the same ID, so re-importing a deck finds the
// cards that are already in the pool.
func ID(front, back string) string {
	sum := sha256.Sum256([]byte(Normalize(front, back)))
	return fmt.Sprintf("%x", sum)
}
