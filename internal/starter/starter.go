// Package starter ships a small Turkish-English deck with the binary so a
// fresh install has something to practice before any source is configured.
package starter

import (
	"embed"
	"io/fs"
)

// Source is the source name recorded on starter cards.
const Source = "starter"

//go:embed decks
var decks embed.FS

// FS returns the starter deck files.
func FS() fs.FS {
	sub, err := fs.Sub(decks, "decks")
	if err != nil {
		panic(err)
	}
	return sub
}
