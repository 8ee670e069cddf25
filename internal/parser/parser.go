package parser

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	frontPrefix    = "Q:"
	backPrefix     = "A:"
	categoryPrefix = "C:"
)

// ErrUnsupportedFormat is returned by ParseFile for files it cannot read as a deck.
var ErrUnsupportedFormat = errors.New("unsupported deck format")

// Entry is one word pair read from a deck file.
type Entry struct {
	Front    string `validate:"required,max=512"`
	Back     string `validate:"required,max=512"`
	Category string `validate:"max=64"`
}

type state int

const (
	seeking state = iota
	readingFront
	readingBack
	readingCategory
)

// Supported reports whether ParseFile can read the file at path.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".tsv", ".txt":
		return true
	}
	return false
}

// ParseFile reads a deck file, choosing the format from its extension.
func ParseFile(path string) ([]Entry, error) {
	if !Supported(path) {
		return nil, ErrUnsupportedFormat
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseNamed(path, file)
}

// ParseNamed reads a deck from r in the format implied by name's extension.
func ParseNamed(name string, r io.Reader) ([]Entry, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md":
		return Parse(r)
	case ".tsv", ".txt":
		return ParseTSV(r)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// ParseTSV reads one entry per line in the form word<TAB>translation, with an
// optional third category column. Blank lines, # comments, and lines missing
// either side are skipped.
func ParseTSV(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	var entries []Entry

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			continue
		}
		entry := Entry{
			Front: strings.TrimSpace(fields[0]),
			Back:  strings.TrimSpace(fields[1]),
		}
		if len(fields) > 2 {
			entry.Category = strings.TrimSpace(fields[2])
		}
		if entry.Front == "" || entry.Back == "" {
			continue
		}
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Parse reads Q:/A:/C: blocks from r. Q starts a card, A is its back, C its
// category. Unprefixed lines continue the current field and "---" ends a card.
func Parse(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	var entries []Entry
	var current Entry
	var block []string
	currentState := seeking

	flushBlock := func() {
		if len(block) == 0 {
			return
		}
		content := strings.Join(block, "\n")
		switch currentState {
		case readingFront:
			current.Front = content
		case readingBack:
			current.Back = content
		case readingCategory:
			current.Category = content
		}
		block = nil
	}

	finishEntry := func() {
		flushBlock()
		if current.Front != "" {
			entries = append(entries, current)
		}
		current = Entry{}
		currentState = seeking
	}

	for scanner.Scan() {
		line := scanner.Text()

		if line == "---" {
			finishEntry()
			continue
		}

		var prefix string
		var next state
		switch {
		case strings.HasPrefix(line, frontPrefix):
			prefix, next = frontPrefix, readingFront
		case strings.HasPrefix(line, backPrefix):
			prefix, next = backPrefix, readingBack
		case strings.HasPrefix(line, categoryPrefix):
			prefix, next = categoryPrefix, readingCategory
		default:
			if currentState != seeking {
				block = append(block, line)
			}
			continue
		}

		if next == readingFront && currentState != seeking {
			finishEntry() // A new question always starts a new card
		} else {
			flushBlock()
		}
		currentState = next
		block = append(block, strings.TrimPrefix(line[len(prefix):], " "))
	}

	finishEntry()

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return trimEntries(entries), nil
}

// trimEntries drops trailing blank lines that multi-line blocks pick up.
func trimEntries(entries []Entry) []Entry {
	for i := range entries {
		entries[i].Front = strings.TrimRight(entries[i].Front, "\n ")
		entries[i].Back = strings.TrimRight(entries[i].Back, "\n ")
		entries[i].Category = strings.TrimRight(entries[i].Category, "\n ")
	}
	return entries
}
