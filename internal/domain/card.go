package domain

import "time"

// Level is a card's mastery rank. Lower levels are shown more often.
type Level int

const (
	MinLevel Level = 0
	MaxLevel Level = 5
)

// Clamp returns l limited to [MinLevel, MaxLevel].
func (l Level) Clamp() Level {
	if l < MinLevel {
		return MinLevel
	}
	if l > MaxLevel {
		return MaxLevel
	}
	return l
}

// Card represents a single vocabulary entry and its scheduling state.
// ID is opaque; nothing in the scheduler looks inside it.
type Card struct {
	ID           string    `json:"id"`
	Front        string    `json:"front"`
	Back         string    `json:"back"`
	Category     string    `json:"category,omitempty"`
	Level        Level     `json:"level"`
	NextReviewAt time.Time `json:"next_review_at"`

	// Source is the deck source the card was imported from. Cards added by
	// hand have none.
	Source string `json:"source,omitempty"`
}

// NewCard returns a card at level 0 that is due at now.
func NewCard(id, front, back string, now time.Time) Card {
	return Card{
		ID:           id,
		Front:        front,
		Back:         back,
		Level:        MinLevel,
		NextReviewAt: now,
	}
}

// IsDue reports whether the card may be reviewed at now.
func (c Card) IsDue(now time.Time) bool {
	return !c.NextReviewAt.After(now)
}

// ReviewLog records a single review event for a card.
type ReviewLog struct {
	ID          string    `json:"id"`
	CardID      string    `json:"card_id"`
	Known       bool      `json:"known"`
	LevelBefore Level     `json:"level_before"`
	LevelAfter  Level     `json:"level_after"`
	Timestamp   time.Time `json:"timestamp"`
}
