// Package scheduler decides which vocabulary card to review next and how a
// review outcome moves a card's mastery level and due time.
//
// Every operation is a pure transformation over the values passed in. The
// only outside input is the current time, read through a Clock.
package scheduler

import (
	"time"

	"github.com/conorfennell/lexicard/internal/domain"
)

// intervals is the backoff table indexed by level: 1h, 3h, 8h, 1d, 3d, 1w.
var intervals = [...]time.Duration{
	1 * time.Hour,
	3 * time.Hour,
	8 * time.Hour,
	24 * time.Hour,
	72 * time.Hour,
	168 * time.Hour,
}

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// Scheduler holds no state besides its clock and is safe for concurrent use.
type Scheduler struct {
	clock Clock
}

// New returns a Scheduler reading time from clock. A nil clock means SystemClock.
func New(clock Clock) *Scheduler {
	if clock == nil {
		clock = SystemClock
	}
	return &Scheduler{clock: clock}
}

// Now returns the scheduler's notion of the current time.
func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

// Interval returns the wait before a card at level becomes due again.
// Levels past the end of the table use the last interval.
func Interval(level domain.Level) time.Duration {
	if level < 0 {
		level = 0
	}
	if int(level) >= len(intervals) {
		return intervals[len(intervals)-1]
	}
	return intervals[level]
}

// NextReviewTime returns the due time for a card that has just moved to level.
func (s *Scheduler) NextReviewTime(level domain.Level) time.Time {
	return s.clock.Now().Add(Interval(level))
}

// RecordOutcome returns card moved one level up when it was known, or one
// level down when it was not, with NextReviewAt recomputed for the new level.
// The input card is not modified.
func (s *Scheduler) RecordOutcome(card domain.Card, wasKnown bool) domain.Card {
	level := card.Level.Clamp()
	if wasKnown {
		level = min(domain.MaxLevel, level+1)
	} else {
		level = max(domain.MinLevel, level-1)
	}

	card.Level = level
	card.NextReviewAt = s.NextReviewTime(level)
	return card
}

// SelectNext returns the due card with the lowest level. Among equal levels
// the earliest card in cards wins. It returns false when nothing is due.
func (s *Scheduler) SelectNext(cards []domain.Card) (domain.Card, bool) {
	now := s.clock.Now()

	best := -1
	for i := range cards {
		if !cards[i].IsDue(now) {
			continue
		}
		if best < 0 || cards[i].Level < cards[best].Level {
			best = i
		}
	}
	if best < 0 {
		return domain.Card{}, false
	}
	return cards[best], true
}

// Due returns the cards that may be reviewed now, in input order.
func (s *Scheduler) Due(cards []domain.Card) []domain.Card {
	now := s.clock.Now()

	var due []domain.Card
	for _, c := range cards {
		if c.IsDue(now) {
			due = append(due, c)
		}
	}
	return due
}
