package scheduler

import (
	"testing"
	"time"

	"github.com/conorfennell/lexicard/internal/domain"
)

var epoch = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// fixedClock returns a clock that always reports *now.
func fixedClock(now *time.Time) Clock {
	return ClockFunc(func() time.Time { return *now })
}

func newTestScheduler() (*Scheduler, *time.Time) {
	now := epoch
	return New(fixedClock(&now)), &now
}

func TestInterval(t *testing.T) {
	testCases := []struct {
		level domain.Level
		want  time.Duration
	}{
		{-1, time.Hour},
		{0, time.Hour},
		{1, 3 * time.Hour},
		{2, 8 * time.Hour},
		{3, 24 * time.Hour},
		{4, 72 * time.Hour},
		{5, 168 * time.Hour},
		{6, 168 * time.Hour},
		{100, 168 * time.Hour},
	}

	for _, tc := range testCases {
		if got := Interval(tc.level); got != tc.want {
			t.Errorf("Interval(%d) = %v, want %v", tc.level, got, tc.want)
		}
	}
}

func TestIntervalIsMonotonic(t *testing.T) {
	for level := domain.Level(1); level <= 10; level++ {
		if Interval(level) < Interval(level-1) {
			t.Errorf("Interval(%d) = %v is shorter than Interval(%d) = %v",
				level, Interval(level), level-1, Interval(level-1))
		}
	}
}

func TestNextReviewTime(t *testing.T) {
	s, now := newTestScheduler()

	for level := domain.Level(0); level <= 6; level++ {
		got := s.NextReviewTime(level)
		if want := now.Add(Interval(level)); !got.Equal(want) {
			t.Errorf("NextReviewTime(%d) = %v, want %v", level, got, want)
		}
	}
}

func TestNextReviewTimeReadsClockOnce(t *testing.T) {
	calls := 0
	s := New(ClockFunc(func() time.Time {
		calls++
		return epoch
	}))

	s.NextReviewTime(2)
	if calls != 1 {
		t.Errorf("Expected one clock read, got %d", calls)
	}
}

func TestRecordOutcome(t *testing.T) {
	s, now := newTestScheduler()
	past := now.Add(-time.Second)

	testCases := []struct {
		name      string
		level     domain.Level
		known     bool
		wantLevel domain.Level
		wantDue   time.Duration
	}{
		{"known from level 0", 0, true, 1, 3 * time.Hour},
		{"unknown at floor", 0, false, 0, time.Hour},
		{"known at ceiling", 5, true, 5, 168 * time.Hour},
		{"unknown from level 3", 3, false, 2, 8 * time.Hour},
		{"known from level 2", 2, true, 3, 24 * time.Hour},
		{"negative level is clamped before stepping", -4, true, 1, 3 * time.Hour},
		{"level above range is clamped before stepping", 9, false, 4, 72 * time.Hour},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			card := domain.Card{ID: "c1", Front: "kedi", Back: "cat", Category: "animals", Level: tc.level, NextReviewAt: past}
			got := s.RecordOutcome(card, tc.known)

			if got.Level != tc.wantLevel {
				t.Errorf("Expected level %d, got %d", tc.wantLevel, got.Level)
			}
			if want := now.Add(tc.wantDue); !got.NextReviewAt.Equal(want) {
				t.Errorf("Expected next review at %v, got %v", want, got.NextReviewAt)
			}
			if got.ID != card.ID || got.Front != card.Front || got.Back != card.Back || got.Category != card.Category {
				t.Errorf("Expected non-scheduling fields to be preserved, got %+v", got)
			}
			if card.Level != tc.level || !card.NextReviewAt.Equal(past) {
				t.Error("Expected the input card to be left unchanged")
			}
		})
	}
}

func TestRecordOutcomeSingleStep(t *testing.T) {
	s, _ := newTestScheduler()

	for level := domain.MinLevel; level <= domain.MaxLevel; level++ {
		for _, known := range []bool{true, false} {
			got := s.RecordOutcome(domain.Card{Level: level}, known)
			diff := got.Level - level
			if diff > 1 || diff < -1 {
				t.Errorf("level %d known=%v moved to %d", level, known, got.Level)
			}
			if got.Level < domain.MinLevel || got.Level > domain.MaxLevel {
				t.Errorf("level %d known=%v left range: %d", level, known, got.Level)
			}
		}
	}
}

func TestRecordOutcomeRepeated(t *testing.T) {
	s, now := newTestScheduler()
	card := domain.NewCard("c1", "su", "water", *now)

	first := s.RecordOutcome(card, true)
	*now = now.Add(4 * time.Hour)
	second := s.RecordOutcome(first, true)

	if first.Level != 1 || second.Level != 2 {
		t.Fatalf("Expected levels 1 then 2, got %d then %d", first.Level, second.Level)
	}
	if want := now.Add(8 * time.Hour); !second.NextReviewAt.Equal(want) {
		t.Errorf("Expected second review at %v, got %v", want, second.NextReviewAt)
	}
}

func TestSelectNext(t *testing.T) {
	s, now := newTestScheduler()
	due := now.Add(-time.Minute)
	later := now.Add(time.Hour)

	t.Run("lowest level among due cards", func(t *testing.T) {
		cards := []domain.Card{
			{ID: "a", Level: 2, NextReviewAt: due},
			{ID: "b", Level: 0, NextReviewAt: due},
			{ID: "c", Level: 4, NextReviewAt: due},
		}
		got, ok := s.SelectNext(cards)
		if !ok || got.ID != "b" {
			t.Errorf("Expected card b, got %q (ok=%v)", got.ID, ok)
		}
	})

	t.Run("weakest first", func(t *testing.T) {
		cards := []domain.Card{
			{ID: "three", Level: 3, NextReviewAt: due},
			{ID: "one", Level: 1, NextReviewAt: due},
		}
		got, _ := s.SelectNext(cards)
		if got.ID != "one" {
			t.Errorf("Expected the level-1 card, got %q", got.ID)
		}
	})

	t.Run("nothing due", func(t *testing.T) {
		cards := []domain.Card{
			{ID: "a", Level: 0, NextReviewAt: later},
			{ID: "b", Level: 1, NextReviewAt: later},
			{ID: "c", Level: 2, NextReviewAt: later},
		}
		if got, ok := s.SelectNext(cards); ok {
			t.Errorf("Expected no card, got %q", got.ID)
		}
	})

	t.Run("empty pool", func(t *testing.T) {
		if _, ok := s.SelectNext(nil); ok {
			t.Error("Expected no card for an empty pool")
		}
	})

	t.Run("skips cards that are not due", func(t *testing.T) {
		cards := []domain.Card{
			{ID: "future", Level: 0, NextReviewAt: later},
			{ID: "due", Level: 5, NextReviewAt: due},
		}
		got, ok := s.SelectNext(cards)
		if !ok || got.ID != "due" {
			t.Errorf("Expected the due card, got %q (ok=%v)", got.ID, ok)
		}
	})

	t.Run("ties keep input order", func(t *testing.T) {
		cards := []domain.Card{
			{ID: "first", Level: 1, NextReviewAt: due},
			{ID: "second", Level: 1, NextReviewAt: due},
		}
		got, _ := s.SelectNext(cards)
		if got.ID != "first" {
			t.Errorf("Expected the first card, got %q", got.ID)
		}
	})

	t.Run("new card is selectable at creation time", func(t *testing.T) {
		card := domain.NewCard("new", "ev", "house", *now)
		got, ok := s.SelectNext([]domain.Card{card})
		if !ok || got.ID != "new" {
			t.Errorf("Expected the new card, got %q (ok=%v)", got.ID, ok)
		}
	})

	t.Run("does not reorder input", func(t *testing.T) {
		cards := []domain.Card{
			{ID: "a", Level: 3, NextReviewAt: due},
			{ID: "b", Level: 1, NextReviewAt: due},
		}
		s.SelectNext(cards)
		if cards[0].ID != "a" || cards[1].ID != "b" {
			t.Errorf("Expected input order to be kept, got %q, %q", cards[0].ID, cards[1].ID)
		}
	})
}

func TestDue(t *testing.T) {
	s, now := newTestScheduler()
	cards := []domain.Card{
		{ID: "a", NextReviewAt: now.Add(-time.Hour)},
		{ID: "b", NextReviewAt: now.Add(time.Hour)},
		{ID: "c", NextReviewAt: *now},
	}

	due := s.Due(cards)
	if len(due) != 2 || due[0].ID != "a" || due[1].ID != "c" {
		t.Errorf("Expected cards a and c, got %+v", due)
	}
}

func TestNewDefaultsToSystemClock(t *testing.T) {
	s := New(nil)
	before := time.Now()
	got := s.Now()
	if got.Before(before) {
		t.Errorf("Expected system time, got %v", got)
	}
}
