package domain

import (
	"testing"
	"time"
)

func TestLevelClamp(t *testing.T) {
	testCases := []struct {
		in   Level
		want Level
	}{
		{-3, 0},
		{0, 0},
		{3, 3},
		{5, 5},
		{9, 5},
	}
	for _, tc := range testCases {
		if got := tc.in.Clamp(); got != tc.want {
			t.Errorf("Level(%d).Clamp() = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestNewCardIsImmediatelyDue(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	card := NewCard("id", "merhaba", "hello", now)

	if card.Level != 0 {
		t.Errorf("Expected level 0, got %d", card.Level)
	}
	if !card.IsDue(now) {
		t.Error("Expected a new card to be due at its creation time")
	}
	if card.IsDue(now.Add(-time.Second)) {
		t.Error("Expected a new card not to be due before its creation time")
	}
}
