// Package session owns a learner's card pool and the review state around it:
// the active deck, favorites, outcome counters, and the review history.
//
// A Session serializes every read and write of the pool, so the web layer
// may call it from concurrent requests. The scheduler itself holds no state.
package session

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/conorfennell/lexicard/internal/domain"
	"github.com/conorfennell/lexicard/internal/scheduler"
)

var (
	ErrCardNotFound     = errors.New("card not found")
	ErrDuplicateCard    = errors.New("card already exists")
	ErrInvalidDirection = errors.New("invalid direction")
)

// Direction chooses which side of a card is shown as the prompt.
type Direction string

const (
	FrontFirst Direction = "front_first"
	BackFirst  Direction = "back_first"
	Mixed      Direction = "random"
)

// Side is one face of a card.
type Side string

const (
	SideFront Side = "front"
	SideBack  Side = "back"
)

const defaultHistoryLimit = 1000

// Stats summarizes progress in the active deck.
type Stats struct {
	Deck           string               `json:"deck"`
	Total          int                  `json:"total"`
	Due            int                  `json:"due"`
	Known          int                  `json:"known"`
	Unknown        int                  `json:"unknown"`
	Reviewed       int                  `json:"reviewed"`
	KnownPercent   int                  `json:"known_percent"`
	UnknownPercent int                  `json:"unknown_percent"`
	Levels         map[domain.Level]int `json:"levels"`
}

// DeckInfo is a category and the number of cards in it.
type DeckInfo struct {
	Category string `json:"category"`
	Cards    int    `json:"cards"`
}

// Session is the single owner of a card pool.
type Session struct {
	mu sync.Mutex

	sched *scheduler.Scheduler
	cards []domain.Card
	index map[string]int

	deck          string
	favorites     map[string]bool
	favoritesOnly bool
	direction     Direction
	coin          func() bool

	known   int
	unknown int

	history      []domain.ReviewLog
	historyLimit int
	newID        func() string
}

// Option configures a Session.
type Option func(*Session)

// WithHistoryLimit caps the number of review logs kept in memory.
func WithHistoryLimit(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// New returns an empty session that schedules reviews with sched.
func New(sched *scheduler.Scheduler, opts ...Option) *Session {
	s := &Session{
		sched:        sched,
		index:        make(map[string]int),
		favorites:    make(map[string]bool),
		direction:    FrontFirst,
		coin:         func() bool { return rand.Intn(2) == 0 },
		historyLimit: defaultHistoryLimit,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add puts cards into the pool. Cards whose ID is already present are
// skipped so their schedule is kept. It returns the number added.
func (s *Session) Add(cards ...domain.Card) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, c := range cards {
		if _, ok := s.index[c.ID]; ok {
			continue
		}
		s.index[c.ID] = len(s.cards)
		s.cards = append(s.cards, c)
		added++
	}
	return added
}

// Insert adds a single card and fails with ErrDuplicateCard when its ID is taken.
func (s *Session) Insert(card domain.Card) error {
	if s.Add(card) == 0 {
		return ErrDuplicateCard
	}
	return nil
}

// Remove deletes a card from the pool along with its favorite mark.
func (s *Session) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return ErrCardNotFound
	}
	s.cards = slices.Delete(s.cards, i, i+1)
	delete(s.favorites, id)
	s.reindex()
	return nil
}

// RemoveSource deletes every card imported from source and returns how many
// were removed. Hand-added cards have no source and are never matched.
func (s *Session) RemoveSource(source string) int {
	if source == "" {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.cards)
	s.cards = slices.DeleteFunc(s.cards, func(c domain.Card) bool {
		if c.Source != source {
			return false
		}
		delete(s.favorites, c.ID)
		return true
	})
	if removed := before - len(s.cards); removed > 0 {
		s.reindex()
		return removed
	}
	return 0
}

func (s *Session) reindex() {
	clear(s.index)
	for i, c := range s.cards {
		s.index[c.ID] = i
	}
}

// Card returns the card with the given ID.
func (s *Session) Card(id string) (domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return domain.Card{}, ErrCardNotFound
	}
	return s.cards[i], nil
}

// Cards returns a copy of the pool in insertion order.
func (s *Session) Cards() []domain.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.cards)
}

// Len returns the number of cards in the pool.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cards)
}

// Next returns the card to show now, or false when nothing in the active
// deck is due.
func (s *Session) Next() (domain.Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched.SelectNext(s.candidates())
}

// candidates returns the cards in the active deck, narrowed to favorites
// when favorites-only is on. Callers hold s.mu.
func (s *Session) candidates() []domain.Card {
	if s.deck == "" && !s.favoritesOnly {
		return s.cards
	}
	var out []domain.Card
	for _, c := range s.cards {
		if s.deck != "" && c.Category != s.deck {
			continue
		}
		if s.favoritesOnly && !s.favorites[c.ID] {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Record applies a review outcome to the card with the given ID, stores the
// updated card in the pool, and returns it.
func (s *Session) Record(id string, known bool) (domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return domain.Card{}, ErrCardNotFound
	}

	before := s.cards[i]
	after := s.sched.RecordOutcome(before, known)
	s.cards[i] = after

	if known {
		s.known++
	} else {
		s.unknown++
	}

	s.history = append(s.history, domain.ReviewLog{
		ID:          s.newID(),
		CardID:      id,
		Known:       known,
		LevelBefore: before.Level,
		LevelAfter:  after.Level,
		Timestamp:   s.sched.Now(),
	})
	if over := len(s.history) - s.historyLimit; over > 0 {
		s.history = slices.Delete(s.history, 0, over)
	}

	return after, nil
}

// SetDeck switches the active deck. An empty category practices every card.
// Switching decks starts a fresh count of known and unknown answers.
func (s *Session) SetDeck(category string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deck = category
	s.known = 0
	s.unknown = 0
}

// Deck returns the active deck's category.
func (s *Session) Deck() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deck
}

// Decks lists the categories present in the pool, sorted by name.
// Cards without a category are not listed; they appear only in mixed practice.
func (s *Session) Decks() []DeckInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	for _, c := range s.cards {
		if c.Category != "" {
			counts[c.Category]++
		}
	}
	decks := make([]DeckInfo, 0, len(counts))
	for category, n := range counts {
		decks = append(decks, DeckInfo{Category: category, Cards: n})
	}
	sort.Slice(decks, func(i, j int) bool {
		return decks[i].Category < decks[j].Category
	})
	return decks
}

// ToggleFavorite flips the favorite mark on a card and returns the new value.
func (s *Session) ToggleFavorite(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[id]; !ok {
		return false, ErrCardNotFound
	}
	if s.favorites[id] {
		delete(s.favorites, id)
		return false, nil
	}
	s.favorites[id] = true
	return true, nil
}

// IsFavorite reports whether the card is marked as a favorite.
func (s *Session) IsFavorite(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.favorites[id]
}

// Favorites returns the favorite cards in pool order.
func (s *Session) Favorites() []domain.Card {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Card
	for _, c := range s.cards {
		if s.favorites[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// SetFavoritesOnly restricts Next to favorite cards.
func (s *Session) SetFavoritesOnly(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.favoritesOnly = enabled
}

// SetDirection changes which side of the next cards is shown first.
func (s *Session) SetDirection(d Direction) error {
	switch d {
	case FrontFirst, BackFirst, Mixed:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDirection, d)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.direction = d
	return nil
}

// Direction returns the current practice direction.
func (s *Session) Direction() Direction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direction
}

// PromptSide returns the side to show first for the next card. In random
// mode each call flips a coin.
func (s *Session) PromptSide() Side {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.direction {
	case BackFirst:
		return SideBack
	case Mixed:
		if s.coin() {
			return SideBack
		}
	}
	return SideFront
}

// Stats reports progress in the active deck.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	cards := s.candidates()
	st := Stats{
		Deck:     s.deck,
		Total:    len(cards),
		Due:      len(s.sched.Due(cards)),
		Known:    s.known,
		Unknown:  s.unknown,
		Reviewed: s.known + s.unknown,
		Levels:   make(map[domain.Level]int),
	}
	for l := domain.MinLevel; l <= domain.MaxLevel; l++ {
		st.Levels[l] = 0
	}
	for _, c := range cards {
		st.Levels[c.Level.Clamp()]++
	}
	st.KnownPercent = percent(st.Known, st.Total)
	st.UnknownPercent = percent(st.Unknown, st.Total)
	return st
}

func percent(n, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(n) / float64(total) * 100))
}

// History returns up to limit review logs, most recent first.
// A limit of zero or less returns all of them.
func (s *Session) History(limit int) []domain.ReviewLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.ReviewLog, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.history[i])
	}
	return out
}
