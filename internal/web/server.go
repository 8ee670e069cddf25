// Package web serves a learner's session over a JSON HTTP API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/lexicard/internal/domain"
	"github.com/conorfennell/lexicard/internal/importer"
	"github.com/conorfennell/lexicard/internal/knol"
	"github.com/conorfennell/lexicard/internal/scheduler"
	"github.com/conorfennell/lexicard/internal/session"
)

const maxBodyBytes = 1 << 20

// Loader imports cards from deck sources.
type Loader interface {
	Load(ctx context.Context, paths []string) ([]domain.Card, importer.Report, error)
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	session  *session.Session
	sched    *scheduler.Scheduler
	loader   Loader
	log      *slog.Logger
	validate *validator.Validate

	router  *http.ServeMux
	handler http.Handler

	sourcesMu sync.Mutex
	sources   []string

	// syncMu keeps two syncs from pulling the same repositories at once.
	syncMu sync.Mutex
}

// NewServer creates and configures a new server. loader may be nil, in which
// case /api/sync reports that no sources are configured.
func NewServer(sess *session.Session, sched *scheduler.Scheduler, loader Loader, sources []string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		session:  sess,
		sched:    sched,
		loader:   loader,
		sources:  slices.Clone(sources),
		log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		router:   http.NewServeMux(),
	}
	s.routes()
	s.handler = chain(s.router, Recover(log), LogRequests(log))
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("GET /healthz", s.handleHealth())

	// Review loop
	s.router.HandleFunc("GET /api/next", s.handleGetNext())
	s.router.HandleFunc("POST /api/review/{id}", s.handlePostReview())

	// Card management
	s.router.HandleFunc("GET /api/cards", s.handleGetCards())
	s.router.HandleFunc("POST /api/cards", s.handlePostCard())
	s.router.HandleFunc("DELETE /api/cards/{id}", s.handleDeleteCard())

	// Practice settings
	s.router.HandleFunc("GET /api/stats", s.handleGetStats())
	s.router.HandleFunc("GET /api/decks", s.handleGetDecks())
	s.router.HandleFunc("PUT /api/deck", s.handlePutDeck())
	s.router.HandleFunc("POST /api/favorites/{id}", s.handleToggleFavorite())
	s.router.HandleFunc("GET /api/favorites", s.handleGetFavorites())
	s.router.HandleFunc("PUT /api/favorites-only", s.handlePutFavoritesOnly())
	s.router.HandleFunc("GET /api/history", s.handleGetHistory())
	s.router.HandleFunc("GET /api/direction", s.handleGetDirection())
	s.router.HandleFunc("PUT /api/direction", s.handlePutDirection())

	// Source management
	s.router.HandleFunc("GET /api/sources", s.handleGetSources())
	s.router.HandleFunc("POST /api/sources", s.handlePostSource())
	s.router.HandleFunc("DELETE /api/sources", s.handleDeleteSource())
	s.router.HandleFunc("POST /api/sync", s.handlePostSync())
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	}
}

// promptCard is a card together with the side to show first.
type promptCard struct {
	domain.Card
	Prompt session.Side `json:"prompt"`
}

func (s *Server) next() (*promptCard, bool) {
	card, ok := s.session.Next()
	if !ok {
		return nil, false
	}
	return &promptCard{Card: card, Prompt: s.session.PromptSide()}, true
}

// handleGetNext returns the card to review now, or 204 when nothing is due.
func (s *Server) handleGetNext() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		card, ok := s.next()
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, card)
	}
}

type reviewRequest struct {
	Known *bool `json:"known" validate:"required"`
}

type reviewResponse struct {
	Card domain.Card `json:"card"`
	Next *promptCard `json:"next,omitempty"`
}

// handlePostReview records an answer and returns the updated card together
// with the next card to show, if any.
func (s *Server) handlePostReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reviewRequest
		if !s.decode(w, r, &req) {
			return
		}

		id := r.PathValue("id")
		card, err := s.session.Record(id, *req.Known)
		if err != nil {
			s.writeSessionError(w, err)
			return
		}
		s.log.Debug("Card reviewed", "card_id", id, "known", *req.Known, "level", card.Level)

		resp := reviewResponse{Card: card}
		if next, ok := s.next(); ok {
			resp.Next = next
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleGetCards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.session.Cards())
	}
}

type cardRequest struct {
	Front    string `json:"front" validate:"required,max=512"`
	Back     string `json:"back" validate:"required,max=512"`
	Category string `json:"category" validate:"max=64"`
}

func (c *cardRequest) normalize() {
	c.Front = strings.TrimSpace(c.Front)
	c.Back = strings.TrimSpace(c.Back)
	c.Category = strings.TrimSpace(c.Category)
}

// handlePostCard adds a single card. Its ID is derived from the word pair, so
// posting the same pair twice is a conflict.
func (s *Server) handlePostCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cardRequest
		if !s.decode(w, r, &req) {
			return
		}

		card := domain.NewCard(knol.ID(req.Front, req.Back), req.Front, req.Back, s.sched.Now())
		card.Category = req.Category
		if err := s.session.Insert(card); err != nil {
			s.writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, card)
	}
}

func (s *Server) handleDeleteCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.session.Remove(r.PathValue("id")); err != nil {
			s.writeSessionError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleGetStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.session.Stats())
	}
}

type decksResponse struct {
	Active string             `json:"active"`
	Decks  []session.DeckInfo `json:"decks"`
}

func (s *Server) handleGetDecks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decks := s.session.Decks()
		if decks == nil {
			decks = []session.DeckInfo{}
		}
		writeJSON(w, http.StatusOK, decksResponse{Active: s.session.Deck(), Decks: decks})
	}
}

type deckRequest struct {
	Category string `json:"category" validate:"max=64"`
}

func (d *deckRequest) normalize() {
	d.Category = strings.TrimSpace(d.Category)
}

// handlePutDeck switches the active deck. An empty category selects every card.
func (s *Server) handlePutDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req deckRequest
		if !s.decode(w, r, &req) {
			return
		}
		s.session.SetDeck(req.Category)
		writeJSON(w, http.StatusOK, s.session.Stats())
	}
}

func (s *Server) handleToggleFavorite() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fav, err := s.session.ToggleFavorite(r.PathValue("id"))
		if err != nil {
			s.writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"favorite": fav})
	}
}

func (s *Server) handleGetFavorites() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		favs := s.session.Favorites()
		if favs == nil {
			favs = []domain.Card{}
		}
		writeJSON(w, http.StatusOK, favs)
	}
}

type favoritesOnlyRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

func (s *Server) handlePutFavoritesOnly() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req favoritesOnlyRequest
		if !s.decode(w, r, &req) {
			return
		}
		s.session.SetFavoritesOnly(*req.Enabled)
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": *req.Enabled})
	}
}

// handleGetHistory returns recent review logs, newest first.
func (s *Server) handleGetHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			limit = n
		}
		logs := s.session.History(limit)
		if logs == nil {
			logs = []domain.ReviewLog{}
		}
		writeJSON(w, http.StatusOK, logs)
	}
}

func (s *Server) handleGetDirection() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, directionRequest{Direction: s.session.Direction()})
	}
}

type directionRequest struct {
	Direction session.Direction `json:"direction" validate:"required,oneof=front_first back_first random"`
}

// handlePutDirection switches between front-first, back-first, and random
// prompts.
func (s *Server) handlePutDirection() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req directionRequest
		if !s.decode(w, r, &req) {
			return
		}
		if err := s.session.SetDirection(req.Direction); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, req)
	}
}

func (s *Server) sourceList() []string {
	s.sourcesMu.Lock()
	defer s.sourcesMu.Unlock()
	return slices.Clone(s.sources)
}

func (s *Server) handleGetSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := []importer.Source{}
		for _, path := range s.sourceList() {
			out = append(out, importer.NewSource(path))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type sourceRequest struct {
	Path string `json:"path" validate:"required,max=1024"`
}

func (sr *sourceRequest) normalize() {
	sr.Path = strings.TrimSpace(sr.Path)
}

// handlePostSource registers a deck source. Its cards arrive with the next sync.
func (s *Server) handlePostSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sourceRequest
		if !s.decode(w, r, &req) {
			return
		}

		s.sourcesMu.Lock()
		defer s.sourcesMu.Unlock()
		if slices.Contains(s.sources, req.Path) {
			writeError(w, http.StatusConflict, "source already exists")
			return
		}
		s.sources = append(s.sources, req.Path)
		s.log.Info("Source added", "path", req.Path)
		writeJSON(w, http.StatusCreated, importer.NewSource(req.Path))
	}
}

// handleDeleteSource unregisters the source named by ?path= and removes the
// cards imported from it.
func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimSpace(r.URL.Query().Get("path"))
		if path == "" {
			writeError(w, http.StatusBadRequest, "path is required")
			return
		}

		s.sourcesMu.Lock()
		i := slices.Index(s.sources, path)
		if i >= 0 {
			s.sources = slices.Delete(s.sources, i, i+1)
		}
		s.sourcesMu.Unlock()
		if i < 0 {
			writeError(w, http.StatusNotFound, "source not found")
			return
		}

		removed := s.session.RemoveSource(path)
		s.log.Info("Source deleted", "path", path, "cards_removed", removed)
		w.WriteHeader(http.StatusNoContent)
	}
}

type syncResponse struct {
	Sources    int      `json:"sources"`
	Files      int      `json:"files"`
	Cards      int      `json:"cards"`
	Added      int      `json:"added"`
	Removed    int      `json:"removed"`
	Duplicates int      `json:"duplicates"`
	Invalid    int      `json:"invalid"`
	Errors     []string `json:"errors"`
}

// handlePostSync re-imports the configured sources and merges new cards into
// the session. Cards already in the pool keep their schedule; cards whose
// source was read cleanly but no longer holds them are removed.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources := s.sourceList()
		if s.loader == nil || len(sources) == 0 {
			writeError(w, http.StatusConflict, "no deck sources configured")
			return
		}

		s.syncMu.Lock()
		defer s.syncMu.Unlock()

		cards, report, err := s.loader.Load(r.Context(), sources)
		if err != nil {
			s.log.Error("Sync failed", "error", err)
			writeError(w, http.StatusInternalServerError, "sync failed")
			return
		}
		added := s.session.Add(cards...)

		removed := 0
		for _, id := range importer.Orphans(s.session.Cards(), cards, report) {
			if err := s.session.Remove(id); err == nil {
				removed++
				s.log.Info("Orphaned card, deleting", "card_id", id)
			}
		}
		s.log.Info("Sync complete", "cards", report.Cards, "added", added, "removed", removed)

		resp := syncResponse{
			Sources:    report.Sources,
			Files:      report.Files,
			Cards:      report.Cards,
			Added:      added,
			Removed:    removed,
			Duplicates: report.Duplicates,
			Invalid:    report.Invalid,
			Errors:     []string{},
		}
		for _, e := range report.Errors {
			resp.Errors = append(resp.Errors, e.Error())
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// normalizer is implemented by request bodies that clean their fields before
// validation.
type normalizer interface {
	normalize()
}

// decode reads a JSON body into v, normalizes it, and validates it. On
// failure it writes a 400 response and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if n, ok := v.(normalizer); ok {
		n.normalize()
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrCardNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrDuplicateCard):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error("Session error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
