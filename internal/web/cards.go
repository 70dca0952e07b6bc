package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/exchange"
	"github.com/conorfennell/studydeck/internal/srs"
	"github.com/conorfennell/studydeck/internal/stats"
	"github.com/conorfennell/studydeck/internal/storage"
	"github.com/go-chi/chi/v5"
)

const maxPageSize = 200

func (s *Server) handleCreateCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cardRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		card := s.newCard(userID(r), req)
		stored, err := s.db.InsertCard(r.Context(), card)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, s.toCard(stored))
	}
}

func (s *Server) handleBulkCreate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bulkRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		cards := make([]domain.Card, len(req.Flashcards))
		for i, fc := range req.Flashcards {
			cards[i] = s.newCard(userID(r), fc)
		}
		stored, err := s.db.InsertCards(r.Context(), cards)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"count":      len(stored),
			"flashcards": s.toCards(stored),
		})
	}
}

func (s *Server) newCard(user string, req cardRequest) domain.Card {
	card := domain.NewCard(user, s.clock.Now())
	req.apply(&card)
	if d, ok := domain.ParseDifficulty(req.Difficulty); ok {
		card.Difficulty = d
	}
	return card
}

// handleListCards lists cards page by page, filtered by subject,
// difficulty, tags and due=true.
func (s *Server) handleListCards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f, err := s.filterFrom(q.Get("subject"), q.Get("difficulty"), q.Get("tags"), q.Get("due"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		page, err := intParam(q.Get("page"), 1)
		if err != nil || page < 1 {
			writeError(w, r, fmt.Errorf("%w: page must be a positive integer", domain.ErrInvalidInput))
			return
		}
		limit, err := intParam(q.Get("limit"), s.params.DefaultSessionLimit)
		if err != nil || limit < 1 || limit > maxPageSize {
			writeError(w, r, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrInvalidInput, maxPageSize))
			return
		}

		total, err := s.db.CountCards(r.Context(), userID(r), f)
		if err != nil {
			writeError(w, r, err)
			return
		}
		f.Limit, f.Offset = limit, (page-1)*limit
		cards, err := s.db.ListCards(r.Context(), userID(r), f)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse{Flashcards: s.toCards(cards), Total: total, Page: page, Limit: limit})
	}
}

func (s *Server) handleDueCards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, err := intParam(q.Get("limit"), s.params.DefaultSessionLimit)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: limit must be an integer", domain.ErrInvalidInput))
			return
		}
		now := s.clock.Now()
		subject := q.Get("subject")
		pool, err := s.db.ListCards(r.Context(), userID(r), storage.Filter{Subject: subject, DueBefore: &now})
		if err != nil {
			writeError(w, r, err)
			return
		}
		due, err := s.params.DueCards(pool, srs.Criteria{UserID: userID(r), Subject: subject, Limit: limit}, now)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": len(due), "flashcards": s.toCards(due)})
	}
}

func (s *Server) handleSearchCards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		term := strings.TrimSpace(q.Get("q"))
		if term == "" {
			writeError(w, r, fmt.Errorf("%w: query parameter q is required", domain.ErrInvalidInput))
			return
		}
		f, err := s.filterFrom(q.Get("subject"), q.Get("difficulty"), q.Get("tags"), "")
		if err != nil {
			writeError(w, r, err)
			return
		}
		if f.Limit, err = intParam(q.Get("limit"), maxPageSize); err != nil || f.Limit < 1 {
			writeError(w, r, fmt.Errorf("%w: limit must be a positive integer", domain.ErrInvalidInput))
			return
		}
		cards, err := s.db.SearchCards(r.Context(), userID(r), term, f)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": len(cards), "flashcards": s.toCards(cards)})
	}
}

func (s *Server) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cards, err := s.db.ListCards(r.Context(), userID(r), storage.Filter{Subject: r.URL.Query().Get("subject")})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stats.Compute(s.params, cards, s.clock.Now()))
	}
}

func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cards, err := s.db.ListCards(r.Context(), userID(r), storage.Filter{})
		if err != nil {
			writeError(w, r, err)
			return
		}
		period := stats.ParsePeriod(r.URL.Query().Get("period"))
		writeJSON(w, http.StatusOK, stats.ComputeMetrics(cards, period, s.clock.Now()))
	}
}

func (s *Server) handleExport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		format, err := exchange.ParseFormat(q.Get("format"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		cards, err := s.db.ListCards(r.Context(), userID(r), storage.Filter{Subject: q.Get("subject")})
		if err != nil {
			writeError(w, r, err)
			return
		}
		name := fmt.Sprintf("flashcards-%s.%s", s.clock.Now().Format(time.DateOnly), format)
		w.Header().Set("Content-Type", format.ContentType())
		w.Header().Set("Content-Disposition", "attachment; filename="+name)
		if err := exchange.Write(w, format, cards); err != nil {
			s.log.Warn("export interrupted", "user_id", userID(r), "error", err)
		}
	}
}

func (s *Server) handleImport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req importRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		cards, err := exchange.ReadCSV(strings.NewReader(req.Data), userID(r), s.clock.Now())
		if err != nil {
			writeError(w, r, err)
			return
		}
		stored, err := s.db.InsertCards(r.Context(), cards)
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.log.Info("cards imported", "user_id", userID(r), "count", len(stored))
		writeJSON(w, http.StatusOK, map[string]any{
			"count":   len(stored),
			"message": fmt.Sprintf("Imported %d flashcards successfully", len(stored)),
		})
	}
}

func (s *Server) handleGetCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		card, err := s.db.GetCard(r.Context(), userID(r), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.toCard(card))
	}
}

func (s *Server) handleUpdateCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cardRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		card := domain.Card{ID: chi.URLParam(r, "id"), UserID: userID(r)}
		req.apply(&card)
		updated, err := s.db.UpdateCardContent(r.Context(), card)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.toCard(updated))
	}
}

func (s *Server) handleDeleteCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.DeleteCard(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleReviewCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reviewRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		card, err := s.reviews.SubmitReview(r.Context(), userID(r), chi.URLParam(r, "id"), *req.Performance, req.SessionID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.toCard(card))
	}
}

func (s *Server) handleResetCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		card, err := s.reviews.ResetCard(r.Context(), userID(r), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.toCard(card))
	}
}

func (s *Server) filterFrom(subject, difficulty, tags, due string) (storage.Filter, error) {
	f := storage.Filter{Subject: subject}
	if difficulty != "" {
		d, ok := domain.ParseDifficulty(difficulty)
		if !ok {
			return f, fmt.Errorf("%w: unknown difficulty %q", domain.ErrInvalidInput, difficulty)
		}
		f.Difficulty = d
	}
	for _, t := range strings.Split(tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			f.Tags = append(f.Tags, t)
		}
	}
	if due == "true" {
		now := s.clock.Now()
		f.DueBefore = &now
	}
	return f, nil
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
