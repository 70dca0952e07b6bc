package web

import (
	"net/http"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/review"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleStartSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sessionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		session, cards, err := s.reviews.StartSession(r.Context(), userID(r), review.Request{
			Type:    domain.SessionType(req.Type),
			Subject: req.Subject,
			Limit:   req.Limit,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"session":    toSession(session),
			"flashcards": s.toCards(cards),
		})
	}
}

func (s *Server) handleEndSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := s.reviews.EndSession(r.Context(), userID(r), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toSession(session))
	}
}
