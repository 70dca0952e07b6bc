package web

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/sync"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := s.db.GetSources(r.Context(), userID(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := make([]sourceResponse, len(sources))
		for i, src := range sources {
			out[i] = toSource(src)
		}
		writeJSON(w, http.StatusOK, map[string]any{"sources": out})
	}
}

func (s *Server) handleAddSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sourceRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		src, err := s.syncer.AddSource(r.Context(), userID(r), req.Path)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toSource(src))
	}
}

func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid source ID", domain.ErrInvalidInput))
			return
		}
		if err := s.db.DeleteSource(r.Context(), userID(r), id); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleSync syncs the caller's sources in the foreground.
func (s *Server) handleSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, err := s.syncer.SyncUser(r.Context(), userID(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if results == nil {
			results = []sync.Result{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results})
	}
}
