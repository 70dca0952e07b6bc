// Package web exposes cards, review sessions and sources as a JSON API.
package web

import (
	"log/slog"
	"net/http"

	"github.com/conorfennell/studydeck/internal/ratelimit"
	"github.com/conorfennell/studydeck/internal/review"
	"github.com/conorfennell/studydeck/internal/srs"
	"github.com/conorfennell/studydeck/internal/storage"
	"github.com/conorfennell/studydeck/internal/sync"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// Options configures the parts of the server that vary by deployment.
type Options struct {
	AllowedOrigins []string
	// Limiter throttles mutating requests per user. Nil disables it.
	Limiter *ratelimit.Limiter
	Clock   review.Clock
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	db      *storage.DB
	reviews *review.Service
	syncer  *sync.Syncer
	params  *srs.Params
	clock   review.Clock
	limiter *ratelimit.Limiter
	router  chi.Router
	log     *slog.Logger
}

// NewServer creates and configures a new server.
func NewServer(db *storage.DB, reviews *review.Service, syncer *sync.Syncer, params *srs.Params, opts Options) *Server {
	clock := opts.Clock
	if clock == nil {
		clock = review.SystemClock{}
	}
	s := &Server{
		db:      db,
		reviews: reviews,
		syncer:  syncer,
		params:  params,
		clock:   clock,
		limiter: opts.Limiter,
		router:  chi.NewRouter(),
		log:     slog.Default().With("component", "web"),
	}
	s.routes(opts.AllowedOrigins)
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes(origins []string) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(logRequests(s.log))
	s.router.Use(cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", UserHeader},
		ExposedHeaders: []string{"Content-Disposition", "Retry-After"},
		MaxAge:         300,
	}).Handler)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth())

	s.router.Route("/api", func(r chi.Router) {
		r.Use(requireUser)

		// Mutating routes share the per-user budget.
		limited := r.With(s.limit)

		r.Route("/flashcards", func(r chi.Router) {
			limited := r.With(s.limit)
			r.Get("/", s.handleListCards())
			limited.Post("/", s.handleCreateCard())
			limited.Post("/bulk", s.handleBulkCreate())
			r.Get("/due", s.handleDueCards())
			r.Get("/search", s.handleSearchCards())
			r.Get("/stats", s.handleStats())
			r.Get("/metrics", s.handleMetrics())
			r.Get("/export", s.handleExport())
			limited.Post("/import", s.handleImport())

			r.Get("/{id}", s.handleGetCard())
			limited.Put("/{id}", s.handleUpdateCard())
			limited.Delete("/{id}", s.handleDeleteCard())
			limited.Post("/{id}/review", s.handleReviewCard())
			limited.Post("/{id}/reset", s.handleResetCard())
		})

		limited.Post("/review-sessions", s.handleStartSession())
		limited.Post("/review-sessions/{id}/end", s.handleEndSession())

		r.Get("/sources", s.handleListSources())
		limited.Post("/sources", s.handleAddSource())
		limited.Delete("/sources/{id}", s.handleDeleteSource())
		limited.Post("/sync", s.handleSync())
	})
}

func (s *Server) limit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return s.limiter.Middleware(userKeyFor)(next)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.Ping(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
