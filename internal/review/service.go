// Package review runs review sessions and applies review outcomes to
// stored cards, one card at a time.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/srs"
	"github.com/conorfennell/studydeck/internal/storage"
	"github.com/google/uuid"
)

// Store is the persistence the service needs. *storage.DB satisfies it.
type Store interface {
	GetCard(ctx context.Context, userID, id string) (domain.Card, error)
	UpdateCard(ctx context.Context, card domain.Card, expectedVersion int64) (domain.Card, error)
	ListCards(ctx context.Context, userID string, f storage.Filter) ([]domain.Card, error)

	InsertSession(ctx context.Context, s domain.ReviewSession) error
	GetSession(ctx context.Context, userID, id string) (domain.ReviewSession, error)
	RecordSessionReview(ctx context.Context, r domain.SessionReview) error
	SessionReviews(ctx context.Context, sessionID string) ([]domain.SessionReview, error)
	FinishSession(ctx context.Context, s domain.ReviewSession) error
}

// Service applies reviews and resets through the scheduler and persists the
// results. Updates to one card are serialized in-process by a per-card lock
// and across processes by the store's version check.
type Service struct {
	store      Store
	params     *srs.Params
	clock      Clock
	locks      *keyedMutex
	maxRetries int
	log        *slog.Logger
}

// NewService creates a Service. maxRetries bounds how often a conflicting or
// failed write is retried.
func NewService(store Store, params *srs.Params, clock Clock, maxRetries int) *Service {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Service{
		store:      store,
		params:     params,
		clock:      clock,
		locks:      newKeyedMutex(),
		maxRetries: maxRetries,
		log:        slog.Default().With("component", "review"),
	}
}

// Request describes a session to start. A nil Limit means the default.
type Request struct {
	Type    domain.SessionType
	Subject string
	Limit   *int
}

// StartSession selects the cards for a new session and stores it.
func (s *Service) StartSession(ctx context.Context, userID string, req Request) (domain.ReviewSession, []domain.Card, error) {
	typ := req.Type
	if typ == "" {
		typ = domain.SessionSpaced
	}
	limit := s.params.DefaultSessionLimit
	if req.Limit != nil {
		limit = *req.Limit
	}

	// Validate before touching the store.
	if _, err := s.params.SelectForSession(nil, srs.Criteria{Limit: limit}, typ, s.clock.Now()); err != nil {
		return domain.ReviewSession{}, nil, err
	}

	pool, err := s.store.ListCards(ctx, userID, storage.Filter{Subject: req.Subject})
	if err != nil {
		return domain.ReviewSession{}, nil, err
	}
	now := s.clock.Now()
	cards, err := s.params.SelectForSession(pool, srs.Criteria{UserID: userID, Subject: req.Subject, Limit: limit}, typ, now)
	if err != nil {
		return domain.ReviewSession{}, nil, err
	}

	session := domain.ReviewSession{
		ID:          uuid.NewString(),
		UserID:      userID,
		SessionType: typ,
		Subject:     req.Subject,
		StartTime:   now,
		CardIDs:     make([]string, len(cards)),
	}
	for i, c := range cards {
		session.CardIDs[i] = c.ID
	}
	if err := s.store.InsertSession(ctx, session); err != nil {
		return domain.ReviewSession{}, nil, err
	}

	s.log.Info("review session started", "session_id", session.ID, "user_id", userID, "type", typ, "cards", len(cards))
	return session, cards, nil
}

// SubmitReview applies one review outcome to a card and persists it. When
// sessionID is set the card must belong to that open session, and the
// outcome is recorded against it.
func (s *Service) SubmitReview(ctx context.Context, userID, cardID string, performance int, sessionID string) (domain.Card, error) {
	if err := srs.ValidatePerformance(performance); err != nil {
		return domain.Card{}, err
	}
	if sessionID != "" {
		session, err := s.store.GetSession(ctx, userID, sessionID)
		if err != nil {
			return domain.Card{}, err
		}
		if session.Ended() {
			return domain.Card{}, fmt.Errorf("%w: session %s has ended", domain.ErrInvalidInput, sessionID)
		}
		if !session.Contains(cardID) {
			return domain.Card{}, fmt.Errorf("%w: card %s is not part of session %s", domain.ErrInvalidInput, cardID, sessionID)
		}
	}

	unlock := s.locks.Lock(cardID)
	defer unlock()

	now := s.clock.Now()
	card, err := s.persist(ctx, userID, cardID, func(c domain.Card) (domain.Card, error) {
		return s.params.ApplyReview(c, performance, now)
	})
	if err != nil {
		return domain.Card{}, err
	}

	if sessionID != "" {
		err := s.store.RecordSessionReview(ctx, domain.SessionReview{
			SessionID:   sessionID,
			CardID:      cardID,
			Performance: performance,
			ReviewedAt:  now,
		})
		if err != nil {
			// The card itself is saved; only the session aggregate misses it.
			s.log.Warn("failed to record session review", "session_id", sessionID, "card_id", cardID, "error", err)
		}
	}

	s.log.Debug("review applied", "card_id", cardID, "performance", performance, "interval", card.Interval, "ease", card.EaseFactor)
	return card, nil
}

// ResetCard clears a card's progress.
func (s *Service) ResetCard(ctx context.Context, userID, cardID string) (domain.Card, error) {
	unlock := s.locks.Lock(cardID)
	defer unlock()

	now := s.clock.Now()
	return s.persist(ctx, userID, cardID, func(c domain.Card) (domain.Card, error) {
		return s.params.ResetCard(c, now), nil
	})
}

// EndSession finalizes a session and computes its aggregates.
func (s *Service) EndSession(ctx context.Context, userID, sessionID string) (domain.ReviewSession, error) {
	session, err := s.store.GetSession(ctx, userID, sessionID)
	if err != nil {
		return domain.ReviewSession{}, err
	}
	if session.Ended() {
		return domain.ReviewSession{}, fmt.Errorf("%w: session %s has already ended", domain.ErrInvalidInput, sessionID)
	}

	outcomes, err := s.store.SessionReviews(ctx, sessionID)
	if err != nil {
		return domain.ReviewSession{}, err
	}

	end := s.clock.Now()
	session.EndTime = &end
	session.TotalTime = end.Sub(session.StartTime)
	if session.TotalTime < 0 {
		session.TotalTime = 0
	}
	session.ReviewedCount = len(outcomes)
	if len(outcomes) > 0 {
		var sum int
		for _, o := range outcomes {
			sum += o.Performance
		}
		session.AveragePerformance = float64(sum) / float64(len(outcomes))
	}

	if err := s.store.FinishSession(ctx, session); err != nil {
		if errors.Is(err, domain.ErrPersistenceConflict) {
			return domain.ReviewSession{}, fmt.Errorf("%w: session %s has already ended", domain.ErrInvalidInput, sessionID)
		}
		return domain.ReviewSession{}, err
	}

	s.log.Info("review session ended", "session_id", sessionID, "reviewed", session.ReviewedCount,
		"total_time", session.TotalTime, "average_performance", session.AveragePerformance)
	return session, nil
}

// persist loads the card, computes its next state with mutate and writes it
// back under the version read. A version conflict reloads and recomputes;
// an unavailable store is retried with the same computed state.
func (s *Service) persist(ctx context.Context, userID, cardID string, mutate func(domain.Card) (domain.Card, error)) (domain.Card, error) {
	var lastWrite *domain.Card
	for attempt := 0; ; attempt++ {
		current, err := s.store.GetCard(ctx, userID, cardID)
		if err != nil {
			if s.retryable(ctx, err, attempt) {
				continue
			}
			return domain.Card{}, err
		}
		// A write reported as failed may still have been committed.
		if lastWrite != nil && landed(current, *lastWrite) {
			return current, nil
		}

		next, err := mutate(current)
		if err != nil {
			return domain.Card{}, err
		}

		saved, err := s.save(ctx, next, current.Version)
		if err == nil {
			return saved, nil
		}
		if errors.Is(err, domain.ErrPersistenceConflict) && attempt < s.maxRetries {
			s.log.Warn("card changed during review, retrying", "card_id", cardID, "attempt", attempt+1)
			lastWrite = &next
			lastWrite.Version = current.Version + 1
			continue
		}
		return domain.Card{}, err
	}
}

// save writes next, retrying while the store is unavailable. The computed
// state is pure, so the same value is written on every attempt.
func (s *Service) save(ctx context.Context, next domain.Card, version int64) (domain.Card, error) {
	for attempt := 0; ; attempt++ {
		saved, err := s.store.UpdateCard(ctx, next, version)
		if err == nil || !s.retryable(ctx, err, attempt) {
			return saved, err
		}
		s.log.Warn("store unavailable, retrying write", "card_id", next.ID, "attempt", attempt+1, "error", err)
	}
}

func (s *Service) retryable(ctx context.Context, err error, attempt int) bool {
	return errors.Is(err, domain.ErrPersistenceUnavailable) && attempt < s.maxRetries && ctx.Err() == nil
}

// landed reports whether stored is exactly the write we attempted.
func landed(stored, attempted domain.Card) bool {
	return stored.Version == attempted.Version &&
		len(stored.Reviews) == len(attempted.Reviews) &&
		stored.Interval == attempted.Interval &&
		stored.NextReviewDate.Equal(attempted.NextReviewDate)
}
