package srs

import (
	"fmt"
	"sort"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
)

// Criteria narrows the card pool before a selection policy runs.
type Criteria struct {
	UserID  string // when set, cards of other users are ignored
	Subject string // when set, only cards of this subject
	Limit   int
}

// SelectForSession picks the ordered cards for a review session of the
// given type. It never modifies the pool.
func (p *Params) SelectForSession(cards []domain.Card, c Criteria, t domain.SessionType, now time.Time) ([]domain.Card, error) {
	if c.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", domain.ErrInvalidInput, c.Limit)
	}
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown session type %q", domain.ErrInvalidInput, t)
	}

	var keep func(domain.Card) bool
	less := byNextReview

	switch t {
	case domain.SessionSpaced:
		keep = func(card domain.Card) bool { return card.IsDue(now) }
	case domain.SessionNew:
		keep = func(card domain.Card) bool { return len(card.Reviews) <= 1 }
		less = func(a, b domain.Card) bool { return a.CreatedAt.After(b.CreatedAt) }
	case domain.SessionDifficult:
		keep = func(card domain.Card) bool { return card.Difficulty == domain.Hard }
	case domain.SessionMixed:
		keep = func(domain.Card) bool { return true }
	}

	selected := scope(cards, c, keep)
	sort.SliceStable(selected, func(i, j int) bool { return less(selected[i], selected[j]) })
	return truncate(selected, c.Limit), nil
}

// DueCards returns the due cards ordered by next review date, ties broken
// by difficulty label.
func (p *Params) DueCards(cards []domain.Card, c Criteria, now time.Time) ([]domain.Card, error) {
	if c.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", domain.ErrInvalidInput, c.Limit)
	}
	due := scope(cards, c, func(card domain.Card) bool { return card.IsDue(now) })
	sort.SliceStable(due, func(i, j int) bool {
		a, b := due[i], due[j]
		if !a.NextReviewDate.Equal(b.NextReviewDate) {
			return a.NextReviewDate.Before(b.NextReviewDate)
		}
		return a.Difficulty < b.Difficulty
	})
	return truncate(due, c.Limit), nil
}

func scope(cards []domain.Card, c Criteria, keep func(domain.Card) bool) []domain.Card {
	out := make([]domain.Card, 0, len(cards))
	for _, card := range cards {
		if c.UserID != "" && card.UserID != c.UserID {
			continue
		}
		if c.Subject != "" && card.Subject != c.Subject {
			continue
		}
		if keep(card) {
			out = append(out, card)
		}
	}
	return out
}

func byNextReview(a, b domain.Card) bool {
	return a.NextReviewDate.Before(b.NextReviewDate)
}

func truncate(cards []domain.Card, limit int) []domain.Card {
	if len(cards) > limit {
		return cards[:limit]
	}
	return cards
}
