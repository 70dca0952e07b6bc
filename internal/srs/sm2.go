package srs

import (
	"fmt"
	"math"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
)

// Params holds the tuning constants of the scheduler.
type Params struct {
	DefaultEase        float64 // ease factor of a new or reset card
	MinEase            float64 // hard floor for the ease factor
	PassThreshold      int     // performance >= PassThreshold counts as recalled
	GraduationInterval int     // interval after the first pass from interval 1
	MaxInterval        int     // upper bound on the interval, in days
	FailEasePenalty    float64

	DifficultyWindow int     // trailing reviews averaged for the difficulty label
	EasyThreshold    float64 // average >= EasyThreshold is easy
	HardThreshold    float64 // average < HardThreshold is hard

	MasteryWindow    int // trailing reviews that must all be high
	MasteryThreshold int

	DefaultSessionLimit int
}

// DefaultParams returns the SM-2 constants used throughout the app.
func DefaultParams() *Params {
	return &Params{
		DefaultEase:         2.5,
		MinEase:             1.3,
		PassThreshold:       3,
		GraduationInterval:  6,
		MaxInterval:         36500,
		FailEasePenalty:     0.2,
		DifficultyWindow:    5,
		EasyThreshold:       4,
		HardThreshold:       2.5,
		MasteryWindow:       3,
		MasteryThreshold:    4,
		DefaultSessionLimit: 20,
	}
}

const (
	MinPerformance = 0
	MaxPerformance = 5
)

// ValidatePerformance returns ErrInvalidInput unless performance is in [0,5].
func ValidatePerformance(performance int) error {
	if performance < MinPerformance || performance > MaxPerformance {
		return fmt.Errorf("%w: performance %d outside [%d,%d]", domain.ErrInvalidInput, performance, MinPerformance, MaxPerformance)
	}
	return nil
}

// ApplyReview returns the card's state after one review recorded at now.
// The given card is never modified; on error it is returned unchanged.
func (p *Params) ApplyReview(card domain.Card, performance int, now time.Time) (domain.Card, error) {
	if err := ValidatePerformance(performance); err != nil {
		return card, err
	}

	next := card
	next.Reviews = make([]domain.Review, len(card.Reviews), len(card.Reviews)+1)
	copy(next.Reviews, card.Reviews)
	next.Reviews = append(next.Reviews, domain.Review{Date: now, Performance: performance})

	interval := card.Interval
	if interval < 1 {
		interval = 1
	}

	if performance >= p.PassThreshold {
		// Multiplying from interval 1 would stay stuck near 2-3 days, so
		// the first pass jumps straight to the graduation interval.
		if interval == 1 {
			interval = p.GraduationInterval
		} else {
			interval = p.grow(interval, card.EaseFactor)
		}
		q := float64(MaxPerformance - performance)
		next.EaseFactor = math.Max(p.MinEase, card.EaseFactor+0.1-q*(0.08+q*0.02))
	} else {
		interval = 1
		next.EaseFactor = math.Max(p.MinEase, card.EaseFactor-p.FailEasePenalty)
	}
	if interval < 1 {
		interval = 1
	}
	if limit := p.maxInterval(); interval > limit {
		interval = limit
	}

	next.Interval = interval
	next.NextReviewDate = now.AddDate(0, 0, interval)
	next.Difficulty = p.Difficulty(next.Reviews)
	return next, nil
}

// grow multiplies interval by ease, clamping in float space: converting an
// out-of-range float to int is implementation-defined.
func (p *Params) grow(interval int, ease float64) int {
	return int(math.Min(math.Round(float64(interval)*ease), float64(p.maxInterval())))
}

func (p *Params) maxInterval() int {
	if p.MaxInterval > 0 {
		return p.MaxInterval
	}
	return math.MaxInt32
}

// ResetCard clears the review history and scheduling state of a card so it
// is due again at now.
func (p *Params) ResetCard(card domain.Card, now time.Time) domain.Card {
	card.Reviews = []domain.Review{}
	card.Interval = 1
	card.EaseFactor = p.DefaultEase
	card.Difficulty = domain.Medium
	card.NextReviewDate = now
	return card
}

// Difficulty derives the difficulty label from the trailing window of
// reviews. A card with no reviews is medium.
func (p *Params) Difficulty(reviews []domain.Review) domain.Difficulty {
	window := trailing(reviews, p.DifficultyWindow)
	if len(window) == 0 {
		return domain.Medium
	}
	var sum int
	for _, r := range window {
		sum += r.Performance
	}
	avg := float64(sum) / float64(len(window))
	switch {
	case avg >= p.EasyThreshold:
		return domain.Easy
	case avg >= p.HardThreshold:
		return domain.Medium
	default:
		return domain.Hard
	}
}

// Mastered reports whether the last MasteryWindow reviews all exist and
// all scored at least MasteryThreshold.
func (p *Params) Mastered(card domain.Card) bool {
	if len(card.Reviews) < p.MasteryWindow {
		return false
	}
	for _, r := range trailing(card.Reviews, p.MasteryWindow) {
		if r.Performance < p.MasteryThreshold {
			return false
		}
	}
	return true
}

func trailing(reviews []domain.Review, n int) []domain.Review {
	if len(reviews) > n {
		return reviews[len(reviews)-n:]
	}
	return reviews
}
