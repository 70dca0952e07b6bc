package srs

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
)

var t0 = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestApplyReviewFirstPerfectReview(t *testing.T) {
	params := DefaultParams()
	card := domain.NewCard("u1", t0.Add(-48*time.Hour))

	got, err := params.ApplyReview(card, 5, t0)
	if err != nil {
		t.Fatalf("ApplyReview() returned an unexpected error: %v", err)
	}
	if got.Interval != 6 {
		t.Errorf("Expected interval 6, but got %d", got.Interval)
	}
	if !approx(got.EaseFactor, 2.6) {
		t.Errorf("Expected ease factor 2.6, but got %v", got.EaseFactor)
	}
	if want := t0.Add(6 * 24 * time.Hour); !got.NextReviewDate.Equal(want) {
		t.Errorf("Expected next review %v, but got %v", want, got.NextReviewDate)
	}
	if got.Difficulty != domain.Easy {
		t.Errorf("Expected difficulty easy, but got %s", got.Difficulty)
	}
	if len(got.Reviews) != 1 || got.Reviews[0].Performance != 5 || !got.Reviews[0].Date.Equal(t0) {
		t.Errorf("Expected a single review {%v, 5}, but got %+v", t0, got.Reviews)
	}
}

func TestApplyReviewFailResets(t *testing.T) {
	params := DefaultParams()
	card := domain.NewCard("u1", t0)
	card.Interval = 6
	card.EaseFactor = 2.5
	card.Reviews = []domain.Review{{Date: t0, Performance: 4}, {Date: t0, Performance: 4}, {Date: t0, Performance: 3}, {Date: t0, Performance: 5}}

	got, err := params.ApplyReview(card, 2, t0)
	if err != nil {
		t.Fatalf("ApplyReview() returned an unexpected error: %v", err)
	}
	if got.Interval != 1 {
		t.Errorf("Expected interval 1, but got %d", got.Interval)
	}
	if !approx(got.EaseFactor, 2.3) {
		t.Errorf("Expected ease factor 2.3, but got %v", got.EaseFactor)
	}
	// avg(4,4,3,5,2) = 3.6
	if got.Difficulty != domain.Medium {
		t.Errorf("Expected difficulty medium, but got %s", got.Difficulty)
	}
}

func TestApplyReviewMultipliesInterval(t *testing.T) {
	params := DefaultParams()
	card := domain.NewCard("u1", t0)
	card.Interval = 10
	card.EaseFactor = 2.0

	got, err := params.ApplyReview(card, 4, t0)
	if err != nil {
		t.Fatalf("ApplyReview() returned an unexpected error: %v", err)
	}
	if got.Interval != 20 {
		t.Errorf("Expected interval 20, but got %d", got.Interval)
	}
	if !approx(got.EaseFactor, 2.0) {
		t.Errorf("Expected ease factor to stay 2.0, but got %v", got.EaseFactor)
	}
}

func TestApplyReviewEaseAdjustment(t *testing.T) {
	params := DefaultParams()
	testCases := []struct {
		performance int
		expected    float64
	}{
		{5, 2.6},
		{4, 2.5},
		{3, 2.36},
		{2, 2.3},
		{0, 2.3},
	}
	for _, tc := range testCases {
		card := domain.NewCard("u1", t0)
		card.Interval = 3
		got, err := params.ApplyReview(card, tc.performance, t0)
		if err != nil {
			t.Fatalf("ApplyReview(%d) returned an unexpected error: %v", tc.performance, err)
		}
		if !approx(got.EaseFactor, tc.expected) {
			t.Errorf("performance %d: expected ease %v, but got %v", tc.performance, tc.expected, got.EaseFactor)
		}
	}
}

func TestApplyReviewRejectsInvalidPerformance(t *testing.T) {
	params := DefaultParams()
	card := domain.NewCard("u1", t0)
	card.Reviews = []domain.Review{{Date: t0, Performance: 3}}
	before := card
	before.Reviews = append([]domain.Review(nil), card.Reviews...)

	for _, perf := range []int{-1, 6, 7} {
		got, err := params.ApplyReview(card, perf, t0)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("performance %d: expected ErrInvalidInput, but got %v", perf, err)
		}
		if !reflect.DeepEqual(got, before) {
			t.Errorf("performance %d: expected the original card back, but got %+v", perf, got)
		}
		if !reflect.DeepEqual(card, before) {
			t.Errorf("performance %d: input card was modified", perf)
		}
	}
}

func TestApplyReviewLongPassStreak(t *testing.T) {
	params := DefaultParams()
	card := domain.NewCard("u1", t0)
	now := t0
	for i := 0; i < 40; i++ {
		var err error
		card, err = params.ApplyReview(card, 5, now)
		if err != nil {
			t.Fatalf("review %d: unexpected error: %v", i, err)
		}
		if card.Interval < 1 || card.Interval > params.MaxInterval {
			t.Fatalf("review %d: interval %d outside [1,%d]", i, card.Interval, params.MaxInterval)
		}
		if want := now.AddDate(0, 0, card.Interval); !card.NextReviewDate.Equal(want) {
			t.Fatalf("review %d: expected next review %v, but got %v", i, want, card.NextReviewDate)
		}
		if !card.NextReviewDate.After(now) {
			t.Fatalf("review %d: next review %v is not after %v", i, card.NextReviewDate, now)
		}
	}
	if card.Interval != params.MaxInterval {
		t.Errorf("Expected the interval to settle at %d, but got %d", params.MaxInterval, card.Interval)
	}
}

func TestApplyReviewIntervalCap(t *testing.T) {
	card := domain.NewCard("u1", t0)
	card.Interval = 1 << 40
	card.EaseFactor = 1e12

	params := DefaultParams()
	got, err := params.ApplyReview(card, 4, t0)
	if err != nil {
		t.Fatalf("ApplyReview() returned an unexpected error: %v", err)
	}
	if got.Interval != params.MaxInterval {
		t.Errorf("Expected interval %d, but got %d", params.MaxInterval, got.Interval)
	}

	// Without a configured cap the interval still stays in int range.
	params.MaxInterval = 0
	got, _ = params.ApplyReview(card, 4, t0)
	if got.Interval < 1 || !got.NextReviewDate.After(t0) {
		t.Errorf("Expected a positive capped interval, but got %d (next %v)", got.Interval, got.NextReviewDate)
	}
}

func TestApplyReviewDoesNotAliasInput(t *testing.T) {
	params := DefaultParams()
	card := domain.NewCard("u1", t0)
	card.Reviews = make([]domain.Review, 1, 8)
	card.Reviews[0] = domain.Review{Date: t0, Performance: 1}

	a, _ := params.ApplyReview(card, 5, t0)
	b, _ := params.ApplyReview(card, 0, t0)
	if a.Reviews[1].Performance != 5 || b.Reviews[1].Performance != 0 {
		t.Errorf("Expected independent review histories, but got %+v and %+v", a.Reviews, b.Reviews)
	}
	if len(card.Reviews) != 1 {
		t.Errorf("Expected the input history to keep 1 review, but got %d", len(card.Reviews))
	}
}

func TestApplyReviewProperties(t *testing.T) {
	params := DefaultParams()
	// A fixed pseudo-random walk over every performance value.
	seq := []int{5, 0, 3, 3, 1, 4, 5, 5, 2, 0, 0, 0, 0, 3, 4, 5, 1, 2, 3, 4, 0, 5, 5, 5, 5, 3}

	t.Run("floors and due date", func(t *testing.T) {
		card := domain.NewCard("u1", t0)
		now := t0
		for i, perf := range seq {
			prev := card
			var err error
			card, err = params.ApplyReview(card, perf, now)
			if err != nil {
				t.Fatalf("step %d: unexpected error: %v", i, err)
			}
			if card.EaseFactor < params.MinEase {
				t.Errorf("step %d: ease factor %v below floor", i, card.EaseFactor)
			}
			if card.Interval < 1 {
				t.Errorf("step %d: interval %d below 1", i, card.Interval)
			}
			if want := now.AddDate(0, 0, card.Interval); !card.NextReviewDate.Equal(want) {
				t.Errorf("step %d: expected next review %v, but got %v", i, want, card.NextReviewDate)
			}
			if perf < 3 && card.Interval != 1 {
				t.Errorf("step %d: fail should reset interval to 1, got %d", i, card.Interval)
			}
			if perf >= 3 && prev.Interval == 1 && card.Interval != 6 {
				t.Errorf("step %d: pass from interval 1 should graduate to 6, got %d", i, card.Interval)
			}
			if len(card.Reviews) != i+1 {
				t.Errorf("step %d: expected %d reviews, got %d", i, i+1, len(card.Reviews))
			}
			now = card.NextReviewDate
		}
	})

	t.Run("graduation ignores ease", func(t *testing.T) {
		for _, ease := range []float64{1.3, 1.7, 2.5, 3.9} {
			card := domain.NewCard("u1", t0)
			card.EaseFactor = ease
			got, _ := params.ApplyReview(card, 3, t0)
			if got.Interval != 6 {
				t.Errorf("ease %v: expected interval 6, got %d", ease, got.Interval)
			}
		}
	})

	t.Run("ease never drops below floor", func(t *testing.T) {
		card := domain.NewCard("u1", t0)
		card.EaseFactor = 1.35
		got, _ := params.ApplyReview(card, 0, t0)
		if !approx(got.EaseFactor, 1.3) {
			t.Errorf("Expected ease clamped to 1.3, got %v", got.EaseFactor)
		}
		card.Interval = 4
		got, _ = params.ApplyReview(card, 3, t0)
		if !approx(got.EaseFactor, 1.3) {
			t.Errorf("Expected ease clamped to 1.3 on a weak pass, got %v", got.EaseFactor)
		}
	})
}

func TestDifficultyWindow(t *testing.T) {
	params := DefaultParams()
	mk := func(perfs ...int) []domain.Review {
		out := make([]domain.Review, len(perfs))
		for i, p := range perfs {
			out[i] = domain.Review{Date: t0, Performance: p}
		}
		return out
	}
	testCases := []struct {
		name     string
		reviews  []domain.Review
		expected domain.Difficulty
	}{
		{"no reviews", nil, domain.Medium},
		{"single perfect", mk(5), domain.Easy},
		{"boundary easy", mk(4, 4), domain.Easy},
		{"boundary medium", mk(2, 3), domain.Medium},
		{"hard", mk(2, 2, 3, 1, 1), domain.Hard},
		{"only last five count", mk(0, 0, 0, 5, 5, 5, 5, 5), domain.Easy},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := params.Difficulty(tc.reviews); got != tc.expected {
				t.Errorf("Expected %s, but got %s", tc.expected, got)
			}
		})
	}
}

func TestResetCard(t *testing.T) {
	params := DefaultParams()
	card := domain.NewCard("u1", t0)
	card.ID = "c1"
	card.Interval = 40
	card.EaseFactor = 1.3
	card.Difficulty = domain.Hard
	card.Reviews = []domain.Review{{Date: t0, Performance: 1}, {Date: t0, Performance: 0}}

	now := t0.Add(72 * time.Hour)
	got := params.ResetCard(card, now)
	if got.Interval != 1 || got.EaseFactor != 2.5 || got.Difficulty != domain.Medium {
		t.Errorf("Expected {1, 2.5, medium}, but got {%d, %v, %s}", got.Interval, got.EaseFactor, got.Difficulty)
	}
	if got.Reviews == nil || len(got.Reviews) != 0 {
		t.Errorf("Expected an empty review history, but got %+v", got.Reviews)
	}
	if !got.NextReviewDate.Equal(now) {
		t.Errorf("Expected next review %v, but got %v", now, got.NextReviewDate)
	}
	if got.ID != "c1" {
		t.Errorf("Expected identity to be kept, but got id %q", got.ID)
	}
	if len(card.Reviews) != 2 {
		t.Error("ResetCard modified the input history")
	}
}

func TestMastered(t *testing.T) {
	params := DefaultParams()
	card := domain.NewCard("u1", t0)
	if params.Mastered(card) {
		t.Error("A card without reviews should not be mastered")
	}
	card.Reviews = []domain.Review{{Date: t0, Performance: 5}, {Date: t0, Performance: 4}}
	if params.Mastered(card) {
		t.Error("Two reviews are not enough for mastery")
	}
	card.Reviews = append(card.Reviews, domain.Review{Date: t0, Performance: 4})
	if !params.Mastered(card) {
		t.Error("Expected three reviews >= 4 to be mastered")
	}
	card.Reviews = append(card.Reviews, domain.Review{Date: t0, Performance: 3})
	if params.Mastered(card) {
		t.Error("A trailing 3 should break mastery")
	}
}
