package stats

import (
	"math"
	"testing"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/srs"
)

var now = time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)

func card(id, subject string, diff domain.Difficulty, next time.Time, perfs ...int) domain.Card {
	c := domain.NewCard("u1", now.AddDate(0, -2, 0))
	c.ID = id
	c.Subject = subject
	c.Question = "q-" + id
	c.Difficulty = diff
	c.NextReviewDate = next
	for i, p := range perfs {
		c.Reviews = append(c.Reviews, domain.Review{
			Date:        now.Add(-time.Duration(len(perfs)-i) * 24 * time.Hour),
			Performance: p,
		})
	}
	return c
}

func TestComputeEmpty(t *testing.T) {
	st := Compute(srs.DefaultParams(), nil, now)
	if st.Total != 0 || st.DueForReview != 0 || st.MasteryScore != 0 || st.AverageReviewsPerCard != 0 {
		t.Errorf("Expected an all-zero summary, but got %+v", st)
	}
	for _, d := range []domain.Difficulty{domain.Easy, domain.Medium, domain.Hard} {
		if n, ok := st.ByDifficulty[d]; !ok || n != 0 {
			t.Errorf("Expected ByDifficulty[%s] = 0, but got %d (present=%v)", d, n, ok)
		}
	}
	if st.RecentReviews == nil {
		t.Error("Expected RecentReviews to be an empty slice, not nil")
	}
}

func TestCompute(t *testing.T) {
	cards := []domain.Card{
		card("a", "math", domain.Easy, now.Add(-time.Hour), 5, 4, 4),       // mastered, due
		card("b", "math", domain.Medium, now.Add(24*time.Hour), 5, 5, 3),   // not mastered
		card("c", "bio", domain.Hard, now, 1),                              // due (equal to now)
		card("d", "bio", domain.Medium, now.Add(48*time.Hour), 4, 4, 4, 5), // mastered
	}
	st := Compute(srs.DefaultParams(), cards, now)

	if st.Total != 4 {
		t.Errorf("Expected total 4, but got %d", st.Total)
	}
	if st.DueForReview != 2 {
		t.Errorf("Expected 2 due cards, but got %d", st.DueForReview)
	}
	if st.ByDifficulty[domain.Easy] != 1 || st.ByDifficulty[domain.Medium] != 2 || st.ByDifficulty[domain.Hard] != 1 {
		t.Errorf("Unexpected difficulty counts: %v", st.ByDifficulty)
	}
	if math.Abs(st.MasteryScore-50) > 1e-9 {
		t.Errorf("Expected mastery 50%%, but got %v", st.MasteryScore)
	}
	if math.Abs(st.AverageReviewsPerCard-2.75) > 1e-9 {
		t.Errorf("Expected 2.75 reviews per card, but got %v", st.AverageReviewsPerCard)
	}
	if want := (SubjectStats{Total: 2, Medium: 1, Hard: 1, Due: 1}); st.BySubject["bio"] != want {
		t.Errorf("Expected bio stats %+v, but got %+v", want, st.BySubject["bio"])
	}
}

func TestComputeUnknownDifficultyCountsAsMedium(t *testing.T) {
	cards := []domain.Card{
		card("a", "math", "", now.Add(time.Hour)),
		card("b", "math", "brutal", now.Add(time.Hour)),
		card("c", "math", domain.Hard, now.Add(time.Hour)),
	}
	st := Compute(srs.DefaultParams(), cards, now)

	if len(st.ByDifficulty) != 3 {
		t.Errorf("Expected exactly three difficulty buckets, but got %v", st.ByDifficulty)
	}
	if st.ByDifficulty[domain.Medium] != 2 || st.ByDifficulty[domain.Hard] != 1 {
		t.Errorf("Unexpected difficulty counts: %v", st.ByDifficulty)
	}
	if want := (SubjectStats{Total: 3, Medium: 2, Hard: 1}); st.BySubject["math"] != want {
		t.Errorf("Expected math stats %+v, but got %+v", want, st.BySubject["math"])
	}
}

func TestRecentReviews(t *testing.T) {
	params := srs.DefaultParams()
	acc := NewAccumulator(params, now)

	today := card("today", "x", domain.Medium, now)
	today.Reviews = []domain.Review{{Date: now.Add(-time.Hour), Performance: 4}}
	earlier := card("earlier", "x", domain.Medium, now)
	earlier.Reviews = []domain.Review{{Date: now.Add(-5 * time.Hour), Performance: 2}}
	yesterday := card("yesterday", "x", domain.Medium, now)
	yesterday.Reviews = []domain.Review{{Date: now.Add(-20 * time.Hour), Performance: 5}}

	acc.Add(earlier)
	acc.Add(yesterday)
	acc.Add(today)
	st := acc.Result()

	if len(st.RecentReviews) != 2 {
		t.Fatalf("Expected 2 reviews from today, but got %+v", st.RecentReviews)
	}
	if st.RecentReviews[0].CardID != "today" || st.RecentReviews[1].CardID != "earlier" {
		t.Errorf("Expected newest first, but got %+v", st.RecentReviews)
	}

	for i := 0; i < 15; i++ {
		c := card("bulk", "x", domain.Medium, now)
		c.Reviews = []domain.Review{{Date: now.Add(-time.Duration(i) * time.Minute), Performance: 3}}
		acc.Add(c)
	}
	if got := len(acc.Result().RecentReviews); got != maxRecentReviews {
		t.Errorf("Expected recent reviews capped at %d, but got %d", maxRecentReviews, got)
	}
}

func TestComputeMetrics(t *testing.T) {
	c1 := card("a", "x", domain.Medium, now)
	c1.Reviews = []domain.Review{
		{Date: now.AddDate(0, 0, -40), Performance: 1},
		{Date: now.AddDate(0, 0, -3), Performance: 4},
		{Date: now.AddDate(0, 0, -3).Add(time.Hour), Performance: 2},
	}
	c2 := card("b", "x", domain.Medium, now)
	c2.Reviews = []domain.Review{{Date: now.AddDate(0, 0, -1), Performance: 5}}

	m := ComputeMetrics([]domain.Card{c1, c2}, PeriodWeek, now)
	if m.TotalReviews != 4 || m.RecentReviews != 3 {
		t.Errorf("Expected 4 total and 3 recent reviews, but got %d and %d", m.TotalReviews, m.RecentReviews)
	}
	if math.Abs(m.AvgRecentPerformance-11.0/3) > 1e-9 {
		t.Errorf("Expected average %v, but got %v", 11.0/3, m.AvgRecentPerformance)
	}
	if len(m.ChartData) != 2 {
		t.Fatalf("Expected 2 chart points, but got %+v", m.ChartData)
	}
	if m.ChartData[0].Date != "2024-05-07" || m.ChartData[0].Reviews != 2 || m.ChartData[0].AvgPerformance != 3 {
		t.Errorf("Unexpected first chart point %+v", m.ChartData[0])
	}
	if m.ChartData[1].Date != "2024-05-09" {
		t.Errorf("Expected the chart sorted by date, but got %+v", m.ChartData)
	}
}

func TestParsePeriod(t *testing.T) {
	if ParsePeriod("week") != PeriodWeek {
		t.Error("Expected week to parse")
	}
	if ParsePeriod("decade") != PeriodMonth {
		t.Error("Expected unknown periods to fall back to month")
	}
}
