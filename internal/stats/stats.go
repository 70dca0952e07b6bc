// Package stats derives read-only summaries from a user's cards.
package stats

import (
	"sort"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/srs"
)

const maxRecentReviews = 10

// Stats is the dashboard summary of a card collection.
type Stats struct {
	Total                 int                       `json:"total"`
	DueForReview          int                       `json:"dueForReview"`
	ByDifficulty          map[domain.Difficulty]int `json:"byDifficulty"`
	BySubject             map[string]SubjectStats   `json:"bySubject"`
	MasteryScore          float64                   `json:"masteryScore"` // percentage, 0-100
	AverageReviewsPerCard float64                   `json:"averageReviewsPerCard"`
	RecentReviews         []RecentReview            `json:"recentReviews"`
}

type SubjectStats struct {
	Total  int `json:"total"`
	Easy   int `json:"easy"`
	Medium int `json:"medium"`
	Hard   int `json:"hard"`
	Due    int `json:"due"`
}

// RecentReview is the latest review of a card made today.
type RecentReview struct {
	CardID      string    `json:"cardId"`
	Question    string    `json:"question"`
	Performance int       `json:"performance"`
	Date        time.Time `json:"date"`
}

// Accumulator folds cards into Stats one at a time, so a caller can stream
// rows from the store instead of loading the whole collection.
type Accumulator struct {
	params *srs.Params
	now    time.Time
	today  time.Time

	total    int
	due      int
	mastered int
	reviews  int
	byDiff   map[domain.Difficulty]int
	bySubj   map[string]SubjectStats
	recent   []RecentReview
}

// NewAccumulator returns an empty Accumulator evaluated at now.
func NewAccumulator(params *srs.Params, now time.Time) *Accumulator {
	y, m, d := now.Date()
	return &Accumulator{
		params: params,
		now:    now,
		today:  time.Date(y, m, d, 0, 0, 0, 0, now.Location()),
		byDiff: map[domain.Difficulty]int{domain.Easy: 0, domain.Medium: 0, domain.Hard: 0},
		bySubj: make(map[string]SubjectStats),
	}
}

// Add folds one card into the summary.
func (a *Accumulator) Add(card domain.Card) {
	a.total++
	a.reviews += len(card.Reviews)
	diff := card.Difficulty
	if diff != domain.Easy && diff != domain.Hard {
		diff = domain.Medium
	}
	a.byDiff[diff]++

	due := card.IsDue(a.now)
	if due {
		a.due++
	}
	if a.params.Mastered(card) {
		a.mastered++
	}

	s := a.bySubj[card.Subject]
	s.Total++
	switch diff {
	case domain.Easy:
		s.Easy++
	case domain.Hard:
		s.Hard++
	default:
		s.Medium++
	}
	if due {
		s.Due++
	}
	a.bySubj[card.Subject] = s

	if n := len(card.Reviews); n > 0 {
		last := card.Reviews[n-1]
		if !last.Date.Before(a.today) {
			a.recent = append(a.recent, RecentReview{
				CardID:      card.ID,
				Question:    card.Question,
				Performance: last.Performance,
				Date:        last.Date,
			})
		}
	}
}

// Result returns the summary of every card added so far.
func (a *Accumulator) Result() Stats {
	st := Stats{
		Total:         a.total,
		DueForReview:  a.due,
		ByDifficulty:  make(map[domain.Difficulty]int, len(a.byDiff)),
		BySubject:     make(map[string]SubjectStats, len(a.bySubj)),
		RecentReviews: []RecentReview{},
	}
	for k, v := range a.byDiff {
		st.ByDifficulty[k] = v
	}
	for k, v := range a.bySubj {
		st.BySubject[k] = v
	}
	if a.total > 0 {
		st.MasteryScore = float64(a.mastered) / float64(a.total) * 100
		st.AverageReviewsPerCard = float64(a.reviews) / float64(a.total)
	}

	recent := append([]RecentReview(nil), a.recent...)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].Date.After(recent[j].Date) })
	if len(recent) > maxRecentReviews {
		recent = recent[:maxRecentReviews]
	}
	st.RecentReviews = append(st.RecentReviews, recent...)
	return st
}

// Compute summarizes cards at now.
func Compute(params *srs.Params, cards []domain.Card, now time.Time) Stats {
	acc := NewAccumulator(params, now)
	for _, c := range cards {
		acc.Add(c)
	}
	return acc.Result()
}
