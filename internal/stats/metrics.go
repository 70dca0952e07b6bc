package stats

import (
	"sort"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
)

// Period is the look-back window of Metrics.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// ParsePeriod maps s to a Period, falling back to a month.
func ParsePeriod(s string) Period {
	switch p := Period(s); p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return p
	}
	return PeriodMonth
}

// Start returns the beginning of the period ending at now.
func (p Period) Start(now time.Time) time.Time {
	switch p {
	case PeriodDay:
		return now.AddDate(0, 0, -1)
	case PeriodWeek:
		return now.AddDate(0, 0, -7)
	case PeriodYear:
		return now.AddDate(-1, 0, 0)
	default:
		return now.AddDate(0, -1, 0)
	}
}

// Metrics describes review activity over a period.
type Metrics struct {
	Period               Period     `json:"period"`
	TotalCards           int        `json:"totalCards"`
	TotalReviews         int        `json:"totalReviews"`
	AvgReviewsPerCard    float64    `json:"avgReviewsPerCard"`
	RecentReviews        int        `json:"recentReviews"`
	AvgRecentPerformance float64    `json:"avgRecentPerformance"`
	ChartData            []DayPoint `json:"chartData"`
}

// DayPoint is one day of review activity, keyed by UTC date.
type DayPoint struct {
	Date           string  `json:"date"`
	Reviews        int     `json:"reviews"`
	AvgPerformance float64 `json:"avgPerformance"`
}

// ComputeMetrics summarizes the reviews made in period up to now.
func ComputeMetrics(cards []domain.Card, period Period, now time.Time) Metrics {
	m := Metrics{Period: period, TotalCards: len(cards), ChartData: []DayPoint{}}
	start := period.Start(now)

	type bucket struct{ count, sum int }
	days := make(map[string]*bucket)
	var recentSum int

	for _, c := range cards {
		m.TotalReviews += len(c.Reviews)
		for _, r := range c.Reviews {
			if r.Date.Before(start) {
				continue
			}
			m.RecentReviews++
			recentSum += r.Performance
			key := r.Date.UTC().Format("2006-01-02")
			b, ok := days[key]
			if !ok {
				b = &bucket{}
				days[key] = b
			}
			b.count++
			b.sum += r.Performance
		}
	}

	if m.TotalCards > 0 {
		m.AvgReviewsPerCard = float64(m.TotalReviews) / float64(m.TotalCards)
	}
	if m.RecentReviews > 0 {
		m.AvgRecentPerformance = float64(recentSum) / float64(m.RecentReviews)
	}
	for date, b := range days {
		m.ChartData = append(m.ChartData, DayPoint{
			Date:           date,
			Reviews:        b.count,
			AvgPerformance: float64(b.sum) / float64(b.count),
		})
	}
	sort.Slice(m.ChartData, func(i, j int) bool { return m.ChartData[i].Date < m.ChartData[j].Date })
	return m
}
