package web

import (
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
)

type cardRequest struct {
	Question    string   `json:"question" validate:"required,max=4000"`
	Answer      string   `json:"answer" validate:"required,max=4000"`
	Explanation string   `json:"explanation" validate:"max=8000"`
	Subject     string   `json:"subject" validate:"max=200"`
	Tags        []string `json:"tags" validate:"max=50,dive,required,max=100,excludes=,"`
	Difficulty  string   `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
}

// apply copies the author-supplied fields onto card.
func (req cardRequest) apply(card *domain.Card) {
	card.Question = req.Question
	card.Answer = req.Answer
	card.Explanation = req.Explanation
	card.Subject = req.Subject
	if card.Subject == "" {
		card.Subject = domain.DefaultSubject
	}
	card.Tags = req.Tags
}

type bulkRequest struct {
	Flashcards []cardRequest `json:"flashcards" validate:"required,min=1,max=1000,dive"`
}

type reviewRequest struct {
	Performance *int   `json:"performance" validate:"required"`
	SessionID   string `json:"sessionId"`
}

type sessionRequest struct {
	Type    string `json:"type"`
	Subject string `json:"subject"`
	Limit   *int   `json:"limit"`
}

type importRequest struct {
	Format string `json:"format" validate:"required,oneof=csv"`
	Data   string `json:"data" validate:"required"`
}

type sourceRequest struct {
	Path string `json:"path" validate:"required"`
}

type reviewJSON struct {
	Date        time.Time `json:"date"`
	Performance int       `json:"performance"`
}

type cardResponse struct {
	ID             string            `json:"id"`
	Subject        string            `json:"subject"`
	Tags           []string          `json:"tags"`
	Question       string            `json:"question"`
	Answer         string            `json:"answer"`
	Explanation    string            `json:"explanation,omitempty"`
	Difficulty     domain.Difficulty `json:"difficulty"`
	Interval       int               `json:"interval"`
	EaseFactor     float64           `json:"easeFactor"`
	NextReviewDate time.Time         `json:"nextReviewDate"`
	Reviews        []reviewJSON      `json:"reviews"`
	CreatedAt      time.Time         `json:"createdAt"`
	SourceID       int64             `json:"sourceId,omitempty"`
	Mastered       bool              `json:"mastered"`
}

type listResponse struct {
	Flashcards []cardResponse `json:"flashcards"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
}

type sessionResponse struct {
	ID                 string             `json:"id"`
	SessionType        domain.SessionType `json:"sessionType"`
	Subject            string             `json:"subject,omitempty"`
	StartTime          time.Time          `json:"startTime"`
	EndTime            *time.Time         `json:"endTime,omitempty"`
	CardIDs            []string           `json:"cardIds"`
	ReviewedCount      int                `json:"reviewedCount"`
	TotalTimeSeconds   float64            `json:"totalTime"`
	AveragePerformance float64            `json:"averagePerformance"`
}

type sourceResponse struct {
	ID          int64      `json:"id"`
	Path        string     `json:"path"`
	Type        string     `json:"type"`
	LastScanned *time.Time `json:"lastScanned,omitempty"`
}

func (s *Server) toCard(c domain.Card) cardResponse {
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	reviews := make([]reviewJSON, len(c.Reviews))
	for i, r := range c.Reviews {
		reviews[i] = reviewJSON{Date: r.Date, Performance: r.Performance}
	}
	return cardResponse{
		ID:             c.ID,
		Subject:        c.Subject,
		Tags:           tags,
		Question:       c.Question,
		Answer:         c.Answer,
		Explanation:    c.Explanation,
		Difficulty:     c.Difficulty,
		Interval:       c.Interval,
		EaseFactor:     c.EaseFactor,
		NextReviewDate: c.NextReviewDate,
		Reviews:        reviews,
		CreatedAt:      c.CreatedAt,
		SourceID:       c.SourceID,
		Mastered:       s.params.Mastered(c),
	}
}

func (s *Server) toCards(cards []domain.Card) []cardResponse {
	out := make([]cardResponse, len(cards))
	for i, c := range cards {
		out[i] = s.toCard(c)
	}
	return out
}

func toSession(rs domain.ReviewSession) sessionResponse {
	ids := rs.CardIDs
	if ids == nil {
		ids = []string{}
	}
	return sessionResponse{
		ID:                 rs.ID,
		SessionType:        rs.SessionType,
		Subject:            rs.Subject,
		StartTime:          rs.StartTime,
		EndTime:            rs.EndTime,
		CardIDs:            ids,
		ReviewedCount:      rs.ReviewedCount,
		TotalTimeSeconds:   rs.TotalTime.Seconds(),
		AveragePerformance: rs.AveragePerformance,
	}
}

func toSource(src domain.Source) sourceResponse {
	return sourceResponse{ID: src.ID, Path: src.Path, Type: src.Type, LastScanned: src.LastScanned}
}
