package domain

import "time"

// Difficulty is the derived difficulty label of a card.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// ParseDifficulty returns the Difficulty named by s.
func ParseDifficulty(s string) (Difficulty, bool) {
	switch d := Difficulty(s); d {
	case Easy, Medium, Hard:
		return d, true
	}
	return "", false
}

// Card is a single flashcard owned by one user, together with its
// scheduling state.
type Card struct {
	ID          string
	UserID      string
	Subject     string
	Tags        []string
	Question    string
	Answer      string
	Explanation string

	Difficulty     Difficulty
	Interval       int // days until the next scheduled review, always >= 1
	EaseFactor     float64
	NextReviewDate time.Time
	Reviews        []Review // chronological, append-only

	CreatedAt time.Time

	// Fingerprint is the content hash used to recognise cards imported from
	// markdown sources. Empty for cards created through the API.
	Fingerprint string
	SourceID    int64 // 0 when the card does not come from a source

	// Version is bumped by the store on every successful update.
	Version int64
}

// Review records a single review event for a card.
// Performance is on a 0-5 scale:
// 0: total failure
// 3: correct with effort
// 5: perfect recall
type Review struct {
	Date        time.Time
	Performance int
}

// DefaultSubject is used for cards imported without a subject.
const DefaultSubject = "General"

// NewCard returns a card with default scheduling state, due immediately.
func NewCard(userID string, now time.Time) Card {
	return Card{
		UserID:         userID,
		Difficulty:     Medium,
		Interval:       1,
		EaseFactor:     2.5,
		NextReviewDate: now,
		CreatedAt:      now,
	}
}

// IsDue reports whether the card is due for review at now.
func (c Card) IsDue(now time.Time) bool {
	return !c.NextReviewDate.After(now)
}
