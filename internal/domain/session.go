package domain

import "time"

// SessionType determines which cards a review session is built from.
type SessionType string

const (
	SessionSpaced    SessionType = "spaced"
	SessionNew       SessionType = "new"
	SessionDifficult SessionType = "difficult"
	SessionMixed     SessionType = "mixed"
)

// Valid reports whether t is a known session type.
func (t SessionType) Valid() bool {
	switch t {
	case SessionSpaced, SessionNew, SessionDifficult, SessionMixed:
		return true
	}
	return false
}

// ReviewSession is a batch of cards selected for one sitting. CardIDs are
// fixed when the session starts.
type ReviewSession struct {
	ID          string
	UserID      string
	SessionType SessionType
	Subject     string
	StartTime   time.Time
	EndTime     *time.Time
	CardIDs     []string

	// Aggregates, filled in when the session ends.
	ReviewedCount      int
	TotalTime          time.Duration
	AveragePerformance float64
}

// Ended reports whether the session has been finalized.
func (s ReviewSession) Ended() bool {
	return s.EndTime != nil
}

// Contains reports whether cardID was selected for the session.
func (s ReviewSession) Contains(cardID string) bool {
	for _, id := range s.CardIDs {
		if id == cardID {
			return true
		}
	}
	return false
}

// SessionReview is one outcome recorded during a session.
type SessionReview struct {
	SessionID   string
	CardID      string
	Performance int
	ReviewedAt  time.Time
}

// Source is a markdown deck a user imports cards from, either a local
// directory or a git repository.
type Source struct {
	ID          int64
	UserID      string
	Path        string
	Type        string // SourceLocal or SourceGit
	LastScanned *time.Time
}

const (
	SourceLocal = "local"
	SourceGit   = "git"
)
