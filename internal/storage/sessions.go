package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
)

// InsertSession stores a newly started review session.
func (db *DB) InsertSession(ctx context.Context, s domain.ReviewSession) error {
	ids, err := json.Marshal(s.CardIDs)
	if err != nil {
		return fmt.Errorf("failed to encode card ids: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO review_sessions (id, user_id, session_type, subject, start_time, card_ids)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.ID, s.UserID, string(s.SessionType), s.Subject, toMillis(s.StartTime), string(ids))
	if err != nil {
		return unavailable(fmt.Sprintf("insert session %s", s.ID), err)
	}
	return nil
}

// GetSession retrieves one of the user's review sessions.
func (db *DB) GetSession(ctx context.Context, userID, id string) (domain.ReviewSession, error) {
	var (
		s         domain.ReviewSession
		typ       string
		start     int64
		end       sql.NullInt64
		ids       string
		totalTime int64
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, user_id, session_type, subject, start_time, end_time, card_ids,
			reviewed_count, total_time_ms, average_performance
		FROM review_sessions WHERE id = ? AND user_id = ?
	`, id, userID).Scan(
		&s.ID, &s.UserID, &typ, &s.Subject, &start, &end, &ids,
		&s.ReviewedCount, &totalTime, &s.AveragePerformance,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ReviewSession{}, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
		}
		return domain.ReviewSession{}, unavailable(fmt.Sprintf("find session %s", id), err)
	}
	if err := json.Unmarshal([]byte(ids), &s.CardIDs); err != nil {
		return domain.ReviewSession{}, fmt.Errorf("failed to decode card ids of session %s: %w", id, err)
	}
	s.SessionType = domain.SessionType(typ)
	s.StartTime = fromMillis(start)
	if end.Valid {
		t := fromMillis(end.Int64)
		s.EndTime = &t
	}
	s.TotalTime = time.Duration(totalTime) * time.Millisecond
	return s, nil
}

// RecordSessionReview appends one outcome to a session.
func (db *DB) RecordSessionReview(ctx context.Context, r domain.SessionReview) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO session_reviews (session_id, card_id, performance, reviewed_at)
		VALUES (?, ?, ?, ?)
	`, r.SessionID, r.CardID, r.Performance, toMillis(r.ReviewedAt))
	if err != nil {
		return unavailable(fmt.Sprintf("record review in session %s", r.SessionID), err)
	}
	return nil
}

// SessionReviews lists the outcomes recorded in a session, oldest first.
func (db *DB) SessionReviews(ctx context.Context, sessionID string) ([]domain.SessionReview, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT session_id, card_id, performance, reviewed_at
		FROM session_reviews WHERE session_id = ?
		ORDER BY reviewed_at, rowid
	`, sessionID)
	if err != nil {
		return nil, unavailable(fmt.Sprintf("list reviews of session %s", sessionID), err)
	}
	defer rows.Close()

	var out []domain.SessionReview
	for rows.Next() {
		var (
			r  domain.SessionReview
			at int64
		)
		if err := rows.Scan(&r.SessionID, &r.CardID, &r.Performance, &at); err != nil {
			return nil, unavailable("scan session review row", err)
		}
		r.ReviewedAt = fromMillis(at)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate session reviews", err)
	}
	return out, nil
}

// FinishSession stores the end time and aggregates of a session. A session
// that was already finished yields ErrPersistenceConflict.
func (db *DB) FinishSession(ctx context.Context, s domain.ReviewSession) error {
	if s.EndTime == nil {
		return fmt.Errorf("session %s has no end time: %w", s.ID, domain.ErrInvalidInput)
	}
	res, err := db.conn.ExecContext(ctx, `
		UPDATE review_sessions
		SET end_time = ?, reviewed_count = ?, total_time_ms = ?, average_performance = ?
		WHERE id = ? AND user_id = ? AND end_time IS NULL
	`, toMillis(*s.EndTime), s.ReviewedCount, s.TotalTime.Milliseconds(), s.AveragePerformance, s.ID, s.UserID)
	if err != nil {
		return unavailable(fmt.Sprintf("finish session %s", s.ID), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("read affected rows", err)
	}
	if n == 0 {
		return fmt.Errorf("session %s already finished: %w", s.ID, domain.ErrPersistenceConflict)
	}
	return nil
}
