package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/google/uuid"
)

const cardColumns = `id, user_id, subject, tags, question, answer, explanation, difficulty,
	interval_days, ease_factor, next_review, created_at, fingerprint, source_id, version`

// Filter narrows card listings. Zero fields do not filter.
type Filter struct {
	Subject    string
	Difficulty domain.Difficulty
	Tags       []string // any tag matches
	DueBefore  *time.Time
	Limit      int
	Offset     int
}

// InsertCard stores a new card together with any review history it
// already has. An ID is assigned when the card has none.
func (db *DB) InsertCard(ctx context.Context, card domain.Card) (domain.Card, error) {
	cards, err := db.InsertCards(ctx, []domain.Card{card})
	if err != nil {
		return domain.Card{}, err
	}
	return cards[0], nil
}

// InsertCards stores cards in a single transaction.
func (db *DB) InsertCards(ctx context.Context, cards []domain.Card) ([]domain.Card, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin transaction", err)
	}
	defer tx.Rollback()

	out := make([]domain.Card, 0, len(cards))
	for _, card := range cards {
		if card.ID == "" {
			card.ID = uuid.NewString()
		}
		card.Version = 1
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cards (`+cardColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			card.ID,
			card.UserID,
			card.Subject,
			joinTags(card.Tags),
			card.Question,
			card.Answer,
			card.Explanation,
			string(card.Difficulty),
			card.Interval,
			card.EaseFactor,
			toMillis(card.NextReviewDate),
			toMillis(card.CreatedAt),
			card.Fingerprint,
			nullSource(card.SourceID),
			card.Version,
		)
		if err != nil {
			return nil, unavailable(fmt.Sprintf("insert card %s", card.ID), err)
		}
		if err := insertReviews(ctx, tx, card.ID, card.Reviews, 0); err != nil {
			return nil, err
		}
		out = append(out, card)
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit card insert", err)
	}
	return out, nil
}

// GetCard retrieves one of the user's cards with its review history.
func (db *DB) GetCard(ctx context.Context, userID, id string) (domain.Card, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ? AND user_id = ?`, id, userID)
	card, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Card{}, fmt.Errorf("card %s: %w", id, domain.ErrNotFound)
		}
		return domain.Card{}, unavailable(fmt.Sprintf("find card %s", id), err)
	}
	reviews, err := db.reviewsFor(ctx, `card_id = ?`, id)
	if err != nil {
		return domain.Card{}, err
	}
	card.Reviews = reviews[id]
	return card, nil
}

// ListCards returns the user's cards ordered by next review date, newest
// first among equal dates.
func (db *DB) ListCards(ctx context.Context, userID string, f Filter) ([]domain.Card, error) {
	where, args := f.where(userID)
	query := `SELECT ` + cardColumns + ` FROM cards WHERE ` + where + ` ORDER BY next_review ASC, created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}
	return db.queryCards(ctx, userID, query, args...)
}

// CountCards counts the user's cards matching f, ignoring its limit.
func (db *DB) CountCards(ctx context.Context, userID string, f Filter) (int, error) {
	where, args := f.where(userID)
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards WHERE `+where, args...).Scan(&n); err != nil {
		return 0, unavailable("count cards", err)
	}
	return n, nil
}

// SearchCards finds cards whose question, answer or explanation contains
// query, case-insensitively.
func (db *DB) SearchCards(ctx context.Context, userID, query string, f Filter) ([]domain.Card, error) {
	where, args := f.where(userID)
	if query != "" {
		like := "%" + escapeLike(strings.ToLower(query)) + "%"
		where += ` AND (LOWER(question) LIKE ? ESCAPE '\' OR LOWER(answer) LIKE ? ESCAPE '\' OR LOWER(explanation) LIKE ? ESCAPE '\')`
		args = append(args, like, like, like)
	}
	q := `SELECT ` + cardColumns + ` FROM cards WHERE ` + where + ` ORDER BY next_review ASC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	return db.queryCards(ctx, userID, q, args...)
}

// UpdateCard persists the scheduling state and review history of card,
// provided the stored version still equals expectedVersion. A stale
// version yields ErrPersistenceConflict and leaves the row untouched.
func (db *DB) UpdateCard(ctx context.Context, card domain.Card, expectedVersion int64) (domain.Card, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return domain.Card{}, unavailable("begin transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE cards
		SET difficulty = ?, interval_days = ?, ease_factor = ?, next_review = ?, version = version + 1
		WHERE id = ? AND user_id = ? AND version = ?
	`,
		string(card.Difficulty),
		card.Interval,
		card.EaseFactor,
		toMillis(card.NextReviewDate),
		card.ID,
		card.UserID,
		expectedVersion,
	)
	if err != nil {
		return domain.Card{}, unavailable(fmt.Sprintf("update card state for %s", card.ID), err)
	}
	if err := versionChecked(ctx, tx, res, card); err != nil {
		return domain.Card{}, err
	}

	var stored int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM reviews WHERE card_id = ?`, card.ID).Scan(&stored); err != nil {
		return domain.Card{}, unavailable(fmt.Sprintf("count reviews for %s", card.ID), err)
	}
	if len(card.Reviews) < stored {
		// History shrank, which only a reset does.
		if _, err := tx.ExecContext(ctx, `DELETE FROM reviews WHERE card_id = ?`, card.ID); err != nil {
			return domain.Card{}, unavailable(fmt.Sprintf("clear reviews for %s", card.ID), err)
		}
		stored = 0
	}
	if err := insertReviews(ctx, tx, card.ID, card.Reviews[stored:], stored); err != nil {
		return domain.Card{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Card{}, unavailable(fmt.Sprintf("commit card %s", card.ID), err)
	}
	card.Version = expectedVersion + 1
	return card, nil
}

// UpdateCardContent replaces the author-supplied fields of a card. It
// bumps the version so an in-flight review computed from the old row
// fails its version check.
func (db *DB) UpdateCardContent(ctx context.Context, card domain.Card) (domain.Card, error) {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE cards
		SET subject = ?, tags = ?, question = ?, answer = ?, explanation = ?, version = version + 1
		WHERE id = ? AND user_id = ?
	`,
		card.Subject,
		joinTags(card.Tags),
		card.Question,
		card.Answer,
		card.Explanation,
		card.ID,
		card.UserID,
	)
	if err != nil {
		return domain.Card{}, unavailable(fmt.Sprintf("update card %s", card.ID), err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return domain.Card{}, unavailable("read affected rows", err)
	} else if n == 0 {
		return domain.Card{}, fmt.Errorf("card %s: %w", card.ID, domain.ErrNotFound)
	}
	return db.GetCard(ctx, card.UserID, card.ID)
}

// DeleteCard removes one of the user's cards and its history.
func (db *DB) DeleteCard(ctx context.Context, userID, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM cards WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return unavailable(fmt.Sprintf("delete card %s", id), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("read affected rows", err)
	}
	if n == 0 {
		return fmt.Errorf("card %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// FindCardByFingerprint returns the user's card with the given content
// fingerprint, or nil if there is none.
func (db *DB) FindCardByFingerprint(ctx context.Context, userID, fingerprint string) (*domain.Card, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE user_id = ? AND fingerprint = ?`, userID, fingerprint)
	card, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Card not found
		}
		return nil, unavailable(fmt.Sprintf("find card by fingerprint %s", fingerprint), err)
	}
	return &card, nil
}

// DeleteCardByFingerprint removes the user's cards with the given content
// fingerprint.
func (db *DB) DeleteCardByFingerprint(ctx context.Context, userID, fingerprint string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM cards WHERE user_id = ? AND fingerprint = ?`, userID, fingerprint)
	if err != nil {
		return unavailable(fmt.Sprintf("delete card by fingerprint %s", fingerprint), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("card with fingerprint %s: %w", fingerprint, domain.ErrNotFound)
	}
	return nil
}

// GetCardsBySourceID retrieves all cards imported from a source. Review
// histories are not loaded.
func (db *DB) GetCardsBySourceID(ctx context.Context, sourceID int64) ([]domain.Card, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE source_id = ?`, sourceID)
	if err != nil {
		return nil, unavailable(fmt.Sprintf("get cards for source ID %d", sourceID), err)
	}
	defer rows.Close()
	return scanCards(rows)
}

func (f Filter) where(userID string) (string, []any) {
	clauses := []string{"user_id = ?"}
	args := []any{userID}
	if f.Subject != "" {
		clauses = append(clauses, "subject = ?")
		args = append(args, f.Subject)
	}
	if f.Difficulty != "" {
		clauses = append(clauses, "difficulty = ?")
		args = append(args, string(f.Difficulty))
	}
	if len(f.Tags) > 0 {
		var ors []string
		for _, tag := range f.Tags {
			ors = append(ors, `(',' || tags || ',') LIKE ? ESCAPE '\'`)
			args = append(args, "%,"+escapeLike(tag)+",%")
		}
		clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
	}
	if f.DueBefore != nil {
		clauses = append(clauses, "next_review <= ?")
		args = append(args, toMillis(*f.DueBefore))
	}
	return strings.Join(clauses, " AND "), args
}

func (db *DB) queryCards(ctx context.Context, userID, query string, args ...any) ([]domain.Card, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list cards", err)
	}
	cards, err := scanCards(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return cards, nil
	}

	reviews, err := db.reviewsFor(ctx, `card_id IN (SELECT id FROM cards WHERE user_id = ?)`, userID)
	if err != nil {
		return nil, err
	}
	for i := range cards {
		cards[i].Reviews = reviews[cards[i].ID]
	}
	return cards, nil
}

// reviewsFor loads review histories keyed by card id, in sequence order.
func (db *DB) reviewsFor(ctx context.Context, where string, args ...any) (map[string][]domain.Review, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT card_id, reviewed_at, performance FROM reviews
		WHERE `+where+`
		ORDER BY card_id, seq
	`, args...)
	if err != nil {
		return nil, unavailable("load reviews", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.Review)
	for rows.Next() {
		var (
			cardID string
			at     int64
			r      domain.Review
		)
		if err := rows.Scan(&cardID, &at, &r.Performance); err != nil {
			return nil, unavailable("scan review row", err)
		}
		r.Date = fromMillis(at)
		out[cardID] = append(out[cardID], r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate reviews", err)
	}
	return out, nil
}

func insertReviews(ctx context.Context, q querier, cardID string, reviews []domain.Review, firstSeq int) error {
	for i, r := range reviews {
		_, err := q.ExecContext(ctx, `
			INSERT INTO reviews (card_id, seq, reviewed_at, performance)
			VALUES (?, ?, ?, ?)
		`, cardID, firstSeq+i, toMillis(r.Date), r.Performance)
		if err != nil {
			return unavailable(fmt.Sprintf("insert review for %s", cardID), err)
		}
	}
	return nil
}

// versionChecked turns a zero-row update into ErrNotFound or
// ErrPersistenceConflict.
func versionChecked(ctx context.Context, q querier, res sql.Result, card domain.Card) error {
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("read affected rows", err)
	}
	if n > 0 {
		return nil
	}
	var exists int
	err = q.QueryRowContext(ctx, `SELECT 1 FROM cards WHERE id = ? AND user_id = ?`, card.ID, card.UserID).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("card %s: %w", card.ID, domain.ErrNotFound)
	case err != nil:
		return unavailable(fmt.Sprintf("check card %s", card.ID), err)
	}
	return fmt.Errorf("card %s changed since it was read: %w", card.ID, domain.ErrPersistenceConflict)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCard(s scanner) (domain.Card, error) {
	var (
		c          domain.Card
		tags       string
		difficulty string
		next       int64
		created    int64
		sourceID   sql.NullInt64
	)
	err := s.Scan(
		&c.ID,
		&c.UserID,
		&c.Subject,
		&tags,
		&c.Question,
		&c.Answer,
		&c.Explanation,
		&difficulty,
		&c.Interval,
		&c.EaseFactor,
		&next,
		&created,
		&c.Fingerprint,
		&sourceID,
		&c.Version,
	)
	if err != nil {
		return domain.Card{}, err
	}
	c.Tags = splitTags(tags)
	c.Difficulty = domain.Difficulty(difficulty)
	c.NextReviewDate = fromMillis(next)
	c.CreatedAt = fromMillis(created)
	c.SourceID = sourceID.Int64
	return c, nil
}

func scanCards(rows *sql.Rows) ([]domain.Card, error) {
	cards := []domain.Card{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, unavailable("scan card row", err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate cards", err)
	}
	return cards, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern using ESCAPE '\'.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

func splitTags(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

func nullSource(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}
