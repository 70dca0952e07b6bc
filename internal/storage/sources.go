package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
)

// InsertSource registers a deck source for a user and returns its ID.
func (db *DB) InsertSource(ctx context.Context, userID, path, sourceType string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO sources (user_id, path, type)
		VALUES (?, ?, ?)
	`, userID, path, sourceType)
	if err != nil {
		return 0, unavailable(fmt.Sprintf("insert source %s", path), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, unavailable(fmt.Sprintf("get last insert ID for source %s", path), err)
	}
	return id, nil
}

// FindSourceByPath retrieves one of the user's sources by its path.
func (db *DB) FindSourceByPath(ctx context.Context, userID, path string) (*domain.Source, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, user_id, path, type, last_scanned
		FROM sources WHERE user_id = ? AND path = ?
	`, userID, path)

	s, err := scanSource(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Source not found
		}
		return nil, unavailable(fmt.Sprintf("find source by path %s", path), err)
	}
	return &s, nil
}

// GetSources retrieves the sources of one user.
func (db *DB) GetSources(ctx context.Context, userID string) ([]domain.Source, error) {
	return db.querySources(ctx, `WHERE user_id = ?`, userID)
}

// GetAllSources retrieves all stored sources from the database.
func (db *DB) GetAllSources(ctx context.Context) ([]domain.Source, error) {
	return db.querySources(ctx, ``)
}

// DeleteSource removes a source and every card imported from it.
func (db *DB) DeleteSource(ctx context.Context, userID string, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM sources WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return unavailable(fmt.Sprintf("delete source %d", id), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("read affected rows", err)
	}
	if n == 0 {
		return fmt.Errorf("source %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// UpdateSourceLastScanned updates the last_scanned timestamp for a source.
func (db *DB) UpdateSourceLastScanned(ctx context.Context, sourceID int64, at time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE sources
		SET last_scanned = ?
		WHERE id = ?
	`, toMillis(at), sourceID)
	if err != nil {
		return unavailable(fmt.Sprintf("update last scanned for source ID %d", sourceID), err)
	}
	return nil
}

func (db *DB) querySources(ctx context.Context, where string, args ...any) ([]domain.Source, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, user_id, path, type, last_scanned
		FROM sources `+where+`
		ORDER BY id
	`, args...)
	if err != nil {
		return nil, unavailable("get sources", err)
	}
	defer rows.Close()

	sources := []domain.Source{}
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, unavailable("scan source row", err)
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate sources", err)
	}
	return sources, nil
}

func scanSource(s scanner) (domain.Source, error) {
	var (
		src     domain.Source
		scanned sql.NullInt64
	)
	if err := s.Scan(&src.ID, &src.UserID, &src.Path, &src.Type, &scanned); err != nil {
		return domain.Source{}, err
	}
	if scanned.Valid {
		t := fromMillis(scanned.Int64)
		src.LastScanned = &t
	}
	return src, nil
}
