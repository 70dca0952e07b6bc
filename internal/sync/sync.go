// Package sync reconciles the cards stored for each markdown source with
// the decks currently found at that source.
package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/gitsource"
	"github.com/conorfennell/studydeck/internal/knol"
	"github.com/conorfennell/studydeck/internal/parser"
)

// Store is the persistence sync needs. *storage.DB satisfies it.
type Store interface {
	InsertSource(ctx context.Context, userID, path, sourceType string) (int64, error)
	FindSourceByPath(ctx context.Context, userID, path string) (*domain.Source, error)
	GetSources(ctx context.Context, userID string) ([]domain.Source, error)
	GetAllSources(ctx context.Context) ([]domain.Source, error)
	UpdateSourceLastScanned(ctx context.Context, sourceID int64, at time.Time) error

	InsertCard(ctx context.Context, card domain.Card) (domain.Card, error)
	FindCardByFingerprint(ctx context.Context, userID, fingerprint string) (*domain.Card, error)
	GetCardsBySourceID(ctx context.Context, sourceID int64) ([]domain.Card, error)
	DeleteCardByFingerprint(ctx context.Context, userID, fingerprint string) error
}

// Syncer pulls git sources into ReposDir and reconciles every source.
type Syncer struct {
	Store    Store
	ReposDir string
	Now      func() time.Time
}

// Result summarizes the reconciliation of one source.
type Result struct {
	SourceID int64    `json:"sourceId"`
	Path     string   `json:"path"`
	Parsed   int      `json:"parsed"`
	Inserted int      `json:"inserted"`
	Deleted  int      `json:"deleted"`
	Errors   []string `json:"errors,omitempty"`
}

// AddSource registers path for userID. Anything that looks like a git URL
// is a git source; otherwise path must be an existing local directory.
// Registering the same path twice returns the existing source.
func (s *Syncer) AddSource(ctx context.Context, userID, path string) (domain.Source, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return domain.Source{}, fmt.Errorf("%w: source path is required", domain.ErrInvalidInput)
	}

	sourceType := domain.SourceGit
	if !isGitURL(path) {
		sourceType = domain.SourceLocal
		abs, err := filepath.Abs(path)
		if err != nil {
			return domain.Source{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
		}
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			return domain.Source{}, fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidInput, path)
		}
		path = abs
	} else if _, err := gitsource.LocalPath(s.ReposDir, path); err != nil {
		return domain.Source{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}

	existing, err := s.Store.FindSourceByPath(ctx, userID, path)
	if err != nil {
		return domain.Source{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	id, err := s.Store.InsertSource(ctx, userID, path, sourceType)
	if err != nil {
		return domain.Source{}, err
	}
	slog.Info("source added", "source_id", id, "user_id", userID, "type", sourceType, "path", path)
	return domain.Source{ID: id, UserID: userID, Path: path, Type: sourceType}, nil
}

// SyncAll reconciles the sources of every user.
func (s *Syncer) SyncAll(ctx context.Context) ([]Result, error) {
	sources, err := s.Store.GetAllSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}
	return s.syncSources(ctx, sources)
}

// SyncUser reconciles the sources of one user.
func (s *Syncer) SyncUser(ctx context.Context, userID string) ([]Result, error) {
	sources, err := s.Store.GetSources(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources for user %s: %w", userID, err)
	}
	return s.syncSources(ctx, sources)
}

func (s *Syncer) syncSources(ctx context.Context, sources []domain.Source) ([]Result, error) {
	if len(sources) == 0 {
		slog.Info("no sources configured")
		return nil, nil
	}

	results := make([]Result, 0, len(sources))
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		slog.Info("syncing source", "source_id", source.ID, "type", source.Type, "path", source.Path)
		res, err := s.SyncSource(ctx, source)
		if err != nil {
			slog.Error("failed to sync source", "source_id", source.ID, "path", source.Path, "error", err)
			res.Errors = append(res.Errors, err.Error())
		}
		results = append(results, res)
	}
	slog.Info("sync complete", "sources", len(sources))
	return results, nil
}

// SyncSource brings one source up to date. Git sources are cloned or
// pulled first. Cards whose fingerprint is not stored yet are inserted and
// stored cards no longer present in the source are deleted.
func (s *Syncer) SyncSource(ctx context.Context, source domain.Source) (Result, error) {
	res := Result{SourceID: source.ID, Path: source.Path}

	dir := source.Path
	switch source.Type {
	case domain.SourceLocal:
	case domain.SourceGit:
		local, err := gitsource.LocalPath(s.ReposDir, source.Path)
		if err != nil {
			return res, err
		}
		if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
			return res, fmt.Errorf("failed to create repos directory: %w", err)
		}
		if err := gitsource.Sync(ctx, source.Path, local); err != nil {
			return res, err
		}
		dir = local
	default:
		return res, fmt.Errorf("%w: unknown source type %q", domain.ErrInvalidInput, source.Type)
	}

	now := s.Now()
	found := make(map[string]bool)
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		parsed, err := parser.ParseFile(path)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("parsing %s: %v", path, err))
			return nil
		}
		for _, content := range parsed {
			res.Parsed++
			fp := knol.Fingerprint(content)
			if found[fp] {
				continue
			}
			found[fp] = true

			inserted, err := s.insertIfNew(ctx, source, content, fp, now)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("storing card %s: %v", fp, err))
				continue
			}
			if inserted {
				res.Inserted++
			}
		}
		return nil
	})
	if walkErr != nil {
		return res, fmt.Errorf("failed to walk %s: %w", dir, walkErr)
	}

	stored, err := s.Store.GetCardsBySourceID(ctx, source.ID)
	if err != nil {
		return res, err
	}
	for _, card := range stored {
		if found[card.Fingerprint] {
			continue
		}
		err := s.Store.DeleteCardByFingerprint(ctx, source.UserID, card.Fingerprint)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("failed to delete orphaned card", "fingerprint", card.Fingerprint, "error", err)
			continue
		}
		res.Deleted++
	}

	if err := s.Store.UpdateSourceLastScanned(ctx, source.ID, now); err != nil {
		slog.Warn("failed to update last scanned for source", "source_id", source.ID, "error", err)
	}

	slog.Info("reconciliation complete",
		"path", source.Path,
		"parsed_cards", res.Parsed,
		"inserted", res.Inserted,
		"orphaned_deleted", res.Deleted,
		"errors", len(res.Errors),
	)
	return res, nil
}

func (s *Syncer) insertIfNew(ctx context.Context, source domain.Source, content domain.Card, fp string, now time.Time) (bool, error) {
	existing, err := s.Store.FindCardByFingerprint(ctx, source.UserID, fp)
	if err != nil || existing != nil {
		return false, err
	}

	card := domain.NewCard(source.UserID, now)
	card.Question = content.Question
	card.Answer = content.Answer
	card.Explanation = content.Explanation
	card.Subject = content.Subject
	if card.Subject == "" {
		card.Subject = domain.DefaultSubject
	}
	card.Tags = content.Tags
	card.Fingerprint = fp
	card.SourceID = source.ID

	if _, err := s.Store.InsertCard(ctx, card); err != nil {
		return false, err
	}
	slog.Debug("new card inserted", "fingerprint", fp, "source_id", source.ID)
	return true, nil
}

func isGitURL(path string) bool {
	if u, err := url.Parse(path); err == nil && u.Scheme != "" && u.Host != "" {
		return true
	}
	if strings.HasPrefix(path, "file://") {
		return true
	}
	return strings.HasSuffix(path, ".git") || (strings.Contains(path, "@") && strings.Contains(path, ":"))
}
