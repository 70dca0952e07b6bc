// Package gitsource keeps local checkouts of git-hosted decks current.
package gitsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// Sync clones a git repository if it doesn't exist at the given path,
// or pulls the latest changes if it does.
func Sync(ctx context.Context, repoURL, localPath string) error {
	_, err := os.Stat(localPath)
	switch {
	case os.IsNotExist(err):
		slog.Info("cloning repository", "url", repoURL, "path", localPath)
		_, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{URL: repoURL})
		if err != nil {
			os.RemoveAll(localPath)
			return fmt.Errorf("failed to clone repo %s: %w", repoURL, err)
		}
	case err == nil:
		slog.Info("pulling repository", "path", localPath)
		repo, err := git.PlainOpen(localPath)
		if err != nil {
			return fmt.Errorf("failed to open existing repo at %s: %w", localPath, err)
		}
		worktree, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("failed to get worktree for repo at %s: %w", localPath, err)
		}
		err = worktree.PullContext(ctx, &git.PullOptions{RemoteName: "origin"})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return fmt.Errorf("failed to pull changes for repo at %s: %w", localPath, err)
		}
	default:
		return fmt.Errorf("error checking path %s: %w", localPath, err)
	}
	return nil
}

// LocalPath maps a repository URL to its checkout directory under baseDir.
// https, http, ssh and file URLs are accepted, as is the scp-like
// "git@host:owner/repo.git" form.
func LocalPath(baseDir, repoURL string) (string, error) {
	if u, err := url.Parse(repoURL); err == nil {
		switch u.Scheme {
		case "https", "http", "ssh":
			return checkoutDir(baseDir, u.Host, u.Path)
		case "file":
			return checkoutDir(baseDir, "local", u.Path)
		}
	}

	// git@github.com:owner/repo.git
	if at := strings.Index(repoURL, "@"); at >= 0 {
		if host, path, ok := strings.Cut(repoURL[at+1:], ":"); ok && host != "" {
			return checkoutDir(baseDir, host, path)
		}
	}
	return "", fmt.Errorf("could not parse git URL: %s", repoURL)
}

func checkoutDir(baseDir, host, path string) (string, error) {
	path = strings.Trim(strings.TrimSuffix(path, ".git"), "/")
	if path == "" {
		return "", fmt.Errorf("git URL has no repository path")
	}
	dir := filepath.Join(baseDir, host, filepath.FromSlash(path))
	// Keep ".." segments from escaping baseDir.
	if rel, err := filepath.Rel(baseDir, dir); err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("git URL escapes the checkout directory")
	}
	return dir, nil
}
