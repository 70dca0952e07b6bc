package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/conorfennell/studydeck/internal/config"
	"github.com/conorfennell/studydeck/internal/exchange"
	"github.com/conorfennell/studydeck/internal/ratelimit"
	"github.com/conorfennell/studydeck/internal/review"
	"github.com/conorfennell/studydeck/internal/srs"
	"github.com/conorfennell/studydeck/internal/storage"
	"github.com/conorfennell/studydeck/internal/sync"
	"github.com/conorfennell/studydeck/internal/web"
	"github.com/spf13/pflag"
)

const shutdownTimeout = 10 * time.Second

func main() {
	fs := pflag.NewFlagSet("studydeck", pflag.ExitOnError)
	config.RegisterFlags(fs)
	serve := fs.Bool("serve", false, "Run the HTTP server (the default when no other action is given)")
	user := fs.String("user", "", "User ID for --add-source and --import")
	addSource := fs.String("add-source", "", "Register a local directory or git URL as a deck source")
	runSync := fs.Bool("sync", false, "Sync all sources and exit")
	importFile := fs.String("import", "", "Import cards from a CSV file")
	fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	setupLogging(cfg.LogLevel)

	db, err := storage.Open(cfg.DB)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.DB, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DB)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := review.SystemClock{}
	syncer := &sync.Syncer{Store: db, ReposDir: cfg.ReposDir, Now: clock.Now}

	actions := *addSource != "" || *importFile != "" || *runSync
	if err := runActions(ctx, db, syncer, *user, *addSource, *importFile, *runSync); err != nil {
		slog.Error("command failed", "error", err)
		stop()
		db.Close()
		os.Exit(1)
	}
	if actions && !*serve {
		return
	}

	params := srs.DefaultParams()
	params.DefaultSessionLimit = cfg.Review.DefaultLimit
	server := web.NewServer(db, review.NewService(db, params, clock, cfg.Review.MaxRetries), syncer, params, web.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Limiter:        ratelimit.New(cfg.RateLimit, time.Now),
		Clock:          clock,
	})
	if err := listen(ctx, cfg.Addr, server); err != nil {
		slog.Error("server failed", "error", err)
		stop()
		db.Close()
		os.Exit(1)
	}
}

func runActions(ctx context.Context, db *storage.DB, syncer *sync.Syncer, user, addSource, importFile string, runSync bool) error {
	if (addSource != "" || importFile != "") && user == "" {
		return errors.New("--user is required with --add-source and --import")
	}

	if addSource != "" {
		src, err := syncer.AddSource(ctx, user, addSource)
		if err != nil {
			return fmt.Errorf("failed to add source: %w", err)
		}
		slog.Info("source registered", "id", src.ID, "type", src.Type, "path", src.Path)
	}

	if importFile != "" {
		f, err := os.Open(importFile)
		if err != nil {
			return err
		}
		defer f.Close()
		cards, err := exchange.ReadCSV(f, user, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", importFile, err)
		}
		stored, err := db.InsertCards(ctx, cards)
		if err != nil {
			return fmt.Errorf("failed to store imported cards: %w", err)
		}
		slog.Info("cards imported", "file", importFile, "count", len(stored))
	}

	if runSync {
		results, err := syncer.SyncAll(ctx)
		if err != nil {
			return err
		}
		for _, r := range results {
			slog.Info("source synced", "source_id", r.SourceID, "inserted", r.Inserted, "deleted", r.Deleted, "errors", len(r.Errors))
		}
	}
	return nil
}

func listen(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			srv.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func setupLogging(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}
