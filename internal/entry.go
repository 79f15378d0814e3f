// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/MikeBee/notis/internal/api"
	"github.com/MikeBee/notis/internal/index"
	"github.com/MikeBee/notis/internal/legacy"
	"github.com/MikeBee/notis/internal/mcpserver"
	"github.com/MikeBee/notis/internal/migration"
	"github.com/MikeBee/notis/internal/noteservice"
	"github.com/MikeBee/notis/internal/sse"
	"github.com/MikeBee/notis/internal/storage"
	"github.com/MikeBee/notis/internal/syncengine"
)

// libraryThrottle bounds how often the SSE broker emits the aggregate
// library.updated signal.
const libraryThrottle = 2 * time.Second

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// core bundles the stores every command needs.
type core struct {
	store  *storage.FS
	idx    *index.DB
	legacy *legacy.Store
}

func (c *core) Close() {
	if c.legacy != nil {
		_ = c.legacy.Close()
	}
	_ = c.idx.Close()
}

// openCore opens the file store, the index, and the legacy database when one
// is configured.
func openCore(cfg *Config) (*core, error) {
	store, err := storage.NewFS(cfg.Notes.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	idx, err := index.Open(cfg.Index.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	var lg *legacy.Store
	if cfg.Legacy.Enabled() {
		lg, err = legacy.Open(cfg.Legacy.Path)
		if err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("open legacy store: %w", err)
		}
	}

	return &core{store: store, idx: idx, legacy: lg}, nil
}

func startupMode(cfg *Config) syncengine.Mode {
	mode, err := syncengine.ParseMode(cfg.Sync.StartupSync)
	if err != nil {
		return syncengine.ModeFull
	}
	return mode
}

// Run starts the notisd server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := newLogger(os.Stdout, cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("notes_path", cfg.Notes.Path),
		slog.String("index_path", cfg.Index.Path),
		slog.Bool("legacy_attached", cfg.Legacy.Enabled()),
		slog.String("watch", cfg.Sync.Watch),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := openCore(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	// SSE broker.
	broker := sse.NewBroker(libraryThrottle)
	defer broker.Close()

	engine := syncengine.New(c.store, c.idx, c.legacy, logger, broker.PublishNoteEvent)
	engine.OnSyncCompleted(func(mode syncengine.Mode, stats *syncengine.SyncStats) {
		broker.PublishSyncCompleted(string(mode), stats)
	})

	// Initial reconciliation pass.
	if _, err := engine.Sync(ctx, startupMode(cfg)); err != nil {
		logger.Warn("startup sync failed", slog.String("error", err.Error()))
	}

	// Build API service and router.
	svc := noteservice.NewService(c.store, c.idx, engine, broker.PublishNoteEvent)
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, c.store.Root())

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	// Start file monitoring.
	if cfg.Sync.Watch != WatchOff {
		notifier, err := syncengine.NewNotifier(cfg.Sync.Watch, c.store.Root(),
			cfg.Sync.Debounce(), cfg.Sync.PollInterval(), logger)
		if err != nil {
			return fmt.Errorf("init monitor: %w", err)
		}
		engine.StartMonitoring(notifier)
	}

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// An in-flight monitoring pass completes before this returns.
		engine.StopMonitoring()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunSync executes one sync pass and prints its stats as JSON on stdout.
// Logs go to stderr so the output stays machine-readable.
func RunSync(ctx context.Context, cfg *Config, modeStr string) error {
	mode, err := syncengine.ParseMode(modeStr)
	if err != nil {
		return err
	}

	logger := newLogger(os.Stderr, cfg.App.LogLevel)

	c, err := openCore(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	engine := syncengine.New(c.store, c.idx, c.legacy, logger, nil)
	stats, err := engine.Sync(ctx, mode)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	out, _ := json.MarshalIndent(stats, "", "  ")
	fmt.Println(string(out))
	return nil
}

// RunMigrate moves the legacy database into the file store, or reports what a
// migration would do when dryRun is set. Results are printed as JSON on
// stdout.
func RunMigrate(ctx context.Context, cfg *Config, dryRun, backup bool, backupDir string) error {
	if !cfg.Legacy.Enabled() {
		return fmt.Errorf("migrate: no legacy database configured")
	}

	logger := newLogger(os.Stderr, cfg.App.LogLevel)

	store, err := storage.NewFS(cfg.Notes.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	lg, err := legacy.Open(cfg.Legacy.Path)
	if err != nil {
		return fmt.Errorf("open legacy store: %w", err)
	}
	defer func() { _ = lg.Close() }()

	svc := migration.New(store, lg, logger)

	if dryRun {
		stats, err := svc.DryRun(ctx)
		if err != nil {
			return fmt.Errorf("migrate dry-run: %w", err)
		}
		out, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(out))
		return nil
	}

	result, err := svc.Migrate(ctx, migration.Options{
		CreateBackup: backup,
		BackupDir:    backupDir,
		OnProgress: func(st migration.Stats) {
			logger.Debug("migration progress",
				slog.Int("migrated", st.Migrated),
				slog.Int("skipped", st.Skipped),
				slog.Int("failed", st.Failed),
				slog.Int("total", st.Total))
		},
	})
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
	return nil
}

// RunMCP serves the MCP tools over stdio. Stdout carries the protocol, so
// logs go to stderr.
func RunMCP(ctx context.Context, cfg *Config) error {
	logger := newLogger(os.Stderr, cfg.App.LogLevel)
	slog.SetDefault(logger)

	c, err := openCore(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	engine := syncengine.New(c.store, c.idx, c.legacy, logger, nil)

	if _, err := engine.Sync(ctx, startupMode(cfg)); err != nil {
		logger.Warn("startup sync failed", slog.String("error", err.Error()))
	}

	// Keep the index fresh while an editor works on the files.
	if cfg.Sync.Watch != WatchOff {
		notifier, err := syncengine.NewNotifier(cfg.Sync.Watch, c.store.Root(),
			cfg.Sync.Debounce(), cfg.Sync.PollInterval(), logger)
		if err != nil {
			return fmt.Errorf("init monitor: %w", err)
		}
		engine.StartMonitoring(notifier)
		defer engine.StopMonitoring()
	}

	svc := noteservice.NewService(c.store, c.idx, engine, nil)
	srv := mcpserver.New(svc, c.store)

	logger.Info("MCP server listening on stdio")
	return srv.ServeStdio()
}
