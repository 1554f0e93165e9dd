// Package internal provides the main application initialization and runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/craftmd/internal/api"
	"github.com/starford/craftmd/internal/attachment"
	"github.com/starford/craftmd/internal/exporter"
	"github.com/starford/craftmd/internal/index"
	"github.com/starford/craftmd/internal/markdown"
	"github.com/starford/craftmd/internal/review"
	"github.com/starford/craftmd/internal/sse"
	"github.com/starford/craftmd/internal/storage"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// logger builds the structured JSON logger and installs it as default.
func (a *application) logger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// components are the long-lived pieces shared by every command.
type components struct {
	store    storage.Provider
	db       *index.DB
	exporter *exporter.Exporter
	offline  *attachment.Offline
	review   *review.Service
}

func (c *components) Close() error {
	return c.db.Close()
}

func (a *application) open(logger *slog.Logger) (*components, error) {
	cfg := a.config

	logger.Info("Configuration loaded",
		slog.String("input_path", cfg.Input.Path),
		slog.String("output_path", cfg.Output.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("download_attachments", cfg.Attachments.Download),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Output.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Output.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	c := &components{store: store, db: db, review: review.NewService(store, db)}

	var stager markdown.Stager
	if cfg.Attachments.Download {
		stager = attachment.NewHTTPStager(store, attachment.Options{
			Timeout:    cfg.Attachments.Timeout,
			MaxBytes:   cfg.Attachments.MaxBytes,
			BlockLocal: cfg.Attachments.BlockLocal,
			Logger:     logger,
		})
	} else {
		c.offline = attachment.NewOffline(store)
		stager = c.offline
	}

	c.exporter, err = exporter.New(store, db, stager, cfg.ExporterOptions(), logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Run converts the configured export, then serves the review API, streams
// conversion events and re-converts whenever the export changes.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	c, err := app.open(logger)
	if err != nil {
		return err
	}
	defer c.Close()

	// Pick up hand edits made while nothing was running.
	if res, err := index.Sync(c.db, c.store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	} else if len(res.Removed)+len(res.Edited) > 0 {
		logger.Info("ledger synced",
			slog.Int("removed", len(res.Removed)),
			slog.Int("edited", len(res.Edited)))
	}

	broker := sse.NewBroker(time.Second)
	defer broker.Close()
	c.exporter.OnEvent(broker.Notify)

	convert := func(ctx context.Context) (*exporter.Summary, error) {
		return c.exporter.Run(ctx, cfg.Input.Path)
	}

	if sum, err := convert(ctx); err != nil {
		// The watcher retries once the export is fixed.
		logger.Error("initial conversion failed", slog.String("error", err.Error()))
	} else {
		logSummary(logger, sum)
	}

	apiRouter := api.NewRouter(c.review, api.Options{
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
		Events:      broker,
		Notify:      broker.Notify,
		Convert:     convert,
	})
	attachments := api.NewAttachmentHandler(c.store, cfg.Output.AttachmentsDir)

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
		if err := c.db.Ping(); err != nil {
			http.Error(w, `{"status":"unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)
	r.Get("/attachments/{filename}", attachments.ServeFile)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := c.exporter.Watch(gCtx, cfg.Input.Path, exporter.DefaultDebounce); err != nil {
			return fmt.Errorf("watch input: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		// Stops the watcher.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

func logSummary(logger *slog.Logger, sum *exporter.Summary) {
	attrs := []any{
		slog.String("run_id", sum.RunID),
		slog.Int("documents", sum.Documents),
		slog.Int("skipped", sum.Skipped),
		slog.Int("diagnostics", sum.Diagnostics),
	}
	for status, n := range sum.Statuses {
		attrs = append(attrs, slog.Int("status_"+string(status), n))
	}
	logger.Info("conversion finished", attrs...)
}
