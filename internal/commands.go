package internal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/craftmd/internal/attachment"
	"github.com/starford/craftmd/internal/exporter"
	"github.com/starford/craftmd/internal/mcpserver"
	"github.com/starford/craftmd/internal/review"
)

// ConvertResult is the outcome of a one-shot conversion.
type ConvertResult struct {
	*exporter.Summary
	// Pending lists attachments that were not fetched because downloads
	// are disabled.
	Pending []attachment.Pending `json:"pending,omitempty"`
}

// Convert runs a single conversion of the configured export.
func Convert(ctx context.Context, opts ...Option) (*ConvertResult, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	logger := app.logger()

	c, err := app.open(logger)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	sum, err := c.exporter.Run(ctx, app.config.Input.Path)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", app.config.Input.Path, err)
	}
	logSummary(logger, sum)

	res := &ConvertResult{Summary: sum}
	if c.offline != nil {
		res.Pending = c.offline.Pending()
		for _, p := range res.Pending {
			logger.Info("attachment not downloaded", slog.String("path", p.Path), slog.String("url", p.URL))
		}
	}
	return res, nil
}

// Review opens the ledger and output vault and hands a review service to fn.
func Review(ctx context.Context, fn func(context.Context, *review.Service) error, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	c, err := app.open(app.logger())
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c.review)
}

// ServeMCP serves the review tools over stdio until stdin is closed.
func ServeMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.logger()

	c, err := app.open(logger)
	if err != nil {
		return err
	}
	defer c.Close()

	srv := mcpserver.New(c.review, func(ctx context.Context) (*exporter.Summary, error) {
		return c.exporter.Run(ctx, app.config.Input.Path)
	})
	logger.Info("MCP server starting on stdio")
	if err := srv.ServeStdio(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
