package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/craftmd/internal/exporter"
	"github.com/starford/craftmd/internal/review"
)

// ConvertFunc starts a conversion of the configured input.
type ConvertFunc func(ctx context.Context) (*exporter.Summary, error)

// Options configure the router.
type Options struct {
	AuthEnabled bool
	Token       string
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
	// Notify, if non-nil, receives document.reviewed events.
	Notify func(kind, path string)
	// Convert, if non-nil, is exposed as POST /convert.
	Convert ConvertFunc
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(svc *review.Service, opts Options) chi.Router {
	h := NewHandler(svc, opts.Notify, opts.Convert)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(opts.AuthEnabled, opts.Token))

	// Documents and review.
	r.Get("/documents", h.ListDocuments)
	r.Get("/documents/*", h.GetDocument)
	r.Put("/review/*", h.SetStatus)

	// Search and link graph.
	r.Get("/search", h.Search)
	r.Get("/backlinks", h.Backlinks)
	r.Get("/links/dangling", h.DanglingLinks)

	// Runs and diagnostics.
	r.Get("/runs/latest", h.LatestRun)
	r.Get("/diagnostics", h.Diagnostics)
	if opts.Convert != nil {
		r.Post("/convert", h.Convert)
	}

	if opts.Events != nil {
		r.Get("/events", opts.Events.ServeHTTP)
	}

	return r
}
