package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/craftmd/internal/apperr"
	"github.com/starford/craftmd/internal/exporter"
	"github.com/starford/craftmd/internal/models"
	"github.com/starford/craftmd/internal/review"
)

// Handler holds API route handlers.
type Handler struct {
	svc     *review.Service
	notify  func(kind, path string)
	convert ConvertFunc
}

// NewHandler creates a new Handler. notify and convert may be nil.
func NewHandler(svc *review.Service, notify func(kind, path string), convert ConvertFunc) *Handler {
	return &Handler{svc: svc, notify: notify, convert: convert}
}

// documentPath extracts the document path from the wildcard part of the URL.
// Supports encoded slashes from OpenAPI clients (e.g. Work%2FPlan.md).
func documentPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// writeError maps service errors onto status codes.
func writeError(w http.ResponseWriter, op string, err error, attrs ...any) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
	case errors.Is(err, apperr.ErrInvalidStatus):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, exporter.ErrRunInProgress):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", append(attrs, slog.String("error", err.Error()))...)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// ListDocuments handles GET /api/documents.
//
//	@Summary		List converted documents
//	@Tags			documents
//	@Produce		json
//	@Param			status	query		string	false	"Review status"	Enums(pending, good, bad, manual)
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	DocumentListResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.List(r.Context(), models.ReviewStatus(q.Get("status")), limit, offset)
	if err != nil {
		writeError(w, "list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": items,
		"total":     total,
	})
}

// GetDocument handles GET /api/documents/*.
//
//	@Summary		Get a converted document with backlinks and diagnostics
//	@Tags			documents
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Success		200		{object}	DocumentDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	path := documentPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	doc, err := h.svc.Get(r.Context(), path)
	if err != nil {
		writeError(w, "get document", err, slog.String("path", path))
		return
	}
	w.Header().Set("ETag", `"`+doc.Checksum+`"`)
	writeJSON(w, http.StatusOK, doc)
}

// SetStatus handles PUT /api/review/*.
//
//	@Summary		Record a review verdict
//	@Tags			review
//	@Accept			json
//	@Produce		json
//	@Param			path		path	string				true	"Document path"
//	@Param			If-Match	header	string				false	"Checksum the reviewer saw"
//	@Param			body		body	SetStatusRequest	true	"Verdict"
//	@Success		200		{object}	DocumentRow
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/review/{path} [put]
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	path := documentPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req SetStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	row, err := h.svc.SetStatus(r.Context(), path, models.ReviewStatus(req.Status), req.Note, ifMatch)
	if err != nil {
		writeError(w, "set status", err, slog.String("path", path))
		return
	}
	if h.notify != nil {
		h.notify("document.reviewed", path)
	}
	writeJSON(w, http.StatusOK, row)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across converted documents
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err, slog.String("query", q))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
	})
}

// Backlinks handles GET /api/backlinks?name=.
//
//	@Summary		Documents linking to a wikilink name
//	@Tags			links
//	@Produce		json
//	@Param			name	query		string	true	"Wikilink name"
//	@Success		200		{object}	BacklinksResponse
//	@Security		BearerAuth
//	@Router			/backlinks [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'name' is required"))
		return
	}
	bl, err := h.svc.Backlinks(r.Context(), name)
	if err != nil {
		writeError(w, "backlinks", err, slog.String("name", name))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"backlinks": bl})
}

// DanglingLinks handles GET /api/links/dangling.
//
//	@Summary		Wikilinks that resolve to no document
//	@Tags			links
//	@Produce		json
//	@Success		200		{object}	DanglingResponse
//	@Security		BearerAuth
//	@Router			/links/dangling [get]
func (h *Handler) DanglingLinks(w http.ResponseWriter, r *http.Request) {
	links, err := h.svc.DanglingLinks(r.Context())
	if err != nil {
		writeError(w, "dangling links", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"links": links})
}

// LatestRun handles GET /api/runs/latest.
func (h *Handler) LatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.LatestRun(r.Context())
	if err != nil {
		writeError(w, "latest run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// Diagnostics handles GET /api/diagnostics?run=&path=.
func (h *Handler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	diags, err := h.svc.Diagnostics(r.Context(), q.Get("run"), q.Get("path"))
	if err != nil {
		writeError(w, "diagnostics", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"diagnostics": diags})
}

// Convert handles POST /api/convert. The conversion runs synchronously.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	sum, err := h.convert(r.Context())
	if err != nil {
		writeError(w, "convert", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
