// Package review exposes converted documents and their review state to the
// CLI, the REST API and the MCP server.
package review

import (
	"context"
	"errors"
	"io/fs"

	"github.com/starford/craftmd/internal/apperr"
	"github.com/starford/craftmd/internal/checksum"
	"github.com/starford/craftmd/internal/index"
	"github.com/starford/craftmd/internal/models"
	"github.com/starford/craftmd/internal/parser"
	"github.com/starford/craftmd/internal/storage"
)

// DocumentDetail is the full representation of a converted document.
type DocumentDetail struct {
	index.DocumentRow
	Content     string                `json:"content"`
	Frontmatter map[string]any        `json:"frontmatter,omitempty"`
	Edited      bool                  `json:"edited"`
	Backlinks   []string              `json:"backlinks"`
	Diagnostics []index.DiagnosticRow `json:"diagnostics"`
}

// ManualEntry is a document flagged for manual review.
type ManualEntry struct {
	Path string
	Note string
}

// Service coordinates the output vault and the ledger.
type Service struct {
	store storage.Provider
	db    index.Ledger
}

// NewService creates a review service.
func NewService(store storage.Provider, db index.Ledger) *Service {
	return &Service{store: store, db: db}
}

// Get returns a document with its current file content, backlinks and the
// diagnostics of the latest run.
func (s *Service) Get(_ context.Context, path string) (*DocumentDetail, error) {
	row, err := s.db.GetDocument(path)
	if err != nil {
		return nil, err
	}
	data, err := s.store.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	bl, err := s.db.Backlinks(row.Name)
	if err != nil {
		return nil, err
	}
	diags, err := s.db.Diagnostics("", path)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	row.Tags = nonNilSlice(row.Tags)
	return &DocumentDetail{
		DocumentRow: *row,
		Content:     string(data),
		Frontmatter: res.Frontmatter,
		Edited:      checksum.Sum(data) != row.Checksum,
		Backlinks:   nonNilSlice(bl),
		Diagnostics: nonNilSlice(diags),
	}, nil
}

// List returns documents, optionally filtered by status, and the total.
func (s *Service) List(_ context.Context, status models.ReviewStatus, limit, offset int) ([]index.DocumentRow, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, apperr.ErrInvalidStatus
	}
	rows, total, err := s.db.ListDocuments(index.ListFilter{Status: status, Limit: limit, Offset: offset})
	if err != nil {
		return nil, 0, err
	}
	for i := range rows {
		rows[i].Tags = nonNilSlice(rows[i].Tags)
	}
	return nonNilSlice(rows), total, nil
}

// SetStatus records a review verdict. ifMatch, when set, must equal the
// checksum the reviewer saw.
func (s *Service) SetStatus(_ context.Context, path string, status models.ReviewStatus, note, ifMatch string) (*index.DocumentRow, error) {
	return s.db.SetStatus(path, status, note, ifMatch)
}

// Search delegates full-text search to the ledger.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	res, err := s.db.Search(query, limit)
	return nonNilSlice(res), err
}

// Backlinks returns the paths of documents linking to name.
func (s *Service) Backlinks(_ context.Context, name string) ([]string, error) {
	bl, err := s.db.Backlinks(name)
	return nonNilSlice(bl), err
}

// DanglingLinks returns wikilinks that resolve to nothing.
func (s *Service) DanglingLinks(_ context.Context) ([]models.Link, error) {
	l, err := s.db.DanglingLinks()
	return nonNilSlice(l), err
}

// LatestRun returns the most recent conversion run.
func (s *Service) LatestRun(_ context.Context) (*index.Run, error) {
	return s.db.LatestRun()
}

// Diagnostics returns the diagnostics of a run (latest when runID is empty),
// optionally for one path.
func (s *Service) Diagnostics(_ context.Context, runID, path string) ([]index.DiagnosticRow, error) {
	d, err := s.db.Diagnostics(runID, path)
	return nonNilSlice(d), err
}

// Manual returns every document with status manual, in path order.
func (s *Service) Manual(_ context.Context) ([]ManualEntry, error) {
	var out []ManualEntry
	for offset := 0; ; {
		rows, total, err := s.db.ListDocuments(index.ListFilter{Status: models.StatusManual, Limit: 500, Offset: offset})
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, ManualEntry{Path: r.Path, Note: r.Note})
		}
		offset += len(rows)
		if len(rows) == 0 || offset >= total {
			return out, nil
		}
	}
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
