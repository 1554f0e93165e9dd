package index

import (
	"github.com/starford/craftmd/internal/diag"
	"github.com/starford/craftmd/internal/models"
)

// Ledger defines the ledger operations used by the exporter and the review
// surfaces. Consumers depend on this interface rather than *DB.
type Ledger interface {
	UpsertDocument(d DocumentRow, body string, links []string) (models.ReviewStatus, error)
	DeleteDocument(path string) error
	GetDocument(path string) (*DocumentRow, error)
	ListDocuments(f ListFilter) ([]DocumentRow, int, error)
	SetStatus(path string, status models.ReviewStatus, note, checksum string) (*DocumentRow, error)
	AllChecksums() (map[string]string, error)
	Search(query string, limit int) ([]SearchResult, error)
	Backlinks(target string) ([]string, error)
	DanglingLinks() ([]models.Link, error)
	StartRun(r Run) error
	FinishRun(r Run, diags map[string][]diag.Diagnostic) error
	LatestRun() (*Run, error)
	Diagnostics(runID, path string) ([]DiagnosticRow, error)
	Close() error
}

// Verify *DB satisfies Ledger at compile time.
var _ Ledger = (*DB)(nil)
