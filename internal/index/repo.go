package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/starford/craftmd/internal/apperr"
	"github.com/starford/craftmd/internal/models"
)

// DocumentRow is a converted document in the ledger.
type DocumentRow struct {
	Path        string              `json:"path"`
	DocumentID  string              `json:"document_id"`
	Name        string              `json:"name"`
	Title       string              `json:"title"`
	Checksum    string              `json:"checksum"`
	Tags        []string            `json:"tags"`
	Status      models.ReviewStatus `json:"status"`
	Note        string              `json:"note,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	ConvertedAt time.Time           `json:"converted_at"`
	ReviewedAt  *time.Time          `json:"reviewed_at,omitempty"`
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// ListFilter narrows ListDocuments. A zero Limit means 100.
type ListFilter struct {
	Status models.ReviewStatus
	Limit  int
	Offset int
}

const documentColumns = `path, document_id, name, title, checksum, tags, status, note, created_at, converted_at, reviewed_at`

// daily note names are valid link targets even when no such note exists
var dailyNameRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} [A-Z][a-z]{2}$`)

// UpsertDocument records a conversion result. The review status survives
// when the checksum is unchanged and resets to pending otherwise. It returns
// the resulting status.
func (db *DB) UpsertDocument(d DocumentRow, body string, links []string) (models.ReviewStatus, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return "", fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	status, note := models.StatusPending, ""
	var prevChecksum, prevStatus, prevNote string
	err = tx.QueryRow(`SELECT checksum, status, note FROM documents WHERE path = ?`, d.Path).
		Scan(&prevChecksum, &prevStatus, &prevNote)
	switch {
	case err == nil && prevChecksum == d.Checksum:
		status, note = models.ReviewStatus(prevStatus), prevNote
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("index: lookup document: %w", err)
	}

	tagsJSON, _ := json.Marshal(d.Tags)
	if d.ConvertedAt.IsZero() {
		d.ConvertedAt = time.Now().UTC()
	}
	_, err = tx.Exec(`
		INSERT INTO documents (path, document_id, name, title, checksum, tags, body, status, note, created_at, converted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			document_id  = excluded.document_id,
			name         = excluded.name,
			title        = excluded.title,
			checksum     = excluded.checksum,
			tags         = excluded.tags,
			body         = excluded.body,
			status       = excluded.status,
			note         = excluded.note,
			created_at   = excluded.created_at,
			converted_at = excluded.converted_at
	`, d.Path, d.DocumentID, d.Name, d.Title, d.Checksum, string(tagsJSON), body, string(status), note, d.CreatedAt, d.ConvertedAt)
	if err != nil {
		return "", fmt.Errorf("index: upsert document: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, d.Path, d.Title, body, d.Tags); err != nil {
		return "", err
	}

	_, _ = tx.Exec(`DELETE FROM links WHERE source = ?`, d.Path)
	if len(links) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO links (source, target) VALUES (?, ?)`)
		if err != nil {
			return "", fmt.Errorf("index: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for _, target := range links {
			if _, err := stmt.Exec(d.Path, target); err != nil {
				return "", fmt.Errorf("index: insert link: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("index: commit: %w", err)
	}
	return status, nil
}

// DeleteDocument removes a document, its FTS entry, and outgoing links.
func (db *DB) DeleteDocument(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	_, _ = tx.Exec(`DELETE FROM links WHERE source = ?`, path)
	_, _ = tx.Exec(`DELETE FROM documents WHERE path = ?`, path)

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(s rowScanner) (*DocumentRow, error) {
	var (
		d        DocumentRow
		tags     string
		status   string
		created  sql.NullTime
		reviewed sql.NullTime
	)
	if err := s.Scan(&d.Path, &d.DocumentID, &d.Name, &d.Title, &d.Checksum, &tags,
		&status, &d.Note, &created, &d.ConvertedAt, &reviewed); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(tags), &d.Tags)
	d.Status = models.ReviewStatus(status)
	if created.Valid {
		d.CreatedAt = created.Time
	}
	if reviewed.Valid {
		t := reviewed.Time
		d.ReviewedAt = &t
	}
	return &d, nil
}

// GetDocument returns one document or apperr.ErrNotFound.
func (db *DB) GetDocument(path string) (*DocumentRow, error) {
	row := db.conn.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE path = ?`, path)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: document %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get document: %w", err)
	}
	return d, nil
}

// ListDocuments returns documents ordered by path and the total count that
// matches the filter.
func (db *DB) ListDocuments(f ListFilter) ([]DocumentRow, int, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	where, args := "", []any{}
	if f.Status != "" {
		where = ` WHERE status = ?`
		args = append(args, string(f.Status))
	}

	var total int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM documents`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count documents: %w", err)
	}

	rows, err := db.conn.Query(`SELECT `+documentColumns+` FROM documents`+where+` ORDER BY path LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *d)
	}
	return out, total, rows.Err()
}

// SetStatus records a review verdict. When checksum is non-empty it must
// match the stored checksum, otherwise apperr.ErrConflict is returned.
func (db *DB) SetStatus(path string, status models.ReviewStatus, note, checksum string) (*DocumentRow, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("index: status %q: %w", status, apperr.ErrInvalidStatus)
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var stored string
	err = tx.QueryRow(`SELECT checksum FROM documents WHERE path = ?`, path).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: document %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: lookup document: %w", err)
	}
	if checksum != "" && checksum != stored {
		return nil, fmt.Errorf("index: document %s changed: %w", path, apperr.ErrConflict)
	}

	if _, err := tx.Exec(`UPDATE documents SET status = ?, note = ?, reviewed_at = ? WHERE path = ?`,
		string(status), note, time.Now().UTC(), path); err != nil {
		return nil, fmt.Errorf("index: set status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("index: commit: %w", err)
	}
	return db.GetDocument(path)
}

// AllChecksums returns path → checksum for every document.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Backlinks returns the paths of documents that link to the given name.
func (db *DB) Backlinks(target string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT source FROM links WHERE target = ? ORDER BY source`, target)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DanglingLinks returns links whose target names no converted document and
// no daily note.
func (db *DB) DanglingLinks() ([]models.Link, error) {
	rows, err := db.conn.Query(`
		SELECT l.source, l.target
		FROM links l
		WHERE NOT EXISTS (SELECT 1 FROM documents d WHERE d.name = l.target)
		ORDER BY l.source, l.target
	`)
	if err != nil {
		return nil, fmt.Errorf("index: dangling links: %w", err)
	}
	defer rows.Close()

	var out []models.Link
	for rows.Next() {
		var l models.Link
		if err := rows.Scan(&l.Source, &l.Target); err != nil {
			return nil, err
		}
		if dailyNameRe.MatchString(l.Target) {
			continue
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
