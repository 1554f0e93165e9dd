package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/craftmd/internal/apperr"
	"github.com/starford/craftmd/internal/diag"
)

// Run summarises one conversion run.
type Run struct {
	ID          string     `json:"id"`
	Input       string     `json:"input"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Documents   int        `json:"documents"`
	Skipped     int        `json:"skipped"`
	Diagnostics int        `json:"diagnostics"`
	Error       string     `json:"error,omitempty"`
}

// DiagnosticRow is a stored diagnostic.
type DiagnosticRow struct {
	RunID   string `json:"run_id"`
	Path    string `json:"path"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// StartRun inserts a run in progress.
func (db *DB) StartRun(r Run) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	_, err := db.conn.Exec(`INSERT INTO runs (id, input, started_at) VALUES (?, ?, ?)`, r.ID, r.Input, r.StartedAt)
	if err != nil {
		return fmt.Errorf("index: start run: %w", err)
	}
	return nil
}

// FinishRun stores the run totals and its diagnostics keyed by document path.
func (db *DB) FinishRun(r Run, diags map[string][]diag.Diagnostic) error {
	finished := time.Now().UTC()
	if r.FinishedAt != nil {
		finished = *r.FinishedAt
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.Exec(`
		UPDATE runs SET finished_at = ?, documents = ?, skipped = ?, diagnostics = ?, error = ?
		WHERE id = ?
	`, finished, r.Documents, r.Skipped, r.Diagnostics, r.Error, r.ID)
	if err != nil {
		return fmt.Errorf("index: finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("index: run %s: %w", r.ID, apperr.ErrNotFound)
	}

	if len(diags) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO diagnostics (run_id, path, seq, message, detail) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare diagnostic insert: %w", err)
		}
		defer stmt.Close()
		for p, ds := range diags {
			for i, d := range ds {
				if _, err := stmt.Exec(r.ID, p, i, d.Message, d.Detail); err != nil {
					return fmt.Errorf("index: insert diagnostic: %w", err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit: %w", err)
	}
	return nil
}

// LatestRun returns the most recently started run or apperr.ErrNotFound.
func (db *DB) LatestRun() (*Run, error) {
	var (
		r        Run
		finished sql.NullTime
	)
	err := db.conn.QueryRow(`
		SELECT id, input, started_at, finished_at, documents, skipped, diagnostics, error
		FROM runs ORDER BY started_at DESC LIMIT 1
	`).Scan(&r.ID, &r.Input, &r.StartedAt, &finished, &r.Documents, &r.Skipped, &r.Diagnostics, &r.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: no runs: %w", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: latest run: %w", err)
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

// Diagnostics returns the diagnostics of a run, optionally narrowed to one
// document path. An empty runID means the latest run.
func (db *DB) Diagnostics(runID, path string) ([]DiagnosticRow, error) {
	if runID == "" {
		r, err := db.LatestRun()
		if err != nil {
			return nil, err
		}
		runID = r.ID
	}
	q := `SELECT run_id, path, message, detail FROM diagnostics WHERE run_id = ?`
	args := []any{runID}
	if path != "" {
		q += ` AND path = ?`
		args = append(args, path)
	}
	rows, err := db.conn.Query(q+` ORDER BY path, seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: diagnostics: %w", err)
	}
	defer rows.Close()

	var out []DiagnosticRow
	for rows.Next() {
		var d DiagnosticRow
		if err := rows.Scan(&d.RunID, &d.Path, &d.Message, &d.Detail); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
