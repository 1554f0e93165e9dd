package index

import (
	"log/slog"

	"github.com/starford/craftmd/internal/checksum"
	"github.com/starford/craftmd/internal/parser"
	"github.com/starford/craftmd/internal/storage"
)

// SyncResult lists what Sync changed.
type SyncResult struct {
	Removed []string `json:"removed"`
	Edited  []string `json:"edited"`
}

// Sync brings the ledger in line with the output vault:
//   - rows whose file is gone are deleted
//   - files edited by hand since conversion are re-indexed, which resets
//     their review status to pending
//
// Files the ledger does not know about are left alone.
func Sync(db *DB, store storage.Provider, logger *slog.Logger) (*SyncResult, error) {
	metas, err := store.List("")
	if err != nil {
		return nil, err
	}
	checksums, err := db.AllChecksums()
	if err != nil {
		return nil, err
	}

	res := &SyncResult{}
	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
		stored, known := checksums[m.Path]
		if !known || stored == m.Checksum {
			continue
		}
		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := reindexFile(db, m.Path, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: edited", slog.String("path", m.Path))
		res.Edited = append(res.Edited, m.Path)
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := db.DeleteDocument(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: removed stale", slog.String("path", p))
		res.Removed = append(res.Removed, p)
	}
	return res, nil
}

// reindexFile re-parses a converted file, keeping the identity columns of
// its existing row.
func reindexFile(db *DB, path string, data []byte) error {
	prev, err := db.GetDocument(path)
	if err != nil {
		return err
	}
	pr, err := parser.Parse(data)
	if err != nil {
		return err
	}
	row := *prev
	row.Checksum = checksum.Sum(data)
	row.Tags = pr.Tags
	if pr.Title != "" {
		row.Title = pr.Title
	}
	_, err = db.UpsertDocument(row, pr.Body, pr.Links)
	return err
}
