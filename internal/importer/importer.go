// Package importer decodes an export file into record collections.
package importer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/starford/craftmd/internal/models"
	"github.com/starford/craftmd/internal/schema"
)

type exportFile struct {
	Folders   []json.RawMessage `json:"FolderDataModel"`
	Documents []json.RawMessage `json:"DocumentDataModel"`
	Blocks    []json.RawMessage `json:"BlockDataModel"`
}

// Load reads and decodes the export at path.
func Load(path string) (*models.Export, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("importer: open: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads an export from r. Every record's top-level keys are checked
// before it is decoded.
func Decode(r io.Reader) (*models.Export, error) {
	var raw exportFile
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("importer: decode: %w", err)
	}

	exp := &models.Export{
		Folders:   make([]models.FolderRecord, 0, len(raw.Folders)),
		Documents: make([]models.DocumentRecord, 0, len(raw.Documents)),
		Blocks:    make([]models.BlockRecord, 0, len(raw.Blocks)),
	}
	for i, data := range raw.Folders {
		var rec models.FolderRecord
		if err := decodeRecord(schema.KindFolder, i, data, &rec); err != nil {
			return nil, err
		}
		exp.Folders = append(exp.Folders, rec)
	}
	for i, data := range raw.Documents {
		var rec models.DocumentRecord
		if err := decodeRecord(schema.KindDocument, i, data, &rec); err != nil {
			return nil, err
		}
		exp.Documents = append(exp.Documents, rec)
	}
	for i, data := range raw.Blocks {
		var rec models.BlockRecord
		if err := decodeRecord(schema.KindBlock, i, data, &rec); err != nil {
			return nil, err
		}
		exp.Blocks = append(exp.Blocks, rec)
	}
	return exp, nil
}

func decodeRecord(kind schema.RecordKind, i int, data json.RawMessage, v any) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("importer: %s %d: %w", kind, i, err)
	}
	var id string
	if raw, ok := obj["id"]; ok {
		_ = json.Unmarshal(raw, &id)
	}
	if id == "" {
		return fmt.Errorf("importer: %s %d: missing id: %w", kind, i, schema.ErrSchemaViolation)
	}
	if err := schema.CheckRecord(kind, id, obj); err != nil {
		return fmt.Errorf("importer: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("importer: %s %s: %w", kind, id, err)
	}
	return nil
}
