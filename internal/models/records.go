// Package models defines the domain types for craftmd.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Export holds every record collection of a decoded export file.
type Export struct {
	Folders   []FolderRecord
	Documents []DocumentRecord
	Blocks    []BlockRecord
}

// FolderRecord is a folder as it appears in the export.
type FolderRecord struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	ParentFolderID string   `json:"parentFolderId,omitempty"`
	Documents      []string `json:"documents"`
}

// DocumentRecord is a document as it appears in the export.
type DocumentRecord struct {
	ID          string    `json:"id"`
	RootBlockID string    `json:"rootBlockId"`
	Created     Timestamp `json:"created"`
	Modified    Timestamp `json:"modified"`
}

// BlockRecord is an unvalidated block as it appears in the export.
type BlockRecord struct {
	ID                  string       `json:"id"`
	DocumentID          string       `json:"documentId"`
	Content             string       `json:"content"`
	Type                string       `json:"type"`
	Style               EmbeddedJSON `json:"style"`
	Blocks              []string     `json:"blocks"`
	RawProperties       EmbeddedJSON `json:"rawProperties"`
	OffSchemaProperties EmbeddedJSON `json:"offSchemaProperties"`
}

// EmbeddedJSON is a JSON object that the exporter may have serialized either
// inline or as a JSON-encoded string. Empty strings and null decode to nil.
type EmbeddedJSON []byte

// UnmarshalJSON implements json.Unmarshaler.
func (e *EmbeddedJSON) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = nil
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = string(bytes.TrimSpace([]byte(s)))
		if s == "" {
			*e = nil
			return nil
		}
		data = []byte(s)
	}
	if data[0] != '{' {
		return fmt.Errorf("models: embedded json is not an object: %.40s", data)
	}
	*e = append((*e)[:0], data...)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (e EmbeddedJSON) MarshalJSON() ([]byte, error) {
	if len(e) == 0 {
		return []byte("{}"), nil
	}
	return e, nil
}

// Object decodes the top-level keys. A nil value yields an empty map.
func (e EmbeddedJSON) Object() (map[string]json.RawMessage, error) {
	out := map[string]json.RawMessage{}
	if len(e) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(e, &out); err != nil {
		return nil, fmt.Errorf("models: decode embedded object: %w", err)
	}
	return out, nil
}

// Decode unmarshals the object into v. A nil value leaves v untouched.
func (e EmbeddedJSON) Decode(v any) error {
	if len(e) == 0 {
		return nil
	}
	return json.Unmarshal(e, v)
}
