package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/craftmd/internal/models"
)

// Run describes one formatting run of a test block.
type Run struct {
	Start, Length int
	Bold          bool
	Italic        bool
	Code          bool
	Strike        bool
	Highlight     bool
	Link          string
}

// Block describes a test block. Zero fields are left out of the record.
type Block struct {
	ID        string
	Doc       string
	Type      string
	Content   string
	TextStyle string
	ListStyle models.ListStyle
	Indent    int
	Focus     bool
	Runs      []Run
	Props     map[string]any
	Children  []string
}

// Record encodes b the way the exporter does, with style and properties as
// JSON strings.
func (b Block) Record() models.BlockRecord {
	typ := b.Type
	if typ == "" {
		typ = "text"
	}
	style := map[string]any{}
	if b.TextStyle != "" {
		style["textStyle"] = b.TextStyle
	}
	if b.ListStyle != "" {
		style["listStyle"] = b.ListStyle
	}
	if b.Indent > 0 {
		style["indentationLevel"] = b.Indent
	}
	if b.Focus {
		style["decorations"] = map[string]any{"focus": true}
	}
	if len(b.Runs) > 0 {
		runs := make([]map[string]any, 0, len(b.Runs))
		for _, r := range b.Runs {
			run := map[string]any{"range": []int{r.Start, r.Length}}
			if r.Bold {
				run["isBold"] = true
			}
			if r.Italic {
				run["isItalic"] = true
			}
			if r.Code {
				run["isCode"] = true
			}
			if r.Strike {
				run["isStrikethrough"] = true
			}
			if r.Highlight {
				run["highlightColor"] = "yellow"
			}
			if r.Link != "" {
				run["linkURL"] = r.Link
			}
			runs = append(runs, run)
		}
		style["_runAttributes"] = runs
	}

	return models.BlockRecord{
		ID:            b.ID,
		DocumentID:    b.Doc,
		Content:       b.Content,
		Type:          typ,
		Style:         encodeObject(style),
		Blocks:        b.Children,
		RawProperties: encodeObject(b.Props),
	}
}

func encodeObject(v map[string]any) models.EmbeddedJSON {
	if len(v) == 0 {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// ExportBuilder assembles an in-memory export for tests.
type ExportBuilder struct {
	exp models.Export
}

// NewExport returns an empty builder.
func NewExport() *ExportBuilder {
	return &ExportBuilder{}
}

// Folder adds a folder listing docs.
func (b *ExportBuilder) Folder(id, name, parent string, docs ...string) *ExportBuilder {
	b.exp.Folders = append(b.exp.Folders, models.FolderRecord{
		ID:             id,
		Name:           name,
		ParentFolderID: parent,
		Documents:      docs,
	})
	return b
}

// Page adds a document whose root block is titled title and whose top-level
// children are children. The root block id is id+"-root". Children default
// to the new document.
func (b *ExportBuilder) Page(id, title string, created time.Time, children ...Block) *ExportBuilder {
	rootID := id + "-root"
	ids := make([]string, 0, len(children))
	for _, c := range children {
		ids = append(ids, c.ID)
	}
	b.exp.Documents = append(b.exp.Documents, models.DocumentRecord{
		ID:          id,
		RootBlockID: rootID,
		Created:     models.Timestamp{Time: created},
		Modified:    models.Timestamp{Time: created},
	})
	b.exp.Blocks = append(b.exp.Blocks, Block{
		ID:        rootID,
		Doc:       id,
		Content:   title,
		TextStyle: models.TextTitle,
		Children:  ids,
	}.Record())
	for _, c := range children {
		if c.Doc == "" {
			c.Doc = id
		}
		b.exp.Blocks = append(b.exp.Blocks, c.Record())
	}
	return b
}

// Add appends nested blocks that a Page child refers to.
func (b *ExportBuilder) Add(doc string, blocks ...Block) *ExportBuilder {
	for _, c := range blocks {
		if c.Doc == "" {
			c.Doc = doc
		}
		b.exp.Blocks = append(b.exp.Blocks, c.Record())
	}
	return b
}

// Export returns the assembled export.
func (b *ExportBuilder) Export() *models.Export {
	out := b.exp
	return &out
}

// WriteExport encodes exp in the export file layout and returns its path.
func WriteExport(t *testing.T, exp *models.Export) string {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"FolderDataModel":   exp.Folders,
		"DocumentDataModel": exp.Documents,
		"BlockDataModel":    exp.Blocks,
	})
	if err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(t.TempDir(), "export.json")
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}
