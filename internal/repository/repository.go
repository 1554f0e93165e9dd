// Package repository holds the immutable lookup tables that conversion reads
// from: folders, documents, validated blocks and the attachment registry.
//
// A Repository is fully built by New before any conversion starts and is
// never mutated afterwards, so it is safe for concurrent readers.
package repository

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/starford/craftmd/internal/models"
	"github.com/starford/craftmd/internal/schema"
)

var (
	// ErrFolderCycle means a folder's parent chain loops back on itself.
	ErrFolderCycle = errors.New("folder parent chain is cyclic")
	// ErrDanglingReference means a record points at an id that does not exist.
	ErrDanglingReference = errors.New("dangling reference")
	// ErrDuplicateID means two records of one kind share an id.
	ErrDuplicateID = errors.New("duplicate id")
)

// Folder is a node of the folder tree.
type Folder struct {
	ID        string
	Name      string
	ParentID  string
	Documents []string
}

// Document is a converted unit: one root block and its subtree.
type Document struct {
	ID          string
	RootBlockID string
	Created     time.Time
	Modified    time.Time
}

// Issue is a data-integrity problem that does not stop conversion.
type Issue struct {
	DocumentID string
	Message    string
	Detail     string
}

// Repository is the read-only view of an export.
type Repository struct {
	folders     map[string]*Folder
	documents   map[string]*Document
	blocks      map[string]*models.Block
	attachments map[string]Attachment

	// folderOf maps a document id to the sorted ids of folders listing it.
	folderOf map[string][]string
	paths    map[string]string
	order    []*Document
}

// New validates every record and builds the repository. Any error is fatal:
// schema violations, unknown block types, dangling references and folder
// cycles all mean the export cannot be converted faithfully.
func New(exp *models.Export) (*Repository, error) {
	r := &Repository{
		folders:   make(map[string]*Folder, len(exp.Folders)),
		documents: make(map[string]*Document, len(exp.Documents)),
		blocks:    make(map[string]*models.Block, len(exp.Blocks)),
		folderOf:  make(map[string][]string),
	}

	for _, rec := range exp.Folders {
		if _, dup := r.folders[rec.ID]; dup {
			return nil, fmt.Errorf("repository: folder %s: %w", rec.ID, ErrDuplicateID)
		}
		r.folders[rec.ID] = &Folder{
			ID:        rec.ID,
			Name:      rec.Name,
			ParentID:  rec.ParentFolderID,
			Documents: rec.Documents,
		}
	}
	for _, rec := range exp.Documents {
		if _, dup := r.documents[rec.ID]; dup {
			return nil, fmt.Errorf("repository: document %s: %w", rec.ID, ErrDuplicateID)
		}
		r.documents[rec.ID] = &Document{
			ID:          rec.ID,
			RootBlockID: rec.RootBlockID,
			Created:     rec.Created.Time,
			Modified:    rec.Modified.Time,
		}
	}
	for _, rec := range exp.Blocks {
		if _, dup := r.blocks[rec.ID]; dup {
			return nil, fmt.Errorf("repository: block %s: %w", rec.ID, ErrDuplicateID)
		}
		b, err := schema.NewBlock(rec)
		if err != nil {
			return nil, fmt.Errorf("repository: %w", err)
		}
		r.blocks[b.ID] = b
	}

	if err := r.checkReferences(); err != nil {
		return nil, err
	}
	if err := r.checkFolderTree(); err != nil {
		return nil, err
	}

	for _, f := range r.folders {
		for _, docID := range f.Documents {
			r.folderOf[docID] = append(r.folderOf[docID], f.ID)
		}
	}
	for id := range r.folderOf {
		sort.Strings(r.folderOf[id])
	}

	r.attachments = buildAttachments(r.blocks)

	r.paths = make(map[string]string, len(r.documents))
	r.order = make([]*Document, 0, len(r.documents))
	for _, d := range r.documents {
		r.paths[d.ID] = r.computeDocumentPath(d)
		r.order = append(r.order, d)
	}
	sort.Slice(r.order, func(i, j int) bool {
		pi, pj := r.paths[r.order[i].ID], r.paths[r.order[j].ID]
		if pi != pj {
			return pi < pj
		}
		return r.order[i].ID < r.order[j].ID
	})

	return r, nil
}

func (r *Repository) checkReferences() error {
	for _, d := range r.documents {
		root, ok := r.blocks[d.RootBlockID]
		if !ok {
			return fmt.Errorf("repository: document %s root block %s: %w", d.ID, d.RootBlockID, ErrDanglingReference)
		}
		if root.DocumentID != d.ID {
			return fmt.Errorf("repository: document %s root block %s belongs to %s: %w", d.ID, root.ID, root.DocumentID, ErrDanglingReference)
		}
	}
	for _, b := range r.blocks {
		if _, ok := r.documents[b.DocumentID]; !ok {
			return fmt.Errorf("repository: block %s document %s: %w", b.ID, b.DocumentID, ErrDanglingReference)
		}
		for _, child := range b.Children {
			if _, ok := r.blocks[child]; !ok {
				return fmt.Errorf("repository: block %s child %s: %w", b.ID, child, ErrDanglingReference)
			}
		}
	}
	for _, f := range r.folders {
		if f.ParentID != "" {
			if _, ok := r.folders[f.ParentID]; !ok {
				return fmt.Errorf("repository: folder %s parent %s: %w", f.ID, f.ParentID, ErrDanglingReference)
			}
		}
		for _, docID := range f.Documents {
			if _, ok := r.documents[docID]; !ok {
				return fmt.Errorf("repository: folder %s document %s: %w", f.ID, docID, ErrDanglingReference)
			}
		}
	}
	return nil
}

func (r *Repository) checkFolderTree() error {
	for _, f := range r.folders {
		seen := map[string]struct{}{f.ID: {}}
		for p := f.ParentID; p != ""; p = r.folders[p].ParentID {
			if _, loop := seen[p]; loop {
				return fmt.Errorf("repository: folder %s: %w", f.ID, ErrFolderCycle)
			}
			seen[p] = struct{}{}
		}
	}
	return nil
}

// Folder returns a folder by id.
func (r *Repository) Folder(id string) (*Folder, bool) {
	f, ok := r.folders[id]
	return f, ok
}

// Document returns a document by id.
func (r *Repository) Document(id string) (*Document, bool) {
	d, ok := r.documents[id]
	return d, ok
}

// Block returns a block by id.
func (r *Repository) Block(id string) (*models.Block, bool) {
	b, ok := r.blocks[id]
	return b, ok
}

// Resolve returns the target block of a cross-document link.
func (r *Repository) Resolve(blockID string) (*models.Block, bool) {
	return r.Block(blockID)
}

// IsRoot reports whether b is the root block of its document.
func (r *Repository) IsRoot(b *models.Block) bool {
	d, ok := r.documents[b.DocumentID]
	return ok && d.RootBlockID == b.ID
}

// Root returns the root block of a document.
func (r *Repository) Root(d *Document) *models.Block {
	return r.blocks[d.RootBlockID]
}

// Documents returns every document ordered by output path.
func (r *Repository) Documents() []*Document {
	return append([]*Document(nil), r.order...)
}

// DocumentFolder returns the folder that lists d. When several folders list
// it, the one with the smallest id is returned and ambiguous is true.
func (r *Repository) DocumentFolder(d *Document) (f *Folder, ambiguous bool) {
	ids := r.folderOf[d.ID]
	if len(ids) == 0 {
		return nil, false
	}
	return r.folders[ids[0]], len(ids) > 1
}

// Issues reports data-integrity problems that conversion tolerates.
func (r *Repository) Issues() []Issue {
	var out []Issue
	for _, d := range r.order {
		ids := r.folderOf[d.ID]
		if len(ids) < 2 {
			continue
		}
		names := make([]string, len(ids))
		for i, id := range ids {
			names[i] = fmt.Sprintf("%s (%s)", r.folders[id].Name, id)
		}
		out = append(out, Issue{
			DocumentID: d.ID,
			Message:    fmt.Sprintf("document is listed in %d folders, using %s", len(ids), r.folders[ids[0]].Name),
			Detail:     strings.Join(names, "\n"),
		})
	}
	return out
}
