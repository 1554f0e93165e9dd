package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/starford/craftmd/internal/models"
	"github.com/starford/craftmd/internal/schema"
	"github.com/starford/craftmd/internal/testutil"
)

var created = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func mustNew(t *testing.T, b *testutil.ExportBuilder) *Repository {
	t.Helper()
	r, err := New(b.Export())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func docPath(t *testing.T, r *Repository, id string) string {
	t.Helper()
	d, ok := r.Document(id)
	if !ok {
		t.Fatalf("document %s missing", id)
	}
	return r.DocumentPath(d)
}

func TestSanitize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Plain", "Plain"},
		{"Meeting: notes", "Meeting - notes"},
		{"a/b", "a-b"},
		{"  spaced \t out\n", "spaced out"},
		{"x: y/z  w", "x - y-z w"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDocumentPaths(t *testing.T) {
	r := mustNew(t, testutil.NewExport().
		Folder("f1", "Projects", "", "d1").
		Folder("f2", "Client: Acme", "f1", "d2").
		Folder("f3", "Notes", "", "d3").
		Folder("f4", "Archive", "f3", "d5").
		Page("d1", "Plan", created).
		Page("d2", "Kickoff/Review", created).
		Page("d3", "Loose", created).
		Page("d4", "Orphan", created).
		Page("d5", "Old", created).
		Page("d6", "2024.03.05", created))

	tests := map[string]string{
		"d1": "1 - Projects/Plan.md",
		"d2": "1 - Projects/Client - Acme/Kickoff-Review.md",
		"d3": "Notes/Loose.md",
		"d4": "Inbox/Orphan.md",
		// only top-level folders are remapped
		"d5": "Notes/Archive/Old.md",
		"d6": "0 - Daily/2024/2024-03-05 Tue.md",
	}
	for id, want := range tests {
		if got := docPath(t, r, id); got != want {
			t.Errorf("path(%s) = %q, want %q", id, got, want)
		}
	}

	d2, _ := r.Document("d2")
	if got := r.DocumentName(d2); got != "Kickoff-Review" {
		t.Errorf("DocumentName = %q, want %q", got, "Kickoff-Review")
	}
}

func TestDocumentsOrderedByPath(t *testing.T) {
	r := mustNew(t, testutil.NewExport().
		Page("b", "Bravo", created).
		Page("a", "Alpha", created).
		Page("c", "2024.01.01", created))
	var got []string
	for _, d := range r.Documents() {
		got = append(got, d.ID)
	}
	want := []string{"c", "a", "b"}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestAttachmentRegistry(t *testing.T) {
	r := mustNew(t, testutil.NewExport().Page("d", "Doc", created,
		testutil.Block{ID: "b3", Type: "image", Props: map[string]any{"fileName": "photo.jpg"}},
		testutil.Block{ID: "b1", Type: "image", Props: map[string]any{"fileName": "photo.jpg", "rawUrl": "https://cdn/1", "rawDataSize": 42}},
		testutil.Block{ID: "b2", Type: "file", Props: map[string]any{"fileName": "photo.jpg"}},
		testutil.Block{ID: "b4", Type: "file", Props: map[string]any{"fileName": "scan"}},
		testutil.Block{ID: "b5", Type: "file", Props: map[string]any{"fileName": "photo-1.pdf"}},
		testutil.Block{ID: "t", Content: "not an attachment"},
	))

	want := map[string]string{
		"b1": "photo.jpg",
		"b2": "photo-1.jpg",
		"b3": "photo-2.jpg",
		"b4": "scan.png",
		"b5": "photo-1-1.pdf",
	}
	for id, name := range want {
		a, ok := r.Attachment(id)
		if !ok {
			t.Fatalf("attachment %s missing", id)
		}
		if a.Filename != name {
			t.Errorf("attachment %s = %q, want %q", id, a.Filename, name)
		}
	}
	if _, ok := r.Attachment("t"); ok {
		t.Error("text block has an attachment entry")
	}
	b1, _ := r.Attachment("b1")
	if b1.SourceURL != "https://cdn/1" || b1.ExpectedSize != 42 {
		t.Errorf("b1 = %+v", b1)
	}
	if got := len(r.Attachments()); got != 5 {
		t.Errorf("len(Attachments) = %d, want 5", got)
	}
}

func TestResolveAndIsRoot(t *testing.T) {
	r := mustNew(t, testutil.NewExport().Page("d", "Doc", created, testutil.Block{ID: "c", Content: "child"}))
	root, ok := r.Resolve("d-root")
	if !ok || !r.IsRoot(root) {
		t.Fatalf("d-root: ok=%v root=%v", ok, ok && r.IsRoot(root))
	}
	child, ok := r.Resolve("c")
	if !ok || r.IsRoot(child) {
		t.Fatalf("c: ok=%v, want non-root", ok)
	}
	if got := r.LinkName(child); got != "Doc" {
		t.Errorf("LinkName = %q, want %q", got, "Doc")
	}
	if got := r.BlockPath(child); got != "Inbox/Doc.md" {
		t.Errorf("BlockPath = %q, want %q", got, "Inbox/Doc.md")
	}
	if _, ok := r.Resolve("nope"); ok {
		t.Error("Resolve(nope) succeeded")
	}
}

func TestAmbiguousFolderIsAnIssue(t *testing.T) {
	r := mustNew(t, testutil.NewExport().
		Folder("fb", "Second", "", "d").
		Folder("fa", "First", "", "d").
		Page("d", "Doc", created))

	if got := docPath(t, r, "d"); got != "First/Doc.md" {
		t.Errorf("path = %q, want %q", got, "First/Doc.md")
	}
	issues := r.Issues()
	if len(issues) != 1 || issues[0].DocumentID != "d" {
		t.Fatalf("issues = %+v, want one for d", issues)
	}
	if want := "First (fa)\nSecond (fb)"; issues[0].Detail != want {
		t.Errorf("detail = %q, want %q", issues[0].Detail, want)
	}
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name string
		exp  func() *models.Export
		want error
	}{
		{"cycle", func() *models.Export {
			return testutil.NewExport().Folder("a", "A", "b").Folder("b", "B", "a").Export()
		}, ErrFolderCycle},
		{"missing parent", func() *models.Export {
			return testutil.NewExport().Folder("a", "A", "zz").Export()
		}, ErrDanglingReference},
		{"missing child", func() *models.Export {
			return testutil.NewExport().Page("d", "Doc", created, testutil.Block{ID: "c", Content: "x", Children: []string{"gone"}}).Export()
		}, ErrDanglingReference},
		{"missing document", func() *models.Export {
			return testutil.NewExport().Folder("f", "F", "", "gone").Export()
		}, ErrDanglingReference},
		{"duplicate block", func() *models.Export {
			return testutil.NewExport().Page("d", "Doc", created, testutil.Block{ID: "d-root", Content: "dup"}).Export()
		}, ErrDuplicateID},
		{"schema", func() *models.Export {
			return testutil.NewExport().Page("d", "Doc", created,
				testutil.Block{ID: "u", Type: "url", Props: map[string]any{"url": "https://x", "bogus": 1}}).Export()
		}, schema.ErrSchemaViolation},
		{"block type", func() *models.Export {
			return testutil.NewExport().Page("d", "Doc", created, testutil.Block{ID: "v", Type: "video"}).Export()
		}, schema.ErrUnknownBlockType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.exp())
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
