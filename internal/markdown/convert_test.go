package markdown

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/starford/craftmd/internal/diag"
	"github.com/starford/craftmd/internal/models"
	"github.com/starford/craftmd/internal/repository"
	"github.com/starford/craftmd/internal/testutil"
)

var created = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

func buildRepo(t *testing.T, b *testutil.ExportBuilder) *repository.Repository {
	t.Helper()
	repo, err := repository.New(b.Export())
	if err != nil {
		t.Fatalf("repository.New: %v", err)
	}
	return repo
}

// convertDoc converts the document with id doc and returns its Markdown.
func convertDoc(t *testing.T, repo *repository.Repository, doc string, stager Stager, opts Options) (string, *diag.Collector, error) {
	t.Helper()
	d, ok := repo.Document(doc)
	if !ok {
		t.Fatalf("document %s not found", doc)
	}
	rec := &diag.Collector{}
	res, err := NewConverter(repo, stager, opts).Convert(context.Background(), repo.Root(d), rec)
	if err != nil {
		return "", rec, err
	}
	return res.Markdown, rec, nil
}

func mustConvert(t *testing.T, b *testutil.ExportBuilder) (string, *diag.Collector) {
	t.Helper()
	md, rec, err := convertDoc(t, buildRepo(t, b), "doc", nil, Options{})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	return md, rec
}

func TestConvert_HeadingThenText(t *testing.T) {
	md, _ := mustConvert(t, testutil.NewExport().Page("doc", "Doc", created,
		testutil.Block{ID: "h", Content: "Title", TextStyle: models.TextTitle},
		testutil.Block{ID: "t", Content: "Body"},
	))
	if want := "# Title\n\nBody"; md != want {
		t.Errorf("markdown = %q, want %q", md, want)
	}
}

func TestConvert_HeadingLevels(t *testing.T) {
	md, _ := mustConvert(t, testutil.NewExport().Page("doc", "Doc", created,
		testutil.Block{ID: "a", Content: "One", TextStyle: models.TextTitle},
		testutil.Block{ID: "b", Content: "Two", TextStyle: models.TextSubtitle},
		testutil.Block{ID: "c", Content: "Three", TextStyle: models.TextHeading},
		testutil.Block{ID: "d", Content: "Four", TextStyle: models.TextStrong},
	))
	if want := "# One\n\n## Two\n\n### Three\n\n#### Four"; md != want {
		t.Errorf("markdown = %q, want %q", md, want)
	}
}

func TestConvert_BulletList(t *testing.T) {
	md, _ := mustConvert(t, testutil.NewExport().Page("doc", "Doc", created,
		testutil.Block{ID: "a", Content: "a", ListStyle: models.ListBullet},
		testutil.Block{ID: "b", Content: "b", ListStyle: models.ListBullet},
		testutil.Block{ID: "c", Content: "c", ListStyle: models.ListBullet},
	))
	if want := "- a\n- b\n- c"; md != want {
		t.Errorf("markdown = %q, want %q", md, want)
	}
}

func TestConvert_NumberedList(t *testing.T) {
	md, _ := mustConvert(t, testutil.NewExport().Page("doc", "Doc", created,
		testutil.Block{ID: "a", Content: "a", ListStyle: models.ListNumbered},
		testutil.Block{ID: "b", Content: "b", ListStyle: models.ListNumbered},
	))
	if want := "1. a\n2. b"; md != want {
		t.Errorf("markdown = %q, want %q", md, want)
	}
}

func TestConvert_ListCounterRestarts(t *testing.T) {
	md, _ := mustConvert(t, testutil.NewExport().Page("doc", "Doc", created,
		testutil.Block{ID: "a", Content: "a", ListStyle: models.ListNumbered},
		testutil.Block{ID: "b", Content: "b", ListStyle: models.ListNumbered},
		testutil.Block{ID: "c", Content: "c", ListStyle: models.ListNumbered},
		testutil.Block{ID: "x", Content: "between"},
		testutil.Block{ID: "d", Content: "d", ListStyle: models.ListNumbered},
		testutil.Block{ID: "e", Content: "e", ListStyle: models.ListNumbered},
	))
	if want := "1. a\n2. b\n3. c\n\nbetween\n\n1. d\n2. e"; md != want {
		t.Errorf("markdown = %q, want %q", md, want)
	}
}

func TestConvert_EmptyListItemsSkipped(t *testing.T) {
	md, _ := mustConvert(t, testutil.NewExport().Page("doc", "Doc", created,
		testutil.Block{ID: "a", Content: "a", ListStyle: models.ListNumbered},
		testutil.Block{ID: "b", Content: "   ", ListStyle: models.ListNumbered},
		testutil.Block{ID: "c", Content: "c", ListStyle: models.ListNumbered},
	))
	if want := "1. a\n2. c"; md != want {
		t.Errorf("markdown = %q, want %q", md, want)
	}
}

func TestConvert_TodoAndIndentation(t *testing.T) {
	md, _ := mustConvert(t, testutil.NewExport().Page("doc", "Doc", created,
		testutil.Block{ID: "a", Content: "done", ListStyle: models.ListTodo, Props: map[string]any{"isTodoChecked": true}},
		testutil.Block{ID: "b", Content: "open", ListStyle: models.ListTodo, Indent: 1},
		testutil.Block{ID: "c", Content: "toggle", ListStyle: models.ListToggle, Indent: 2},
	))
	if want := "- [x] done\n    - [ ] open\n        - toggle"; md != want {
		t.Errorf("markdown = %q, want %q", md, want)
	}
}

func TestConvert_NestedListChildrenInline(t *testing.T) {
	md, _ := mustConvert(t, testutil.NewExport().
		Page("doc", "Doc", created,
			testutil.Block{ID: "a", Content: "a", ListStyle: models.ListBullet, Children: []string{"a1", "a2"}},
			testutil.Block{ID: "b", Content: "b", ListStyle: models.ListBullet},
		).
		Add("doc",
			testutil.Block{ID: "a1", Content: "a1", ListStyle: models.ListBullet, Indent: 1},
			testutil.Block{ID: "a2", Content: "a2", ListStyle: models.ListBullet, Indent: 1},
		))
	if want := "- a\n    - a1\n    - a2\n- b"; md != want {
		t.Errorf("markdown = %q, want %q", md, want)
	}
}

func TestConvert_ListWithTextChildrenIsSubpage(t *testing.T) {
	md, _ := mustConvert(t, testutil.NewExport().
		Page("doc", "Doc", created,
			testutil.Block{ID: "a", Content: "a", ListStyle: models.ListBullet, Children: []string{"p"}},
		).
		Add("doc", testutil.Block{ID: "p", Content: "para"}))
	if want := "- a\n### #subpage\npara\n---"; md != want {
		t.Errorf("markdown = %q, want %q", md, want)
	}
}

func TestConvert_Page(t *testing.T) {
	md, _ := mustConvert(t, testutil.NewExport().
		Page("doc", "Doc", created,
			testutil.Block{ID: "p", Content: "Sub", TextStyle: models.TextPageRegular, Children: []string{"in"}},
			testutil.Block{ID: "after", Content: "after"},
		).
		Add("doc", testutil.Block{ID: "in", Content: "inside"}))
	if want := "### Sub #subpage\n\ninside\n\n---\n\nafter"; md != want {
		t.Errorf("markdown = %q, want %q", md, want)
	}
}

func TestConvert_EmptyPage(t *testing.T) {
	// The empty body adds no blank lines between heading and separator.
	md, rec := mustConvert(t, testutil.NewExport().
		Page("doc", "Doc", created,
			testutil.Block{ID: "p", Content: "Sub", TextStyle: models.TextPageRegular},
		))
	if want := "### Sub #subpage\n\n---"; md != want {
		t.Errorf("markdown = %q, want %q", md, want)
	}
	if len(rec.Items) != 0 {
		t.Errorf("diagnostics = %+v, want none", rec.Items)
	}
}

func TestConvert_TextChildren(t *testing.T) {
	md, _ := mustConvert(t, testutil.NewExport().
		Page("doc", "Doc", created,
			testutil.Block{ID: "t", Content: "parent", Children: []string{"c1", "c2"}},
		).
		Add("doc",
			testutil.Block{ID: "c1", Content: "one"},
			testutil.Block{ID: "c2", Content: "two"},
		))
	if want := "parent\n\none\n\ntwo"; md != want {
		t.Errorf("markdown = %q, want %q", md, want)
	}
}

func TestConvert_BlockQuote(t *testing.T) {
	md, _ := mustConvert(t, testutil.NewExport().Page("doc", "Doc", created,
		testutil.Block{ID: "a", Content: "a", Focus: true},
		testutil.Block{ID: "b", Content: "b\nc", Focus: true},
		testutil.Block{ID: "d", Content: "d"},
	))
	if want := "> a\n> \n> b\n> c\n\nd"; md != want {
		t.Errorf("markdown = %q, want %q", md, want)
	}
}

func TestConvert_BlockQuotePrefixesOnce(t *testing.T) {
	md, _ := mustConvert(t, testutil.NewExport().Page("doc", "Doc", created,
		testutil.Block{ID: "a", Content: "one", Focus: true},
		testutil.Block{ID: "b", Content: "two", Focus: true, ListStyle: models.ListBullet},
		testutil.Block{ID: "c", Content: "three", Focus: true},
	))
	for _, line := range strings.Split(md, "\n") {
		if !strings.HasPrefix(line, "> ") {
			t.Errorf("line %q is not quoted", line)
		}
		if strings.HasPrefix(line, "> > ") {
			t.Errorf("line %q is quoted twice", line)
		}
	}
}

func TestConvert_QuotedListClosesOnFallingEdge(t *testing.T) {
	md, _ := mustConvert(t, testutil.NewExport().Page("doc", "Doc", created,
		testutil.Block{ID: "a", Content: "a", ListStyle: models.ListBullet, Focus: true},
		testutil.Block{ID: "b", Content: "b", ListStyle: models.ListBullet},
	))
	if want := "> - a\n\n- b"; md != want {
		t.Errorf("markdown = %q, want %q", md, want)
	}
}

func TestConvert_SeparatorGoesToRoot(t *testing.T) {
	md, _ := mustConvert(t, testutil.NewExport().Page("doc", "Doc", created,
		testutil.Block{ID: "a", Content: "a", Focus: true},
		testutil.Block{ID: "s", Type: "line", Focus: true},
		testutil.Block{ID: "b", Content: "b", Focus: true},
	))
	if want := "---\n\n> a\n> \n> b"; md != want {
		t.Errorf("markdown = %q, want %q", md, want)
	}
}

func TestConvert_URLAndCode(t *testing.T) {
	md, _ := mustConvert(t, testutil.NewExport().Page("doc", "Doc", created,
		testutil.Block{ID: "u1", Type: "url", Props: map[string]any{"url": "https://a.io", "title": "A"}},
		testutil.Block{ID: "u2", Type: "url", Props: map[string]any{"url": "https://b.io", "description": "B site"}},
		testutil.Block{ID: "u3", Type: "url", Props: map[string]any{"url": "https://c.io"}},
		testutil.Block{ID: "c1", Type: "code", Content: "x := 1", Props: map[string]any{"language": "go"}},
		testutil.Block{ID: "c2", Type: "code", Content: "plain", Props: map[string]any{"language": "other"}},
	))
	want := "[A](https://a.io)\n\n[B site](https://b.io)\n\n[https://c.io](https://c.io)\n\n" +
		"```go\nx := 1\n```\n\n```\nplain\n```"
	if md != want {
		t.Errorf("markdown = %q, want %q", md, want)
	}
}

func TestConvert_TableRecordsDiagnostic(t *testing.T) {
	md, rec := mustConvert(t, testutil.NewExport().Page("doc", "Doc", created,
		testutil.Block{ID: "before", Content: "before"},
		testutil.Block{ID: "tbl", Type: "table"},
	))
	if md != "before" {
		t.Errorf("markdown = %q, want %q", md, "before")
	}
	if len(rec.Items) != 1 || rec.Items[0].Message != "skipping table" {
		t.Errorf("diagnostics = %+v, want one skipping table", rec.Items)
	}
}

type fakeStager struct {
	staged []string
	err    error
}

func (f *fakeStager) Stage(_ context.Context, a repository.Attachment, relPath string, _ diag.Recorder) error {
	f.staged = append(f.staged, a.BlockID+"="+relPath)
	return f.err
}

func TestConvert_Attachments(t *testing.T) {
	repo := buildRepo(t, testutil.NewExport().Page("doc", "Doc", created,
		testutil.Block{ID: "i1", Type: "image", Props: map[string]any{"fileName": "my shot.png", "rawUrl": "https://cdn/1"}},
		testutil.Block{ID: "i2", Type: "file", Props: map[string]any{"fileName": "my shot.png", "rawUrl": "https://cdn/2"}},
		testutil.Block{ID: "i3", Type: "image", Props: map[string]any{"fileName": "scan", "rawUrl": "https://cdn/3"}},
	))
	stager := &fakeStager{}
	md, rec, err := convertDoc(t, repo, "doc", stager, Options{})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	want := "![my shot.png](Attachments/my%20shot.png)\n\n" +
		"![my shot-1.png](Attachments/my%20shot-1.png)\n\n" +
		"![scan.png](Attachments/scan.png)"
	if md != want {
		t.Errorf("markdown = %q, want %q", md, want)
	}
	if len(stager.staged) != 3 || stager.staged[1] != "i2=Attachments/my shot-1.png" {
		t.Errorf("staged = %v", stager.staged)
	}
	if len(rec.Items) != 0 {
		t.Errorf("diagnostics = %+v, want none", rec.Items)
	}
}

func TestConvert_StagerFailureKeepsReference(t *testing.T) {
	repo := buildRepo(t, testutil.NewExport().Page("doc", "Doc", created,
		testutil.Block{ID: "i1", Type: "image", Props: map[string]any{"fileName": "a.png", "rawUrl": "https://cdn/1"}},
	))
	md, rec, err := convertDoc(t, repo, "doc", &fakeStager{err: errors.New("boom")}, Options{AttachmentsDir: "files"})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if want := "![a.png](files/a.png)"; md != want {
		t.Errorf("markdown = %q, want %q", md, want)
	}
	if len(rec.Items) != 1 || rec.Items[0].Detail != "boom" {
		t.Errorf("diagnostics = %+v, want one stage failure", rec.Items)
	}
}

func TestConvert_NestingTooDeep(t *testing.T) {
	repo := buildRepo(t, testutil.NewExport().
		Page("doc", "Doc", created, testutil.Block{ID: "t1", Content: "1", Children: []string{"t2"}}).
		Add("doc",
			testutil.Block{ID: "t2", Content: "2", Children: []string{"t3"}},
			testutil.Block{ID: "t3", Content: "3"},
		))
	if _, _, err := convertDoc(t, repo, "doc", nil, Options{MaxDepth: 2}); !errors.Is(err, ErrNestingTooDeep) {
		t.Fatalf("err = %v, want ErrNestingTooDeep", err)
	}
	md, _, err := convertDoc(t, repo, "doc", nil, Options{MaxDepth: 3})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if want := "1\n\n2\n\n3"; md != want {
		t.Errorf("markdown = %q, want %q", md, want)
	}
}

func TestConvert_OverlappingSpansInBlock(t *testing.T) {
	md, rec := mustConvert(t, testutil.NewExport().Page("doc", "Doc", created,
		testutil.Block{ID: "t", Content: "hello world", Runs: []testutil.Run{
			{Start: 0, Length: 5, Bold: true},
			{Start: 3, Length: 5, Italic: true},
		}},
	))
	if md != "hello world" {
		t.Errorf("markdown = %q, want content unchanged", md)
	}
	if len(rec.Items) != 1 || rec.Items[0].Message != "skipping overlapping styles" {
		t.Errorf("diagnostics = %+v, want one overlap", rec.Items)
	}
}

func TestConvert_CanceledContext(t *testing.T) {
	repo := buildRepo(t, testutil.NewExport().Page("doc", "Doc", created, testutil.Block{ID: "t", Content: "x"}))
	d, _ := repo.Document("doc")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewConverter(repo, nil, Options{}).Convert(ctx, repo.Root(d), &diag.Collector{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
