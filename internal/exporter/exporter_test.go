package exporter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/craftmd/internal/index"
	"github.com/starford/craftmd/internal/models"
	"github.com/starford/craftmd/internal/schema"
	"github.com/starford/craftmd/internal/storage"
	"github.com/starford/craftmd/internal/testutil"
)

var created = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

type env struct {
	dir   string
	store storage.Provider
	db    *index.DB
	exp   *Exporter
}

func newEnv(t *testing.T, opts Options) *env {
	t.Helper()
	dir, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	if opts.Workers == 0 {
		opts.Workers = 2
	}
	exp, err := New(store, db, nil, opts, testutil.Logger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &env{dir: dir, store: store, db: db, exp: exp}
}

func (e *env) read(t *testing.T, p string) string {
	t.Helper()
	data, err := e.store.Read(p)
	if err != nil {
		t.Fatalf("read %s: %v", p, err)
	}
	return string(data)
}

func sampleExport() *testutil.ExportBuilder {
	return testutil.NewExport().
		Folder("f1", "Work", "", "d1").
		Folder("f2", "Trash", "", "d2").
		Page("d1", "Plan", created, testutil.Block{
			ID: "p1", Content: "see Notes",
			Runs: []testutil.Run{{Start: 4, Length: 5, Link: "craftdocs://open?blockId=d3-root"}},
		}).
		Page("d2", "Old", created, testutil.Block{ID: "o1", Content: "gone"}).
		Page("d3", "Notes", created, testutil.Block{ID: "n1", Content: "hello"})
}

func TestRun(t *testing.T) {
	e := newEnv(t, Options{Skip: []string{"Trash"}, PreserveTimes: true})
	input := testutil.WriteExport(t, sampleExport().Export())

	var (
		mu     sync.Mutex
		events []string
	)
	e.exp.OnEvent(func(kind, path string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, kind)
	})

	sum, err := e.exp.Run(context.Background(), input)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Documents != 2 || sum.Skipped != 1 || sum.Diagnostics != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.Statuses[models.StatusPending] != 2 {
		t.Errorf("statuses = %v", sum.Statuses)
	}

	if got, want := e.read(t, "Work/Plan.md"), "see [[Notes]]\n"; got != want {
		t.Errorf("Plan.md = %q, want %q", got, want)
	}
	if got, want := e.read(t, "Inbox/Notes.md"), "hello\n"; got != want {
		t.Errorf("Notes.md = %q, want %q", got, want)
	}
	if ok, _ := e.store.Exists("Trash/Old.md"); ok {
		t.Error("Trash/Old.md should be skipped")
	}
	if got, want := e.read(t, DefaultReportName), "\n\n## For manual review\n\n"; got != want {
		t.Errorf("report = %q, want %q", got, want)
	}

	info, err := os.Stat(filepath.Join(e.dir, "Work", "Plan.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(created) {
		t.Errorf("mtime = %v, want %v", info.ModTime(), created)
	}

	bl, err := e.db.Backlinks("Notes")
	if err != nil {
		t.Fatal(err)
	}
	if len(bl) != 1 || bl[0] != "Work/Plan.md" {
		t.Errorf("backlinks = %v", bl)
	}
	row, err := e.db.GetDocument("Work/Plan.md")
	if err != nil {
		t.Fatal(err)
	}
	if row.DocumentID != "d1" || row.Name != "Plan" || !row.CreatedAt.Equal(created) {
		t.Errorf("row = %+v", row)
	}

	run, err := e.db.LatestRun()
	if err != nil {
		t.Fatal(err)
	}
	if run.ID != sum.RunID || run.Documents != 2 || run.Skipped != 1 || run.Error != "" {
		t.Errorf("run = %+v", run)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 4 || events[0] != EventRunStarted || events[3] != EventRunFinished {
		t.Errorf("events = %v", events)
	}
}

func TestRunKeepsReviewStatus(t *testing.T) {
	e := newEnv(t, Options{Skip: []string{"Trash"}})
	input := testutil.WriteExport(t, sampleExport().Export())
	ctx := context.Background()

	if _, err := e.exp.Run(ctx, input); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := e.db.SetStatus("Inbox/Notes.md", models.StatusManual, "-hello\n+hallo\n", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := e.db.SetStatus("Work/Plan.md", models.StatusGood, "", ""); err != nil {
		t.Fatal(err)
	}

	sum, err := e.exp.Run(ctx, input)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if sum.Statuses[models.StatusManual] != 1 || sum.Statuses[models.StatusGood] != 1 {
		t.Errorf("statuses = %v", sum.Statuses)
	}

	want := "\n\n## For manual review\n\n## [[Notes.md]]\n\n~~~diff\n-hello\n+hallo\n~~~\n"
	if got := e.read(t, DefaultReportName); got != want {
		t.Errorf("report = %q, want %q", got, want)
	}
}

func TestRunChangedOutputResetsStatus(t *testing.T) {
	e := newEnv(t, Options{})
	ctx := context.Background()

	first := testutil.WriteExport(t, testutil.NewExport().
		Page("d1", "Notes", created, testutil.Block{ID: "n1", Content: "hello"}).Export())
	if _, err := e.exp.Run(ctx, first); err != nil {
		t.Fatal(err)
	}
	_, _ = e.db.SetStatus("Inbox/Notes.md", models.StatusGood, "", "")

	second := testutil.WriteExport(t, testutil.NewExport().
		Page("d1", "Notes", created, testutil.Block{ID: "n1", Content: "hello again"}).Export())
	sum, err := e.exp.Run(ctx, second)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Statuses[models.StatusPending] != 1 {
		t.Errorf("statuses = %v", sum.Statuses)
	}
}

func TestRunDuplicatePaths(t *testing.T) {
	e := newEnv(t, Options{})
	input := testutil.WriteExport(t, testutil.NewExport().
		Page("d3", "Notes", created, testutil.Block{ID: "a", Content: "first"}).
		Page("d4", "Notes", created, testutil.Block{ID: "b", Content: "second"}).
		Export())

	sum, err := e.exp.Run(context.Background(), input)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Documents != 1 || sum.Skipped != 1 || sum.Diagnostics != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if got := e.read(t, "Inbox/Notes.md"); got != "second\n" {
		t.Errorf("Notes.md = %q, want %q", got, "second\n")
	}

	report := e.read(t, DefaultReportName)
	want := "## [[Notes.md]]\n\n- [ ] 2 documents map to this path, keeping d4\n\n```\nd3\nd4\n```\n\n\n\n## For manual review\n\n"
	if report != want {
		t.Errorf("report = %q, want %q", report, want)
	}

	rows, err := e.db.Diagnostics(sum.RunID, "Inbox/Notes.md")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Detail != "d3\nd4" {
		t.Errorf("stored diagnostics = %+v", rows)
	}
}

func TestRunFrontmatter(t *testing.T) {
	e := newEnv(t, Options{Frontmatter: true})
	input := testutil.WriteExport(t, testutil.NewExport().
		Page("d1", "Notes", created, testutil.Block{ID: "n1", Content: "hello #idea"}).Export())

	if _, err := e.exp.Run(context.Background(), input); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := e.read(t, "Inbox/Notes.md")
	want := "---\ncreated: 2024-03-05T10:00:00Z\nmodified: 2024-03-05T10:00:00Z\n---\nhello #idea\n"
	if got != want {
		t.Errorf("Notes.md = %q, want %q", got, want)
	}
	row, err := e.db.GetDocument("Inbox/Notes.md")
	if err != nil {
		t.Fatal(err)
	}
	if len(row.Tags) != 1 || row.Tags[0] != "idea" {
		t.Errorf("tags = %v", row.Tags)
	}
}

func TestRunFilenameTooLong(t *testing.T) {
	e := newEnv(t, Options{})
	input := testutil.WriteExport(t, testutil.NewExport().
		Page("d1", strings.Repeat("x", 300), created, testutil.Block{ID: "n1", Content: "hello"}).Export())

	sum, err := e.exp.Run(context.Background(), input)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Documents != 0 || sum.Skipped != 1 || sum.Diagnostics != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if report := e.read(t, DefaultReportName); !strings.Contains(report, "- [ ] filename too long\n") {
		t.Errorf("report = %q", report)
	}
}

func TestRunFatal(t *testing.T) {
	e := newEnv(t, Options{})
	input := testutil.WriteExport(t, testutil.NewExport().
		Page("d1", "Notes", created, testutil.Block{ID: "n1", Type: "mystery", Content: "?"}).Export())

	var failed bool
	e.exp.OnEvent(func(kind, _ string) {
		if kind == EventRunFailed {
			failed = true
		}
	})
	_, err := e.exp.Run(context.Background(), input)
	if !errors.Is(err, schema.ErrUnknownBlockType) {
		t.Fatalf("err = %v, want ErrUnknownBlockType", err)
	}
	if !failed {
		t.Error("expected run.failed event")
	}
	run, err := e.db.LatestRun()
	if err != nil {
		t.Fatal(err)
	}
	if run.Error == "" || run.FinishedAt == nil {
		t.Errorf("run = %+v", run)
	}
	if ok, _ := e.store.Exists(DefaultReportName); ok {
		t.Error("no report expected for a failed run")
	}
}

func TestRunMissingInput(t *testing.T) {
	e := newEnv(t, Options{})
	if _, err := e.exp.Run(context.Background(), filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewRejectsBadSkipPattern(t *testing.T) {
	_, store := testutil.TestVault(t)
	if _, err := New(store, testutil.TestDB(t), nil, Options{Skip: []string{"("}}, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestRun_ManyDocumentsInParallel(t *testing.T) {
	const docs = 200
	e := newEnv(t, Options{Workers: 8})
	b := testutil.NewExport()
	for i := 0; i < docs; i++ {
		id := fmt.Sprintf("d%03d", i)
		b.Page(id, fmt.Sprintf("Note %d", i), created, testutil.Block{ID: id + "-p", Content: "body"})
	}
	input := testutil.WriteExport(t, b.Export())

	// A second run rewrites every ledger row concurrently as well.
	for run := 0; run < 2; run++ {
		sum, err := e.exp.Run(context.Background(), input)
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if sum.Documents != docs || sum.Statuses[models.StatusPending] != docs {
			t.Errorf("run %d summary = %+v", run, sum)
		}
	}
	_, total, err := e.db.ListDocuments(index.ListFilter{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if total != docs {
		t.Errorf("ledger rows = %d, want %d", total, docs)
	}
}
