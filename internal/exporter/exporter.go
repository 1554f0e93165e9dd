// Package exporter runs conversions: it loads an export, converts every
// document on a bounded worker pool, writes the output vault, records the
// run in the ledger and renders the results report.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"runtime"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/craftmd/internal/checksum"
	"github.com/starford/craftmd/internal/diag"
	"github.com/starford/craftmd/internal/importer"
	"github.com/starford/craftmd/internal/index"
	"github.com/starford/craftmd/internal/markdown"
	"github.com/starford/craftmd/internal/models"
	"github.com/starford/craftmd/internal/parser"
	"github.com/starford/craftmd/internal/repository"
	"github.com/starford/craftmd/internal/storage"
)

// DefaultReportName is the file name of the results report.
const DefaultReportName = "Craft Export Results.md"

// Event kinds passed to an EventCallback.
const (
	EventRunStarted  = "run.started"
	EventConverted   = "document.converted"
	EventRunFinished = "run.finished"
	EventRunFailed   = "run.failed"
)

// EventCallback is called as a run progresses. path is the document path
// for document events and the run id otherwise.
type EventCallback func(kind string, path string)

// Options configure an Exporter. Zero values select the defaults.
type Options struct {
	AttachmentsDir string
	// Frontmatter prepends created/modified timestamps as YAML.
	Frontmatter bool
	// PreserveTimes sets file times to the document's creation time.
	PreserveTimes bool
	// Skip holds regular expressions; documents whose path matches any of
	// them are not converted.
	Skip       []string
	ReportName string
	Workers    int
	MaxDepth   int
}

// Summary describes a finished run.
type Summary struct {
	RunID       string                      `json:"run_id"`
	Documents   int                         `json:"documents"`
	Skipped     int                         `json:"skipped"`
	Diagnostics int                         `json:"diagnostics"`
	Statuses    map[models.ReviewStatus]int `json:"statuses"`
}

// Exporter converts export files into the output vault.
type Exporter struct {
	store  storage.Provider
	db     index.Ledger
	stager markdown.Stager
	opts   Options
	skip   []*regexp.Regexp
	log    *slog.Logger
	notify EventCallback

	// one run at a time; the watcher and the API may both trigger runs
	running atomic.Bool
}

// ErrRunInProgress is returned when Run is called while another run is active.
var ErrRunInProgress = errors.New("conversion already running")

// New creates an Exporter. stager may be nil to leave attachments alone.
func New(store storage.Provider, db index.Ledger, stager markdown.Stager, opts Options, logger *slog.Logger) (*Exporter, error) {
	if opts.ReportName == "" {
		opts.ReportName = DefaultReportName
	}
	if opts.AttachmentsDir == "" {
		opts.AttachmentsDir = markdown.DefaultAttachmentsDir
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Exporter{store: store, db: db, stager: stager, opts: opts, log: logger}
	for _, pattern := range opts.Skip {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("exporter: skip pattern %q: %w", pattern, err)
		}
		e.skip = append(e.skip, re)
	}
	return e, nil
}

// OnEvent registers cb to receive run events. It must be called before the
// first Run.
func (e *Exporter) OnEvent(cb EventCallback) {
	e.notify = cb
}

func (e *Exporter) emit(kind, path string) {
	if e.notify != nil {
		e.notify(kind, path)
	}
}

// Run converts the export at input. Fatal errors (unreadable input, schema
// violations, inconsistent references, unknown styles, runaway nesting)
// abort the run and are recorded on it; everything else becomes a
// diagnostic in the report.
func (e *Exporter) Run(ctx context.Context, input string) (*Summary, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer e.running.Store(false)

	run := index.Run{ID: uuid.NewString(), Input: input, StartedAt: time.Now().UTC()}
	if err := e.db.StartRun(run); err != nil {
		return nil, err
	}
	e.log.Info("conversion started", slog.String("run_id", run.ID), slog.String("input", input))
	e.emit(EventRunStarted, run.ID)

	sink := diag.NewSink()
	sum, err := e.run(ctx, input, sink)
	if sum == nil {
		sum = &Summary{}
	}
	sum.RunID = run.ID
	sum.Diagnostics = sink.Len()

	run.Documents, run.Skipped, run.Diagnostics = sum.Documents, sum.Skipped, sum.Diagnostics
	if err != nil {
		run.Error = err.Error()
	}
	if ferr := e.db.FinishRun(run, collect(sink)); ferr != nil && err == nil {
		err = ferr
	}

	if err != nil {
		e.log.Error("conversion failed", slog.String("run_id", run.ID), slog.String("error", err.Error()))
		e.emit(EventRunFailed, run.ID)
		return sum, err
	}
	e.log.Info("conversion finished",
		slog.String("run_id", run.ID),
		slog.Int("documents", sum.Documents),
		slog.Int("skipped", sum.Skipped),
		slog.Int("diagnostics", sum.Diagnostics))
	e.emit(EventRunFinished, run.ID)
	return sum, nil
}

func (e *Exporter) run(ctx context.Context, input string, sink *diag.Sink) (*Summary, error) {
	exp, err := importer.Load(input)
	if err != nil {
		return nil, err
	}
	repo, err := repository.New(exp)
	if err != nil {
		return nil, err
	}
	for _, issue := range repo.Issues() {
		if d, ok := repo.Document(issue.DocumentID); ok {
			sink.Record(repo.DocumentPath(d), issue.Message, issue.Detail)
		}
	}

	sum := &Summary{Statuses: make(map[models.ReviewStatus]int)}
	jobs := e.plan(repo, sink, sum)

	conv := markdown.NewConverter(repo, e.stager, markdown.Options{
		MaxDepth:       e.opts.MaxDepth,
		AttachmentsDir: e.opts.AttachmentsDir,
	})

	var (
		written, tooLong atomic.Int64
		statuses         = make([]models.ReviewStatus, len(jobs))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i, d := range jobs {
		g.Go(func() error {
			status, err := e.convertOne(gctx, conv, repo, d, sink)
			if errors.Is(err, syscall.ENAMETOOLONG) {
				sink.Record(repo.DocumentPath(d), "filename too long", "")
				tooLong.Add(1)
				return nil
			}
			if err != nil {
				return fmt.Errorf("exporter: %s: %w", repo.DocumentPath(d), err)
			}
			statuses[i] = status
			written.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sum, err
	}

	sum.Documents = int(written.Load())
	sum.Skipped += int(tooLong.Load())
	for _, s := range statuses {
		if s != "" {
			sum.Statuses[s]++
		}
	}

	if err := e.writeReport(ctx, sink); err != nil {
		return sum, err
	}
	return sum, nil
}

// plan returns the documents to convert, in path order. Skipped documents
// are counted; when several documents share a path only the last is kept.
func (e *Exporter) plan(repo *repository.Repository, sink *diag.Sink, sum *Summary) []*repository.Document {
	var (
		jobs   []*repository.Document
		byPath = make(map[string][]string)
	)
	for _, d := range repo.Documents() {
		p := repo.DocumentPath(d)
		if e.skipped(p) {
			e.log.Debug("skipping document", slog.String("path", p))
			sum.Skipped++
			continue
		}
		byPath[p] = append(byPath[p], d.ID)
		if n := len(jobs); n > 0 && repo.DocumentPath(jobs[n-1]) == p {
			jobs[n-1] = d
			sum.Skipped++
			continue
		}
		jobs = append(jobs, d)
	}
	for p, ids := range byPath {
		if len(ids) > 1 {
			sink.Record(p, fmt.Sprintf("%d documents map to this path, keeping %s", len(ids), ids[len(ids)-1]),
				strings.Join(ids, "\n"))
		}
	}
	return jobs
}

func (e *Exporter) skipped(p string) bool {
	for _, re := range e.skip {
		if re.MatchString(p) {
			return true
		}
	}
	return false
}

type frontmatter struct {
	Created  time.Time `yaml:"created,omitempty"`
	Modified time.Time `yaml:"modified,omitempty"`
}

func (e *Exporter) convertOne(ctx context.Context, conv *markdown.Converter, repo *repository.Repository, d *repository.Document, sink *diag.Sink) (models.ReviewStatus, error) {
	p := repo.DocumentPath(d)
	res, err := conv.Convert(ctx, repo.Root(d), sink.For(p))
	if err != nil {
		return "", err
	}

	body := res.Markdown + "\n"
	content := []byte(body)
	if e.opts.Frontmatter {
		content, err = parser.WithFrontmatter(frontmatter{Created: d.Created, Modified: d.Modified}, body)
		if err != nil {
			return "", err
		}
	}
	if err := e.store.Write(p, content); err != nil {
		return "", err
	}
	if e.opts.PreserveTimes && !d.Created.IsZero() {
		if err := e.store.SetTimes(p, d.Created, d.Created); err != nil {
			return "", err
		}
	}

	parsed, err := parser.Parse(content)
	if err != nil {
		return "", err
	}
	name := repo.DocumentName(d)
	status, err := e.db.UpsertDocument(index.DocumentRow{
		Path:       p,
		DocumentID: d.ID,
		Name:       name,
		Title:      name,
		Checksum:   checksum.Sum(content),
		Tags:       parsed.Tags,
		CreatedAt:  d.Created,
	}, parsed.Body, parsed.Links)
	if err != nil {
		return "", err
	}

	e.log.Debug("converted", slog.String("path", p), slog.String("status", string(status)))
	e.emit(EventConverted, p)
	return status, nil
}

func collect(sink *diag.Sink) map[string][]diag.Diagnostic {
	out := make(map[string][]diag.Diagnostic)
	for _, p := range sink.Paths() {
		out[p] = sink.Diagnostics(p)
	}
	return out
}
