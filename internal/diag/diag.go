// Package diag collects non-fatal conversion warnings per document.
package diag

import (
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
)

// Diagnostic is a warning with an optional block of detail text.
type Diagnostic struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Markdown renders the diagnostic as an unchecked task item.
func (d Diagnostic) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "- [ ] %s\n", d.Message)
	if d.Detail != "" {
		fmt.Fprintf(&b, "\n```\n%s\n```\n\n", d.Detail)
	}
	return b.String()
}

// Recorder records diagnostics for a single document.
type Recorder interface {
	Warn(message, detail string)
}

// Sink is an append-only, goroutine-safe store of diagnostics keyed by
// document path. Insertion order is kept within a document.
type Sink struct {
	mu     sync.Mutex
	byPath map[string][]Diagnostic
}

// NewSink creates an empty sink.
func NewSink() *Sink {
	return &Sink{byPath: make(map[string][]Diagnostic)}
}

// Record appends a diagnostic for documentPath.
func (s *Sink) Record(documentPath, message, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byPath[documentPath] = append(s.byPath[documentPath], Diagnostic{Message: message, Detail: detail})
}

// For returns a Recorder bound to documentPath.
func (s *Sink) For(documentPath string) Recorder {
	return scoped{sink: s, path: documentPath}
}

// Diagnostics returns a copy of the diagnostics recorded for documentPath.
func (s *Sink) Diagnostics(documentPath string) []Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Diagnostic(nil), s.byPath[documentPath]...)
}

// Paths returns every document path with at least one diagnostic, sorted.
func (s *Sink) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.byPath))
	for p := range s.byPath {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Len returns the total number of diagnostics.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, d := range s.byPath {
		n += len(d)
	}
	return n
}

// WriteMarkdown writes one section per document, headed by a wikilink to the
// document's file name.
func (s *Sink) WriteMarkdown(w io.Writer) error {
	for _, p := range s.Paths() {
		var b strings.Builder
		fmt.Fprintf(&b, "## [[%s]]\n\n", path.Base(p))
		for _, d := range s.Diagnostics(p) {
			b.WriteString(d.Markdown())
		}
		b.WriteString("\n")
		if _, err := io.WriteString(w, b.String()); err != nil {
			return err
		}
	}
	return nil
}

type scoped struct {
	sink *Sink
	path string
}

func (r scoped) Warn(message, detail string) {
	r.sink.Record(r.path, message, detail)
}

// Collector is a Recorder that keeps diagnostics in memory.
type Collector struct {
	Items []Diagnostic
}

// Warn implements Recorder.
func (c *Collector) Warn(message, detail string) {
	c.Items = append(c.Items, Diagnostic{Message: message, Detail: detail})
}
