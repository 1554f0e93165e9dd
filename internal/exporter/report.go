package exporter

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/starford/craftmd/internal/diag"
	"github.com/starford/craftmd/internal/review"
)

// writeReport renders the diagnostics of the run followed by the documents
// flagged for manual review.
func (e *Exporter) writeReport(ctx context.Context, sink *diag.Sink) error {
	manual, err := review.NewService(e.store, e.db).Manual(ctx)
	if err != nil {
		return err
	}
	var b strings.Builder
	if err := sink.WriteMarkdown(&b); err != nil {
		return err
	}
	b.WriteString(renderManual(b.Len() == 0, manual))
	if err := e.store.Write(e.opts.ReportName, []byte(b.String())); err != nil {
		return fmt.Errorf("exporter: write report: %w", err)
	}
	return nil
}

func renderManual(noDiagnostics bool, manual []review.ManualEntry) string {
	var b strings.Builder
	if noDiagnostics {
		b.WriteString("\n")
	}
	b.WriteString("\n## For manual review\n\n")
	for _, m := range manual {
		fmt.Fprintf(&b, "## [[%s]]\n\n", path.Base(m.Path))
		fmt.Fprintf(&b, "~~~diff\n%s\n~~~\n", strings.TrimSuffix(m.Note, "\n"))
	}
	return b.String()
}
