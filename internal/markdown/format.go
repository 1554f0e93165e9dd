package markdown

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/starford/craftmd/internal/diag"
	"github.com/starford/craftmd/internal/models"
	"github.com/starford/craftmd/internal/repository"
)

// ErrUnknownSpanStyle means a span carries a style tag the formatter has no
// marker for.
var ErrUnknownSpanStyle = errors.New("unknown span style")

// Link schemes with special handling.
const (
	SchemeDay       = "day"
	SchemeCraftDocs = "craftdocs"
)

// markers wrap a span's text, innermost first.
var markers = []struct {
	style  models.SpanStyle
	marker string
}{
	{models.StyleCode, "`"},
	{models.StyleHighlight, "=="},
	{models.StyleBold, "**"},
	{models.StyleItalic, "_"},
	{models.StyleStrikethrough, "~~"},
}

var (
	renderedLinkRe = regexp.MustCompile(`^\[.+\]\(.+`)
	renderedRefRe  = regexp.MustCompile(`^\[\[.+\]\]`)
)

// LinkResolver looks up the targets of cross-document links.
type LinkResolver interface {
	Resolve(blockID string) (*models.Block, bool)
	IsRoot(b *models.Block) bool
	// LinkName is the wikilink name of the document b belongs to.
	LinkName(b *models.Block) string
	// BlockPath is the output path of the document b belongs to.
	BlockPath(b *models.Block) string
}

// Formatter applies inline style spans to block content.
type Formatter struct {
	links LinkResolver
	rec   diag.Recorder
}

// NewFormatter returns a formatter that reports to rec.
func NewFormatter(links LinkResolver, rec diag.Recorder) *Formatter {
	return &Formatter{links: links, rec: rec}
}

// Format wraps the text addressed by each span in Markdown markup. Spans
// index runes of content. When two spans overlap the content is returned
// unchanged and a single diagnostic is recorded.
func (f *Formatter) Format(content string, spans []models.Span) (string, error) {
	if len(spans) == 0 {
		return content, nil
	}
	for _, s := range spans {
		for _, style := range s.Styles {
			if !knownStyle(style) {
				return "", fmt.Errorf("markdown: span %s: %w: %q", s, ErrUnknownSpanStyle, style)
			}
		}
	}

	text := []rune(content)
	ordered, dropped := clampSpans(spans, len(text))
	for _, s := range dropped {
		f.rec.Warn("skipping style outside the text", fmt.Sprintf("%s in %d characters: %q", s, len(text), content))
	}
	if overlapping(ordered) {
		f.rec.Warn("skipping overlapping styles", ruler(content, spans))
		return content, nil
	}

	var b strings.Builder
	b.Grow(len(content) + 8*len(ordered))
	pos := 0
	for _, s := range ordered {
		b.WriteString(string(text[pos:s.Start]))
		b.WriteString(f.wrap(text, s))
		pos = s.End + 1
	}
	b.WriteString(string(text[pos:]))
	return b.String(), nil
}

// wrap renders a single span. The link style may rewrite the text itself, so
// it is resolved before any marker is added.
func (f *Formatter) wrap(text []rune, s models.Span) string {
	substring := string(text[s.Start : s.End+1])
	var prefix, suffix string
	if s.Has(models.StyleLink) {
		prefix, substring, suffix = f.link(string(text[s.Start:]), substring, s.URL)
	}
	for _, m := range markers {
		if s.Has(m.style) {
			prefix = m.marker + prefix
			suffix += m.marker
		}
	}
	return prefix + substring + suffix
}

func (f *Formatter) link(rest, substring, target string) (prefix, text, suffix string) {
	// the exporter sometimes renders links into the content already
	if renderedLinkRe.MatchString(rest) || renderedRefRe.MatchString(rest) {
		return "", substring, ""
	}

	u, err := url.Parse(target)
	if err != nil {
		return "[", substring, "](" + target + ")"
	}

	switch u.Scheme {
	case SchemeDay:
		date, ok := parseDay(u.Host)
		if !ok {
			f.rec.Warn(fmt.Sprintf("skipping day link: `%s` with invalid date `%s`", substring, u.Host), "")
			return "", substring, ""
		}
		return "[[", repository.DailyName(date), "]]"
	case SchemeCraftDocs:
		other, ok := f.links.Resolve(u.Query().Get("blockId"))
		if !ok {
			f.rec.Warn(fmt.Sprintf("skipping block link: `%s` linking to nowhere", substring), "")
			return "", substring, ""
		}
		if !f.links.IsRoot(other) {
			f.rec.Warn(fmt.Sprintf("skipping block link: `%s` linking to `%s` in `%s`",
				substring, other.Content, f.links.BlockPath(other)), "")
			return "", substring, ""
		}
		return "[[", f.links.LinkName(other), "]]"
	}
	return "[", substring, "](" + target + ")"
}

func parseDay(host string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", "2006.01.02", "20060102"} {
		if t, err := time.Parse(layout, host); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func knownStyle(style models.SpanStyle) bool {
	if style == models.StyleLink {
		return true
	}
	for _, m := range markers {
		if m.style == style {
			return true
		}
	}
	return false
}

// clampSpans separates spans that address no text and trims the rest to
// the content length. The kept spans are sorted by start.
func clampSpans(spans []models.Span, n int) (kept, dropped []models.Span) {
	out := make([]models.Span, 0, len(spans))
	for _, s := range spans {
		if s.Start < 0 || s.Start >= n || s.Len() == 0 {
			dropped = append(dropped, s)
			continue
		}
		if s.End >= n {
			s.End = n - 1
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, dropped
}

// overlapping checks start-sorted neighbours for a shared character.
func overlapping(sorted []models.Span) bool {
	for i := 1; i < len(sorted); i++ {
		left, right := sorted[i-1], sorted[i]
		if left.Contains(right.Start) || right.Contains(left.End) {
			return true
		}
	}
	return false
}

// ruler draws each span under the content.
func ruler(content string, spans []models.Span) string {
	var b strings.Builder
	b.WriteString(content)
	for _, s := range spans {
		b.WriteByte('\n')
		b.WriteString(strings.Repeat(" ", max(s.Start, 0)))
		b.WriteString(strings.Repeat("^", s.Len()))
		fmt.Fprintf(&b, " %v %s", s.Styles, s)
		if s.Has(models.StyleLink) {
			b.WriteString(" " + s.URL)
		}
	}
	return b.String()
}
