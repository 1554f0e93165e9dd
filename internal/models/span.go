package models

import (
	"fmt"
	"slices"
)

// SpanStyle is an inline style tag.
type SpanStyle string

const (
	StyleLink          SpanStyle = "link"
	StyleCode          SpanStyle = "code"
	StyleBold          SpanStyle = "bold"
	StyleItalic        SpanStyle = "italic"
	StyleStrikethrough SpanStyle = "strikethrough"
	StyleHighlight     SpanStyle = "highlight"
)

// Span is an inclusive character range [Start, End] of a block's content
// with its style tags. Offsets count runes, not bytes.
type Span struct {
	Start  int
	End    int
	Styles []SpanStyle
	URL    string
}

// NewSpan builds a span from a start offset and a length.
func NewSpan(start, length int, url string, styles ...SpanStyle) Span {
	return Span{
		Start:  start,
		End:    start + length - 1,
		Styles: styles,
		URL:    url,
	}
}

// Len returns the number of characters covered.
func (s Span) Len() int {
	if s.End < s.Start {
		return 0
	}
	return s.End - s.Start + 1
}

// Contains reports whether offset i lies inside the span.
func (s Span) Contains(i int) bool {
	return s.Len() > 0 && i >= s.Start && i <= s.End
}

// Has reports whether the span carries style.
func (s Span) Has(style SpanStyle) bool {
	return slices.Contains(s.Styles, style)
}

func (s Span) String() string {
	return fmt.Sprintf("%d..%d", s.Start, s.End)
}
