package models

import "encoding/json"

// SemanticType is the closed set of block kinds that drive rendering.
type SemanticType string

const (
	TypeText      SemanticType = "text"
	TypeHeading   SemanticType = "heading"
	TypePage      SemanticType = "page"
	TypeList      SemanticType = "list"
	TypeURL       SemanticType = "url"
	TypeCode      SemanticType = "code"
	TypeFile      SemanticType = "file"
	TypeImage     SemanticType = "image"
	TypeSeparator SemanticType = "separator"
	TypeTable     SemanticType = "table"
)

// SemanticTypes lists every semantic type in declaration order.
var SemanticTypes = []SemanticType{
	TypeText, TypeHeading, TypePage, TypeList, TypeURL,
	TypeCode, TypeFile, TypeImage, TypeSeparator, TypeTable,
}

// ListStyle is the list marker of a block.
type ListStyle string

const (
	ListNone     ListStyle = "none"
	ListBullet   ListStyle = "bullet"
	ListNumbered ListStyle = "numbered"
	ListToggle   ListStyle = "toggle"
	ListTodo     ListStyle = "todo"
)

// Text styles understood by the classifier.
const (
	TextBody        = "body"
	TextCaption     = "caption"
	TextPageRegular = "pageRegular"
	TextPageCard    = "pageCard"
	TextStrong      = "strong"
	TextHeading     = "heading"
	TextSubtitle    = "subtitle"
	TextTitle       = "title"
)

// RunAttributes is the formatting of one run of characters.
type RunAttributes struct {
	Range           []int           `json:"range"`
	IsBold          Flag            `json:"isBold"`
	IsCode          Flag            `json:"isCode"`
	IsItalic        Flag            `json:"isItalic"`
	IsStrikethrough Flag            `json:"isStrikethrough"`
	LinkURL         string          `json:"linkURL"`
	HighlightColor  json.RawMessage `json:"highlightColor"`
}

// Span converts the run into a Span. Links come first since they may
// rewrite the addressed text.
func (r RunAttributes) Span() Span {
	var start, length int
	if len(r.Range) > 0 {
		start = r.Range[0]
	}
	if len(r.Range) > 1 {
		length = r.Range[1]
	}
	var styles []SpanStyle
	if r.LinkURL != "" {
		styles = append(styles, StyleLink)
	}
	if r.IsCode {
		styles = append(styles, StyleCode)
	}
	if r.IsBold {
		styles = append(styles, StyleBold)
	}
	if r.IsItalic {
		styles = append(styles, StyleItalic)
	}
	if r.IsStrikethrough {
		styles = append(styles, StyleStrikethrough)
	}
	if Present(r.HighlightColor) {
		styles = append(styles, StyleHighlight)
	}
	return NewSpan(start, length, r.LinkURL, styles...)
}

// Decorations are the block-level decoration flags. Either flag renders the
// block as a quote.
type Decorations struct {
	Focus Flag `json:"focus"`
	Block Flag `json:"block"`
}

// Style is the decoded style record of a block.
type Style struct {
	Runs             []RunAttributes `json:"_runAttributes"`
	Decorations      Decorations     `json:"decorations"`
	IndentationLevel int             `json:"indentationLevel"`
	ListStyle        ListStyle       `json:"listStyle"`
	TextStyle        string          `json:"textStyle"`
}

// Properties is the typed view of a block's raw property bag. Keys that are
// permitted for the block's type but not modeled land in Extra.
type Properties struct {
	URL           string `json:"url"`
	RawURL        string `json:"rawUrl"`
	OriginalURL   string `json:"originalUrl"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Language      string `json:"language"`
	FileName      string `json:"fileName"`
	FileExtension string `json:"fileExtension"`
	MimeType      string `json:"mimeType"`
	RawDataSize   Number `json:"rawDataSize"`
	IsTodoChecked Flag   `json:"isTodoChecked"`
	DailyNoteDate string `json:"dailyNoteDate"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Block is a validated block with its semantic type resolved.
type Block struct {
	ID         string
	DocumentID string
	RawType    string
	Type       SemanticType
	Content    string
	Children   []string
	Style      Style
	Props      Properties
}

// ListStyle returns the block's list style, defaulting to none.
func (b *Block) ListStyle() ListStyle {
	if b.Style.ListStyle == "" {
		return ListNone
	}
	return b.Style.ListStyle
}

// TextStyle returns the block's text style, defaulting to body.
func (b *Block) TextStyle() string {
	if b.Style.TextStyle == "" {
		return TextBody
	}
	return b.Style.TextStyle
}

// Quoted reports whether the block carries a focus or block decoration.
func (b *Block) Quoted() bool {
	return bool(b.Style.Decorations.Focus || b.Style.Decorations.Block)
}

// Checked reports whether the block is a checked todo item.
func (b *Block) Checked() bool {
	return bool(b.Props.IsTodoChecked)
}

// Indentation returns the list indentation level.
func (b *Block) Indentation() int {
	if b.Style.IndentationLevel < 0 {
		return 0
	}
	return b.Style.IndentationLevel
}

// Spans returns one span per formatting run, in run order.
func (b *Block) Spans() []Span {
	if len(b.Style.Runs) == 0 {
		return nil
	}
	out := make([]Span, 0, len(b.Style.Runs))
	for _, run := range b.Style.Runs {
		out = append(out, run.Span())
	}
	return out
}

// HasChildren reports whether the block has nested blocks.
func (b *Block) HasChildren() bool {
	return len(b.Children) > 0
}
