// Package markdown renders validated block trees as Markdown text.
//
// A Converter walks a block's children with an explicit stack of nesting
// frames (plain, list, block quote) and delegates inline formatting to a
// Formatter. Fatal errors are returned; everything else is recorded as a
// diagnostic and conversion continues.
package markdown

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/starford/craftmd/internal/diag"
	"github.com/starford/craftmd/internal/models"
	"github.com/starford/craftmd/internal/repository"
	"github.com/starford/craftmd/internal/schema"
)

// ErrNestingTooDeep means a block tree is nested deeper than the converter's
// limit.
var ErrNestingTooDeep = errors.New("block nesting too deep")

const (
	// DefaultMaxDepth bounds recursion into nested blocks.
	DefaultMaxDepth = 256
	// DefaultAttachmentsDir is where staged attachments live, relative to the
	// output root.
	DefaultAttachmentsDir = "Attachments"
)

// Source is the read-only data a conversion needs.
type Source interface {
	LinkResolver
	Block(id string) (*models.Block, bool)
	Attachment(blockID string) (repository.Attachment, bool)
}

// Stager materializes attachment payloads. Stage must only return once the
// file exists at relPath, or with an error.
type Stager interface {
	Stage(ctx context.Context, a repository.Attachment, relPath string, rec diag.Recorder) error
}

// Options tune a Converter. Zero values select the defaults.
type Options struct {
	MaxDepth       int
	AttachmentsDir string
}

// Converter turns block subtrees into Markdown. It holds no per-document
// state and may be shared between goroutines.
type Converter struct {
	src            Source
	stager         Stager
	maxDepth       int
	attachmentsDir string
}

// NewConverter creates a Converter reading from src. A nil stager leaves
// attachments unmaterialized.
func NewConverter(src Source, stager Stager, opts Options) *Converter {
	c := &Converter{
		src:            src,
		stager:         stager,
		maxDepth:       opts.MaxDepth,
		attachmentsDir: opts.AttachmentsDir,
	}
	if c.maxDepth <= 0 {
		c.maxDepth = DefaultMaxDepth
	}
	if c.attachmentsDir == "" {
		c.attachmentsDir = DefaultAttachmentsDir
	}
	return c
}

// Result is the outcome of converting one document.
type Result struct {
	Markdown string
	// Attachments lists the registry entries referenced, in output order.
	Attachments []repository.Attachment
}

// Convert renders the children of root. Diagnostics go to rec.
func (c *Converter) Convert(ctx context.Context, root *models.Block, rec diag.Recorder) (*Result, error) {
	run := &conversion{
		Converter: c,
		ctx:       ctx,
		rec:       rec,
		formatter: NewFormatter(c.src, rec),
	}
	md, err := run.children(root, 0)
	if err != nil {
		return nil, err
	}
	return &Result{Markdown: md, Attachments: run.attachments}, nil
}

// conversion is the state of one Convert call.
type conversion struct {
	*Converter
	ctx         context.Context
	rec         diag.Recorder
	formatter   *Formatter
	attachments []repository.Attachment
}

func (r *conversion) children(parent *models.Block, depth int) (string, error) {
	if depth >= r.maxDepth {
		return "", fmt.Errorf("markdown: block %s at depth %d: %w", parent.ID, depth, ErrNestingTooDeep)
	}
	if err := r.ctx.Err(); err != nil {
		return "", err
	}

	st := newStack()
	quoted := false
	for _, id := range parent.Children {
		b, ok := r.src.Block(id)
		if !ok {
			return "", fmt.Errorf("markdown: block %s child %s: %w", parent.ID, id, repository.ErrDanglingReference)
		}

		// lists only group consecutive items
		if st.top().kind == frameList && b.Type != models.TypeList {
			st.pop()
		}
		switch {
		case !quoted && b.Quoted():
			quoted = true
			st.push(frameQuote)
		case quoted && !b.Quoted():
			quoted = false
			st.popTo(frameQuote)
		}

		if err := r.block(&st, b, depth); err != nil {
			return "", err
		}
	}
	return st.flush(), nil
}

func (r *conversion) block(st *stack, b *models.Block, depth int) error {
	cur := st.top()
	switch b.Type {
	case models.TypePage:
		title, err := r.formatter.Format(b.Content+" "+subpageTag, b.Spans())
		if err != nil {
			return err
		}
		cur.add(heading(subpageHeading, title))
		page, err := r.children(b, depth+1)
		if err != nil {
			return err
		}
		cur.add(page)
		cur.add(separator)

	case models.TypeList:
		if strings.TrimSpace(b.Content) == "" {
			return nil
		}
		if cur.kind != frameList {
			cur = st.push(frameList)
		}
		text, err := r.formatter.Format(b.Content, b.Spans())
		if err != nil {
			return err
		}
		cur.add(listItem(text, b.Indentation(), b.ListStyle(), b.Checked(), cur.counter))
		if b.HasChildren() {
			nested, err := r.children(b, depth+1)
			if err != nil {
				return err
			}
			if first, ok := r.src.Block(b.Children[0]); ok && first.Type == models.TypeList {
				cur.add(nested)
			} else {
				cur.add(heading(subpageHeading, subpageTag))
				cur.add(nested)
				cur.add(separator)
			}
		}
		cur.counter++

	case models.TypeText:
		if strings.TrimSpace(b.Content) == "" {
			return nil
		}
		text, err := r.formatter.Format(b.Content, b.Spans())
		if err != nil {
			return err
		}
		cur.add(text)
		return r.nested(cur, b, depth)

	case models.TypeHeading:
		level, ok := schema.HeadingLevel(b.TextStyle())
		if !ok {
			return fmt.Errorf("markdown: block %s text style %q: %w", b.ID, b.TextStyle(), schema.ErrUnknownBlockType)
		}
		text, err := r.formatter.Format(b.Content, b.Spans())
		if err != nil {
			return err
		}
		cur.add(heading(level, text))
		return r.nested(cur, b, depth)

	case models.TypeURL:
		label := b.Props.Title
		if label == "" {
			label = b.Props.Description
		}
		if label == "" {
			label = b.Props.URL
		}
		cur.add(link(label, b.Props.URL))

	case models.TypeCode:
		cur.add(codeBlock(b.Content, b.Props.Language))

	case models.TypeSeparator:
		// separators may be indented in the source, which is ignored
		st.root().add(separator)

	case models.TypeFile, models.TypeImage:
		a, ok := r.src.Attachment(b.ID)
		if !ok {
			return fmt.Errorf("markdown: block %s: no attachment entry: %w", b.ID, repository.ErrDanglingReference)
		}
		rel := path.Join(r.attachmentsDir, a.Filename)
		if r.stager != nil {
			if err := r.stager.Stage(r.ctx, a, rel, r.rec); err != nil {
				if ctxErr := r.ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				r.rec.Warn(fmt.Sprintf("failed to stage attachment %s", rel), err.Error())
			}
		}
		r.attachments = append(r.attachments, a)
		cur.add(image(a.Filename, rel))

	case models.TypeTable:
		r.rec.Warn("skipping table", "")

	default:
		return fmt.Errorf("markdown: block %s type %q: %w", b.ID, b.Type, schema.ErrUnknownBlockType)
	}
	return nil
}

// nested appends the converted children of b as one text element.
func (r *conversion) nested(cur *frame, b *models.Block, depth int) error {
	if !b.HasChildren() {
		return nil
	}
	md, err := r.children(b, depth+1)
	if err != nil {
		return err
	}
	cur.add(md)
	return nil
}
