// Package schema classifies raw export blocks into semantic types and
// validates their auxiliary data against per-type allow-lists.
//
// The allow-lists are deliberately strict: any key or value not listed here
// fails validation, so a change in the upstream export format surfaces as an
// error instead of silently dropped data. Extend the lists when that happens.
package schema

import (
	"errors"
	"fmt"

	"github.com/starford/craftmd/internal/models"
)

var (
	// ErrUnknownBlockType means no classification rule matched a block.
	ErrUnknownBlockType = errors.New("unknown block type")
	// ErrSchemaViolation means a record carried an unexpected key or value.
	ErrSchemaViolation = errors.New("schema violation")
)

var headingStyles = map[string]struct{}{
	models.TextStrong:   {},
	models.TextHeading:  {},
	models.TextSubtitle: {},
	models.TextTitle:    {},
}

// Classify maps a raw block type, text style and list style to a semantic
// type. Empty styles default to body and none.
func Classify(rawType, textStyle string, listStyle models.ListStyle) (models.SemanticType, error) {
	if textStyle == "" {
		textStyle = models.TextBody
	}
	if listStyle == "" {
		listStyle = models.ListNone
	}

	switch rawType {
	case "text":
		if listStyle != models.ListNone {
			return models.TypeList, nil
		}
		switch {
		case textStyle == models.TextBody || textStyle == models.TextCaption:
			return models.TypeText, nil
		case textStyle == models.TextPageRegular || textStyle == models.TextPageCard:
			return models.TypePage, nil
		}
		if _, ok := headingStyles[textStyle]; ok {
			return models.TypeHeading, nil
		}
		return "", fmt.Errorf("%w: text block with text style %q", ErrUnknownBlockType, textStyle)
	case "url":
		return models.TypeURL, nil
	case "code":
		return models.TypeCode, nil
	case "file":
		return models.TypeFile, nil
	case "image":
		return models.TypeImage, nil
	case "line":
		return models.TypeSeparator, nil
	case "table":
		return models.TypeTable, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBlockType, rawType)
}

// HeadingLevel returns the Markdown heading level for a heading text style.
func HeadingLevel(textStyle string) (int, bool) {
	switch textStyle {
	case models.TextTitle:
		return 1, true
	case models.TextSubtitle:
		return 2, true
	case models.TextHeading:
		return 3, true
	case models.TextStrong:
		return 4, true
	}
	return 0, false
}
