// Package parser reads converted Markdown back: frontmatter, wikilinks,
// tags and title. It also renders the optional frontmatter block.
package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	wikilinkRe   = regexp.MustCompile(`\[\[([^\[\]\n]+?)\]\]`)
	tagRe        = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
	inlineCodeRe = regexp.MustCompile("`[^`\n]*`")
)

const delim = "---"

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]any
	Body        string
	Links       []string
	Tags        []string
	Title       string
}

// Parse extracts frontmatter, body, wikilinks, and tags from raw Markdown.
// Links and tags inside code are ignored.
func Parse(data []byte) (*Result, error) {
	fm, body := splitFrontmatter(data)
	prose := stripCode(body)
	return &Result{
		Frontmatter: fm,
		Body:        body,
		Links:       extractLinks(prose),
		Tags:        extractTags(prose, fm),
		Title:       deriveTitle(fm, body),
	}, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- lines)
// from the body. Without valid frontmatter the whole input is body, which
// matters here because converted documents may start with a separator.
func splitFrontmatter(data []byte) (map[string]any, string) {
	if !bytes.HasPrefix(data, []byte(delim+"\n")) {
		return nil, string(data)
	}
	rest := data[len(delim)+1:]
	idx := bytes.Index(rest, []byte("\n"+delim+"\n"))
	if idx < 0 {
		return nil, string(data)
	}

	var fm map[string]any
	if err := yaml.Unmarshal(rest[:idx], &fm); err != nil || len(fm) == 0 {
		return nil, string(data)
	}
	body := rest[idx+len(delim)+2:]
	return fm, string(bytes.TrimLeft(body, "\n"))
}

// stripCode blanks fenced code blocks and inline code spans.
func stripCode(body string) string {
	var b strings.Builder
	fenced := false
	for _, line := range strings.SplitAfter(body, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") || strings.HasPrefix(strings.TrimSpace(line), "~~~") {
			fenced = !fenced
			b.WriteString("\n")
			continue
		}
		if fenced {
			b.WriteString("\n")
			continue
		}
		b.WriteString(inlineCodeRe.ReplaceAllString(line, ""))
	}
	return b.String()
}

// extractLinks returns deduplicated wikilink targets in order of first
// appearance, without aliases or heading anchors.
func extractLinks(body string) []string {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		target := m[1]
		if i := strings.Index(target, "|"); i >= 0 {
			target = strings.TrimSuffix(target[:i], `\`)
		}
		if i := strings.Index(target, "#"); i >= 0 {
			target = target[:i]
		}
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// extractTags collects #tags from the frontmatter "tags" field and the body.
func extractTags(body string, fm map[string]any) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" {
			return
		}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	switch v := fm["tags"].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			add(s)
		}
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the
// first H1 heading, otherwise empty string.
func deriveTitle(fm map[string]any, body string) string {
	if s, ok := fm["title"].(string); ok && s != "" {
		return s
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// WithFrontmatter prepends fm, encoded as YAML between --- lines, to body.
func WithFrontmatter(fm any, body string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fm); err != nil {
		return nil, fmt.Errorf("parser: encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("parser: encode frontmatter: %w", err)
	}
	buf.WriteString(delim + "\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}
