package markdown

import "strings"

type frameKind int

const (
	framePlain frameKind = iota
	frameList
	frameQuote
)

// frame is one level of the nesting stack. Elements are rendered as they
// are appended.
type frame struct {
	kind     frameKind
	counter  int
	elements []string
}

func newFrame(kind frameKind) *frame {
	c := &frame{kind: kind}
	if kind == frameList {
		c.counter = 1
	}
	return c
}

func (c *frame) add(element string) {
	if element == "" {
		return
	}
	c.elements = append(c.elements, element)
}

func (c *frame) render() string {
	switch c.kind {
	case frameList:
		return strings.Join(c.elements, "\n")
	case frameQuote:
		lines := strings.Split(strings.Join(c.elements, "\n\n"), "\n")
		for i, l := range lines {
			lines[i] = "> " + l
		}
		return strings.Join(lines, "\n")
	default:
		return strings.Join(c.elements, "\n\n")
	}
}

// stack holds the open contexts. The bottom frame is always plain.
type stack []*frame

func newStack() stack {
	return stack{newFrame(framePlain)}
}

func (s stack) top() *frame { return s[len(s)-1] }

func (s stack) root() *frame { return s[0] }

func (s *stack) push(kind frameKind) *frame {
	c := newFrame(kind)
	*s = append(*s, c)
	return c
}

// pop flushes the top frame into the one below it.
func (s *stack) pop() {
	st := *s
	if len(st) == 1 {
		return
	}
	top := st[len(st)-1]
	*s = st[:len(st)-1]
	(*s).top().add(top.render())
}

// popTo flushes frames until a frame of kind has been flushed.
func (s *stack) popTo(kind frameKind) {
	for len(*s) > 1 {
		k := s.top().kind
		s.pop()
		if k == kind {
			return
		}
	}
}

// flush closes every frame and renders the result.
func (s *stack) flush() string {
	for len(*s) > 1 {
		s.pop()
	}
	return s.root().render()
}
