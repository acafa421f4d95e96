// Package expr holds what the address and condition expression engines have
// in common: source spans and the diagnostics attached to them.
package expr

import (
	"fmt"
	"sort"
)

// DiagnosticKind classifies a diagnostic. It is finer grained than the
// breakpoint level error and always refers to a span of text.
type DiagnosticKind int

// List of valid DiagnosticKind values
const (
	Generic DiagnosticKind = iota
	InvalidMemspace
	InvalidRegister
	InvalidLabel
	InvalidBank
)

func (k DiagnosticKind) String() string {
	switch k {
	case Generic:
		return "Generic"
	case InvalidMemspace:
		return "InvalidMemspace"
	case InvalidRegister:
		return "InvalidRegister"
	case InvalidLabel:
		return "InvalidLabel"
	case InvalidBank:
		return "InvalidBank"
	}
	return fmt.Sprintf("DiagnosticKind(%d)", int(k))
}

// Span locates a piece of source text. Line is 1-based, Column is 0-based
// and counts bytes from the start of the line.
type Span struct {
	Line   int
	Column int
	Length int
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d+%d", s.Line, s.Column, s.Length)
}

// Diagnostic a problem found in expression text
type Diagnostic struct {
	Kind DiagnosticKind
	Span
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s (%s)", d.Span, d.Message, d.Kind)
}

// SortDiagnostics orders diagnostics by their position in the document.
// Diagnostics at the same position keep their relative order.
func SortDiagnostics(diags []Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		if diags[i].Line != diags[j].Line {
			return diags[i].Line < diags[j].Line
		}
		return diags[i].Column < diags[j].Column
	})
}

// Cursor tracks the line and column while scanning text byte by byte.
type Cursor struct {
	Offset int
	Line   int
	Column int
}

// NewCursor returns a cursor at the start of a document.
func NewCursor() Cursor {
	return Cursor{Line: 1}
}

// Advance moves the cursor over b.
func (c *Cursor) Advance(b byte) {
	c.Offset++
	if b == '\n' {
		c.Line++
		c.Column = 0
		return
	}
	c.Column++
}

// SpanTo returns the span from c to the offset end on the same line.
func (c Cursor) SpanTo(end int) Span {
	return Span{Line: c.Line, Column: c.Column, Length: end - c.Offset}
}
