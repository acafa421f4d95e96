package address

import (
	"fmt"
	"unicode/utf8"

	"github.com/hitzhangjie/retrodbg/pkg/expr"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokDecimal
	tokBinary
	tokHex
	tokLabel
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokLParen
	tokRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of expression"
	case tokDecimal, tokBinary, tokHex:
		return "number"
	case tokLabel:
		return "label"
	case tokPlus:
		return "'+'"
	case tokMinus:
		return "'-'"
	case tokStar:
		return "'*'"
	case tokSlash:
		return "'/'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	}
	return "unknown"
}

type token struct {
	kind tokenKind
	text string
	span expr.Span
}

func isDigit(b byte) bool    { return b >= '0' && b <= '9' }
func isBinDigit(b byte) bool { return b == '0' || b == '1' }
func isHexDigit(b byte) bool {
	return isDigit(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}
func isLabelStart(b byte) bool {
	return b == '_' || b == '.' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
func isLabelPart(b byte) bool { return isLabelStart(b) || isDigit(b) }

// tokenize splits text into tokens. Characters that cannot start a token
// are reported as diagnostics and skipped, so the parser still sees the
// rest of the expression.
func tokenize(text string) ([]token, []expr.Diagnostic) {
	var (
		toks  []token
		diags []expr.Diagnostic
		cur   = expr.NewCursor()
	)

	advanceTo := func(end int) {
		for cur.Offset < end {
			cur.Advance(text[cur.Offset])
		}
	}
	emit := func(kind tokenKind, end int) {
		toks = append(toks, token{kind: kind, text: text[cur.Offset:end], span: cur.SpanTo(end)})
		advanceTo(end)
	}
	scan := func(from int, accept func(byte) bool) int {
		for from < len(text) && accept(text[from]) {
			from++
		}
		return from
	}

	for cur.Offset < len(text) {
		c := text[cur.Offset]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			cur.Advance(c)
		case isDigit(c):
			emit(tokDecimal, scan(cur.Offset, isDigit))
		case c == '%' || c == '$':
			kind, accept := tokBinary, isBinDigit
			if c == '$' {
				kind, accept = tokHex, isHexDigit
			}
			end := scan(cur.Offset+1, accept)
			if end == cur.Offset+1 {
				diags = append(diags, expr.Diagnostic{
					Kind:    expr.Generic,
					Span:    cur.SpanTo(end),
					Message: fmt.Sprintf("'%c' must be followed by digits", c),
				})
				advanceTo(end)
				continue
			}
			emit(kind, end)
		case isLabelStart(c):
			emit(tokLabel, scan(cur.Offset, isLabelPart))
		case c == '+':
			emit(tokPlus, cur.Offset+1)
		case c == '-':
			emit(tokMinus, cur.Offset+1)
		case c == '*':
			emit(tokStar, cur.Offset+1)
		case c == '/':
			emit(tokSlash, cur.Offset+1)
		case c == '(':
			emit(tokLParen, cur.Offset+1)
		case c == ')':
			emit(tokRParen, cur.Offset+1)
		default:
			r, size := utf8.DecodeRuneInString(text[cur.Offset:])
			diags = append(diags, expr.Diagnostic{
				Kind:    expr.Generic,
				Span:    cur.SpanTo(cur.Offset + size),
				Message: fmt.Sprintf("unexpected character '%c'", r),
			})
			advanceTo(cur.Offset + size)
		}
	}
	toks = append(toks, token{kind: tokEOF, span: cur.SpanTo(cur.Offset)})
	return toks, diags
}
