package condition

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hitzhangjie/retrodbg/pkg/expr"
)

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
func isHexDigit(b byte) bool {
	return isDigit(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}
func isWordPart(b byte) bool {
	return b == '_' || isDigit(b) || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

var operators = []struct {
	text string
	kind lexKind
}{
	// two character operators first
	{"==", lexRelOp},
	{"!=", lexRelOp},
	{"<=", lexRelOp},
	{">=", lexRelOp},
	{"&&", lexAnd},
	{"||", lexOr},
	{"<", lexRelOp},
	{">", lexRelOp},
}

// lex classifies every token of text. Words are classified by context: a
// word right after '@' names a bank, a word directly followed by ':' is a
// memspace, a word starting with a digit is a number and anything else is
// a register. Lexical errors are returned as diagnostics.
func lex(text string) ([]lexToken, []expr.Diagnostic) {
	var (
		toks  []lexToken
		diags []expr.Diagnostic
		cur   = expr.NewCursor()
	)

	advanceTo := func(end int) {
		for cur.Offset < end {
			cur.Advance(text[cur.Offset])
		}
	}
	emit := func(kind lexKind, end int) {
		toks = append(toks, lexToken{kind: kind, text: text[cur.Offset:end], span: cur.SpanTo(end)})
		advanceTo(end)
	}
	scan := func(from int, accept func(byte) bool) int {
		for from < len(text) && accept(text[from]) {
			from++
		}
		return from
	}
	lastKind := func() lexKind {
		if len(toks) == 0 {
			return lexEOF
		}
		return toks[len(toks)-1].kind
	}

NEXT:
	for cur.Offset < len(text) {
		c := text[cur.Offset]

		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			cur.Advance(c)
			continue
		case c == '(':
			emit(lexLParen, cur.Offset+1)
			continue
		case c == ')':
			emit(lexRParen, cur.Offset+1)
			continue
		case c == '@':
			emit(lexAt, cur.Offset+1)
			continue
		case c == ':':
			emit(lexColon, cur.Offset+1)
			continue
		case c == '$':
			end := scan(cur.Offset+1, isHexDigit)
			if end == cur.Offset+1 {
				diags = append(diags, expr.Diagnostic{
					Kind:    expr.Generic,
					Span:    cur.SpanTo(end),
					Message: "'$' must be followed by hex digits",
				})
				advanceTo(end)
				continue
			}
			emit(lexNumber, end)
			continue
		case c == '.':
			end := scan(cur.Offset+1, isWordPart)
			if end == cur.Offset+1 {
				diags = append(diags, expr.Diagnostic{
					Kind:    expr.Generic,
					Span:    cur.SpanTo(end),
					Message: "'.' must be followed by a label name",
				})
				advanceTo(end)
				continue
			}
			emit(lexLabel, end)
			continue
		case isWordPart(c):
			end := scan(cur.Offset, isWordPart)
			word := text[cur.Offset:end]
			switch {
			case lastKind() == lexAt:
				emit(lexBank, end)
			case end < len(text) && text[end] == ':':
				emit(lexMemspace, end)
			case isDigit(c):
				if strings.IndexFunc(word, func(r rune) bool { return !isHexDigit(byte(r)) }) >= 0 {
					diags = append(diags, expr.Diagnostic{
						Kind:    expr.Generic,
						Span:    cur.SpanTo(end),
						Message: fmt.Sprintf("invalid hex number '%s'", word),
					})
				}
				emit(lexNumber, end)
			default:
				emit(lexRegister, end)
			}
			continue
		}

		for _, op := range operators {
			if strings.HasPrefix(text[cur.Offset:], op.text) {
				emit(op.kind, cur.Offset+len(op.text))
				continue NEXT
			}
		}

		r, size := utf8.DecodeRuneInString(text[cur.Offset:])
		diags = append(diags, expr.Diagnostic{
			Kind:    expr.Generic,
			Span:    cur.SpanTo(cur.Offset + size),
			Message: fmt.Sprintf("unexpected character '%c'", r),
		})
		advanceTo(cur.Offset + size)
	}

	toks = append(toks, lexToken{kind: lexEOF, span: cur.SpanTo(cur.Offset)})
	return toks, diags
}
