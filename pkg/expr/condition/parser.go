package condition

import (
	"fmt"

	"github.com/hitzhangjie/retrodbg/pkg/expr"
)

// parser checks the token stream against
//
//	cond    := and ('||' and)*
//	and     := compare ('&&' compare)*
//	compare := operand (relop operand)?
//	operand := '(' cond ')' | [memspace ':'] ['@' bank ':'] value
//	value   := register | number | label
//
// It stops at the first violation; the lexer already dropped characters it
// could not classify.
type parser struct {
	toks []lexToken
	pos  int
	diag *expr.Diagnostic
}

func (p *parser) peek() lexToken { return p.toks[p.pos] }

func (p *parser) next() lexToken {
	t := p.toks[p.pos]
	if t.kind != lexEOF {
		p.pos++
	}
	return t
}

func (p *parser) fail(t lexToken, format string, args ...interface{}) bool {
	sp := t.span
	if sp.Length == 0 {
		sp.Length = 1
	}
	p.diag = &expr.Diagnostic{Kind: expr.Generic, Span: sp, Message: fmt.Sprintf(format, args...)}
	return false
}

func (p *parser) expect(kind lexKind, context string) bool {
	if t := p.next(); t.kind != kind {
		return p.fail(t, "expected %s %s but found %s", kind, context, t.kind)
	}
	return true
}

// parse returns the syntax diagnostic, or nil when the condition is well
// formed. An empty token stream is well formed: it means no condition.
func (p *parser) parse() *expr.Diagnostic {
	if p.peek().kind == lexEOF {
		return nil
	}
	if p.parseOr() {
		if t := p.peek(); t.kind != lexEOF {
			p.fail(t, "unexpected %s", t.kind)
		}
	}
	return p.diag
}

func (p *parser) parseOr() bool {
	if !p.parseAnd() {
		return false
	}
	for p.peek().kind == lexOr {
		p.next()
		if !p.parseAnd() {
			return false
		}
	}
	return true
}

func (p *parser) parseAnd() bool {
	if !p.parseCompare() {
		return false
	}
	for p.peek().kind == lexAnd {
		p.next()
		if !p.parseCompare() {
			return false
		}
	}
	return true
}

func (p *parser) parseCompare() bool {
	if !p.parseOperand() {
		return false
	}
	if p.peek().kind == lexRelOp {
		p.next()
		return p.parseOperand()
	}
	return true
}

func (p *parser) parseOperand() bool {
	if p.peek().kind == lexLParen {
		p.next()
		if !p.parseOr() {
			return false
		}
		if t := p.next(); t.kind != lexRParen {
			return p.fail(t, "missing ')' before %s", t.kind)
		}
		return true
	}

	if p.peek().kind == lexMemspace {
		p.next()
		if !p.expect(lexColon, "after memspace") {
			return false
		}
	}

	if p.peek().kind == lexAt {
		p.next()
		if !p.expect(lexBank, "after '@'") {
			return false
		}
		if !p.expect(lexColon, "after bank name") {
			return false
		}
	}

	switch t := p.next(); t.kind {
	case lexRegister, lexNumber, lexLabel:
		return true
	default:
		return p.fail(t, "expected register, number or label but found %s", t.kind)
	}
}
