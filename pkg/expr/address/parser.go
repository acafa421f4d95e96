package address

import (
	"fmt"

	"github.com/hitzhangjie/retrodbg/pkg/expr"
)

// node a parsed address expression
type node interface {
	eval(labels LabelTable) (uint16, error)
	span() expr.Span
}

type numberNode struct {
	value uint16
	sp    expr.Span
}

type labelNode struct {
	name string
	sp   expr.Span
}

type binaryNode struct {
	op          tokenKind
	left, right node
	sp          expr.Span // span of the operator
}

func (n numberNode) span() expr.Span { return n.sp }
func (n labelNode) span() expr.Span  { return n.sp }
func (n binaryNode) span() expr.Span { return n.sp }

// syntaxError stops the parser at the first grammar violation
type syntaxError struct {
	diag expr.Diagnostic
}

func (e *syntaxError) Error() string { return e.diag.Message }

// parser recursive descent parser over
//
//	expr   := term (('+' | '-') term)*
//	term   := factor (('*' | '/') factor)*
//	factor := number | label | '(' expr ')'
type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) fail(t token, format string, args ...interface{}) error {
	sp := t.span
	if sp.Length == 0 {
		sp.Length = 1
	}
	return &syntaxError{diag: expr.Diagnostic{
		Kind:    expr.Generic,
		Span:    sp,
		Message: fmt.Sprintf(format, args...),
	}}
}

func (p *parser) parse() (node, error) {
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.fail(t, "unexpected %s", t.kind)
	}
	return n, nil
}

// parseExpr reads operands joined by + - * /, applied left to right.
// Only parentheses change the order.
func (p *parser) parseExpr() (node, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		switch t.kind {
		case tokPlus, tokMinus, tokStar, tokSlash:
		default:
			return left, nil
		}
		p.next()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: t.kind, left: left, right: right, sp: t.span}
	}
}

func (p *parser) parseFactor() (node, error) {
	t := p.next()
	switch t.kind {
	case tokDecimal:
		return numberNode{value: literal(t.text, 10), sp: t.span}, nil
	case tokBinary:
		return numberNode{value: literal(t.text[1:], 2), sp: t.span}, nil
	case tokHex:
		return numberNode{value: literal(t.text[1:], 16), sp: t.span}, nil
	case tokLabel:
		return labelNode{name: t.text, sp: t.span}, nil
	case tokLParen:
		n, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if c := p.next(); c.kind != tokRParen {
			return nil, p.fail(c, "missing ')' before %s", c.kind)
		}
		return n, nil
	}
	return nil, p.fail(t, "expected number, label or '(' but found %s", t.kind)
}

// literal converts digits in base to a 16 bit value. Digits beyond the
// 16 bit range wrap, the way the target's registers do.
func literal(digits string, base uint16) uint16 {
	var v uint16
	for i := 0; i < len(digits); i++ {
		c := digits[i]
		var d uint16
		switch {
		case c >= '0' && c <= '9':
			d = uint16(c - '0')
		case c >= 'a' && c <= 'f':
			d = uint16(c-'a') + 10
		case c >= 'A' && c <= 'F':
			d = uint16(c-'A') + 10
		}
		v = v*base + d
	}
	return v
}
