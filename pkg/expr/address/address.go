// Package address parses and evaluates address expressions such as
// "start+$10", "(%1000 * 2) / 4" or "1024".
//
// Literals are decimal, '%' prefixed binary or '$' prefixed hex. Labels are
// resolved through a LabelTable. All arithmetic is done on uint16 and wraps,
// matching the width of the target machine's address bus.
package address

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hitzhangjie/retrodbg/pkg/expr"
)

// LabelTable resolves label names to addresses.
type LabelTable interface {
	Lookup(name string) (uint16, bool)
}

// Labels a LabelTable backed by a map
type Labels map[string]uint16

// Lookup implements LabelTable
func (l Labels) Lookup(name string) (uint16, bool) {
	v, ok := l[name]
	return v, ok
}

var (
	ErrEmpty          = errors.New("value cannot be empty")
	ErrLabelNotFound  = errors.New("label not found")
	ErrDivisionByZero = errors.New("division by zero")
	ErrSyntax         = errors.New("syntax error")
)

// EvalError an evaluation failure located in the expression text
type EvalError struct {
	Err  error // one of the Err* sentinels
	Span expr.Span
	Text string
}

func (e *EvalError) Error() string {
	if e.Text != "" {
		return fmt.Sprintf("%v: %s at %s", e.Err, e.Text, e.Span)
	}
	return fmt.Sprintf("%v at %s", e.Err, e.Span)
}

func (e *EvalError) Unwrap() error { return e.Err }

// Verify checks text for lexical and syntax errors. Labels are not
// resolved. Blank text is reported as an error.
func Verify(text string) (bool, []expr.Diagnostic) {
	if strings.TrimSpace(text) == "" {
		return true, []expr.Diagnostic{{
			Kind:    expr.Generic,
			Span:    expr.Span{Line: 1, Length: len(text)},
			Message: ErrEmpty.Error(),
		}}
	}

	_, diags := parse(text)
	return len(diags) > 0, diags
}

// Evaluate computes the address text denotes. Blank text yields ok == false
// and no error. labels may be nil, in which case any label fails to resolve.
func Evaluate(labels LabelTable, text string) (value uint16, ok bool, err error) {
	if strings.TrimSpace(text) == "" {
		return 0, false, nil
	}

	n, diags := parse(text)
	if len(diags) > 0 {
		return 0, false, &EvalError{Err: ErrSyntax, Span: diags[0].Span, Text: diags[0].Message}
	}

	value, err = n.eval(labels)
	if err != nil {
		return 0, false, err
	}
	return value, true, nil
}

// MustEvaluate is like Evaluate but treats blank text as an error.
func MustEvaluate(labels LabelTable, text string) (uint16, error) {
	v, ok, err := Evaluate(labels, text)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrEmpty
	}
	return v, nil
}

func parse(text string) (node, []expr.Diagnostic) {
	toks, diags := tokenize(text)
	p := &parser{toks: toks}
	n, err := p.parse()
	if err != nil {
		var se *syntaxError
		if errors.As(err, &se) {
			diags = append(diags, se.diag)
		}
	}
	expr.SortDiagnostics(diags)
	return n, diags
}

func (n numberNode) eval(LabelTable) (uint16, error) {
	return n.value, nil
}

func (n labelNode) eval(labels LabelTable) (uint16, error) {
	if labels != nil {
		if v, ok := labels.Lookup(n.name); ok {
			return v, nil
		}
	}
	return 0, &EvalError{Err: ErrLabelNotFound, Span: n.sp, Text: n.name}
}

func (n binaryNode) eval(labels LabelTable) (uint16, error) {
	l, err := n.left.eval(labels)
	if err != nil {
		return 0, err
	}
	r, err := n.right.eval(labels)
	if err != nil {
		return 0, err
	}

	switch n.op {
	case tokPlus:
		return l + r, nil
	case tokMinus:
		return l - r, nil
	case tokStar:
		return l * r, nil
	case tokSlash:
		if r == 0 {
			return 0, &EvalError{Err: ErrDivisionByZero, Span: n.sp}
		}
		return l / r, nil
	}
	return 0, fmt.Errorf("unknown operator %s", n.op)
}
