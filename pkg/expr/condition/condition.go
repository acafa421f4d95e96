// Package condition validates and tokenizes checkpoint hit conditions such
// as "A == $10 && c:X != $ff" or "@io:$d020 == $01 || .counter".
//
// Verify runs three independent passes over the text (lexical, syntactic
// and semantic) and merges their diagnostics in document order. It also
// returns one Token per register, number, operator, label, bank, memspace
// and parenthesis so that editors can highlight the text regardless of
// whether it is valid.
package condition

import (
	"fmt"
	"strings"

	"github.com/hitzhangjie/retrodbg/pkg/expr"
	"github.com/hitzhangjie/retrodbg/pkg/expr/address"
)

var (
	registers = map[string]bool{"A": true, "X": true, "Y": true, "SP": true, "PC": true}
	memspaces = map[string]bool{"C": true, "8": true, "9": true, "10": true, "11": true}
)

// BankTable tells whether a memory bank is known to the debugger
type BankTable interface {
	HasBank(name string) bool
}

// Symbols the debug data the semantic pass checks against. A nil table
// means the data is not loaded, and the corresponding check is skipped.
type Symbols struct {
	Labels address.LabelTable
	Banks  BankTable
}

// Result the outcome of validating one condition text
type Result struct {
	Text        string
	HasError    bool
	Diagnostics []expr.Diagnostic
	Tokens      []Token
}

// FirstError returns the message of the first diagnostic, or "".
func (r Result) FirstError() string {
	if len(r.Diagnostics) == 0 {
		return ""
	}
	return r.Diagnostics[0].Message
}

// Verify validates text synchronously. Blank text is a valid, empty
// condition and yields no tokens and no diagnostics.
func Verify(text string, symbols Symbols) Result {
	res := Result{Text: text}
	if strings.TrimSpace(text) == "" {
		return res
	}

	toks, diags := lex(text)

	p := &parser{toks: toks}
	if d := p.parse(); d != nil {
		diags = append(diags, *d)
	}

	diags = append(diags, semantic(toks, symbols)...)
	expr.SortDiagnostics(diags)

	for _, t := range toks {
		if typ, ok := t.kind.highlight(); ok {
			res.Tokens = append(res.Tokens, Token{Type: typ, Span: t.span, Text: t.text})
		}
	}
	res.Diagnostics = diags
	res.HasError = len(diags) > 0
	return res
}

// semantic checks identifiers against the fixed register and memspace sets
// and against the loaded labels and banks.
func semantic(toks []lexToken, symbols Symbols) []expr.Diagnostic {
	var diags []expr.Diagnostic
	add := func(kind expr.DiagnosticKind, t lexToken, format string) {
		diags = append(diags, expr.Diagnostic{Kind: kind, Span: t.span, Message: fmt.Sprintf(format, t.text)})
	}

	for _, t := range toks {
		switch t.kind {
		case lexRegister:
			if !registers[strings.ToUpper(t.text)] {
				add(expr.InvalidRegister, t, "unknown register '%s'")
			}
		case lexMemspace:
			if !memspaces[strings.ToUpper(t.text)] {
				add(expr.InvalidMemspace, t, "unknown memspace '%s'")
			}
		case lexBank:
			if symbols.Banks != nil && !symbols.Banks.HasBank(t.text) {
				add(expr.InvalidBank, t, "unknown bank '%s'")
			}
		case lexLabel:
			if symbols.Labels == nil {
				continue
			}
			if _, ok := symbols.Labels.Lookup(strings.TrimPrefix(t.text, ".")); !ok {
				add(expr.InvalidLabel, t, "unknown label '%s'")
			}
		}
	}
	return diags
}
