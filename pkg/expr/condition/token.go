package condition

import (
	"fmt"

	"github.com/hitzhangjie/retrodbg/pkg/expr"
)

// TokenType classifies a token for syntax highlighting
type TokenType int

// List of valid TokenType values
const (
	Register TokenType = iota
	Number
	Operator
	Label
	Bank
	Memspace
	Parenthesis
)

func (t TokenType) String() string {
	switch t {
	case Register:
		return "Register"
	case Number:
		return "Number"
	case Operator:
		return "Operator"
	case Label:
		return "Label"
	case Bank:
		return "Bank"
	case Memspace:
		return "Memspace"
	case Parenthesis:
		return "Parenthesis"
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Token a highlighted span of condition text
type Token struct {
	Type TokenType
	expr.Span
	Text string
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q @%s)", t.Type, t.Text, t.Span)
}

// lexKind is the lexer's view of a token. Punctuation that is not
// highlighted ('@' and ':') only exists at this level.
type lexKind int

const (
	lexEOF lexKind = iota
	lexRegister
	lexNumber
	lexLabel
	lexBank
	lexMemspace
	lexRelOp
	lexAnd
	lexOr
	lexLParen
	lexRParen
	lexAt
	lexColon
)

func (k lexKind) String() string {
	switch k {
	case lexEOF:
		return "end of condition"
	case lexRegister:
		return "register"
	case lexNumber:
		return "number"
	case lexLabel:
		return "label"
	case lexBank:
		return "bank"
	case lexMemspace:
		return "memspace"
	case lexRelOp:
		return "comparison"
	case lexAnd:
		return "'&&'"
	case lexOr:
		return "'||'"
	case lexLParen:
		return "'('"
	case lexRParen:
		return "')'"
	case lexAt:
		return "'@'"
	case lexColon:
		return "':'"
	}
	return "unknown"
}

// highlight returns the TokenType of k, or false when k is not highlighted.
func (k lexKind) highlight() (TokenType, bool) {
	switch k {
	case lexRegister:
		return Register, true
	case lexNumber:
		return Number, true
	case lexLabel:
		return Label, true
	case lexBank:
		return Bank, true
	case lexMemspace:
		return Memspace, true
	case lexRelOp, lexAnd, lexOr:
		return Operator, true
	case lexLParen, lexRParen:
		return Parenthesis, true
	}
	return 0, false
}

type lexToken struct {
	kind lexKind
	text string
	span expr.Span
}
