package expr

import "fmt"

// TokenType represents the type of a query-language token
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIdent
	TokenQuotedIdent
	TokenString
	TokenNumber
	TokenOperator
	TokenLeftParen
	TokenRightParen
	TokenComma
)

// Token represents a lexical token in a where or orderBy clause
type Token struct {
	Type  TokenType
	Value string
	Col   int
}

// String returns a string representation of the token
func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return fmt.Sprintf("EOF[%d]", t.Col)
	case TokenIdent:
		return fmt.Sprintf("Ident[%d]:%s", t.Col, t.Value)
	case TokenQuotedIdent:
		return fmt.Sprintf("QuotedIdent[%d]:%q", t.Col, t.Value)
	case TokenString:
		return fmt.Sprintf("String[%d]:%q", t.Col, t.Value)
	case TokenNumber:
		return fmt.Sprintf("Number[%d]:%s", t.Col, t.Value)
	case TokenOperator:
		return fmt.Sprintf("Operator[%d]:%s", t.Col, t.Value)
	case TokenLeftParen:
		return fmt.Sprintf("LeftParen[%d]", t.Col)
	case TokenRightParen:
		return fmt.Sprintf("RightParen[%d]", t.Col)
	case TokenComma:
		return fmt.Sprintf("Comma[%d]", t.Col)
	default:
		return fmt.Sprintf("Unknown[%d]:%s", t.Col, t.Value)
	}
}

// isKeyword reports whether an identifier token spells kw, ignoring case
func (t Token) isKeyword(kw string) bool {
	if t.Type != TokenIdent || len(t.Value) != len(kw) {
		return false
	}
	for i := 0; i < len(kw); i++ {
		c := t.Value[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c != kw[i] {
			return false
		}
	}
	return true
}
