package expr

import (
	"strings"

	"github.com/wbrown/janus-tabular/tabular"
)

// OrderKey is one term of an orderBy clause
type OrderKey struct {
	Func string // FuncRowHash or FuncRowName
	Desc bool
}

func (k OrderKey) String() string {
	if k.Desc {
		return k.Func + "() DESC"
	}
	return k.Func + "()"
}

// Ordering is a parsed orderBy clause
type Ordering []OrderKey

// DefaultOrdering sorts rows by name
var DefaultOrdering = Ordering{{Func: FuncRowName}}

func (o Ordering) String() string {
	parts := make([]string, len(o))
	for i, k := range o {
		parts[i] = k.String()
	}
	return strings.Join(parts, ", ")
}

// ParseOrderBy parses an orderBy clause. Only deterministic functions of the
// row identifier are accepted; an empty clause orders by rowName().
func ParseOrderBy(input string) (Ordering, error) {
	lexer := NewLexer(input)
	if err := lexer.Lex(); err != nil {
		return nil, err
	}
	if lexer.PeekToken().Type == TokenEOF {
		return DefaultOrdering, nil
	}

	var out Ordering
	for {
		tok := lexer.NextToken()
		if tok.Type != TokenIdent {
			return nil, tabular.InvalidQueryf("expected rowHash() or rowName() in orderBy, got %s", describe(tok))
		}
		if tok.Value != FuncRowHash && tok.Value != FuncRowName {
			return nil, tabular.InvalidQueryf("unsupported orderBy key %q at column %d: only rowHash() and rowName() are deterministic", tok.Value, tok.Col)
		}
		if open := lexer.NextToken(); open.Type != TokenLeftParen {
			return nil, tabular.InvalidQueryf("expected '(' after %s, got %s", tok.Value, describe(open))
		}
		if closing := lexer.NextToken(); closing.Type != TokenRightParen {
			return nil, tabular.InvalidQueryf("%s() takes no arguments", tok.Value)
		}

		key := OrderKey{Func: tok.Value}
		switch next := lexer.PeekToken(); {
		case next.isKeyword("DESC"):
			key.Desc = true
			lexer.NextToken()
		case next.isKeyword("ASC"):
			lexer.NextToken()
		}
		out = append(out, key)

		sep := lexer.NextToken()
		if sep.Type == TokenEOF {
			return out, nil
		}
		if sep.Type != TokenComma {
			return nil, tabular.InvalidQueryf("unexpected %s in orderBy", describe(sep))
		}
	}
}

// Compare orders two row identifiers. Ties left by every key are broken by
// the identifiers' natural order so the result is total.
func (o Ordering) Compare(a, b tabular.Entity) int {
	for _, k := range o {
		var c int
		switch k.Func {
		case FuncRowHash:
			ha, hb := RowHash(a), RowHash(b)
			switch {
			case ha < hb:
				c = -1
			case ha > hb:
				c = 1
			}
		case FuncRowName:
			c = a.Compare(b)
		}
		if k.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return a.Compare(b)
}
