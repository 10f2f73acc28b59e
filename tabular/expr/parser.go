// Package expr parses and evaluates the filter and ordering clauses of a
// dataset query.
//
// A where clause is a boolean expression:
//
//	k1 = 1 AND ("k 2" IS NOT NULL OR rowName() >= 'u5')
//	NOT columnCount() > 3
//	visited < TIMESTAMP '2015-01-02T00:00:00Z'
//
// An orderBy clause is a comma separated list of rowHash() or rowName(), each
// optionally followed by ASC or DESC.
package expr

import (
	"strconv"
	"time"

	"github.com/wbrown/janus-tabular/tabular"
)

// Parser builds where-clause trees from tokens
type Parser struct {
	lexer *Lexer
}

// NewParser creates a new parser
func NewParser(lexer *Lexer) *Parser {
	return &Parser{lexer: lexer}
}

// ParseWhere parses a where clause. An empty clause matches every row.
// Every failure is marked ErrInvalidQuery.
func ParseWhere(input string) (Predicate, error) {
	lexer := NewLexer(input)
	if err := lexer.Lex(); err != nil {
		return nil, err
	}
	if lexer.PeekToken().Type == TokenEOF {
		return &Bool{Value: true}, nil
	}

	p := NewParser(lexer)
	pred, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := lexer.PeekToken(); tok.Type != TokenEOF {
		return nil, tabular.InvalidQueryf("unexpected %s after expression", describe(tok))
	}
	return pred, nil
}

func (p *Parser) parseOr() (Predicate, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.lexer.PeekToken().isKeyword("OR") {
		p.lexer.NextToken()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Predicate, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.lexer.PeekToken().isKeyword("AND") {
		p.lexer.NextToken()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (Predicate, error) {
	if p.lexer.PeekToken().isKeyword("NOT") {
		p.lexer.NextToken()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Not{Inner: inner}, nil
	}
	return p.parsePredicate()
}

// parsePredicate reads a comparison, an IS [NOT] NULL test, a parenthesized
// predicate or a bare operand
func (p *Parser) parsePredicate() (Predicate, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	tok := p.lexer.PeekToken()
	switch {
	case tok.Type == TokenOperator:
		p.lexer.NextToken()
		left, err := asOperand(node, tok)
		if err != nil {
			return nil, err
		}
		rnode, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		right, err := asOperand(rnode, tok)
		if err != nil {
			return nil, err
		}
		return &Comparison{Op: tok.Value, Left: left, Right: right}, nil

	case tok.isKeyword("IS"):
		p.lexer.NextToken()
		operand, err := asOperand(node, tok)
		if err != nil {
			return nil, err
		}
		not := false
		if p.lexer.PeekToken().isKeyword("NOT") {
			p.lexer.NextToken()
			not = true
		}
		if next := p.lexer.NextToken(); !next.isKeyword("NULL") {
			return nil, tabular.InvalidQueryf("expected NULL after IS, got %s", describe(next))
		}
		return &IsNull{Operand: operand, Not: not}, nil
	}

	switch n := node.(type) {
	case Predicate:
		return n, nil
	case Operand:
		return &Truthy{Operand: n}, nil
	}
	return nil, tabular.InvalidQueryf("unsupported expression %s", node)
}

func asOperand(node Node, at Token) (Operand, error) {
	if op, ok := node.(Operand); ok {
		return op, nil
	}
	return nil, tabular.InvalidQueryf("cannot use boolean expression %s as a value at column %d", node, at.Col)
}

// parsePrimary reads a literal, column, function call or parenthesized group
func (p *Parser) parsePrimary() (Node, error) {
	tok := p.lexer.NextToken()

	switch tok.Type {
	case TokenEOF:
		return nil, tabular.InvalidQueryf("unexpected end of expression")

	case TokenLeftParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.lexer.NextToken(); closing.Type != TokenRightParen {
			return nil, tabular.InvalidQueryf("expected ')' to close column %d, got %s", tok.Col, describe(closing))
		}
		// A parenthesized bare operand stays usable as a value
		if t, ok := inner.(*Truthy); ok {
			return t.Operand, nil
		}
		return inner, nil

	case TokenNumber:
		n, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, tabular.InvalidQueryf("malformed number %q at column %d", tok.Value, tok.Col)
		}
		lit := &Literal{Value: tabular.Number(n)}
		if u, err := strconv.ParseUint(tok.Value, 10, 64); err == nil {
			lit.Exact = &u
		}
		return lit, nil

	case TokenString:
		return &Literal{Value: tabular.String(tok.Value)}, nil

	case TokenQuotedIdent:
		if tok.Value == "" {
			return nil, tabular.InvalidQueryf("empty column name at column %d", tok.Col)
		}
		return &ColumnRef{Name: tabular.Attribute(tok.Value)}, nil

	case TokenIdent:
		return p.parseIdent(tok)
	}

	return nil, tabular.InvalidQueryf("unexpected %s", describe(tok))
}

func (p *Parser) parseIdent(tok Token) (Node, error) {
	switch {
	case tok.isKeyword("TRUE"):
		return &Literal{Value: tabular.Int(1)}, nil
	case tok.isKeyword("FALSE"):
		return &Literal{Value: tabular.Int(0)}, nil
	case tok.isKeyword("TIMESTAMP"):
		lit := p.lexer.NextToken()
		if lit.Type != TokenString {
			return nil, tabular.InvalidQueryf("expected quoted time after TIMESTAMP, got %s", describe(lit))
		}
		ts, err := time.Parse(time.RFC3339Nano, lit.Value)
		if err != nil {
			return nil, tabular.InvalidQueryf("malformed timestamp %q at column %d", lit.Value, lit.Col)
		}
		return &Literal{Value: tabular.Timestamp(ts)}, nil
	case isReserved(tok):
		return nil, tabular.InvalidQueryf("unexpected keyword %s at column %d", tok.Value, tok.Col)
	}

	if p.lexer.PeekToken().Type != TokenLeftParen {
		return &ColumnRef{Name: tabular.Attribute(tok.Value)}, nil
	}

	p.lexer.NextToken()
	if closing := p.lexer.NextToken(); closing.Type != TokenRightParen {
		return nil, tabular.InvalidQueryf("function %s takes no arguments", tok.Value)
	}
	switch tok.Value {
	case FuncRowName, FuncRowHash, FuncColumnCount:
		return &FuncCall{Name: tok.Value}, nil
	}
	return nil, tabular.InvalidQueryf("unknown function %s() at column %d", tok.Value, tok.Col)
}

func isReserved(tok Token) bool {
	for _, kw := range []string{"AND", "OR", "NOT", "IS", "NULL", "ASC", "DESC"} {
		if tok.isKeyword(kw) {
			return true
		}
	}
	return false
}

func describe(tok Token) string {
	switch tok.Type {
	case TokenEOF:
		return "end of expression"
	case TokenLeftParen:
		return "'(' at column " + strconv.Itoa(tok.Col)
	case TokenRightParen:
		return "')' at column " + strconv.Itoa(tok.Col)
	case TokenComma:
		return "',' at column " + strconv.Itoa(tok.Col)
	}
	return strconv.Quote(tok.Value) + " at column " + strconv.Itoa(tok.Col)
}
