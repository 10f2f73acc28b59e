package expr

import (
	"strings"
	"unicode"

	"github.com/wbrown/janus-tabular/tabular"
)

// Lexer tokenizes a where or orderBy clause
type Lexer struct {
	input   string
	pos     int
	tokens  []Token
	current int
}

// NewLexer creates a new lexer for the given input
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Lex tokenizes the entire input
func (l *Lexer) Lex() error {
	for {
		l.skipWhitespace()
		if l.pos >= len(l.input) {
			break
		}

		col := l.pos + 1
		ch := l.peek()
		switch {
		case ch == '(':
			l.pos++
			l.emit(TokenLeftParen, "", col)
		case ch == ')':
			l.pos++
			l.emit(TokenRightParen, "", col)
		case ch == ',':
			l.pos++
			l.emit(TokenComma, "", col)
		case ch == '\'':
			s, err := l.readQuoted('\'')
			if err != nil {
				return err
			}
			l.emit(TokenString, s, col)
		case ch == '"':
			s, err := l.readQuoted('"')
			if err != nil {
				return err
			}
			l.emit(TokenQuotedIdent, s, col)
		case isDigit(ch) || ((ch == '-' || ch == '+' || ch == '.') && isDigit(l.peekAt(1))):
			l.emit(TokenNumber, l.readNumber(), col)
		case isIdentStart(ch):
			l.emit(TokenIdent, l.readIdent(), col)
		case strings.IndexByte("=!<>", ch) >= 0:
			op, err := l.readOperator()
			if err != nil {
				return err
			}
			l.emit(TokenOperator, op, col)
		default:
			return tabular.InvalidQueryf("unexpected character '%c' at column %d", ch, col)
		}
	}

	l.emit(TokenEOF, "", len(l.input)+1)
	return nil
}

// NextToken returns the next token
func (l *Lexer) NextToken() Token {
	if l.current >= len(l.tokens) {
		return Token{Type: TokenEOF, Col: len(l.input) + 1}
	}
	token := l.tokens[l.current]
	l.current++
	return token
}

// PeekToken returns the next token without advancing
func (l *Lexer) PeekToken() Token {
	if l.current >= len(l.tokens) {
		return Token{Type: TokenEOF, Col: len(l.input) + 1}
	}
	return l.tokens[l.current]
}

func (l *Lexer) emit(typ TokenType, value string, col int) {
	l.tokens = append(l.tokens, Token{Type: typ, Value: value, Col: col})
}

func (l *Lexer) peek() byte {
	return l.peekAt(0)
}

func (l *Lexer) peekAt(offset int) byte {
	if l.pos+offset >= len(l.input) {
		return 0
	}
	return l.input[l.pos+offset]
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
}

// readQuoted reads a literal closed by quote; a doubled quote stands for itself
func (l *Lexer) readQuoted(quote byte) (string, error) {
	start := l.pos + 1
	var result strings.Builder
	l.pos++ // opening quote

	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == quote {
			if l.peekAt(1) == quote {
				result.WriteByte(quote)
				l.pos += 2
				continue
			}
			l.pos++
			return result.String(), nil
		}
		result.WriteByte(ch)
		l.pos++
	}
	return "", tabular.InvalidQueryf("unterminated %c-quoted literal starting at column %d", quote, start)
}

func (l *Lexer) readNumber() string {
	start := l.pos
	if ch := l.peek(); ch == '-' || ch == '+' {
		l.pos++
	}
	for l.pos < len(l.input) {
		ch := l.peek()
		switch {
		case isDigit(ch) || ch == '.':
			l.pos++
		case (ch == 'e' || ch == 'E') && l.pos > start:
			l.pos++
			if s := l.peek(); s == '-' || s == '+' {
				l.pos++
			}
		default:
			return l.input[start:l.pos]
		}
	}
	return l.input[start:l.pos]
}

func (l *Lexer) readIdent() string {
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.pos++
	}
	return l.input[start:l.pos]
}

func (l *Lexer) readOperator() (string, error) {
	col := l.pos + 1
	two := ""
	if l.pos+2 <= len(l.input) {
		two = l.input[l.pos : l.pos+2]
	}
	switch two {
	case "!=", "<>", "<=", ">=":
		l.pos += 2
		return two, nil
	}
	switch ch := l.peek(); ch {
	case '=', '<', '>':
		l.pos++
		return string(ch), nil
	}
	return "", tabular.InvalidQueryf("unknown operator at column %d", col)
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch >= 0x80
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch) || ch == '.' || ch == ':'
}
