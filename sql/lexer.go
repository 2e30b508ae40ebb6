// Package sql compiles statement text into executable plans. It covers
// the subset the engine executes: CREATE TABLE, INSERT, SELECT, UPDATE,
// DELETE and transaction control, with positional (?) and named (:name)
// placeholders. Full dialect coverage is out of scope.
package sql

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType identifies a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenError

	TokenIdentifier
	TokenKeyword
	TokenString
	TokenInteger
	TokenFloat

	TokenEqual
	TokenNotEqual
	TokenLess
	TokenLessEqual
	TokenGreater
	TokenGreaterEqual

	TokenComma
	TokenLeftParen
	TokenRightParen
	TokenStar
	TokenSemicolon

	TokenQuestion  // positional placeholder
	TokenNamedParam // :name placeholder
)

// Token is a single lexical token.
type Token struct {
	Type     TokenType
	Value    string
	Position int
}

var keywords = map[string]bool{
	"CREATE": true, "TABLE": true, "INSERT": true, "INTO": true,
	"VALUES": true, "SELECT": true, "FROM": true, "WHERE": true,
	"UPDATE": true, "SET": true, "DELETE": true, "AND": true,
	"BEGIN": true, "COMMIT": true, "ROLLBACK": true, "TRANSACTION": true,
	"NULL": true, "TRUE": true, "FALSE": true,
}

// Lexer produces tokens from statement text.
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a lexer over the given text.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Next returns the next token.
func (l *Lexer) Next() Token {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Position: l.pos}
	}

	start := l.pos
	ch := l.input[l.pos]

	switch {
	case ch == ',':
		l.pos++
		return Token{Type: TokenComma, Value: ",", Position: start}
	case ch == '(':
		l.pos++
		return Token{Type: TokenLeftParen, Value: "(", Position: start}
	case ch == ')':
		l.pos++
		return Token{Type: TokenRightParen, Value: ")", Position: start}
	case ch == '*':
		l.pos++
		return Token{Type: TokenStar, Value: "*", Position: start}
	case ch == ';':
		l.pos++
		return Token{Type: TokenSemicolon, Value: ";", Position: start}
	case ch == '?':
		l.pos++
		return Token{Type: TokenQuestion, Value: "?", Position: start}
	case ch == ':':
		return l.lexNamedParam()
	case ch == '=':
		l.pos++
		return Token{Type: TokenEqual, Value: "=", Position: start}
	case ch == '!':
		if l.peekAt(1) == '=' {
			l.pos += 2
			return Token{Type: TokenNotEqual, Value: "!=", Position: start}
		}
		l.pos++
		return Token{Type: TokenError, Value: "!", Position: start}
	case ch == '<':
		if l.peekAt(1) == '=' {
			l.pos += 2
			return Token{Type: TokenLessEqual, Value: "<=", Position: start}
		}
		if l.peekAt(1) == '>' {
			l.pos += 2
			return Token{Type: TokenNotEqual, Value: "<>", Position: start}
		}
		l.pos++
		return Token{Type: TokenLess, Value: "<", Position: start}
	case ch == '>':
		if l.peekAt(1) == '=' {
			l.pos += 2
			return Token{Type: TokenGreaterEqual, Value: ">=", Position: start}
		}
		l.pos++
		return Token{Type: TokenGreater, Value: ">", Position: start}
	case ch == '\'':
		return l.lexString()
	case unicode.IsDigit(rune(ch)) || (ch == '-' && unicode.IsDigit(rune(l.peekAt(1)))):
		return l.lexNumber()
	case isIdentStart(ch):
		return l.lexIdentifier()
	default:
		l.pos++
		return Token{Type: TokenError, Value: string(ch), Position: start}
	}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
}

func (l *Lexer) peekAt(offset int) byte {
	if l.pos+offset >= len(l.input) {
		return 0
	}
	return l.input[l.pos+offset]
}

func (l *Lexer) lexString() Token {
	start := l.pos
	l.pos++ // opening quote
	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '\'' {
			// '' escapes a quote inside a string literal.
			if l.peekAt(1) == '\'' {
				sb.WriteByte('\'')
				l.pos += 2
				continue
			}
			l.pos++
			return Token{Type: TokenString, Value: sb.String(), Position: start}
		}
		sb.WriteByte(ch)
		l.pos++
	}
	return Token{Type: TokenError, Value: "unterminated string", Position: start}
}

func (l *Lexer) lexNumber() Token {
	start := l.pos
	if l.input[l.pos] == '-' {
		l.pos++
	}
	isFloat := false
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if unicode.IsDigit(rune(ch)) {
			l.pos++
		} else if ch == '.' && !isFloat {
			isFloat = true
			l.pos++
		} else {
			break
		}
	}
	tokenType := TokenInteger
	if isFloat {
		tokenType = TokenFloat
	}
	return Token{Type: tokenType, Value: l.input[start:l.pos], Position: start}
}

func (l *Lexer) lexIdentifier() Token {
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.pos++
	}
	value := l.input[start:l.pos]
	if keywords[strings.ToUpper(value)] {
		return Token{Type: TokenKeyword, Value: strings.ToUpper(value), Position: start}
	}
	return Token{Type: TokenIdentifier, Value: value, Position: start}
}

func (l *Lexer) lexNamedParam() Token {
	start := l.pos
	l.pos++ // colon
	if l.pos >= len(l.input) || !isIdentStart(l.input[l.pos]) {
		return Token{Type: TokenError, Value: ":", Position: start}
	}
	nameStart := l.pos
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.pos++
	}
	return Token{Type: TokenNamedParam, Value: l.input[nameStart:l.pos], Position: start}
}

func isIdentStart(ch byte) bool {
	return ch == '_' || unicode.IsLetter(rune(ch))
}

func isIdentPart(ch byte) bool {
	return ch == '_' || unicode.IsLetter(rune(ch)) || unicode.IsDigit(rune(ch))
}

func (t Token) String() string {
	return fmt.Sprintf("%q@%d", t.Value, t.Position)
}
