package formula

import (
	"fmt"
	"strings"
)

type tokenType int

const (
	tokenNumber tokenType = iota
	tokenVar              // {{name}}
	tokenOp               // + - * /
	tokenLParen
	tokenRParen
	tokenEOF
)

type token struct {
	typ tokenType
	val string
	pos int // byte offset, 0-based
}

// Error reports a malformed formula with the offset it was found at.
type Error struct {
	Pos int
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("col %d: %s", e.Pos+1, e.Msg)
}

func errorf(pos int, format string, args ...any) *Error {
	return &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

type lexer struct {
	input string
	pos   int
}

func tokenize(input string) ([]token, error) {
	l := &lexer{input: input}
	var tokens []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.typ == tokenEOF {
			return tokens, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) && isSpace(l.input[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{typ: tokenEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.input[l.pos]
	switch {
	case strings.HasPrefix(l.input[l.pos:], "{{"):
		return l.scanVar()
	case c == '+' || c == '-' || c == '*' || c == '/':
		l.pos++
		return token{typ: tokenOp, val: string(c), pos: start}, nil
	case c == '(':
		l.pos++
		return token{typ: tokenLParen, val: "(", pos: start}, nil
	case c == ')':
		l.pos++
		return token{typ: tokenRParen, val: ")", pos: start}, nil
	case isDigit(c) || c == '.':
		return l.scanNumber()
	}
	return token{}, errorf(start, "unexpected character %q", c)
}

// scanVar reads {{ name }}; names are metric keys such as total_revenue.
func (l *lexer) scanVar() (token, error) {
	start := l.pos
	end := strings.Index(l.input[l.pos+2:], "}}")
	if end < 0 {
		return token{}, errorf(start, "unclosed {{")
	}
	name := strings.TrimSpace(l.input[l.pos+2 : l.pos+2+end])
	if name == "" {
		return token{}, errorf(start, "empty variable")
	}
	for i := 0; i < len(name); i++ {
		if !isIdent(name[i]) {
			return token{}, errorf(start, "invalid variable name %q", name)
		}
	}
	l.pos += 2 + end + 2
	return token{typ: tokenVar, val: name, pos: start}, nil
}

func (l *lexer) scanNumber() (token, error) {
	start := l.pos
	dot := false
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c == '.' {
			if dot {
				return token{}, errorf(l.pos, "malformed number")
			}
			dot = true
		} else if !isDigit(c) {
			break
		}
		l.pos++
	}
	if l.input[start:l.pos] == "." {
		return token{}, errorf(start, "malformed number")
	}
	return token{typ: tokenNumber, val: l.input[start:l.pos], pos: start}, nil
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdent(c byte) bool {
	return c == '_' || isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
