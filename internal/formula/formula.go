// Package formula parses and evaluates the arithmetic of custom metrics:
// numbers, + - * /, parentheses and {{metric_key}} placeholders.
package formula

import (
	"fmt"
	"strconv"
)

// Formula is a parsed expression. It is immutable and safe for concurrent
// use.
type Formula struct {
	src  string
	root node
	vars []string
}

// Parse checks src and builds its expression tree.
func Parse(src string) (*Formula, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens, seen: map[string]bool{}}
	if p.peek().typ == tokenEOF {
		return nil, errorf(0, "formula is empty")
	}
	root, err := p.expr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.typ != tokenEOF {
		return nil, errorf(tok.pos, "unexpected %q", tok.val)
	}
	return &Formula{src: src, root: root, vars: p.vars}, nil
}

func (f *Formula) String() string { return f.src }

// Variables returns the placeholder names in order of first use.
func (f *Formula) Variables() []string {
	return append([]string(nil), f.vars...)
}

// Eval computes the formula. Every variable must have a value; division by
// zero yields zero.
func (f *Formula) Eval(values map[string]float64) (float64, error) {
	for _, v := range f.vars {
		if _, ok := values[v]; !ok {
			return 0, fmt.Errorf("no value for %s", v)
		}
	}
	return f.root.eval(values), nil
}

type node interface {
	eval(values map[string]float64) float64
}

type number float64

func (n number) eval(map[string]float64) float64 { return float64(n) }

type variable string

func (v variable) eval(values map[string]float64) float64 { return values[string(v)] }

type negate struct{ x node }

func (n negate) eval(values map[string]float64) float64 { return -n.x.eval(values) }

type binary struct {
	op   byte
	l, r node
}

func (b binary) eval(values map[string]float64) float64 {
	l, r := b.l.eval(values), b.r.eval(values)
	switch b.op {
	case '+':
		return l + r
	case '-':
		return l - r
	case '*':
		return l * r
	default:
		if r == 0 {
			return 0
		}
		return l / r
	}
}

type parser struct {
	tokens []token
	pos    int
	vars   []string
	seen   map[string]bool
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) advance() token {
	tok := p.tokens[p.pos]
	if tok.typ != tokenEOF {
		p.pos++
	}
	return tok
}

// expr := term (("+" | "-") term)*
func (p *parser) expr() (node, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.peek().typ == tokenOp && (p.peek().val == "+" || p.peek().val == "-") {
		op := p.advance().val[0]
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = binary{op: op, l: left, r: right}
	}
	return left, nil
}

// term := unary (("*" | "/") unary)*
func (p *parser) term() (node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.peek().typ == tokenOp && (p.peek().val == "*" || p.peek().val == "/") {
		op := p.advance().val[0]
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = binary{op: op, l: left, r: right}
	}
	return left, nil
}

func (p *parser) unary() (node, error) {
	if tok := p.peek(); tok.typ == tokenOp && tok.val == "-" {
		p.advance()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return negate{x: x}, nil
	}
	return p.primary()
}

func (p *parser) primary() (node, error) {
	tok := p.advance()
	switch tok.typ {
	case tokenNumber:
		n, err := strconv.ParseFloat(tok.val, 64)
		if err != nil {
			return nil, errorf(tok.pos, "malformed number %q", tok.val)
		}
		return number(n), nil
	case tokenVar:
		if !p.seen[tok.val] {
			p.seen[tok.val] = true
			p.vars = append(p.vars, tok.val)
		}
		return variable(tok.val), nil
	case tokenLParen:
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		if closing := p.advance(); closing.typ != tokenRParen {
			return nil, errorf(closing.pos, "missing )")
		}
		return inner, nil
	case tokenEOF:
		return nil, errorf(tok.pos, "unexpected end of formula")
	}
	return nil, errorf(tok.pos, "unexpected %q", tok.val)
}
