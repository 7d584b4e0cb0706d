package expr

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokOperator
	tokOpen
	tokClose
)

type token struct {
	kind  tokenKind
	op    rune
	value float64
	first char
	last  char
}

// tokenize groups numeric chars into numbers. A number may hold at most one
// decimal point and must contain a digit, and ends at whitespace.
func tokenize(c chars) ([]token, *Error) {
	var toks []token
	for i := 0; i < len(c); {
		ch := c[i]
		switch {
		case isNumeric(ch.r):
			j := i
			var sb strings.Builder
			for j < len(c) && isNumeric(c[j].r) && (j == i || !c[j].spaced) {
				sb.WriteRune(c[j].r)
				j++
			}
			text := sb.String()
			v, err := strconv.ParseFloat(text, 64)
			if err != nil || strings.Count(text, ".") > 1 {
				return nil, span(KindSyntax, c[i], c[j-1], fmt.Sprintf("malformed number %q", text))
			}
			toks = append(toks, token{kind: tokNumber, value: v, first: c[i], last: c[j-1]})
			i = j
		case isOperator(ch.r):
			toks = append(toks, token{kind: tokOperator, op: ch.r, first: ch, last: ch})
			i++
		case ch.r == '(':
			toks = append(toks, token{kind: tokOpen, first: ch, last: ch})
			i++
		default:
			toks = append(toks, token{kind: tokClose, first: ch, last: ch})
			i++
		}
	}
	return toks, nil
}

// parser is a recursive-descent evaluator over the token stream:
//
//	expr   = term { ("+" | "-") term }
//	term   = unary { ("*" | "/") unary }
//	unary  = ("+" | "-") unary | primary
//	primary = number | "(" expr ")"
type parser struct {
	toks []token
	pos  int
	end  int // raw offset just past the input, for end-of-input errors
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) peekOperator(ops ...rune) (rune, bool) {
	t, ok := p.peek()
	if !ok || t.kind != tokOperator {
		return 0, false
	}
	for _, op := range ops {
		if t.op == op {
			return op, true
		}
	}
	return 0, false
}

func (p *parser) parse() (float64, *Error) {
	v, err := p.expr()
	if err != nil {
		return 0, err
	}
	if t, ok := p.peek(); ok {
		return 0, unexpected(t)
	}
	return v, nil
}

func (p *parser) expr() (float64, *Error) {
	left, err := p.term()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peekOperator('+', '-')
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.term()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *parser) term() (float64, *Error) {
	left, err := p.unary()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peekOperator('*', '/')
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.unary()
		if err != nil {
			return 0, err
		}
		if op == '*' {
			left *= right
		} else {
			left /= right
		}
	}
}

func (p *parser) unary() (float64, *Error) {
	if op, ok := p.peekOperator('+', '-'); ok {
		p.pos++
		v, err := p.unary()
		if err != nil {
			return 0, err
		}
		if op == '-' {
			return -v, nil
		}
		return v, nil
	}
	return p.primary()
}

func (p *parser) primary() (float64, *Error) {
	t, ok := p.peek()
	if !ok {
		return 0, &Error{Kind: KindSyntax, Message: "unexpected end of expression", Offset: p.end, Length: 0}
	}
	switch t.kind {
	case tokNumber:
		p.pos++
		return t.value, nil
	case tokOpen:
		p.pos++
		v, err := p.expr()
		if err != nil {
			return 0, err
		}
		closing, ok := p.peek()
		if !ok || closing.kind != tokClose {
			return 0, span(KindSyntax, t.first, t.last, "unclosed parenthesis")
		}
		p.pos++
		return v, nil
	default:
		return 0, unexpected(t)
	}
}

func unexpected(t token) *Error {
	desc := string(t.first.r)
	return span(KindSyntax, t.first, t.last, fmt.Sprintf("unexpected %q", desc))
}
