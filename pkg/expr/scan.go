package expr

import (
	"fmt"
	"unicode"
)

// char is one significant character of the input together with its rune
// offset in the raw string. Spaces are not kept, so neighbouring chars are
// adjacent "ignoring spaces"; spaced records that whitespace separated the
// char from the one before it.
type char struct {
	r      rune
	pos    int
	spaced bool
}

type chars []char

func isOperator(r rune) bool {
	return r == '+' || r == '-' || r == '*' || r == '/'
}

func isMultiplicative(r rune) bool {
	return r == '*' || r == '/'
}

func isNumeric(r rune) bool {
	return (r >= '0' && r <= '9') || r == '.'
}

// isTrailable reports characters that may dangle at the end of an expression
// while the operator is still typing.
func isTrailable(r rune) bool {
	return isOperator(r) || r == '.'
}

func isAllowed(r rune) bool {
	return isNumeric(r) || isOperator(r) || r == '(' || r == ')' || r == ' '
}

// span builds an Error covering raw offsets from first to last inclusive.
func span(kind Kind, first, last char, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Offset: first.pos, Length: last.pos - first.pos + 1}
}

// sanitize drops whitespace and rejects the first disallowed character.
func sanitize(raw string) (chars, *Error) {
	var out chars
	pos := 0
	gap := false
	for _, r := range raw {
		switch {
		case r == ' ':
			gap = true
		case isAllowed(r):
			out = append(out, char{r: r, pos: pos, spaced: gap && len(out) > 0})
			gap = false
		case unicode.IsSpace(r):
			// Tabs, newlines and other whitespace are stripped silently.
			gap = true
		default:
			return nil, &Error{
				Kind:    KindInvalidCharacter,
				Message: fmt.Sprintf("invalid character %q", r),
				Offset:  pos,
				Length:  1,
			}
		}
		pos++
	}
	return out, nil
}

// trailingRun returns the length of the run of trailable characters at the end.
func (c chars) trailingRun() int {
	n := 0
	for i := len(c) - 1; i >= 0 && isTrailable(c[i].r); i-- {
		n++
	}
	return n
}

// check is one malformed-pattern stage.
type check struct {
	kind Kind
	find func(c chars) *Error
}

// patternChecks run in priority order; the first stage with a match wins.
var patternChecks = []check{
	{KindInvalidCombination, findInvalidCombination},
	{KindDoubleOperator, findDoubleOperator},
	{KindLeadingOperator, findLeadingOperator},
	{KindEmptyParentheses, findEmptyParentheses},
	{KindMissingOperator, findMissingOperator},
}

func runPatternChecks(c chars) *Error {
	for _, chk := range patternChecks {
		if err := chk.find(c); err != nil {
			return err
		}
	}
	return nil
}

// findInvalidCombination matches two different adjacent operators where one is
// multiplicative. A following "-" is a unary minus and is allowed ("5*-3").
func findInvalidCombination(c chars) *Error {
	for i := 0; i+1 < len(c); i++ {
		a, b := c[i].r, c[i+1].r
		if !isOperator(a) || !isOperator(b) || a == b || b == '-' {
			continue
		}
		if isMultiplicative(a) || isMultiplicative(b) {
			return span(KindInvalidCombination, c[i], c[i+1],
				fmt.Sprintf("operators %q and %q cannot be combined", a, b))
		}
	}
	return nil
}

func findDoubleOperator(c chars) *Error {
	for i := 0; i+1 < len(c); i++ {
		a := c[i].r
		if !isOperator(a) || c[i+1].r != a {
			continue
		}
		j := i + 1
		for j+1 < len(c) && c[j+1].r == a {
			j++
		}
		return span(KindDoubleOperator, c[i], c[j], fmt.Sprintf("operator %q is repeated", a))
	}
	return nil
}

func findLeadingOperator(c chars) *Error {
	if len(c) > 0 && isMultiplicative(c[0].r) {
		return span(KindLeadingOperator, c[0], c[0], fmt.Sprintf("expression cannot start with %q", c[0].r))
	}
	return nil
}

func findEmptyParentheses(c chars) *Error {
	for i := 0; i+1 < len(c); i++ {
		if c[i].r == '(' && c[i+1].r == ')' {
			return span(KindEmptyParentheses, c[i], c[i+1], "parentheses are empty")
		}
	}
	return nil
}

func findMissingOperator(c chars) *Error {
	for i := 0; i+1 < len(c); i++ {
		a, b := c[i].r, c[i+1].r
		if (isNumeric(a) && b == '(') || (a == ')' && (isNumeric(b) || b == '(')) {
			return span(KindMissingOperator, c[i], c[i+1], "missing operator next to parenthesis")
		}
		if isNumeric(a) && isNumeric(b) && c[i+1].spaced {
			first, last := c.numberStart(i), c.numberEnd(i+1)
			return span(KindMissingOperator, c[first], c[last], "missing operator between numbers")
		}
	}
	return nil
}

// numberStart returns the index of the first char of the number ending at i.
func (c chars) numberStart(i int) int {
	for i > 0 && !c[i].spaced && isNumeric(c[i-1].r) {
		i--
	}
	return i
}

// numberEnd returns the index of the last char of the number starting at i.
func (c chars) numberEnd(i int) int {
	for i+1 < len(c) && !c[i+1].spaced && isNumeric(c[i+1].r) {
		i++
	}
	return i
}
