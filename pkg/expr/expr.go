package expr

import (
	"math"
	"strings"
	"unicode"
)

// floorTolerance absorbs binary floating error so that "0.29*100" floors to 29.
const floorTolerance = 1e-9

// maxQuantity is the first float64 that no longer fits an int64.
const maxQuantity = 9223372036854775807.0

// ContinuationMarker is appended to a stored expression when it is reopened so
// the operator can type the next term straight away.
const ContinuationMarker = "+"

// Evaluate validates and computes expr.
//
// Blank input and input ending in a single "+" evaluate to 0 without an error.
// Any other malformed input yields a Result with Err set and Value 0.
func Evaluate(expr string) Result {
	res, _ := analyze(expr)
	if res.Pending {
		res.Value = 0
	}
	return res
}

// Commit returns the persistable form of expr together with its value: the
// continuation marker and a single dangling operator are removed and the
// surrounding whitespace trimmed. When the expression is malformed the
// returned Result carries the error and the text is only trimmed.
func Commit(expr string) (string, Result) {
	res, end := analyze(expr)
	if res.Err != nil {
		return strings.TrimSpace(expr), res
	}
	body := []rune(expr)[:end]
	normalized := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, string(body))
	res.Pending = false
	return strings.TrimSpace(normalized), res
}

// Continue appends the continuation marker to a stored expression.
// An empty expression stays empty.
func Continue(stored string) string {
	s := strings.TrimSpace(stored)
	if s == "" || strings.HasSuffix(s, ContinuationMarker) {
		return s
	}
	return s + ContinuationMarker
}

// analyze runs the full classification pipeline. end is the raw rune offset
// just past the last character that contributes to the value.
func analyze(raw string) (Result, int) {
	if strings.TrimSpace(raw) == "" {
		return Result{}, 0
	}

	c, err := sanitize(raw)
	if err != nil {
		return Result{Err: err}, 0
	}
	if len(c) == 0 {
		return Result{}, 0
	}

	pending := false
	if c[len(c)-1].r == '+' && c.trailingRun() == 1 {
		pending = true
		c = c[:len(c)-1]
	}
	if len(c) == 0 {
		return Result{Pending: pending}, 0
	}

	if n := c.trailingRun(); n >= 2 {
		return Result{Err: span(KindTrailingOperator, c[len(c)-n], c[len(c)-1],
			"expression ends with more than one operator")}, 0
	}

	if err := runPatternChecks(c); err != nil {
		return Result{Err: err}, 0
	}

	if isTrailable(c[len(c)-1].r) {
		c = c[:len(c)-1]
	}
	if len(c) == 0 {
		return Result{Pending: pending}, 0
	}
	end := c[len(c)-1].pos + 1

	toks, err := tokenize(c)
	if err != nil {
		return Result{Err: err}, 0
	}

	p := &parser{toks: toks, end: end}
	v, err := p.parse()
	if err != nil {
		return Result{Err: err}, 0
	}

	value, err := toQuantity(v, raw)
	if err != nil {
		return Result{Err: err}, 0
	}

	return Result{Value: value, Pending: pending}, end
}

// toQuantity floors v and enforces the non-negative int64 range.
func toQuantity(v float64, raw string) (int64, *Error) {
	whole := func(msg string) *Error {
		return &Error{Kind: KindCalculation, Message: msg, Offset: 0, Length: len([]rune(raw))}
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, whole("result is not a finite number")
	}

	f := math.Floor(v + floorTolerance)
	if f < 0 {
		return 0, whole("result is negative")
	}
	if f >= maxQuantity {
		return 0, whole("result is too large")
	}
	return int64(f), nil
}
