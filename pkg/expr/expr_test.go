package expr

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateValues(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int64
	}{
		{name: "sum of products", input: "5*10+3*20", expected: 110},
		{name: "single literal", input: "42", expected: 42},
		{name: "spaces around operators are ignored", input: " 5 * 10 + 3 ", expected: 53},
		{name: "precedence", input: "2+3*4", expected: 14},
		{name: "parentheses", input: "(2+3)*4", expected: 20},
		{name: "nested parentheses", input: "((1+2)*(3+4))", expected: 21},
		{name: "real division floors", input: "7/2", expected: 3},
		{name: "division then multiply", input: "10/4*2", expected: 5},
		{name: "decimal quantities", input: "2.5*4", expected: 10},
		{name: "floating error tolerated", input: "0.29*100", expected: 29},
		{name: "leading decimal point", input: ".5*4", expected: 2},
		{name: "unary minus after multiply", input: "10+2*-3", expected: 4},
		{name: "unary plus", input: "+5", expected: 5},
		{name: "subtraction", input: "100-1", expected: 99},
		{name: "zero", input: "0", expected: 0},
		{name: "single dangling multiply is trimmed", input: "5*", expected: 5},
		{name: "single dangling minus is trimmed", input: "6-", expected: 6},
		{name: "dangling decimal point is trimmed", input: "7.", expected: 7},
		{name: "tab is stripped silently", input: "5\t*2", expected: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Evaluate(tt.input)
			require.Nil(t, res.Err, "unexpected error: %v", res.Err)
			assert.Equal(t, tt.expected, res.Value)
			assert.False(t, res.Pending)
		})
	}
}

func TestEvaluateNotYetEntered(t *testing.T) {
	for _, input := range []string{"", "   ", "+", "5+", "5*10+", "(2+3) + "} {
		t.Run(fmt.Sprintf("%q", input), func(t *testing.T) {
			res := Evaluate(input)
			assert.Nil(t, res.Err)
			assert.Equal(t, int64(0), res.Value)
		})
	}

	t.Run("continuation sets pending", func(t *testing.T) {
		res := Evaluate("20*5+")
		assert.True(t, res.Pending)
	})

	t.Run("continuation still validates the prefix", func(t *testing.T) {
		res := Evaluate("5**3+")
		require.NotNil(t, res.Err)
		assert.Equal(t, KindDoubleOperator, res.Err.Kind)
	})
}

func TestEvaluateErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		kind   Kind
		offset int
		length int
	}{
		{name: "letter", input: "5a+3", kind: KindInvalidCharacter, offset: 1, length: 1},
		{name: "first disallowed wins", input: "5x*y", kind: KindInvalidCharacter, offset: 1, length: 1},
		{name: "offset counts runes", input: "é5", kind: KindInvalidCharacter, offset: 0, length: 1},
		{name: "trailing run", input: "5+-", kind: KindTrailingOperator, offset: 1, length: 2},
		{name: "trailing repeated minus", input: "5--", kind: KindTrailingOperator, offset: 1, length: 2},
		{name: "trailing repeated multiply", input: "5**", kind: KindTrailingOperator, offset: 1, length: 2},
		{name: "trailing run with spaces", input: "5 * +", kind: KindTrailingOperator, offset: 2, length: 3},
		{name: "multiply then plus", input: "5*+3", kind: KindInvalidCombination, offset: 1, length: 2},
		{name: "plus then divide", input: "5+/3", kind: KindInvalidCombination, offset: 1, length: 2},
		{name: "double multiply", input: "5**3", kind: KindDoubleOperator, offset: 1, length: 2},
		{name: "double divide", input: "8//2", kind: KindDoubleOperator, offset: 1, length: 2},
		{name: "double minus", input: "8--2", kind: KindDoubleOperator, offset: 1, length: 2},
		{name: "triple multiply", input: "2***2", kind: KindDoubleOperator, offset: 1, length: 3},
		{name: "double plus", input: "5++3", kind: KindDoubleOperator, offset: 1, length: 2},
		{name: "double plus across space", input: "5+ +3", kind: KindDoubleOperator, offset: 1, length: 3},
		{name: "leading multiply", input: "*5", kind: KindLeadingOperator, offset: 0, length: 1},
		{name: "leading divide after space", input: " /5", kind: KindLeadingOperator, offset: 1, length: 1},
		{name: "empty parentheses", input: "5+()", kind: KindEmptyParentheses, offset: 2, length: 2},
		{name: "empty parentheses with space", input: "( )+1", kind: KindEmptyParentheses, offset: 0, length: 3},
		{name: "digit before parenthesis", input: "2(3+4)", kind: KindMissingOperator, offset: 0, length: 2},
		{name: "digit after parenthesis", input: "(3+4)2", kind: KindMissingOperator, offset: 4, length: 2},
		{name: "adjacent groups", input: "(1)(2)", kind: KindMissingOperator, offset: 2, length: 2},
		{name: "digits split by space", input: "5 5", kind: KindMissingOperator, offset: 0, length: 3},
		{name: "numbers split by space", input: "12 34", kind: KindMissingOperator, offset: 0, length: 5},
		{name: "split number before multiply", input: "1 2*3", kind: KindMissingOperator, offset: 0, length: 3},
		{name: "split decimal", input: "4+1.5 25", kind: KindMissingOperator, offset: 2, length: 6},
		{name: "numbers split by tab", input: "7\t8", kind: KindMissingOperator, offset: 0, length: 3},
		{name: "unclosed parenthesis", input: "(5+3", kind: KindSyntax, offset: 0, length: 1},
		{name: "stray closing parenthesis", input: "5+3)", kind: KindSyntax, offset: 3, length: 1},
		{name: "malformed number", input: "1.2.3+1", kind: KindSyntax, offset: 0, length: 5},
		{name: "negative result", input: "3-5", kind: KindCalculation, offset: 0, length: 3},
		{name: "division by zero", input: "5/0", kind: KindCalculation, offset: 0, length: 3},
		{name: "zero over zero", input: "0/0", kind: KindCalculation, offset: 0, length: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Evaluate(tt.input)
			require.NotNil(t, res.Err, "expected %s for %q", tt.kind, tt.input)
			assert.Equal(t, tt.kind, res.Err.Kind)
			assert.Equal(t, tt.offset, res.Err.Offset, "offset")
			assert.Equal(t, tt.length, res.Err.Length, "length")
			assert.Equal(t, int64(0), res.Value)
			assert.NotEmpty(t, res.Err.Message)
			assert.NoError(t, res.Err.Kind.Validate())
		})
	}
}

// Pattern stages are ordered: an earlier stage that matches further right still
// wins over a later stage matching at the start.
func TestEvaluatePriorityOrder(t *testing.T) {
	t.Run("combination beats leading operator", func(t *testing.T) {
		res := Evaluate("*5+3*+2")
		require.NotNil(t, res.Err)
		assert.Equal(t, KindInvalidCombination, res.Err.Kind)
		assert.Equal(t, 4, res.Err.Offset)
	})

	t.Run("double operator beats missing operator", func(t *testing.T) {
		res := Evaluate("2(3)+4**2")
		require.NotNil(t, res.Err)
		assert.Equal(t, KindDoubleOperator, res.Err.Kind)
		assert.Equal(t, 6, res.Err.Offset)
	})

	t.Run("invalid character beats everything", func(t *testing.T) {
		res := Evaluate("**5#")
		require.NotNil(t, res.Err)
		assert.Equal(t, KindInvalidCharacter, res.Err.Kind)
	})
}

func TestEvaluateIsIdempotent(t *testing.T) {
	for _, input := range []string{"5*10+3*20", "5**3", "", "20*5+", "abc"} {
		assert.Equal(t, Evaluate(input), Evaluate(input))
	}
}

func TestCommit(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		body     string
		expected int64
	}{
		{name: "continuation removed", input: "20*5+", body: "20*5", expected: 100},
		{name: "spacing preserved", input: " 5 * 10 + ", body: "5 * 10", expected: 50},
		{name: "dangling operator removed", input: "7*", body: "7", expected: 7},
		{name: "plain expression", input: "3+4", body: "3+4", expected: 7},
		{name: "blank", input: "  ", body: "", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, res := Commit(tt.input)
			require.Nil(t, res.Err)
			assert.Equal(t, tt.body, body)
			assert.Equal(t, tt.expected, res.Value)
			assert.False(t, res.Pending)
		})
	}

	t.Run("malformed expression keeps error", func(t *testing.T) {
		body, res := Commit(" 5**3 ")
		require.NotNil(t, res.Err)
		assert.Equal(t, "5**3", body)
	})

	t.Run("space between numbers is not a value", func(t *testing.T) {
		body, res := Commit("5 5")
		require.NotNil(t, res.Err)
		assert.Equal(t, KindMissingOperator, res.Err.Kind)
		assert.Equal(t, "5 5", body)
		assert.Equal(t, int64(0), res.Value)
	})
}

func TestContinue(t *testing.T) {
	assert.Equal(t, "20*5+", Continue("20*5"))
	assert.Equal(t, "20*5+", Continue("20*5+"))
	assert.Equal(t, "100+", Continue("100"))
	assert.Equal(t, "", Continue(""))

	// A continued expression commits back to the stored value.
	body, res := Commit(Continue("20*5"))
	assert.Equal(t, "20*5", body)
	assert.Equal(t, int64(100), res.Value)
}

// genExpr builds a random well-formed expression over non-negative integers
// using + and * only, returning the text and its exact value. Operands are
// below maxLeaf.
func genExpr(r *rand.Rand, depth, maxLeaf int) (string, int64) {
	if depth == 0 || r.Intn(3) == 0 {
		n := int64(r.Intn(maxLeaf))
		return fmt.Sprintf("%d", n), n
	}
	left, lv := genExpr(r, depth-1, maxLeaf)
	right, rv := genExpr(r, depth-1, maxLeaf)
	switch r.Intn(3) {
	case 0:
		return left + "+" + right, lv + rv
	case 1:
		return "(" + left + ")*(" + right + ")", lv * rv
	default:
		return "(" + left + "+" + right + ")", lv + rv
	}
}

func TestEvaluateRandomWellFormed(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		text, want := genExpr(r, 3, 10)
		res := Evaluate(text)
		require.Nil(t, res.Err, "expression %q", text)
		assert.Equal(t, want, res.Value, "expression %q", text)

		spaced := strings.Join(strings.Split(text, ""), " ")
		assert.Equal(t, want, Evaluate(spaced).Value, "expression %q", spaced)
	}
}

func TestEvaluateRandomMultiDigit(t *testing.T) {
	pad := strings.NewReplacer("+", " + ", "*", " * ", "(", " ( ", ")", " ) ")
	r := rand.New(rand.NewSource(13))
	for i := 0; i < 300; i++ {
		text, want := genExpr(r, 2, 1000)
		res := Evaluate(text)
		require.Nil(t, res.Err, "expression %q", text)
		assert.Equal(t, want, res.Value, "expression %q", text)

		spaced := pad.Replace(text)
		res = Evaluate(spaced)
		require.Nil(t, res.Err, "expression %q", spaced)
		assert.Equal(t, want, res.Value, "expression %q", spaced)
	}
}

func TestEvaluateRandomDivision(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for i := 0; i < 200; i++ {
		a := int64(r.Intn(1000))
		b := int64(r.Intn(99) + 1)
		text := fmt.Sprintf("%d/%d", a, b)
		res := Evaluate(text)
		require.Nil(t, res.Err, "expression %q", text)
		assert.Equal(t, a/b, res.Value, "expression %q", text)
	}
}
