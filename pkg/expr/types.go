package expr

import "fmt"

// Kind classifies why an expression could not be evaluated.
type Kind string

const (
	// KindInvalidCharacter is a character outside digits, ".", "+-*/", parentheses and spaces
	KindInvalidCharacter Kind = "invalid_character"

	// KindTrailingOperator is a run of two or more operators at the end of the input
	KindTrailingOperator Kind = "trailing_operator"

	// KindInvalidCombination is two different adjacent operators involving * or /
	KindInvalidCombination Kind = "invalid_combination"

	// KindDoubleOperator is a repeated operator such as ** or ++
	KindDoubleOperator Kind = "double_operator"

	// KindLeadingOperator is an expression starting with * or /
	KindLeadingOperator Kind = "leading_operator"

	// KindEmptyParentheses is "()" with nothing inside
	KindEmptyParentheses Kind = "empty_parentheses"

	// KindMissingOperator is a number directly adjacent to a parenthesis or to another number
	KindMissingOperator Kind = "missing_operator"

	// KindSyntax is a structural failure such as an unclosed parenthesis or a malformed number
	KindSyntax Kind = "syntax_error"

	// KindCalculation is a negative, non-finite or out-of-range result
	KindCalculation Kind = "calculation_error"
)

// Validate checks if the Kind is a known enum value.
func (k Kind) Validate() error {
	switch k {
	case KindInvalidCharacter, KindTrailingOperator, KindInvalidCombination,
		KindDoubleOperator, KindLeadingOperator, KindEmptyParentheses,
		KindMissingOperator, KindSyntax, KindCalculation:
		return nil
	default:
		return fmt.Errorf("unknown expression error kind: %q", k)
	}
}

// Error describes a malformed expression. Offset and Length are measured in
// characters (runes) of the raw input.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Offset  int    `json:"offset"`
	Length  int    `json:"length"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at offset %d: %s", e.Kind, e.Offset, e.Message)
}

// Result is the outcome of evaluating an expression.
// When Err is set, Value is 0 and must not be persisted.
type Result struct {
	Value   int64  `json:"value"`
	Err     *Error `json:"error,omitempty"`
	Pending bool   `json:"pending,omitempty"` // Input ends with the "+" continuation marker
}

// OK reports whether the result carries no error.
func (r Result) OK() bool {
	return r.Err == nil
}
