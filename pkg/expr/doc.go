// Package expr evaluates the calculator-style quantity expressions operators type
// into a count field, such as "5*10+3*20".
//
// # Grammar
//
// Expressions use digits, the decimal point, the four operators + - * /,
// parentheses and spaces. Precedence is conventional and division is real
// division; the final value is floored and must be a non-negative integer.
//
// # Classification
//
// Malformed input is reported as an *Error carrying a Kind, a message and the
// character offset/length of the offending span so a UI can highlight it.
// Classification runs in a fixed order and the first failing stage wins:
//
//	invalid_character
//	trailing_operator
//	invalid_combination
//	double_operator
//	leading_operator
//	empty_parentheses
//	missing_operator
//	syntax_error
//	calculation_error
//
// Within the pattern stages (invalid_combination to missing_operator) a stage
// that matches anywhere wins over a later stage that matches further left.
//
// # Continuation
//
// A single trailing "+" is the "still typing the next term" state. It is not an
// error, the expression before it is still validated, and the reported value is
// 0 with Result.Pending set. Commit strips the marker to produce the persistable
// form; Continue appends it to a stored expression when an editor is reopened.
//
// Evaluate is pure and safe for concurrent use.
package expr
