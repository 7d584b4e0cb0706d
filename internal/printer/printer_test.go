package printer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dyluth/tally/pkg/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	oldOut, oldErr := Stdout, Stderr
	Stdout, Stderr = &out, &errOut
	t.Cleanup(func() { Stdout, Stderr = oldOut, oldErr })
	return &out, &errOut
}

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		capture(t)
		err := Error("Test Error", "This is a test error", []string{})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
	})

	t.Run("numbers multiple suggestions", func(t *testing.T) {
		_, errOut := capture(t)
		err := Error("Test Error", "Explanation", []string{"First option", "Second option"})
		require.Equal(t, "Test Error", err.Error())
		assert.Contains(t, errOut.String(), "Either:")
		assert.Contains(t, errOut.String(), "2. Second option")
	})
}

func TestErrorWithContext(t *testing.T) {
	_, errOut := capture(t)
	err := ErrorWithContext("Save failed", "", map[string]string{
		"Location": "A1",
		"Item":     "SKU-1",
	}, []string{"Retry"})
	require.Equal(t, "Save failed", err.Error())

	out := errOut.String()
	assert.Less(t, strings.Index(out, "Item: SKU-1"), strings.Index(out, "Location: A1"), "context keys are sorted")
	assert.Contains(t, out, "Retry")
}

func TestHighlight(t *testing.T) {
	assert.Equal(t, "  5**3\n   ^^", Highlight("5**3", 1, 2))
	assert.Equal(t, "  *5\n  ^", Highlight("*5", 0, 0))
	assert.Equal(t, "  ×5\n  ^", Highlight("×5", 0, 1), "offsets count characters")
}

func TestExpressionError(t *testing.T) {
	_, errOut := capture(t)
	res := expr.Evaluate("5**3")
	require.NotNil(t, res.Err)

	err := ExpressionError("5**3", res.Err)
	assert.Contains(t, err.Error(), "double_operator")
	assert.Contains(t, errOut.String(), "^^")
}

func TestSuccessAndWarning(t *testing.T) {
	out, errOut := capture(t)
	Success("Saved %d\n", 100)
	Warning("Mirroring off\n")
	Step("Connecting\n")

	assert.Contains(t, out.String(), "✓ Saved 100")
	assert.Contains(t, out.String(), "→ Connecting")
	assert.Contains(t, errOut.String(), "Mirroring off")
}
