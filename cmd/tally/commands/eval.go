package commands

import (
	"github.com/dyluth/tally/internal/printer"
	"github.com/dyluth/tally/pkg/expr"
	"github.com/spf13/cobra"
)

var evalCmd = &cobra.Command{
	Use:   "eval <expression>",
	Short: "Evaluate a count expression",
	Long: `Evaluate a count expression without saving it.

Expressions use + - * / and parentheses over non-negative numbers. The
result must be a whole, non-negative quantity. A trailing '+' marks an
unfinished expression and is dropped when saving.

Examples:
  tally eval "5*10+3*20"
  tally eval "20*5+"`,
	Args: cobra.ExactArgs(1),
	RunE: runEval,
}

func init() {
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	expression := args[0]

	res := expr.Evaluate(expression)
	if res.Err != nil {
		return printer.ExpressionError(expression, res.Err)
	}

	if res.Pending {
		body, committed := expr.Commit(expression)
		printer.Printf("%d\n", res.Value)
		printer.Info("(pending: saves as %q = %d)\n", body, committed.Value)
		return nil
	}

	printer.Printf("%d\n", res.Value)
	return nil
}
