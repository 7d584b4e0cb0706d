package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/dyluth/tally/internal/editor"
	"github.com/dyluth/tally/internal/identity"
	"github.com/dyluth/tally/internal/printer"
	"github.com/dyluth/tally/internal/reconciler"
	"github.com/dyluth/tally/pkg/collab"
	"github.com/spf13/cobra"
)

var (
	countSession  string
	countItem     string
	countLocation string
	countAppend   bool
)

var countCmd = &cobra.Command{
	Use:   "count <expression>",
	Short: "Save a count for an item at a location",
	Long: `Evaluate an expression and save the quantity for one item at one location.

If the slot already has a record its expression is replaced, or extended
with --append. Browsers editing the same item see the expression as it is
saved.

Examples:
  tally count --session 2024-q3 --item SKU-1 --location A1 "5*10+3*20"
  tally count -s 2024-q3 -i SKU-1 -l A1 --append "4*6"`,
	Args: cobra.ExactArgs(1),
	RunE: runCount,
}

func init() {
	countCmd.Flags().StringVarP(&countSession, "session", "s", "", "Cycle-count session ID (required)")
	countCmd.Flags().StringVarP(&countItem, "item", "i", "", "Item ID (required)")
	countCmd.Flags().StringVarP(&countLocation, "location", "l", "", "Location name (required)")
	countCmd.Flags().BoolVar(&countAppend, "append", false, "Add the expression as a new term to the existing one")
	countCmd.MarkFlagRequired("session")
	countCmd.MarkFlagRequired("item")
	countCmd.MarkFlagRequired("location")
	rootCmd.AddCommand(countCmd)
}

func runCount(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	user, err := currentUser()
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	client, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	recon, err := reconciler.New(client, countSession, reconciler.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := recon.Load(ctx); err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	id, err := identity.New(user)
	if err != nil {
		return err
	}

	channel, err := collab.NewChannel(client.RedisClient(), cfg.Namespace, collab.WithPresenceTTL(cfg.PresenceTTL()))
	if err != nil {
		return err
	}

	e, err := editor.New(id, recon,
		editor.WithChannel(channel),
		editor.WithLogger(logger),
		editor.WithSaveTimeout(cfg.SaveTimeout()),
	)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.Open(ctx, countSession, countItem, countLocation); err != nil {
		if !errors.Is(err, editor.ErrMirroringUnavailable) {
			return err
		}
		printer.Warning("collaboration channel unavailable, saving without mirroring\n")
	}

	expression := args[0]
	if countAppend {
		expression = e.State().Expression + expression
	}

	if err := e.UpdateExpression(ctx, expression); err != nil {
		return err
	}
	if s := e.State(); s.Result.Err != nil {
		return printer.ExpressionError(expression, s.Result.Err)
	}

	previous := e.State()
	rec, err := e.Save(ctx)
	if err != nil {
		var v *editor.ValidationError
		if errors.As(err, &v) {
			return printer.Error(
				fmt.Sprintf("cannot save count: %s", v.Message),
				fmt.Sprintf("Location '%s' cannot receive counts.", countLocation),
				[]string{"List locations:\n  tally location list"},
			)
		}
		return printer.Error("save failed", err.Error(), nil)
	}

	if previous.Mode == editor.ModeEdit {
		printer.Success("Updated %s @ %s: %d (%s)\n", countItem, countLocation, rec.CountedQuantity, rec.CountedExpression)
	} else {
		printer.Success("Counted %s @ %s: %d (%s)\n", countItem, countLocation, rec.CountedQuantity, rec.CountedExpression)
	}

	totals := recon.Totals(countItem)
	printer.Info("  Total for %s: %d across %d location(s)\n", countItem, totals.TotalCounted, len(totals.ByLocation))
	return nil
}
