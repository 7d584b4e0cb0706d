package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/dyluth/tally/internal/printer"
	"github.com/dyluth/tally/internal/resolver"
	"github.com/dyluth/tally/internal/summary"
	"github.com/dyluth/tally/pkg/ledger"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	locationInactive bool
	locationOutput   string
)

var locationCmd = &cobra.Command{
	Use:   "location",
	Short: "Manage storage locations",
	Long: `Manage the storage locations counts are recorded against.

Locations are referenced by name, full ID or an ID prefix of at least
six characters. Deactivated locations keep their counts but accept no
new ones.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var locationAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a location",
	Args:  cobra.ExactArgs(1),
	RunE:  runLocationAdd,
}

var locationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List locations",
	Args:  cobra.NoArgs,
	RunE:  runLocationList,
}

var locationDeactivateCmd = &cobra.Command{
	Use:   "deactivate <location>",
	Short: "Stop accepting new counts at a location",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setLocationActive(args[0], false)
	},
}

var locationActivateCmd = &cobra.Command{
	Use:   "activate <location>",
	Short: "Accept new counts at a location again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setLocationActive(args[0], true)
	},
}

func init() {
	locationAddCmd.Flags().BoolVar(&locationInactive, "inactive", false, "Register the location as inactive")
	locationListCmd.Flags().StringVarP(&locationOutput, "output", "o", "default", "Output format (default or jsonl)")

	locationCmd.AddCommand(locationAddCmd, locationListCmd, locationDeactivateCmd, locationActivateCmd)
	rootCmd.AddCommand(locationCmd)
}

func runLocationAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	loc := &ledger.Location{
		ID:       uuid.New().String(),
		Name:     args[0],
		IsActive: !locationInactive,
	}
	if err := client.CreateLocation(ctx, loc); err != nil {
		if errors.Is(err, ledger.ErrDuplicateLocation) {
			return printer.Error(
				fmt.Sprintf("location '%s' already exists", loc.Name),
				"Location names are unique within a namespace.",
				[]string{"List locations:\n  tally location list"},
			)
		}
		return fmt.Errorf("failed to create location: %w", err)
	}

	printer.Success("Added location %s (%s)\n", loc.Name, loc.ID)
	return nil
}

func runLocationList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	format, err := summary.ParseFormat(locationOutput)
	if err != nil {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", locationOutput),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	locations, err := client.ListLocations(ctx)
	if err != nil {
		return err
	}

	if format == summary.OutputFormatJSONL {
		return summary.FormatJSONL(printer.Stdout, locations)
	}
	summary.FormatLocations(printer.Stdout, locations, cfg.Namespace)
	return nil
}

func setLocationActive(ref string, active bool) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	loc, err := resolver.ResolveLocation(ctx, client, ref)
	if err != nil {
		var amb *resolver.AmbiguousError
		if errors.As(err, &amb) {
			return printer.Error("ambiguous location", resolver.FormatAmbiguousError(amb), nil)
		}
		var nf *resolver.NotFoundError
		if errors.As(err, &nf) {
			return printer.Error(
				fmt.Sprintf("location '%s' not found", ref),
				"",
				[]string{"List locations:\n  tally location list"},
			)
		}
		return err
	}

	if err := client.SetLocationActive(ctx, loc.ID, active); err != nil {
		return fmt.Errorf("failed to update location: %w", err)
	}

	if active {
		printer.Success("Activated location %s\n", loc.Name)
	} else {
		printer.Success("Deactivated location %s\n", loc.Name)
	}
	return nil
}
