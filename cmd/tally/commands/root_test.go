package commands

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/tally/internal/countindex"
	"github.com/dyluth/tally/internal/printer"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRootCommand_ShowsHelpWhenNoSubcommand tests that the root command
// shows help instead of silently succeeding when invoked without a subcommand
func TestRootCommand_ShowsHelpWhenNoSubcommand(t *testing.T) {
	testRoot := &cobra.Command{
		Use:   "tally",
		Short: "Test root command",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	buf := new(bytes.Buffer)
	testRoot.SetOut(buf)
	testRoot.SetErr(buf)

	err := testRoot.Execute()

	assert.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "Usage:", "Help should be displayed")
	assert.Contains(t, output, "tally", "Help should show command name")
}

func TestSetVersionInfo(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2024-01-01")
	assert.Equal(t, "1.2.3 (commit: abc123, built: 2024-01-01)", rootCmd.Version)
}

func resetFlags() {
	userID, logLevel = "", ""
	countSession, countItem, countLocation, countAppend = "", "", "", false
	locationInactive, locationOutput = false, "default"
	totalsSession, totalsItem, totalsOutput = "", "", "default"
	watchSession, watchOutputFormat = "", "default"
}

// run executes the CLI against mr and returns what the printer wrote.
func run(t *testing.T, mr *miniredis.Miniredis, args ...string) (string, string, error) {
	t.Helper()
	resetFlags()

	var stdout, stderr bytes.Buffer
	oldOut, oldErr := printer.Stdout, printer.Stderr
	printer.Stdout, printer.Stderr = &stdout, &stderr
	t.Cleanup(func() { printer.Stdout, printer.Stderr = oldOut, oldErr })

	full := append([]string{
		"--config", filepath.Join(t.TempDir(), "missing.yml"),
		"--redis-url", "redis://" + mr.Addr() + "/0",
		"--namespace", "test",
		"--user", "alice",
	}, args...)
	rootCmd.SetArgs(full)

	err := Execute()
	return stdout.String(), stderr.String(), err
}

func TestEvalCommand(t *testing.T) {
	mr := miniredis.RunT(t)

	t.Run("valid expression", func(t *testing.T) {
		out, _, err := run(t, mr, "eval", "5*10+3*20")
		require.NoError(t, err)
		assert.Equal(t, "110\n", out)
	})

	t.Run("pending expression", func(t *testing.T) {
		out, _, err := run(t, mr, "eval", "20*5+")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "0\n"))
		assert.Contains(t, out, `saves as "20*5" = 100`)
	})

	t.Run("invalid expression shows caret", func(t *testing.T) {
		_, errOut, err := run(t, mr, "eval", "5**")
		require.Error(t, err)
		assert.Contains(t, errOut, "trailing_operator")
		assert.Contains(t, errOut, "  5**\n   ^^")
	})
}

func TestLocationCommands(t *testing.T) {
	mr := miniredis.RunT(t)

	out, _, err := run(t, mr, "location", "add", "A1")
	require.NoError(t, err)
	assert.Contains(t, out, "Added location A1")

	_, errOut, err := run(t, mr, "location", "add", "A1")
	require.Error(t, err)
	assert.Contains(t, errOut, "already exists")

	_, _, err = run(t, mr, "location", "add", "B2", "--inactive")
	require.NoError(t, err)

	out, _, err = run(t, mr, "location", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "A1")
	assert.Contains(t, out, "inactive")
	assert.Contains(t, out, "2 locations")

	out, _, err = run(t, mr, "location", "deactivate", "A1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deactivated location A1")

	out, _, err = run(t, mr, "location", "list", "--output", "jsonl")
	require.NoError(t, err)
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var loc struct {
			Name     string `json:"name"`
			IsActive bool   `json:"is_active"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &loc))
		assert.False(t, loc.IsActive, "%s should be inactive", loc.Name)
	}

	_, errOut, err = run(t, mr, "location", "activate", "Z9")
	require.Error(t, err)
	assert.Contains(t, errOut, "not found")
}

func TestCountAndTotals(t *testing.T) {
	mr := miniredis.RunT(t)

	_, _, err := run(t, mr, "location", "add", "A1")
	require.NoError(t, err)
	_, _, err = run(t, mr, "location", "add", "OLD", "--inactive")
	require.NoError(t, err)

	out, _, err := run(t, mr, "count", "-s", "s1", "-i", "SKU-1", "-l", "A1", "20*5")
	require.NoError(t, err)
	assert.Contains(t, out, "Counted SKU-1 @ A1: 100 (20*5)")

	out, _, err = run(t, mr, "count", "-s", "s1", "-i", "SKU-1", "-l", "A1", "--append", "3*20")
	require.NoError(t, err)
	assert.Contains(t, out, "Updated SKU-1 @ A1: 160 (20*5+3*20)")
	assert.Contains(t, out, "Total for SKU-1: 160 across 1 location(s)")

	t.Run("totals table", func(t *testing.T) {
		out, _, err := run(t, mr, "totals", "-s", "s1")
		require.NoError(t, err)
		assert.Contains(t, out, "SKU-1")
		assert.Contains(t, out, "1 item counted")
	})

	t.Run("totals jsonl", func(t *testing.T) {
		out, _, err := run(t, mr, "totals", "-s", "s1", "-o", "jsonl")
		require.NoError(t, err)

		var tot countindex.Totals
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &tot))
		assert.Equal(t, int64(160), tot.TotalCounted)
	})

	t.Run("inactive location", func(t *testing.T) {
		_, errOut, err := run(t, mr, "count", "-s", "s1", "-i", "SKU-1", "-l", "OLD", "5")
		require.Error(t, err)
		assert.Contains(t, errOut, "cannot save count")
	})

	t.Run("invalid expression", func(t *testing.T) {
		_, errOut, err := run(t, mr, "count", "-s", "s1", "-i", "SKU-1", "-l", "A1", "5*/3")
		require.Error(t, err)
		assert.Contains(t, errOut, "Invalid expression")
	})

	t.Run("bad output format", func(t *testing.T) {
		_, errOut, err := run(t, mr, "totals", "-s", "s1", "-o", "xml")
		require.Error(t, err)
		assert.Contains(t, errOut, "Unknown format: xml")
	})
}

func TestRedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.Close()

	_, errOut, err := run(t, mr, "location", "list")
	require.Error(t, err)
	assert.Contains(t, errOut, "Redis connection failed")
}
