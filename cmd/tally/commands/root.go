package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dyluth/tally/internal/config"
	"github.com/dyluth/tally/internal/logging"
	"github.com/dyluth/tally/internal/printer"
	"github.com/dyluth/tally/pkg/ledger"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

// Global flags
var (
	configPath string
	redisURL   string
	namespace  string
	userID     string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tally",
	Short: "Tally - collaborative warehouse cycle counting",
	Long: `Tally records warehouse cycle counts. Counters type arithmetic such as
5*10+3*20 for an item at a location; the evaluated quantity is saved
and every client watching the session converges on the same totals.

Browsers connect through 'tally serve'. The other commands work
directly against the Redis store.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	// Enable strict flag parsing - unknown flags will cause an error
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultFile, "Path to tally.yml")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis-url", "", "Redis URL (overrides config and $"+config.EnvRedisURL+")")
	rootCmd.PersistentFlags().StringVarP(&namespace, "namespace", "n", "", "Deployment namespace (overrides config and $"+config.EnvNamespace+")")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "Counter user ID (defaults to $USER)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (*config.TallyConfig, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, printer.Error(
			"invalid configuration",
			err.Error(),
			[]string{fmt.Sprintf("Check %s or pass --config", configPath)},
		)
	}

	if redisURL != "" {
		cfg.Redis.URL = redisURL
	}
	if namespace != "" {
		cfg.Namespace = namespace
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, printer.Error("invalid configuration", err.Error(), nil)
	}
	return cfg, nil
}

func newLogger(cfg *config.TallyConfig) *slog.Logger {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	return logging.New(level)
}

// connect opens a ledger client and verifies Redis is reachable.
func connect(ctx context.Context, cfg *config.TallyConfig) (*ledger.Client, error) {
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client, err := ledger.NewClient(redisOpts, cfg.Namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s", cfg.Redis.URL),
			map[string]string{"Error": err.Error()},
			[]string{
				"Start Redis locally:\n  docker run -p 6379:6379 redis:7",
				fmt.Sprintf("Point tally at your server:\n  tally --redis-url redis://host:6379/0 or $%s", config.EnvRedisURL),
			},
		)
	}

	return client, nil
}

// currentUser returns --user, falling back to $USER.
func currentUser() (string, error) {
	if userID != "" {
		return userID, nil
	}
	if u := os.Getenv("USER"); u != "" {
		return u, nil
	}
	return "", printer.Error(
		"user is required",
		"Saves are attributed to a user, but none was given.",
		[]string{"Pass --user <id>"},
	)
}
