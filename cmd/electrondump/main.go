// electrondump extracts global electron records from event streams into a
// fixed-width CSV table, one row per event.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/electrondump/internal/config"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var (
	cfgPath   string
	logLevel  string
	logFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "electrondump",
	Short: "Flatten global electron records into a CSV table",
	Long: `electrondump reads events, keeps the electron records that pass the
filter predicate (by default the "global" ones) and writes one CSV row per
event with up to --max-objects records laid out side by side.

Events without a single kept record produce no row.`,
	Version:           fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to YAML config (built-in defaults when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
}

// setupLogging installs the default slog logger. Logs go to stderr so that
// stdout stays free for command output.
func setupLogging(cmd *cobra.Command, args []string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q", logLevel)
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(logFormat) {
	case "text":
		h = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("invalid --log-format %q (want text or json)", logFormat)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

// jobFlags are the per-job overrides shared by run, serve and header.
type jobFlags struct {
	output     string
	maxObjects int
	collection string
	predicate  string
	ledger     string
}

func (f *jobFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Output CSV path (overrides output.path)")
	cmd.Flags().IntVarP(&f.maxObjects, "max-objects", "n", 0, "Record groups per row (overrides output.max_objects)")
	cmd.Flags().StringVar(&f.collection, "collection", "", "Event collection to read (overrides input.collection)")
	cmd.Flags().StringVar(&f.predicate, "predicate", "", "Record filter expression (overrides filter.predicate)")
	cmd.Flags().StringVar(&f.ledger, "ledger", "", "SQLite job ledger path (overrides ledger.path)")
}

// loadConfig loads --config, applies the flags the user set and validates
// the result.
func loadConfig(cmd *cobra.Command, f *jobFlags) (*config.Loader, *config.Config, error) {
	loader, err := config.NewLoader(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	cfg := *loader.Config()

	if f != nil {
		flags := cmd.Flags()
		if flags.Changed("output") {
			cfg.Output.Path = f.output
		}
		if flags.Changed("max-objects") {
			cfg.Output.MaxObjects = f.maxObjects
		}
		if flags.Changed("collection") {
			cfg.Input.Collection = f.collection
		}
		if flags.Changed("predicate") {
			cfg.Filter.Predicate = f.predicate
		}
		if flags.Changed("ledger") {
			cfg.Ledger.Path = f.ledger
		}
	}

	if err := config.Validate(&cfg); err != nil {
		return nil, nil, err
	}
	return loader, &cfg, nil
}
