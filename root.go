package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/copy-go/internal/config"
	"github.com/tonimelisma/copy-go/internal/parts"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagShare      string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg and resolvedCfgPath hold the effective configuration loaded by
// PersistentPreRunE.
var (
	resolvedCfg     *config.Config
	resolvedCfgPath string
)

// newRootCmd builds the root command with all subcommands registered.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "copy-go",
		Short:   "Copy cloud storage client",
		Long:    "Upload and download files to Copy cloud storage with part-level deduplication.",
		Version: version,
		// Errors are printed by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagShare, "share", "", "share id scoping part dedup (default from config)")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newStatCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newMkdirCmd())
	cmd.AddCommand(newMvCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the override chain
// and stores it for the subcommands.
func loadConfig(cmd *cobra.Command) error {
	cli := config.CLIOverrides{ConfigPath: flagConfigPath}

	if cmd.Flags().Changed("share") {
		share, err := parts.ParseShareID(flagShare)
		if err != nil {
			return err
		}

		id := uint64(share)
		cli.ShareID = &id
	}

	cfg, path, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = cfg
	resolvedCfgPath = path

	return nil
}

// bootstrapLogger is used before the config is loaded, e.g. by the signal
// handler.
func bootstrapLogger() *slog.Logger {
	level := "warn"
	if flagVerbose {
		level = "debug"
	}

	return newLogger(os.Stderr, level, "text", false)
}

// buildLogger creates the logger for a command. The config sets the
// baseline; --verbose and --quiet override it.
func buildLogger() *slog.Logger {
	level, format := "warn", "auto"
	if resolvedCfg != nil {
		level = resolvedCfg.Logging.LogLevel
		format = resolvedCfg.Logging.LogFormat
	}

	if flagVerbose {
		level = "debug"
	}

	if flagQuiet {
		level = "error"
	}

	return newLogger(os.Stderr, level, format, isTerminal(os.Stderr))
}

// newLogger builds a handler for w. Format "auto" picks text on a terminal
// and JSON otherwise.
func newLogger(w io.Writer, level, format string, terminal bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	useJSON := format == "json" || (format == "auto" && !terminal)
	if useJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
