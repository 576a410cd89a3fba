package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/use-agent/linkshield/api/handler"
	"github.com/use-agent/linkshield/config"
)

var (
	noColor  bool
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:     "linkshield-cli",
	Short:   "Classify links as safe, suspicious or malicious",
	Version: handler.Version,
	Long: `linkshield-cli loads URLs in a headless browser, runs the link
detectors over what the page did and prints a risk verdict.`,
	Example: `  linkshield-cli scan example.com
  linkshield-cli scan https://example.com --json
  linkshield-cli evaluate page.json
  linkshield-cli batch urls.txt -t 4 -o results.json`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: parseLevel(logLevel),
		})))
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&noColor, "no-color", false, "Disable colored output")
	pf.StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(newScanCmd(), newEvaluateCmd(), newBatchCmd())
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch s {
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

// loadConfig reads the environment like the server does, with the API
// surface switched off.
func loadConfig() *config.Config {
	cfg := config.Load()
	cfg.Auth.Enabled = false
	return cfg
}
