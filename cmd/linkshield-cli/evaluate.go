package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/use-agent/linkshield/app"
	"github.com/use-agent/linkshield/config"
	"github.com/use-agent/linkshield/models"
	"github.com/use-agent/linkshield/scanner"
)

func newEvaluateCmd() *cobra.Command {
	var (
		asJSON    bool
		requested string
	)
	cmd := &cobra.Command{
		Use:   "evaluate <page.json>",
		Short: "Score a recorded page execution result without fetching",
		Long: `evaluate replays a saved page execution result (the "raw" object of a
scan) through the detectors. No browser is started.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			res, err := evaluateFile(cmd.Context(), cfg, args[0], requested)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			printVerdict(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	cmd.Flags().StringVar(&requested, "url", "", "Requested URL (default: the page's url field)")
	return cmd
}

// evaluateFile decodes a PageExecutionResult and scores it.
func evaluateFile(ctx context.Context, cfg *config.Config, path, requested string) (*models.ScanResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var page models.PageExecutionResult
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if requested == "" {
		requested = page.URL
	}
	if requested == "" {
		return nil, fmt.Errorf("%s has no url; pass --url", path)
	}
	sc := scanner.New(cfg.Scanner, nil, app.OCROptions(cfg.OCR)...)
	return sc.Evaluate(ctx, requested, &page), nil
}
