package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/use-agent/linkshield/models"
)

var (
	red    = color.New(color.FgRed, color.Bold).SprintFunc()
	yellow = color.New(color.FgYellow, color.Bold).SprintFunc()
	green  = color.New(color.FgGreen, color.Bold).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// statusLabel colours a verdict by severity.
func statusLabel(s models.Status) string {
	switch s {
	case models.StatusMalicious:
		return red("MALICIOUS")
	case models.StatusSuspicious:
		return yellow("SUSPICIOUS")
	case models.StatusSafe:
		return green("SAFE")
	default:
		return string(s)
	}
}

func printVerdict(w io.Writer, res *models.ScanResult) {
	fmt.Fprintf(w, "%s  %s  score=%d\n", statusLabel(res.Status), cyan(res.URL), res.RiskScore)
	if res.FinalURL != "" && res.FinalURL != res.URL {
		fmt.Fprintf(w, "  final: %s\n", res.FinalURL)
	}
	for _, r := range res.Reasons {
		fmt.Fprintf(w, "  - %s\n", r)
	}
}

func printProgress(w io.Writer, done, total int, item *models.BatchItem) {
	prefix := faint(fmt.Sprintf("[%d/%d]", done, total))
	if item.Error != nil {
		fmt.Fprintf(w, "%s %s  %s  %s\n", prefix, red("ERROR"), item.URL, item.Error.Message)
		return
	}
	fmt.Fprintf(w, "%s %s  %s  score=%d\n", prefix, statusLabel(item.Result.Status), item.URL, item.Result.RiskScore)
}

func printSummary(w io.Writer, s models.BatchSummary, path string) {
	fmt.Fprintf(w, "\n%s safe, %s suspicious, %s malicious, %d errors → %s\n",
		green(s.Safe), yellow(s.Suspicious), red(s.Malicious), s.Errors, path)
}
