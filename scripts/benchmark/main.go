package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/use-agent/linkshield/models"
)

var (
	apiURL = flag.String("api-url", "http://localhost:8080", "LinkShield API base URL")
	apiKey = flag.String("api-key", "", "API key for authenticated requests")
	runs   = flag.Int("runs", 3, "Number of scans per URL for averaging")
	output = flag.String("output", "benchmark-results.json", "JSON output file path")
)

// Sites of different weight, from a static page to a script-heavy app.
var testURLs = []struct {
	Label string
	URL   string
}{
	{"Static", "https://example.com"},
	{"Docs", "https://go.dev/doc/effective_go"},
	{"News", "https://www.bbc.com/news"},
	{"App", "https://github.com/go-rod/rod"},
	{"Redirect", "http://github.com"},
}

type runResult struct {
	Run       int           `json:"run"`
	TotalMs   int64         `json:"total_ms"`
	FetchMs   int64         `json:"fetch_ms"`
	ScoreMs   int64         `json:"score_ms"`
	Status    models.Status `json:"status,omitempty"`
	RiskScore int           `json:"risk_score"`
	Reasons   int           `json:"reasons"`
	Engine    string        `json:"engine,omitempty"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

type urlAverages struct {
	TotalMs   float64 `json:"total_ms"`
	FetchMs   float64 `json:"fetch_ms"`
	ScoreMs   float64 `json:"score_ms"`
	RiskScore float64 `json:"risk_score"`
}

type urlResult struct {
	URL      string       `json:"url"`
	Label    string       `json:"label"`
	Runs     []runResult  `json:"runs"`
	Averages *urlAverages `json:"averages,omitempty"`
	Stable   bool         `json:"stable_verdict"`
}

type benchmarkReport struct {
	Timestamp  string      `json:"timestamp"`
	APIURL     string      `json:"api_url"`
	RunsPerURL int         `json:"runs_per_url"`
	Results    []urlResult `json:"results"`
}

func main() {
	flag.Parse()

	fmt.Println("=== LinkShield Benchmark Suite ===")
	fmt.Printf("API URL:   %s\n", *apiURL)
	fmt.Printf("Runs/URL:  %d\n", *runs)
	fmt.Printf("Output:    %s\n", *output)
	fmt.Println()

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		fmt.Fprintf(os.Stderr, "Make sure the linkshield server is running\n")
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		APIURL:     *apiURL,
		RunsPerURL: *runs,
	}

	for _, t := range testURLs {
		fmt.Printf("Benchmarking [%s] %s ...\n", t.Label, t.URL)
		ur := urlResult{URL: t.URL, Label: t.Label}

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := benchmarkURL(t.URL, i)
			if rr.Success {
				fmt.Printf("OK  %dms  %s (%d)\n", rr.TotalMs, rr.Status, rr.RiskScore)
			} else {
				fmt.Printf("FAILED: %s\n", rr.Error)
			}
			ur.Runs = append(ur.Runs, rr)
		}

		ur.Averages = computeAverages(ur.Runs)
		ur.Stable = stableVerdict(ur.Runs)
		report.Results = append(report.Results, ur)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func benchmarkURL(url string, run int) runResult {
	rr := runResult{Run: run}

	noRaw := false
	bodyBytes, err := json.Marshal(models.ScanRequest{URL: url, IncludeRaw: &noRaw})
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}

	req, err := http.NewRequest(http.MethodPost, *apiURL+"/api/v1/scan", bytes.NewReader(bodyBytes))
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	client := &http.Client{Timeout: 90 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()

	var sr models.ScanResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}

	rr.Success = sr.Success && sr.Result != nil
	rr.TotalMs = sr.Timing.TotalMs
	rr.FetchMs = sr.Timing.FetchMs
	rr.ScoreMs = sr.Timing.ScoreMs
	if sr.Result != nil {
		rr.Status = sr.Result.Status
		rr.RiskScore = sr.Result.RiskScore
		rr.Reasons = len(sr.Result.Reasons)
	}
	if sr.Error != nil {
		rr.Error = sr.Error.Message
	}
	return rr
}

func computeAverages(runs []runResult) *urlAverages {
	var successCount int
	var avg urlAverages

	for _, r := range runs {
		if !r.Success {
			continue
		}
		successCount++
		avg.TotalMs += float64(r.TotalMs)
		avg.FetchMs += float64(r.FetchMs)
		avg.ScoreMs += float64(r.ScoreMs)
		avg.RiskScore += float64(r.RiskScore)
	}

	if successCount == 0 {
		return nil
	}

	n := float64(successCount)
	avg.TotalMs /= n
	avg.FetchMs /= n
	avg.ScoreMs /= n
	avg.RiskScore /= n
	return &avg
}

// stableVerdict reports whether every successful run reached the same status.
func stableVerdict(runs []runResult) bool {
	var first models.Status
	for _, r := range runs {
		if !r.Success {
			continue
		}
		if first == "" {
			first = r.Status
			continue
		}
		if r.Status != first {
			return false
		}
	}
	return first != ""
}

func dominantStatus(runs []runResult) models.Status {
	counts := map[models.Status]int{}
	for _, r := range runs {
		if r.Success {
			counts[r.Status]++
		}
	}
	var best models.Status
	bestCount := 0
	for status, count := range counts {
		if count > bestCount {
			best = status
			bestCount = count
		}
	}
	return best
}

func printTable(results []urlResult) {
	fmt.Println(strings.Repeat("─", 85))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "URL\tAvg Latency\tFetch\tRisk\tVerdict\tStable\n")
	fmt.Fprintf(w, "───\t───────────\t─────\t────\t───────\t──────\n")

	for _, r := range results {
		if r.Averages == nil {
			fmt.Fprintf(w, "%s\tFAILED\t-\t-\t-\t-\n", truncateURL(r.URL, 40))
			continue
		}
		fmt.Fprintf(w, "%s\t%dms\t%dms\t%.0f\t%s\t%t\n",
			truncateURL(r.URL, 40),
			int64(r.Averages.TotalMs),
			int64(r.Averages.FetchMs),
			r.Averages.RiskScore,
			dominantStatus(r.Runs),
			r.Stable,
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 85))
}

func truncateURL(u string, max int) string {
	if len(u) <= max {
		return u
	}
	return u[:max-3] + "..."
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
