package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/linkshield/models"
)

func main() {
	apiURL := os.Getenv("LINKSHIELD_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("LINKSHIELD_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "LINKSHIELD_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"linkshield",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	scanURLTool := mcp.NewTool("scan_url",
		mcp.WithDescription("Open a link in a sandboxed headless browser and classify it as safe, suspicious or malicious. Returns the risk score and the reasons behind it."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The link to classify"),
		),
		mcp.WithNumber("max_age",
			mcp.Description("Accept a cached verdict younger than this many milliseconds (default: 0, always rescan)"),
		),
	)
	s.AddTool(scanURLTool, handleScanURL(apiURL, apiKey))

	batchScanTool := mcp.NewTool("batch_scan",
		mcp.WithDescription("Classify many links in parallel and wait for the batch to finish. Returns one verdict per link plus a summary."),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.Description("List of links to classify"),
		),
	)
	s.AddTool(batchScanTool, handleBatchScan(apiURL, apiKey))

	batchStatusTool := mcp.NewTool("batch_status",
		mcp.WithDescription("Report the progress of a batch scan started earlier."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("The batch id returned when the batch was created"),
		),
	)
	s.AddTool(batchStatusTool, handleBatchStatus(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiDo sends a request to the LinkShield API and returns the response body.
func apiDo(ctx context.Context, client *http.Client, method, url, apiKey string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// pollBatch polls the batch endpoint until the job leaves "processing" or ctx ends.
func pollBatch(ctx context.Context, client *http.Client, apiURL, apiKey, id string) (*models.BatchStatusResponse, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			status, err := fetchBatch(ctx, client, apiURL, apiKey, id)
			if err != nil {
				return nil, err
			}
			if status.Status != "processing" {
				return status, nil
			}
		}
	}
}

func fetchBatch(ctx context.Context, client *http.Client, apiURL, apiKey, id string) (*models.BatchStatusResponse, error) {
	body, err := apiDo(ctx, client, http.MethodGet, apiURL+"/api/v1/scan/batch/"+id, apiKey, nil)
	if err != nil {
		return nil, err
	}
	var status models.BatchStatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("parse batch status: %w", err)
	}
	if status.ID == "" {
		var failed models.ScanResponse
		if json.Unmarshal(body, &failed) == nil && failed.Error != nil {
			return nil, fmt.Errorf("[%s] %s", failed.Error.Code, failed.Error.Message)
		}
		return nil, fmt.Errorf("batch %s not found", id)
	}
	return &status, nil
}

func handleScanURL(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 120 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		noRaw := false
		payload := models.ScanRequest{
			URL:        url,
			MaxAge:     int64(request.GetFloat("max_age", 0)),
			IncludeRaw: &noRaw,
		}

		respBody, err := apiDo(ctx, client, http.MethodPost, apiURL+"/api/v1/scan", apiKey, payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("scan request failed: %v", err)), nil
		}

		var scanResp models.ScanResponse
		if err := json.Unmarshal(respBody, &scanResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		if !scanResp.Success || scanResp.Result == nil {
			errMsg := "scan failed"
			if scanResp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", scanResp.Error.Code, scanResp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		var sb strings.Builder
		writeVerdict(&sb, scanResp.Result)
		fmt.Fprintf(&sb, "\n---\nScanned in %dms", scanResp.Timing.TotalMs)
		if scanResp.CacheStatus == "hit" {
			sb.WriteString(" (cached)")
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleBatchScan(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 600 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls, err := request.RequireStringSlice("urls")
		if err != nil {
			return mcp.NewToolResultError("urls is required and must be an array of strings"), nil
		}

		respBody, err := apiDo(ctx, client, http.MethodPost, apiURL+"/api/v1/scan/batch", apiKey,
			models.BatchScanRequest{URLs: urls})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("batch request failed: %v", err)), nil
		}

		var batchResp models.BatchResponse
		if err := json.Unmarshal(respBody, &batchResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse batch response: %v", err)), nil
		}
		if batchResp.ID == "" {
			return mcp.NewToolResultError("batch job creation failed"), nil
		}

		status, err := pollBatch(ctx, client, apiURL, apiKey, batchResp.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling batch job failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatBatch(status)), nil
	}
}

func handleBatchStatus(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}
		status, err := fetchBatch(ctx, client, apiURL, apiKey, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatBatch(status)), nil
	}
}

func writeVerdict(sb *strings.Builder, r *models.ScanResult) {
	fmt.Fprintf(sb, "URL: %s\nFinal URL: %s\nVerdict: %s (risk %d/100)\n", r.URL, r.FinalURL, r.Status, r.RiskScore)
	if len(r.Reasons) == 0 {
		return
	}
	sb.WriteString("Reasons:\n")
	for _, reason := range r.Reasons {
		sb.WriteString("  - " + reason + "\n")
	}
}

func formatBatch(status *models.BatchStatusResponse) string {
	var sb strings.Builder
	s := status.Summary
	fmt.Fprintf(&sb, "Batch %s: %s (%d/%d completed)\n", status.ID, status.Status, status.Completed, status.Total)
	fmt.Fprintf(&sb, "safe=%d suspicious=%d malicious=%d errors=%d\n\n", s.Safe, s.Suspicious, s.Malicious, s.Errors)

	for i, item := range status.Results {
		if item == nil {
			continue
		}
		if item.Result == nil {
			errMsg := "unknown error"
			if item.Error != nil {
				errMsg = item.Error.Message
			}
			fmt.Fprintf(&sb, "--- [%d] %s FAILED: %s ---\n\n", i+1, item.URL, errMsg)
			continue
		}
		fmt.Fprintf(&sb, "--- [%d] ---\n", i+1)
		writeVerdict(&sb, item.Result)
		sb.WriteString("\n")
	}
	return sb.String()
}
