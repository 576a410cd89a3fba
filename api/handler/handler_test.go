package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/linkshield/cache"
	"github.com/use-agent/linkshield/config"
	"github.com/use-agent/linkshield/models"
	"github.com/use-agent/linkshield/scanner"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// countingExecutor serves canned pages and counts fetches.
type countingExecutor struct {
	calls atomic.Int32
	pages map[string]*models.PageExecutionResult
}

func (e *countingExecutor) Run(_ context.Context, u string) *models.PageExecutionResult {
	e.calls.Add(1)
	if p, ok := e.pages[u]; ok {
		return p
	}
	return &models.PageExecutionResult{URL: u, FinalURL: u, StatusCode: 200}
}

type fixedPool struct{ stats models.PoolStats }

func (f fixedPool) Stats() models.PoolStats { return f.stats }

func newTestRouter(t *testing.T, exec *countingExecutor) (*gin.Engine, *Batches) {
	t.Helper()
	sc := scanner.New(config.DefaultScannerConfig(), exec)
	cc := cache.New(100, time.Hour)
	t.Cleanup(cc.Stop)
	batches := NewBatches(sc, nil, 2, time.Hour)
	t.Cleanup(batches.Stop)

	r := gin.New()
	r.GET("/api/v1/health", Health(fixedPool{models.PoolStats{MaxPages: 5, ActivePages: 1}}, time.Now()))
	r.POST("/api/v1/scan", Scan(sc, cc))
	r.POST("/api/v1/scan/batch", batches.Post())
	r.GET("/api/v1/scan/batch/:id", batches.Get())
	return r, batches
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeScan(t *testing.T, w *httptest.ResponseRecorder) models.ScanResponse {
	t.Helper()
	var resp models.ScanResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v\n%s", err, w.Body.String())
	}
	return resp
}

func TestScanHandler(t *testing.T) {
	exec := &countingExecutor{pages: map[string]*models.PageExecutionResult{
		"https://gone.example.com": {URL: "https://gone.example.com", FinalURL: "https://gone.example.com", StatusCode: 404},
	}}
	r, _ := newTestRouter(t, exec)

	tests := []struct {
		name       string
		body       string
		wantCode   int
		wantStatus models.Status
		wantErr    string
	}{
		{"safe", `{"url":"example.com"}`, http.StatusOK, models.StatusSafe, ""},
		{"malicious is still 200", `{"url":"https://gone.example.com"}`, http.StatusOK, models.StatusMalicious, ""},
		{"blocked target", `{"url":"http://127.0.0.1/admin"}`, http.StatusUnprocessableEntity, "", models.ErrCodeBlockedTarget},
		{"invalid url", `{"url":"https://"}`, http.StatusUnprocessableEntity, "", models.ErrCodeInvalidURL},
		{"malformed json", `{"url":`, http.StatusBadRequest, "", models.ErrCodeInvalidInput},
		{"missing url", `{}`, http.StatusBadRequest, "", models.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, http.MethodPost, "/api/v1/scan", tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}
			resp := decodeScan(t, w)
			if tt.wantErr != "" {
				if resp.Success || resp.Error == nil || resp.Error.Code != tt.wantErr {
					t.Errorf("error = %+v, want code %s", resp.Error, tt.wantErr)
				}
				return
			}
			if !resp.Success || resp.Result == nil {
				t.Fatalf("expected success, got %+v", resp)
			}
			if resp.Result.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", resp.Result.Status, tt.wantStatus)
			}
			if resp.Result.Raw == nil {
				t.Error("raw should be included by default")
			}
		})
	}
}

func TestScanHandlerExcludeRaw(t *testing.T) {
	r, _ := newTestRouter(t, &countingExecutor{})
	w := doJSON(r, http.MethodPost, "/api/v1/scan", `{"url":"https://example.com","include_raw":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	if resp := decodeScan(t, w); resp.Result.Raw != nil {
		t.Error("raw should be omitted")
	}
}

func TestScanHandlerCache(t *testing.T) {
	exec := &countingExecutor{}
	r, _ := newTestRouter(t, exec)

	first := decodeScan(t, doJSON(r, http.MethodPost, "/api/v1/scan", `{"url":"https://example.com","max_age":60000}`))
	if first.CacheStatus != "miss" {
		t.Errorf("first cache_status = %q, want miss", first.CacheStatus)
	}
	second := decodeScan(t, doJSON(r, http.MethodPost, "/api/v1/scan", `{"url":"example.com","max_age":60000,"include_raw":false}`))
	if second.CacheStatus != "hit" {
		t.Errorf("second cache_status = %q, want hit", second.CacheStatus)
	}
	if second.Result == nil || second.Result.Raw != nil {
		t.Errorf("cached result = %+v, want raw stripped", second.Result)
	}
	if got := exec.calls.Load(); got != 1 {
		t.Errorf("executor calls = %d, want 1", got)
	}

	third := decodeScan(t, doJSON(r, http.MethodPost, "/api/v1/scan", `{"url":"https://example.com","max_age":60000}`))
	if third.Result == nil || third.Result.Raw == nil {
		t.Error("stripping raw for one caller must not modify the cached verdict")
	}

	doJSON(r, http.MethodPost, "/api/v1/scan", `{"url":"https://example.com"}`)
	if got := exec.calls.Load(); got != 2 {
		t.Errorf("executor calls without max_age = %d, want 2", got)
	}
}

func TestBatchLifecycle(t *testing.T) {
	exec := &countingExecutor{pages: map[string]*models.PageExecutionResult{
		"https://bad.example.com": {URL: "https://bad.example.com", FinalURL: "https://bad.example.com", Error: "net::ERR_CONNECTION_RESET"},
	}}
	r, _ := newTestRouter(t, exec)

	w := doJSON(r, http.MethodPost, "/api/v1/scan/batch",
		`{"urls":["https://example.com","https://bad.example.com","http://localhost:8080"]}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("code = %d: %s", w.Code, w.Body.String())
	}
	var created models.BatchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.ID == "" || created.Total != 3 {
		t.Fatalf("created = %+v", created)
	}

	var status models.BatchStatusResponse
	deadline := time.Now().Add(5 * time.Second)
	for {
		w = doJSON(r, http.MethodGet, "/api/v1/scan/batch/"+created.ID, "")
		if w.Code != http.StatusOK {
			t.Fatalf("status code = %d", w.Code)
		}
		if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
			t.Fatal(err)
		}
		if status.Status == batchCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("batch did not complete: %+v", status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if status.Completed != 3 || len(status.Results) != 3 {
		t.Errorf("completed = %d, results = %d, want 3/3", status.Completed, len(status.Results))
	}
	want := models.BatchSummary{Safe: 1, Malicious: 1, Errors: 1}
	if status.Summary != want {
		t.Errorf("summary = %+v, want %+v", status.Summary, want)
	}
}

func TestBatchValidation(t *testing.T) {
	r, _ := newTestRouter(t, &countingExecutor{})

	if w := doJSON(r, http.MethodPost, "/api/v1/scan/batch", `{"urls":[]}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty batch code = %d, want 400", w.Code)
	}
	if w := doJSON(r, http.MethodGet, "/api/v1/scan/batch/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown batch code = %d, want 404", w.Code)
	}
}

func TestBatchRejectsInternalWebhook(t *testing.T) {
	exec := &countingExecutor{}
	r, _ := newTestRouter(t, exec)

	tests := []struct {
		name     string
		webhook  string
		wantCode string
	}{
		{"loopback", "http://127.0.0.1:44123/internal-admin", models.ErrCodeBlockedTarget},
		{"shorthand loopback", "http://127.1/hook", models.ErrCodeBlockedTarget},
		{"private network", "http://10.0.0.5/hook", models.ErrCodeBlockedTarget},
		{"localhost", "http://localhost:9000/hook", models.ErrCodeBlockedTarget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"urls":["https://example.com"],"webhook_url":"` + tt.webhook + `"}`
			w := doJSON(r, http.MethodPost, "/api/v1/scan/batch", body)
			if w.Code != http.StatusUnprocessableEntity {
				t.Fatalf("code = %d, want 422: %s", w.Code, w.Body.String())
			}
			resp := decodeScan(t, w)
			if resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want code %s", resp.Error, tt.wantCode)
			}
		})
	}
	if n := exec.calls.Load(); n != 0 {
		t.Errorf("rejected batches fetched %d urls, want 0", n)
	}
}

func TestHealthHandler(t *testing.T) {
	r, _ := newTestRouter(t, &countingExecutor{})
	w := doJSON(r, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	var resp models.HealthResponse
	if err := json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.PoolStats.MaxPages != 5 || resp.Version != Version {
		t.Errorf("health = %+v", resp)
	}
}

func TestMapErrorToStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{models.ErrCodeInvalidURL, http.StatusUnprocessableEntity},
		{models.ErrCodeBlockedTarget, http.StatusUnprocessableEntity},
		{models.ErrCodeInvalidInput, http.StatusBadRequest},
		{models.ErrCodeTimeout, http.StatusGatewayTimeout},
		{models.ErrCodeInternal, http.StatusInternalServerError},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := mapErrorToStatus(models.NewScanError(tt.code, "x", nil)); got != tt.want {
			t.Errorf("mapErrorToStatus(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}
