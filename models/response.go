package models

// ScanResponse is the response for POST /api/v1/scan.
type ScanResponse struct {
	// Success is false only when the scan could not be performed at all.
	// A malicious verdict is still a successful scan.
	Success bool `json:"success"`

	Result *ScanResult `json:"result,omitempty"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// CacheStatus is "hit", "miss", or empty when caching was not requested.
	CacheStatus string `json:"cache_status,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo provides duration breakdowns in milliseconds.
type TimingInfo struct {
	TotalMs int64 `json:"total_ms"`
	FetchMs int64 `json:"fetch_ms"`
	ScoreMs int64 `json:"score_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "ok" | "degraded"
	PoolStats PoolStats `json:"pool_stats"`
	Uptime    int64     `json:"uptime_seconds"`
	Version   string    `json:"version"`
}

// PoolStats exposes browser page-pool metrics.
type PoolStats struct {
	MaxPages    int   `json:"max_pages"`
	ActivePages int   `json:"active_pages"`
	Retired     int64 `json:"retired_pages"`
}
