package models

// ScanRequest is the payload for POST /api/v1/scan.
type ScanRequest struct {
	// URL is the link to classify. Required. A missing scheme is
	// treated as https.
	URL string `json:"url" binding:"required"`

	// MaxAge enables result caching (milliseconds). When > 0, a cached
	// verdict younger than MaxAge is returned instead of re-scanning.
	// Default: 0 (no caching).
	MaxAge int64 `json:"max_age,omitempty" binding:"omitempty,min=0"`

	// IncludeRaw controls whether the page execution result is returned.
	// Default: true.
	IncludeRaw *bool `json:"include_raw,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *ScanRequest) Defaults() {
	if r.IncludeRaw == nil {
		t := true
		r.IncludeRaw = &t
	}
}
