package models

// BatchScanRequest is the payload for POST /api/v1/scan/batch.
type BatchScanRequest struct {
	// URLs is the list of links to classify. Required.
	URLs []string `json:"urls" binding:"required,min=1,max=500"`

	// WebhookURL receives a batch.completed event when set.
	WebhookURL    string `json:"webhook_url,omitempty" binding:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// BatchResponse is the immediate response for POST /api/v1/scan/batch.
type BatchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// BatchItem is the outcome for one URL of a batch.
type BatchItem struct {
	URL    string       `json:"url"`
	Result *ScanResult  `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// BatchStatusResponse is the response for GET /api/v1/scan/batch/:id.
type BatchStatusResponse struct {
	ID        string       `json:"id"`
	Status    string       `json:"status"`
	Completed int          `json:"completed"`
	Total     int          `json:"total"`
	Summary   BatchSummary `json:"summary"`
	Results   []*BatchItem `json:"results,omitempty"`
}

// BatchSummary counts verdicts across a batch.
type BatchSummary struct {
	Safe       int `json:"safe"`
	Suspicious int `json:"suspicious"`
	Malicious  int `json:"malicious"`
	Errors     int `json:"errors"`
}

// Add counts one batch item.
func (s *BatchSummary) Add(item *BatchItem) {
	if item == nil {
		return
	}
	if item.Result == nil {
		s.Errors++
		return
	}
	switch item.Result.Status {
	case StatusSafe:
		s.Safe++
	case StatusSuspicious:
		s.Suspicious++
	case StatusMalicious:
		s.Malicious++
	}
}

// BatchJob tracks an in-progress batch scan.
type BatchJob struct {
	ID        string
	Status    string // "processing", "completed"
	Total     int
	Completed int
	Results   []*BatchItem
	CreatedAt int64 // unix timestamp
}
