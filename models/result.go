package models

import (
	"encoding/json"
	"fmt"
)

// Status is the verdict of a scan.
type Status string

const (
	StatusSafe       Status = "safe"
	StatusSuspicious Status = "suspicious"
	StatusMalicious  Status = "malicious"
)

// Valid reports whether s is one of the three verdicts.
func (s Status) Valid() bool {
	switch s {
	case StatusSafe, StatusSuspicious, StatusMalicious:
		return true
	}
	return false
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	st := Status(v)
	if !st.Valid() {
		return fmt.Errorf("models: unknown status %q", v)
	}
	*s = st
	return nil
}

// ScanResult is the verdict for one URL.
type ScanResult struct {
	URL       string               `json:"url"`
	FinalURL  string               `json:"final_url"`
	Status    Status               `json:"status"`
	RiskScore int                  `json:"risk_score"`
	Reasons   []string             `json:"reasons"`
	Raw       *PageExecutionResult `json:"raw,omitempty"`
}
