package models

import "fmt"

// Error codes used in API responses and internal error handling.
const (
	ErrCodeInvalidURL    = "INVALID_URL"
	ErrCodeBlockedTarget = "BLOCKED_TARGET"
	ErrCodeTimeout       = "SCAN_TIMEOUT"
	ErrCodeNavigation    = "NAVIGATION_FAILED"
	ErrCodeBrowserCrash  = "BROWSER_CRASH"
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScanError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScanError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScanError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// NewScanError creates a new ScanError.
func NewScanError(code, message string, err error) *ScanError {
	return &ScanError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScanError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// IsValidation reports whether the error describes a rejected input URL.
func (e *ScanError) IsValidation() bool {
	return e.Code == ErrCodeInvalidURL || e.Code == ErrCodeBlockedTarget
}
