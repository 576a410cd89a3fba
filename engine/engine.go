package engine

import (
	"context"
	"time"

	"github.com/use-agent/linkshield/models"
)

// Engine is the interface that all fetch engines must implement.
type Engine interface {
	// Name returns the engine identifier (e.g. "http", "rod").
	Name() string

	// Fetch loads the page. A returned error means the engine itself
	// could not run; failures of the target (DNS, TLS, timeouts) are
	// reported in the result's Error field.
	Fetch(ctx context.Context, req *FetchRequest) (*models.PageExecutionResult, error)
}

// FetchRequest contains everything an engine needs to load a page.
type FetchRequest struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
}
