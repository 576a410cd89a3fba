package engine

import (
	"context"
	"fmt"

	"github.com/use-agent/linkshield/models"
)

// RodFetchFunc loads a page in the shared browser. It is injected from
// main to avoid an import cycle (engine/ -> scraper/).
type RodFetchFunc func(ctx context.Context, req *FetchRequest) (*models.PageExecutionResult, error)

// RodEngine is a browser-based engine delegating to the rod scraper.
type RodEngine struct {
	fetchFunc RodFetchFunc
}

// NewRodEngine creates a RodEngine.
func NewRodEngine(fetchFunc RodFetchFunc) *RodEngine {
	return &RodEngine{fetchFunc: fetchFunc}
}

func (e *RodEngine) Name() string { return "rod" }

func (e *RodEngine) Fetch(ctx context.Context, req *FetchRequest) (*models.PageExecutionResult, error) {
	if e.fetchFunc == nil {
		return nil, fmt.Errorf("%s: fetchFunc not configured", e.Name())
	}
	r := *req
	page, err := e.fetchFunc(ctx, &r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Name(), err)
	}
	page.Engine = e.Name()
	return page, nil
}
