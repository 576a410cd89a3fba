// Package app wires configuration into a ready scanner: browser, fetch
// engines, OCR and detectors. It is shared by the server and the CLI.
package app

import (
	"fmt"
	"log/slog"

	"github.com/use-agent/linkshield/config"
	"github.com/use-agent/linkshield/engine"
	"github.com/use-agent/linkshield/ocr"
	"github.com/use-agent/linkshield/scanner"
	"github.com/use-agent/linkshield/scraper"
)

// Runtime owns the long-lived resources behind a Scanner.
type Runtime struct {
	Scanner    *scanner.Scanner
	Scraper    *scraper.Scraper
	Dispatcher *engine.Dispatcher // nil when multi-engine is disabled

	memory *engine.DomainMemory
}

// New launches the browser and assembles the scanner. Call Close when done.
func New(cfg *config.Config) (*Runtime, error) {
	sc, err := scraper.NewScraper(cfg.Browser, cfg.Scraper)
	if err != nil {
		return nil, fmt.Errorf("app: init scraper: %w", err)
	}
	rt := &Runtime{Scraper: sc}

	var exec scanner.Executor = sc
	if cfg.Engine.EnableMultiEngine {
		engines, err := buildEngines(cfg, sc)
		if err != nil {
			sc.Close()
			return nil, err
		}
		rt.memory = engine.NewDomainMemory(cfg.Engine.DomainMemoryTTL)
		rt.Dispatcher = engine.NewDispatcher(engines, cfg.Engine.EscalationDelays, rt.memory)
		rt.Dispatcher.SetRequestTimeout(cfg.Scraper.DefaultTimeout)
		exec = rt.Dispatcher
		slog.Info("multi-engine dispatcher enabled",
			"engines", rt.Dispatcher.Engines(),
			"delays", cfg.Engine.EscalationDelays,
		)
	}

	rt.Scanner = scanner.New(cfg.Scanner, exec, OCROptions(cfg.OCR)...)
	return rt, nil
}

// OCROptions returns the scanner option enabling tesseract, or none when
// OCR is disabled or the binary is missing.
func OCROptions(cfg config.OCRConfig) []scanner.Option {
	if !cfg.Enabled {
		return nil
	}
	t := ocr.NewTesseract(cfg.Binary, cfg.MaxTextChars)
	if !t.Available() {
		slog.Warn("tesseract not found, visual detection disabled", "binary", cfg.Binary)
		return nil
	}
	rules := ocr.ImageRules{Extensions: cfg.Extensions, MaxBytes: cfg.MaxImageBytes}
	return []scanner.Option{scanner.WithOCR(t, rules, cfg.Timeout)}
}

func buildEngines(cfg *config.Config, sc *scraper.Scraper) ([]engine.Engine, error) {
	engines := make([]engine.Engine, 0, len(cfg.Engine.Order))
	for _, name := range cfg.Engine.Order {
		switch name {
		case "rod":
			engines = append(engines, engine.NewRodEngine(sc.Fetch))
		case "http":
			engines = append(engines, engine.NewHTTPEngine(cfg.Engine.HTTPTimeout))
		default:
			return nil, fmt.Errorf("app: unknown engine %q", name)
		}
	}
	if len(engines) == 0 {
		return nil, fmt.Errorf("app: no engines configured")
	}
	return engines, nil
}

// Close stops background work and kills the browser.
func (rt *Runtime) Close() {
	rt.memory.Stop()
	rt.Scraper.Close()
}
