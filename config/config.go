package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Scanner   ScannerConfig
	OCR       OCRConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
	Engine    EngineConfig
	Batch     BatchConfig
}

// EngineConfig controls the multi-engine fetch dispatcher.
type EngineConfig struct {
	// EnableMultiEngine adds the static HTTP engine behind the browser.
	EnableMultiEngine bool // default: true

	// Order lists engine names by priority.
	Order []string // default: ["rod", "http"]

	// EscalationDelays is the staged start delay for each engine tier.
	EscalationDelays []time.Duration // default: [0s, 8s]

	// HTTPTimeout is the deadline for the pure HTTP engine.
	HTTPTimeout time.Duration // default: 10s

	// DomainMemoryTTL is how long the winning engine is remembered per domain.
	DomainMemoryTTL time.Duration // default: 24h
}

// CacheConfig controls the scan result cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached verdicts.
	MaxEntries int // default: 1000

	// TTL is the age after which the hourly sweep drops a verdict.
	TTL time.Duration // default: 24h
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int // default: 5

	// DefaultProxy is the default proxy URL for all requests.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Stealth injects anti-bot-detection evasions into every page.
	Stealth bool // default: true

	// PageMaxFailures retires a pooled page after this many consecutive failures.
	PageMaxFailures int // default: 3

	// PageMaxUses retires a pooled page after this many scans.
	PageMaxUses int // default: 50
}

// ScraperConfig controls page execution.
type ScraperConfig struct {
	// DefaultTimeout bounds one page execution.
	DefaultTimeout time.Duration // default: 30s

	// NavigationTimeout is the max time for page.Navigate alone.
	NavigationTimeout time.Duration // default: 15s

	// Retries is how many extra navigation attempts follow a timeout.
	Retries int // default: 2

	// SettleDelay is how long the page may keep running scripts after load.
	SettleDelay time.Duration // default: 2s

	// ScrollSteps scrolls the viewport this many times after load to
	// trigger lazily loaded content. 0 disables scrolling.
	ScrollSteps int // default: 0

	// ScreenshotDir is where PNG screenshots are written. Empty disables
	// screenshots (and therefore the visual detector).
	ScreenshotDir string // default: os.TempDir()/linkshield

	// BlockedResourceTypes lists resource types to block.
	// default: ["Font", "Media"]
	BlockedResourceTypes []string
}

// OCRConfig controls the screenshot text extractor.
type OCRConfig struct {
	// Enabled toggles OCR. When false the visual detector never fires.
	Enabled bool // default: true

	// Binary is the tesseract executable.
	Binary string // default: "tesseract"

	// Timeout bounds one OCR call.
	Timeout time.Duration // default: 10s

	// MaxImageBytes rejects larger screenshots.
	MaxImageBytes int64 // default: 5 MiB

	// MaxTextChars truncates OCR output.
	MaxTextChars int // default: 2000

	// Extensions are the accepted screenshot file extensions.
	Extensions []string // default: [".png", ".jpg", ".jpeg"]
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// BatchConfig controls asynchronous batch scans.
type BatchConfig struct {
	// Concurrency is the number of URLs scanned in parallel per batch.
	Concurrency int // default: 5

	// JobTTL is how long finished jobs stay queryable.
	JobTTL time.Duration // default: 1h
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("LINKSHIELD_HOST", "0.0.0.0"),
			Port: envIntOr("LINKSHIELD_PORT", 8080),
			Mode: envOr("LINKSHIELD_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:        envBoolOr("LINKSHIELD_HEADLESS", true),
			MaxPages:        envIntOr("LINKSHIELD_MAX_PAGES", 5),
			DefaultProxy:    os.Getenv("LINKSHIELD_PROXY"),
			NoSandbox:       envBoolOr("LINKSHIELD_NO_SANDBOX", false),
			BrowserBin:      os.Getenv("LINKSHIELD_BROWSER_BIN"),
			Stealth:         envBoolOr("LINKSHIELD_STEALTH", true),
			PageMaxFailures: envIntOr("LINKSHIELD_PAGE_MAX_FAILURES", 3),
			PageMaxUses:     envIntOr("LINKSHIELD_PAGE_MAX_USES", 50),
		},
		Scraper: ScraperConfig{
			DefaultTimeout:       envDurationOr("LINKSHIELD_DEFAULT_TIMEOUT", 30*time.Second),
			NavigationTimeout:    envDurationOr("LINKSHIELD_NAV_TIMEOUT", 15*time.Second),
			Retries:              envIntOr("LINKSHIELD_NAV_RETRIES", 2),
			SettleDelay:          envDurationOr("LINKSHIELD_SETTLE_DELAY", 2*time.Second),
			ScrollSteps:          envIntOr("LINKSHIELD_SCROLL_STEPS", 0),
			ScreenshotDir:        envOr("LINKSHIELD_SCREENSHOT_DIR", defaultScreenshotDir()),
			BlockedResourceTypes: envSliceOr("LINKSHIELD_BLOCKED_RESOURCES", []string{"Font", "Media"}),
		},
		Scanner: loadScanner(),
		OCR: OCRConfig{
			Enabled:       envBoolOr("LINKSHIELD_OCR_ENABLED", true),
			Binary:        envOr("LINKSHIELD_OCR_BINARY", "tesseract"),
			Timeout:       envDurationOr("LINKSHIELD_OCR_TIMEOUT", 10*time.Second),
			MaxImageBytes: int64(envIntOr("LINKSHIELD_OCR_MAX_BYTES", 5*1024*1024)),
			MaxTextChars:  envIntOr("LINKSHIELD_OCR_MAX_CHARS", 2000),
			Extensions:    envSliceOr("LINKSHIELD_OCR_EXTENSIONS", []string{".png", ".jpg", ".jpeg"}),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("LINKSHIELD_AUTH_ENABLED", true),
			APIKeys: envSliceOr("LINKSHIELD_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("LINKSHIELD_RATE_RPS", 5.0),
			Burst:             envIntOr("LINKSHIELD_RATE_BURST", 10),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("LINKSHIELD_CACHE_MAX_ENTRIES", 1000),
			TTL:        envDurationOr("LINKSHIELD_CACHE_TTL", 24*time.Hour),
		},
		Log: LogConfig{
			Level:  envOr("LINKSHIELD_LOG_LEVEL", "info"),
			Format: envOr("LINKSHIELD_LOG_FORMAT", "json"),
		},
		Engine: EngineConfig{
			EnableMultiEngine: envBoolOr("LINKSHIELD_MULTI_ENGINE", true),
			Order:             envSliceOr("LINKSHIELD_ENGINE_ORDER", []string{"rod", "http"}),
			EscalationDelays:  envDurationSliceOr("LINKSHIELD_ESCALATION_DELAYS", []time.Duration{0, 8 * time.Second}),
			HTTPTimeout:       envDurationOr("LINKSHIELD_HTTP_TIMEOUT", 10*time.Second),
			DomainMemoryTTL:   envDurationOr("LINKSHIELD_DOMAIN_MEMORY_TTL", 24*time.Hour),
		},
		Batch: BatchConfig{
			Concurrency: envIntOr("LINKSHIELD_BATCH_CONCURRENCY", 5),
			JobTTL:      envDurationOr("LINKSHIELD_BATCH_JOB_TTL", time.Hour),
		},
	}
}

func defaultScreenshotDir() string {
	return filepath.Join(os.TempDir(), "linkshield")
}

func envDurationSliceOr(key string, fallback []time.Duration) []time.Duration {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]time.Duration, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				if d, err := time.ParseDuration(trimmed); err == nil {
					result = append(result, d)
				}
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
