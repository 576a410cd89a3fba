package config

// Weights is the score added per reason of each detector.
type Weights struct {
	Console    int
	Redirect   int
	URLKeyword int
	OCR        int
	Iframe     int
	JS         int
	Form       int
}

// ScannerConfig is the immutable scoring configuration. It is passed by
// value so a scanner never observes later changes.
type ScannerConfig struct {
	Weights Weights

	MaliciousThreshold  int // default: 95
	SuspiciousThreshold int // default: 50
	MaxScore            int // default: 100

	// IframeBaseline is the score floor applied when a page has iframes
	// but none of them was flagged.
	IframeBaseline int // default: 10

	// RedirectThreshold is the redirect count that counts as "multiple".
	RedirectThreshold int // default: 2

	URLKeywords       []string // default: phish, secure, login
	SubdomainKeywords []string // default: login, secure, verify, update
	UntrustedTLDs     []string // default: .tk .ml .ga .cf .gq
	TrackingParams    []string // default: utm_source, fbclid, gclid
	TrackerDomains    []string
	IframeWatchList   []string // default: google.com, microsoft.com, paypal.com
	OCRKeywords       []string // default: login, paypal, verify

	// IframeLargeWidth/Height define a "large" iframe (inclusive).
	IframeLargeWidth  float64 // default: 800
	IframeLargeHeight float64 // default: 600

	// IframeTrackerSize is the max width and height of a tracker pixel.
	IframeTrackerSize float64 // default: 2
}

// DefaultScannerConfig returns the built-in scoring configuration.
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		Weights: Weights{
			Console:    10,
			Redirect:   30,
			URLKeyword: 30,
			OCR:        30,
			Iframe:     60,
			JS:         25,
			Form:       0,
		},
		MaliciousThreshold:  95,
		SuspiciousThreshold: 50,
		MaxScore:            100,
		IframeBaseline:      10,
		RedirectThreshold:   2,
		URLKeywords:         []string{"phish", "secure", "login"},
		SubdomainKeywords:   []string{"login", "secure", "verify", "update"},
		UntrustedTLDs:       []string{".tk", ".ml", ".ga", ".cf", ".gq"},
		TrackingParams:      []string{"utm_source", "fbclid", "gclid"},
		TrackerDomains: []string{
			"doubleclick.net", "google-analytics.com", "googletagmanager.com",
			"facebook.net", "hotjar.com", "scorecardresearch.com",
		},
		IframeWatchList:   []string{"google.com", "microsoft.com", "paypal.com"},
		OCRKeywords:       []string{"login", "paypal", "verify"},
		IframeLargeWidth:  800,
		IframeLargeHeight: 600,
		IframeTrackerSize: 2,
	}
}

// loadScanner overlays environment overrides on the defaults.
func loadScanner() ScannerConfig {
	c := DefaultScannerConfig()
	c.Weights.Console = envIntOr("LINKSHIELD_WEIGHT_CONSOLE", c.Weights.Console)
	c.Weights.Redirect = envIntOr("LINKSHIELD_WEIGHT_REDIRECT", c.Weights.Redirect)
	c.Weights.URLKeyword = envIntOr("LINKSHIELD_WEIGHT_URL_KEYWORD", c.Weights.URLKeyword)
	c.Weights.OCR = envIntOr("LINKSHIELD_WEIGHT_OCR", c.Weights.OCR)
	c.Weights.Iframe = envIntOr("LINKSHIELD_WEIGHT_IFRAME", c.Weights.Iframe)
	c.Weights.JS = envIntOr("LINKSHIELD_WEIGHT_JS", c.Weights.JS)
	c.Weights.Form = envIntOr("LINKSHIELD_WEIGHT_FORM", c.Weights.Form)
	c.MaliciousThreshold = envIntOr("LINKSHIELD_MALICIOUS_THRESHOLD", c.MaliciousThreshold)
	c.SuspiciousThreshold = envIntOr("LINKSHIELD_SUSPICIOUS_THRESHOLD", c.SuspiciousThreshold)
	c.RedirectThreshold = envIntOr("LINKSHIELD_REDIRECT_THRESHOLD", c.RedirectThreshold)
	c.IframeWatchList = envSliceOr("LINKSHIELD_IFRAME_WATCHLIST", c.IframeWatchList)

	// OCR_KEYWORDS is the historical name; the prefixed one wins.
	c.OCRKeywords = envSliceOr("OCR_KEYWORDS", c.OCRKeywords)
	c.OCRKeywords = envSliceOr("LINKSHIELD_OCR_KEYWORDS", c.OCRKeywords)
	c.URLKeywords = envSliceOr("LINKSHIELD_URL_KEYWORDS", c.URLKeywords)
	return c
}
