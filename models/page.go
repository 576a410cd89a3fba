package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// PageExecutionResult is everything observed while loading a URL.
// It is produced by a fetch engine and consumed read-only by the detectors.
type PageExecutionResult struct {
	URL             string           `json:"url"`
	FinalURL        string           `json:"final_url"`
	StatusCode      int              `json:"status_code,omitempty"`
	Error           string           `json:"error,omitempty"`
	Redirects       []string         `json:"redirects"`
	ConsoleMessages []ConsoleMessage `json:"console_messages"`
	Iframes         []Iframe         `json:"iframes"`
	NetworkRequests []NetworkRequest `json:"network_requests"`
	ScreenshotPath  string           `json:"screenshot,omitempty"`
	HTML            string           `json:"html,omitempty"`
	JSRaw           []string         `json:"js_raw,omitempty"`
	LoadTimeMs      int64            `json:"load_time_ms,omitempty"`
	Engine          string           `json:"engine,omitempty"`

	// Signals is written only by the aggregator, on its own copy.
	Signals map[string]Finding `json:"signals,omitempty"`
}

// ConsoleMessage is one browser console entry.
type ConsoleMessage struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Location string `json:"location,omitempty"`
}

// NetworkRequest is one request issued while the page loaded.
type NetworkRequest struct {
	URL          string `json:"url"`
	Method       string `json:"method"`
	ResourceType string `json:"resource_type,omitempty"`
	PostData     string `json:"post_data,omitempty"`
}

// Iframe holds the attributes and computed style of an <iframe> element.
type Iframe struct {
	Src        string     `json:"src"`
	Width      FlexNumber `json:"width"`
	Height     FlexNumber `json:"height"`
	Display    string     `json:"display"`
	Visibility string     `json:"visibility"`
	Opacity    FlexNumber `json:"opacity"`
	// Sandbox is nil when the attribute is absent. An empty string means
	// the attribute is present with no allowances.
	Sandbox *string `json:"sandbox"`
}

// FlexNumber accepts a JSON number or a numeric string. Anything else
// (missing, null, "auto", "100%") leaves it invalid.
type FlexNumber struct {
	Value float64
	Valid bool
}

// Num returns a valid FlexNumber.
func Num(v float64) FlexNumber { return FlexNumber{Value: v, Valid: true} }

// Or returns the value, or def when the number is invalid.
func (n FlexNumber) Or(def float64) float64 {
	if !n.Valid {
		return def
	}
	return n.Value
}

func (n FlexNumber) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

func (n *FlexNumber) UnmarshalJSON(data []byte) error {
	*n = FlexNumber{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
	} else {
		s = string(data)
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "px")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	n.Value, n.Valid = v, true
	return nil
}

// Clone returns a deep copy of the result.
func (p *PageExecutionResult) Clone() *PageExecutionResult {
	if p == nil {
		return nil
	}
	c := *p
	c.Redirects = append([]string(nil), p.Redirects...)
	c.ConsoleMessages = append([]ConsoleMessage(nil), p.ConsoleMessages...)
	c.NetworkRequests = append([]NetworkRequest(nil), p.NetworkRequests...)
	c.JSRaw = append([]string(nil), p.JSRaw...)
	if p.Iframes != nil {
		c.Iframes = make([]Iframe, len(p.Iframes))
		for i, f := range p.Iframes {
			if f.Sandbox != nil {
				s := *f.Sandbox
				f.Sandbox = &s
			}
			c.Iframes[i] = f
		}
	}
	if p.Signals != nil {
		c.Signals = make(map[string]Finding, len(p.Signals))
		for k, v := range p.Signals {
			c.Signals[k] = v.Clone()
		}
	}
	return &c
}

// EffectiveURL is the final URL, or the requested URL when no final URL
// was recorded.
func (p *PageExecutionResult) EffectiveURL() string {
	if p.FinalURL != "" {
		return p.FinalURL
	}
	return p.URL
}
