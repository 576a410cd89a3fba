package models

import "maps"

// Finding is the output of one detector.
type Finding struct {
	Reasons    []string       `json:"reasons"`
	Suspicious bool           `json:"suspicious"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// NewFinding builds a Finding from reasons, dropping exact duplicates
// while keeping first-seen order.
func NewFinding(reasons []string, meta map[string]any) Finding {
	out := make([]string, 0, len(reasons))
	seen := make(map[string]struct{}, len(reasons))
	for _, r := range reasons {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return Finding{Reasons: out, Suspicious: len(out) > 0, Meta: meta}
}

// EmptyFinding is a finding with no reasons.
func EmptyFinding(meta map[string]any) Finding {
	return Finding{Reasons: []string{}, Meta: meta}
}

// Clone returns a copy with its own reason slice and meta map.
func (f Finding) Clone() Finding {
	f.Reasons = append([]string{}, f.Reasons...)
	if f.Meta != nil {
		f.Meta = maps.Clone(f.Meta)
	}
	return f
}
