package router

import "strings"

// Rule is a keyword pre-classification rule: the message matches when every
// keyword occurs (case-insensitive). Rules are evaluated in registration
// order before any model call.
type Rule struct {
	// Keywords that must all be present.
	Keywords []string
	// CapabilityID routed to on match.
	CapabilityID string
	// Confidence reported for the match. Defaults to 0.9.
	Confidence float64
}

func (r Rule) matches(loweredMessage string) bool {
	if len(r.Keywords) == 0 {
		return false
	}
	for _, kw := range r.Keywords {
		if !strings.Contains(loweredMessage, strings.ToLower(kw)) {
			return false
		}
	}
	return true
}

func (r Rule) confidence() float64 {
	if r.Confidence <= 0 {
		return 0.9
	}
	return r.Confidence
}
