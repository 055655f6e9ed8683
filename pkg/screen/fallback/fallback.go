// Package fallback holds the canned, spoken-safe replies the engine
// substitutes when an external service fails, and the truncation rule used
// when model-based shortening is unavailable.
package fallback

import "strings"

// Failure classes with a dedicated spoken reply.
const (
	ClassUnconfigured  = "unconfigured"
	ClassUnderstanding = "understanding"
	ClassRateLimited   = "rate_limited"
)

const (
	greetingUnconfigured = "Hello, you've reached a call screening service. The assistant is not available right now, but your call will be noted. Please say why you're calling after the tone."
	troubleUnderstanding = "Sorry, I'm having a little trouble understanding right now. Could you say that again?"
	justAMoment          = "Just a moment, please."
)

// TruncateWords is the word budget applied when a long response cannot be
// shortened by the model.
const TruncateWords = 50

// Reply returns the canned response for a failure class. Unknown classes
// get the generic retry prompt so the caller never hears silence.
func Reply(class string) string {
	switch class {
	case ClassUnconfigured:
		return greetingUnconfigured
	case ClassRateLimited:
		return justAMoment
	default:
		return troubleUnderstanding
	}
}

// Truncate keeps the first max words of text and appends an ellipsis when
// anything was dropped. Non-positive max falls back to TruncateWords.
func Truncate(text string, max int) string {
	if max <= 0 {
		max = TruncateWords
	}
	words := strings.Fields(text)
	if len(words) <= max {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:max], " ") + "..."
}
