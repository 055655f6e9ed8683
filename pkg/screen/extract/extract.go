// Package extract pulls caller details out of a transcript with fixed
// lexical patterns. It is deliberately narrow; anything smarter should
// replace this package without touching the engine.
package extract

import (
	"regexp"
	"strings"

	"github.com/quietline/quietline/pkg/screen"
)

// CallerInfo is the best-effort result of scanning a transcript. Empty
// fields mean no pattern matched.
type CallerInfo struct {
	Name    string
	Purpose string
}

// Only the opening utterances are scanned; people introduce themselves at
// the start of a call or not at all.
const maxScannedUtterances = 5

var (
	nameRe    = regexp.MustCompile(`(?i)\b(?:my name is|this is|i'?m)\s+([a-zA-Z]+(?:\s+[a-zA-Z]+)?)`)
	purposeRe = regexp.MustCompile(`(?i)\b(?:calling about|calling regarding|regarding)\s+([^,.!?]+)`)
)

// Words that follow "I'm" far more often than a name does.
var nameStoplist = map[string]struct{}{
	"calling":   {},
	"trying":    {},
	"returning": {},
	"looking":   {},
	"wondering": {},
	"following": {},
	"sorry":     {},
	"just":      {},
	"not":       {},
	"here":      {},
	"going":     {},
	"gonna":     {},
}

// Caller scans the early final caller utterances for "my name is X" /
// "this is X" / "I'm X" and "calling about Y" / "regarding Y" patterns.
// Matches are lowercased with surrounding punctuation trimmed.
func Caller(transcript []screen.TranscriptEvent) CallerInfo {
	var info CallerInfo
	scanned := 0
	for _, ev := range transcript {
		if !ev.IsFinal || ev.Speaker != screen.SpeakerCaller {
			continue
		}
		if scanned >= maxScannedUtterances {
			break
		}
		scanned++

		if info.Name == "" {
			if m := nameRe.FindStringSubmatch(ev.Text); m != nil {
				if name := cleanMatch(m[1]); acceptableName(name) {
					info.Name = name
				}
			}
		}
		if info.Purpose == "" {
			if m := purposeRe.FindStringSubmatch(ev.Text); m != nil {
				info.Purpose = cleanMatch(m[1])
			}
		}
		if info.Name != "" && info.Purpose != "" {
			break
		}
	}
	return info
}

func cleanMatch(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Trim(s, ".,!?;: ")
}

func acceptableName(name string) bool {
	if name == "" {
		return false
	}
	first, _, _ := strings.Cut(name, " ")
	_, stopped := nameStoplist[first]
	return !stopped
}
