package engine

import (
	"regexp"
	"strings"
)

var (
	markupRe     = regexp.MustCompile("[*_`#>]+")
	bulletRe     = regexp.MustCompile(`(?m)^\s*[-•]\s+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	repeatedRe   = regexp.MustCompile(`([.!?,;:])\1+`)
)

// CleanForSpeech prepares model output for spoken delivery: structural
// markup is stripped, whitespace collapsed, and runs of repeated
// punctuation reduced to a single mark.
func CleanForSpeech(text string) string {
	text = bulletRe.ReplaceAllString(text, "")
	text = markupRe.ReplaceAllString(text, "")
	text = repeatedRe.ReplaceAllString(text, "$1")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
