package ai

import (
	"context"
	"fmt"

	"github.com/quietline/quietline/pkg/screen"
)

// Disabled stands in when no model credentials are configured. Every call
// fails with a generation error, which the engine and finalizer translate
// into canned replies and default summaries.
type Disabled struct{}

func (Disabled) Generate(context.Context, screen.Context) (string, error) {
	return "", fmt.Errorf("%w: assistant not configured", screen.ErrGeneration)
}

func (Disabled) Shorten(context.Context, string) (string, error) {
	return "", fmt.Errorf("%w: assistant not configured", screen.ErrGeneration)
}

func (Disabled) Summarize(context.Context, []screen.TranscriptEvent) (string, error) {
	return "", fmt.Errorf("%w: assistant not configured", screen.ErrGeneration)
}

func (Disabled) Analyze(context.Context, []screen.TranscriptEvent) (screen.Analysis, error) {
	return screen.Analysis{}, fmt.Errorf("%w: assistant not configured", screen.ErrGeneration)
}
