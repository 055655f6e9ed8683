package main

import (
	"context"
	"fmt"

	"github.com/quietline/quietline/pkg/screen"
	"github.com/quietline/quietline/pkg/screen/engine"
	"github.com/quietline/quietline/pkg/voice/tts"
)

// synthAdapter bridges the tts provider onto the engine's synthesizer
// surface. A nil provider reports synthesis failure so the engine records
// turns without audio instead of crashing.
type synthAdapter struct {
	provider tts.Provider
}

func (a synthAdapter) Synthesize(ctx context.Context, text string, opts engine.VoiceOptions) ([]byte, error) {
	if a.provider == nil {
		return nil, fmt.Errorf("%w: no synthesis provider configured", screen.ErrSynthesis)
	}
	return a.provider.Synthesize(ctx, text, tts.Options{
		Voice:      opts.Voice,
		Format:     opts.Format,
		SampleRate: opts.SampleRate,
	})
}
