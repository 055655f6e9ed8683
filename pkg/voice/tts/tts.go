// Package tts provides speech synthesis for outbound call audio.
package tts

import "context"

// Options selects the voice and output encoding for one synthesis call.
type Options struct {
	Voice      string
	Format     string
	SampleRate int
	Speed      float64
}

// Provider converts text into audio bytes. Calls may fail or time out;
// callers own the timeout via ctx.
type Provider interface {
	Synthesize(ctx context.Context, text string, opts Options) ([]byte, error)
}
