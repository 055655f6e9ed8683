// Package stt provides streaming speech-to-text for inbound call audio.
package stt

import "context"

// Result is one transcription hypothesis. Final results are stable;
// non-final results may be revised by later ones.
type Result struct {
	Text       string
	IsFinal    bool
	Confidence float64
}

// StreamConfig describes the inbound audio the stream will receive.
type StreamConfig struct {
	Model      string
	Language   string
	Encoding   string
	SampleRate int
}

// Stream is one live transcription session.
type Stream interface {
	SendAudio(data []byte) error
	Finalize() error
	Results() <-chan Result
	Close() error
}

// Provider opens transcription streams.
type Provider interface {
	NewStream(ctx context.Context, cfg StreamConfig) (Stream, error)
}
