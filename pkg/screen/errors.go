package screen

import "errors"

// Failure classes for external collaborators. Everything except transport
// failures is absorbed at the engine/finalizer boundary and converted into
// fallback behavior; a transport failure is fatal to its session.
var (
	ErrTransport     = errors.New("transport failure")
	ErrTranscription = errors.New("transcription failure")
	ErrGeneration    = errors.New("generation failure")
	ErrSynthesis     = errors.New("synthesis failure")
	ErrPersistence   = errors.New("persistence failure")
	ErrValidation    = errors.New("invalid lifecycle event")
)

// Fatal reports whether err must terminate the session.
func Fatal(err error) bool {
	return errors.Is(err, ErrTransport)
}
