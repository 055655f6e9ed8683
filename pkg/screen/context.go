package screen

import (
	"strings"
)

const (
	// DefaultMaxContextTurns bounds how many prior exchanges a single
	// model request may carry.
	DefaultMaxContextTurns = 6

	// DefaultMaxContextChars bounds the raw transcript tail included in a
	// request, in characters.
	DefaultMaxContextChars = 2000
)

// Context is the bounded view of a session assembled for one model
// request. It is rebuilt per request and never persisted.
type Context struct {
	Instructions   string
	CallerNumber   string
	Turns          []Turn
	TranscriptTail string
}

// BuildContext assembles a request context from the most recent maxTurns
// exchanges and the trailing maxChars characters of final transcript text.
// Zero or negative limits fall back to the defaults. The result is bounded
// regardless of how long the call has been running.
func BuildContext(sess *CallSession, instructions string, maxTurns, maxChars int) Context {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxContextTurns
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxContextChars
	}

	ctx := Context{
		Instructions: instructions,
		CallerNumber: sess.CallerNumber,
	}

	if n := len(sess.Turns); n > 0 {
		start := n - maxTurns
		if start < 0 {
			start = 0
		}
		ctx.Turns = append(ctx.Turns, sess.Turns[start:]...)
	}

	var b strings.Builder
	for _, ev := range sess.Transcript {
		if !ev.IsFinal || ev.Speaker != SpeakerCaller {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(ev.Text)
	}
	tail := b.String()
	if len(tail) > maxChars {
		tail = tail[len(tail)-maxChars:]
	}
	ctx.TranscriptTail = tail
	return ctx
}
