package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quietline/quietline/pkg/screen"
)

func callerSays(texts ...string) []screen.TranscriptEvent {
	events := make([]screen.TranscriptEvent, 0, len(texts))
	for _, text := range texts {
		events = append(events, screen.TranscriptEvent{
			Text:      text,
			IsFinal:   true,
			Speaker:   screen.SpeakerCaller,
			Timestamp: time.Now(),
		})
	}
	return events
}

func TestCaller_NameAndPurpose(t *testing.T) {
	info := Caller(callerSays("Hi, my name is Sarah, calling about billing."))
	assert.Equal(t, "sarah", info.Name)
	assert.Equal(t, "billing", info.Purpose)
}

func TestCaller_ThisIsPattern(t *testing.T) {
	info := Caller(callerSays("Hello, this is Marcus Webb regarding the roof estimate."))
	assert.Equal(t, "marcus webb", info.Name)
	assert.Equal(t, "the roof estimate", info.Purpose)
}

func TestCaller_ImPattern(t *testing.T) {
	info := Caller(callerSays("Hey, I'm Dana."))
	assert.Equal(t, "dana", info.Name)
	assert.Empty(t, info.Purpose)
}

func TestCaller_ImCallingIsNotAName(t *testing.T) {
	info := Caller(callerSays("I'm calling about the invoice."))
	assert.Empty(t, info.Name)
	assert.Equal(t, "the invoice", info.Purpose)
}

func TestCaller_NoMatch(t *testing.T) {
	info := Caller(callerSays("Uh, hello? Is anyone there?"))
	assert.Empty(t, info.Name)
	assert.Empty(t, info.Purpose)
}

func TestCaller_IgnoresAssistantAndPartials(t *testing.T) {
	events := []screen.TranscriptEvent{
		{Text: "my name is Quietline", IsFinal: true, Speaker: screen.SpeakerAssistant},
		{Text: "my name is Pat", IsFinal: false, Speaker: screen.SpeakerCaller},
		{Text: "my name is Alex", IsFinal: true, Speaker: screen.SpeakerCaller},
	}
	info := Caller(events)
	assert.Equal(t, "alex", info.Name)
}

func TestCaller_OnlyScansEarlyUtterances(t *testing.T) {
	texts := []string{"hello", "yes", "sure", "okay", "right", "my name is Sam"}
	info := Caller(callerSays(texts...))
	assert.Empty(t, info.Name, "introductions past the opening are ignored")
}

func TestCaller_EmptyTranscript(t *testing.T) {
	assert.Equal(t, CallerInfo{}, Caller(nil))
}
