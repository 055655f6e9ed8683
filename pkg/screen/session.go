package screen

import (
	"time"
)

// State is the lifecycle state of a screened call. Transitions are
// monotonic: a session never re-enters an earlier state.
type State int

const (
	StateAwaitingGreeting State = iota
	StateAwaitingUserSpeech
	StateGeneratingResponse
	StateSpeaking
	StateTerminating
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateAwaitingGreeting:
		return "awaiting_greeting"
	case StateAwaitingUserSpeech:
		return "awaiting_user_speech"
	case StateGeneratingResponse:
		return "generating_response"
	case StateSpeaking:
		return "speaking"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == StateTerminated }

// Speaker identifies who produced a transcript event.
type Speaker string

const (
	SpeakerCaller    Speaker = "caller"
	SpeakerAssistant Speaker = "assistant"
)

// TranscriptEvent is one transcription result, partial or final.
type TranscriptEvent struct {
	Text       string    `json:"text"`
	IsFinal    bool      `json:"is_final"`
	Confidence float64   `json:"confidence"`
	Speaker    Speaker   `json:"speaker"`
	Timestamp  time.Time `json:"timestamp"`
}

// Turn is one caller-utterance / assistant-response pair.
type Turn struct {
	UserInput  string    `json:"user_input"`
	AIResponse string    `json:"ai_response"`
	Timestamp  time.Time `json:"timestamp"`
}

// CallSession is the live state of one screened call. It is created when
// the transport reports a new inbound connection and mutated only by that
// connection's event stream; nothing outside the owning engine goroutine
// writes to it, so its fields carry no lock.
type CallSession struct {
	SessionID    string
	CallID       string
	UserID       string
	CallerNumber string
	StartTime    time.Time
	EndTime      time.Time
	State        State
	LastActivity time.Time

	Transcript []TranscriptEvent
	Turns      []Turn
}

// NewCallSession returns a session in its initial state.
func NewCallSession(sessionID string, start time.Time) *CallSession {
	return &CallSession{
		SessionID:    sessionID,
		StartTime:    start,
		State:        StateAwaitingGreeting,
		LastActivity: start,
	}
}

// AppendTranscript records an event preserving arrival order. Timestamps
// are clamped to be non-decreasing so a skewed provider clock cannot
// produce an out-of-order transcript.
func (s *CallSession) AppendTranscript(ev TranscriptEvent) {
	if n := len(s.Transcript); n > 0 && ev.Timestamp.Before(s.Transcript[n-1].Timestamp) {
		ev.Timestamp = s.Transcript[n-1].Timestamp
	}
	s.Transcript = append(s.Transcript, ev)
	s.LastActivity = ev.Timestamp
}

// AppendTurn records a completed exchange.
func (s *CallSession) AppendTurn(userInput, aiResponse string, at time.Time) {
	s.Turns = append(s.Turns, Turn{UserInput: userInput, AIResponse: aiResponse, Timestamp: at})
	s.LastActivity = at
}

// Advance moves the session forward. Moves to an earlier or equal state are
// ignored except the AwaitingUserSpeech/GeneratingResponse/Speaking cycle,
// which may repeat for the life of the call.
func (s *CallSession) Advance(next State) {
	if s.State == StateTerminated {
		return
	}
	if next == StateTerminating || next == StateTerminated {
		s.State = next
		return
	}
	if s.State == StateTerminating {
		return
	}
	s.State = next
}

// Sentiment classifies the overall tone of a finished call.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Urgency classifies how quickly the user should react.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Analysis is the post-call classification of a conversation.
type Analysis struct {
	Sentiment      Sentiment `json:"sentiment"`
	Urgency        Urgency   `json:"urgency"`
	ActionRequired bool      `json:"action_required"`
	FollowUpNeeded bool      `json:"follow_up_needed"`
}

// DefaultAnalysis is used whenever analysis fails or returns garbage.
func DefaultAnalysis() Analysis {
	return Analysis{Sentiment: SentimentNeutral, Urgency: UrgencyMedium}
}

// CallRecord is the durable projection of a finished session, keyed by
// the provider call ID.
type CallRecord struct {
	CallID          string            `json:"call_id" firestore:"callId"`
	SessionID       string            `json:"session_id" firestore:"sessionId"`
	UserID          string            `json:"user_id" firestore:"userId"`
	CallerNumber    string            `json:"caller_number" firestore:"callerNumber"`
	StartTime       time.Time         `json:"start_time" firestore:"startTime"`
	EndTime         time.Time         `json:"end_time" firestore:"endTime"`
	DurationSeconds int64             `json:"duration_seconds" firestore:"durationSeconds"`
	Transcript      []TranscriptEvent `json:"transcript" firestore:"transcript"`
	Turns           []Turn            `json:"turns" firestore:"turns"`
	Summary         string            `json:"summary" firestore:"summary"`
	Analysis        Analysis          `json:"analysis" firestore:"analysis"`
	CallerName      string            `json:"caller_name,omitempty" firestore:"callerName,omitempty"`
	CallPurpose     string            `json:"call_purpose,omitempty" firestore:"callPurpose,omitempty"`
}
