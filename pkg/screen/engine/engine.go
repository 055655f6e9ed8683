// Package engine runs one screened call's turn-taking state machine. Each
// engine owns exactly one CallSession and processes its lifecycle events on
// a single goroutine, so session state needs no locking and turns are
// strictly serialized.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quietline/quietline/pkg/screen"
)

// Assistant is the conversational model surface the engine consumes.
type Assistant interface {
	Generate(ctx context.Context, c screen.Context) (string, error)
	Shorten(ctx context.Context, text string) (string, error)
}

// VoiceOptions selects voice and output encoding for synthesis.
type VoiceOptions struct {
	Voice      string
	Format     string
	SampleRate int
}

// Synthesizer turns text into playable audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts VoiceOptions) ([]byte, error)
}

// AudioSink is the transport handle for one session's outbound audio.
type AudioSink interface {
	SendAudio(payload []byte) error
}

// FinalizeFunc hands a terminating session to the finalizer. It is awaited;
// the finalizer bounds its own external calls.
type FinalizeFunc func(ctx context.Context, sess *screen.CallSession)

type Config struct {
	Instructions    string
	Voice           VoiceOptions
	MaxContextTurns int
	MaxContextChars int

	// MaxSpokenChars triggers the shorten pass when a response exceeds it.
	MaxSpokenChars int

	TurnTimeout        time.Duration
	ShortenTimeout     time.Duration
	SynthesisTimeout   time.Duration
	FinalizeTimeout    time.Duration
	MaxSessionDuration time.Duration

	AudioChunkBytes int
	MailboxSize     int
}

type Dependencies struct {
	Session     *screen.CallSession
	Logger      *slog.Logger
	Assistant   Assistant
	Synthesizer Synthesizer
	Sink        AudioSink
	Finalize    FinalizeFunc
	Config      Config
	Now         func() time.Time
}

type eventKind int

const (
	evStart eventKind = iota + 1
	evTranscript
	evStop
)

type event struct {
	kind eventKind

	// start
	callID       string
	userID       string
	callerNumber string

	// transcript
	text       string
	isFinal    bool
	confidence float64

	at time.Time
}

type genResult struct {
	turnID    int
	userInput string
	text      string
}

type speakResult struct {
	turnID int
	err    error
}

// Engine drives one session. Create with New, start with Run, feed with
// Start/HandleTranscript, and end with Stop; Run returns once the session
// is terminated and finalized.
type Engine struct {
	sess        *screen.CallSession
	logger      *slog.Logger
	assistant   Assistant
	synthesizer Synthesizer
	sink        AudioSink
	finalize    FinalizeFunc
	cfg         Config
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	events   chan event
	stopCh   chan struct{}
	stopOnce sync.Once

	genCh   chan genResult
	speakCh chan speakResult
}

func New(deps Dependencies) (*Engine, error) {
	if deps.Session == nil {
		return nil, fmt.Errorf("session is required")
	}
	if deps.Assistant == nil {
		return nil, fmt.Errorf("assistant is required")
	}
	if deps.Synthesizer == nil {
		return nil, fmt.Errorf("synthesizer is required")
	}
	if deps.Sink == nil {
		return nil, fmt.Errorf("audio sink is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Finalize == nil {
		deps.Finalize = func(context.Context, *screen.CallSession) {}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Config.MaxSpokenChars <= 0 {
		deps.Config.MaxSpokenChars = 600
	}
	if deps.Config.TurnTimeout <= 0 {
		deps.Config.TurnTimeout = 10 * time.Second
	}
	if deps.Config.ShortenTimeout <= 0 {
		deps.Config.ShortenTimeout = 5 * time.Second
	}
	if deps.Config.SynthesisTimeout <= 0 {
		deps.Config.SynthesisTimeout = 10 * time.Second
	}
	if deps.Config.FinalizeTimeout <= 0 {
		deps.Config.FinalizeTimeout = 30 * time.Second
	}
	if deps.Config.AudioChunkBytes <= 0 {
		deps.Config.AudioChunkBytes = 3200
	}
	if deps.Config.MailboxSize <= 0 {
		deps.Config.MailboxSize = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		sess:        deps.Session,
		logger:      deps.Logger,
		assistant:   deps.Assistant,
		synthesizer: deps.Synthesizer,
		sink:        deps.Sink,
		finalize:    deps.Finalize,
		cfg:         deps.Config,
		now:         deps.Now,
		ctx:         ctx,
		cancel:      cancel,
		events:      make(chan event, deps.Config.MailboxSize),
		stopCh:      make(chan struct{}),
		genCh:       make(chan genResult, 1),
		speakCh:     make(chan speakResult, 1),
	}, nil
}

// Start delivers the connect event with the call metadata the transport
// learned during the handshake.
func (e *Engine) Start(callID, userID, callerNumber string) {
	e.post(event{kind: evStart, callID: callID, userID: userID, callerNumber: callerNumber, at: e.now()})
}

// HandleTranscript delivers one transcription result in arrival order.
func (e *Engine) HandleTranscript(text string, isFinal bool, confidence float64) {
	e.post(event{kind: evTranscript, text: text, isFinal: isFinal, confidence: confidence, at: e.now()})
}

// Stop delivers the transport stop/close signal. Safe to call more than
// once and from any goroutine.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		select {
		case e.events <- event{kind: evStop, at: e.now()}:
		default:
			// Mailbox full; the loop watches stopCh as well.
		}
		close(e.stopCh)
	})
}

func (e *Engine) post(ev event) {
	select {
	case e.events <- ev:
	case <-e.stopCh:
	case <-e.ctx.Done():
	}
}
