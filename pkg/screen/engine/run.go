package engine

import (
	"context"
	"strings"
	"time"

	"github.com/quietline/quietline/pkg/screen"
	"github.com/quietline/quietline/pkg/screen/fallback"
)

// Run processes the session's event mailbox until the transport stops the
// call or the session duration limit fires. It returns after finalization.
func (e *Engine) Run() error {
	defer e.cancel()

	var sessionTimer *time.Timer
	if e.cfg.MaxSessionDuration > 0 {
		sessionTimer = time.NewTimer(e.cfg.MaxSessionDuration)
		defer sessionTimer.Stop()
	}
	sessionTimerCh := func() <-chan time.Time {
		if sessionTimer == nil {
			return nil
		}
		return sessionTimer.C
	}

	var (
		turnID        int
		turnBusy      bool
		turnCancel    context.CancelFunc
		pendingFinals []string
		stopAt        time.Time
		started       bool
	)

	cancelActiveTurn := func() {
		if turnCancel != nil {
			turnCancel()
			turnCancel = nil
		}
	}

	beginTurn := func(userInput string, synthetic bool) {
		turnID++
		turnBusy = true
		if synthetic {
			e.sess.Advance(screen.StateAwaitingGreeting)
		} else {
			e.sess.Advance(screen.StateGeneratingResponse)
		}
		ctx, cancel := context.WithCancel(e.ctx)
		turnCancel = cancel
		bctx := screen.BuildContext(e.sess, e.cfg.Instructions, e.cfg.MaxContextTurns, e.cfg.MaxContextChars)
		id := turnID
		go e.generateTurn(ctx, id, userInput, synthetic, bctx)
	}

	drainPending := func() {
		if turnBusy {
			return
		}
		if len(pendingFinals) == 0 {
			return
		}
		next := pendingFinals[0]
		pendingFinals = pendingFinals[1:]
		beginTurn(next, false)
	}

	shutdown := func() error {
		cancelActiveTurn()
		// Drain events that were already queued ahead of the stop so the
		// transcript stays complete; they start no new turns.
		for {
			var done bool
			select {
			case ev := <-e.events:
				switch ev.kind {
				case evTranscript:
					e.sess.AppendTranscript(screen.TranscriptEvent{
						Text:       ev.text,
						IsFinal:    ev.isFinal,
						Confidence: ev.confidence,
						Speaker:    screen.SpeakerCaller,
						Timestamp:  ev.at,
					})
				case evStop:
					if stopAt.IsZero() {
						stopAt = ev.at
					}
				}
			default:
				done = true
			}
			if done {
				break
			}
		}
		e.sess.Advance(screen.StateTerminating)
		if stopAt.IsZero() {
			stopAt = e.now()
		}
		e.sess.EndTime = stopAt

		fctx, fcancel := context.WithTimeout(context.Background(), e.cfg.FinalizeTimeout)
		defer fcancel()
		e.finalize(fctx, e.sess)
		e.sess.Advance(screen.StateTerminated)
		e.logger.Info("session terminated",
			"session_id", e.sess.SessionID,
			"call_id", e.sess.CallID,
			"turns", len(e.sess.Turns),
		)
		return nil
	}

	for {
		select {
		case <-e.stopCh:
			if stopAt.IsZero() {
				stopAt = e.now()
			}
			// An abandoned in-flight turn is not waited on; its eventual
			// result is discarded when the engine context is canceled.
			return shutdown()

		case <-sessionTimerCh():
			e.logger.Warn("session duration limit reached", "session_id", e.sess.SessionID)
			stopAt = e.now()
			return shutdown()

		case ev := <-e.events:
			switch ev.kind {
			case evStart:
				if started {
					continue
				}
				started = true
				e.sess.CallID = ev.callID
				e.sess.UserID = ev.userID
				e.sess.CallerNumber = ev.callerNumber
				e.sess.LastActivity = ev.at
				beginTurn("", true)

			case evTranscript:
				e.sess.AppendTranscript(screen.TranscriptEvent{
					Text:       ev.text,
					IsFinal:    ev.isFinal,
					Confidence: ev.confidence,
					Speaker:    screen.SpeakerCaller,
					Timestamp:  ev.at,
				})
				if !ev.isFinal {
					// Partial hypothesis: recorded above, no transition.
					continue
				}
				text := strings.TrimSpace(ev.text)
				if text == "" {
					continue
				}
				if turnBusy {
					// At most one generation in flight: later finals wait
					// their turn instead of racing it.
					pendingFinals = append(pendingFinals, text)
					continue
				}
				beginTurn(text, false)

			case evStop:
				if stopAt.IsZero() {
					stopAt = ev.at
				}
				return shutdown()
			}

		case res := <-e.genCh:
			if res.turnID != turnID {
				continue
			}
			cancelActiveTurn()
			e.sess.Advance(screen.StateSpeaking)
			at := e.now()
			// Spoken replies go into the transcript for continuity,
			// fallback text included. The greeting has no user input and
			// is transcript-only; everything else is a full turn.
			e.sess.AppendTranscript(screen.TranscriptEvent{
				Text:      res.text,
				IsFinal:   true,
				Speaker:   screen.SpeakerAssistant,
				Timestamp: at,
			})
			if res.userInput != "" {
				e.sess.AppendTurn(res.userInput, res.text, at)
			}
			ctx, cancel := context.WithCancel(e.ctx)
			turnCancel = cancel
			go e.speakTurn(ctx, res.turnID, res.text)

		case res := <-e.speakCh:
			if res.turnID != turnID {
				continue
			}
			turnBusy = false
			cancelActiveTurn()
			if res.err != nil {
				if screen.Fatal(res.err) {
					e.logger.Error("transport failure while speaking",
						"session_id", e.sess.SessionID, "error", res.err)
					stopAt = e.now()
					return shutdown()
				}
				e.logger.Warn("audio delivery skipped",
					"session_id", e.sess.SessionID, "error", res.err)
			}
			e.sess.Advance(screen.StateAwaitingUserSpeech)
			drainPending()
		}
	}
}

// generateTurn resolves the spoken text for one turn off the loop
// goroutine. It never fails: any assistant error resolves to a canned
// fallback so the caller hears something.
func (e *Engine) generateTurn(ctx context.Context, turnID int, userInput string, synthetic bool, bctx screen.Context) {
	gctx, cancel := context.WithTimeout(ctx, e.cfg.TurnTimeout)
	defer cancel()

	if synthetic {
		bctx.TranscriptTail = ""
		bctx.Instructions = strings.TrimSpace(bctx.Instructions + "\n" +
			"A new call just connected. Greet the caller briefly, say you are screening this call, and ask who is calling and why.")
	}

	text, err := e.assistant.Generate(gctx, bctx)
	if err != nil {
		e.logger.Warn("generation failed, using fallback",
			"session_id", e.sess.SessionID, "error", err)
		if synthetic {
			text = fallback.Reply(fallback.ClassUnconfigured)
		} else {
			text = fallback.Reply(fallback.ClassUnderstanding)
		}
	} else {
		text = CleanForSpeech(text)
		if len(text) > e.cfg.MaxSpokenChars {
			text = e.shorten(ctx, text)
		}
		if text == "" {
			text = fallback.Reply(fallback.ClassUnderstanding)
		}
	}

	select {
	case e.genCh <- genResult{turnID: turnID, userInput: userInput, text: text}:
	case <-e.ctx.Done():
	}
}

func (e *Engine) shorten(ctx context.Context, text string) string {
	sctx, cancel := context.WithTimeout(ctx, e.cfg.ShortenTimeout)
	defer cancel()

	short, err := e.assistant.Shorten(sctx, text)
	if err != nil || strings.TrimSpace(short) == "" {
		return fallback.Truncate(text, fallback.TruncateWords)
	}
	short = CleanForSpeech(short)
	if len(short) > e.cfg.MaxSpokenChars {
		return fallback.Truncate(short, fallback.TruncateWords)
	}
	return short
}

// speakTurn synthesizes the resolved text and streams it to the transport
// in fixed-size chunks.
func (e *Engine) speakTurn(ctx context.Context, turnID int, text string) {
	var speakErr error

	sctx, cancel := context.WithTimeout(ctx, e.cfg.SynthesisTimeout)
	audio, err := e.synthesizer.Synthesize(sctx, text, e.cfg.Voice)
	cancel()
	if err != nil {
		speakErr = err
	} else {
		for off := 0; off < len(audio); off += e.cfg.AudioChunkBytes {
			if ctx.Err() != nil {
				break
			}
			end := off + e.cfg.AudioChunkBytes
			if end > len(audio) {
				end = len(audio)
			}
			if err := e.sink.SendAudio(audio[off:end]); err != nil {
				speakErr = err
				break
			}
		}
	}

	select {
	case e.speakCh <- speakResult{turnID: turnID, err: speakErr}:
	case <-e.ctx.Done():
	}
}
