package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/quietline/quietline/pkg/gateway/config"
	"github.com/quietline/quietline/pkg/screen"
	"github.com/quietline/quietline/pkg/screen/engine"
	"github.com/quietline/quietline/pkg/screen/finalize"
	"github.com/quietline/quietline/pkg/screen/registry"
	"github.com/quietline/quietline/pkg/voice/stt"
)

const outboundQueueSize = 128

// Handler owns the media stream endpoint. One websocket connection is one
// screened call: the handler creates the session, feeds audio to the
// transcriber, transcripts to the engine, and the engine's audio back to
// the provider.
type Handler struct {
	Config    config.Config
	Logger    *slog.Logger
	Registry  *registry.Registry
	STT       stt.Provider
	Assistant engine.Assistant
	Synth     engine.Synthesizer
	Finalizer *finalize.Finalizer

	Upgrader websocket.Upgrader
	Now      func() time.Time
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := h.Now
	if now == nil {
		now = time.Now
	}

	upgrader := h.Upgrader
	if upgrader.CheckOrigin == nil {
		// Media streams originate from the telephony provider's backend,
		// not a browser; there is no origin to check.
		upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("media upgrade failed", "error", err)
		return
	}
	// The stream sid only arrives with the start event; tag everything
	// before that with a connection id.
	logger = logger.With("conn_id", uuid.NewString())

	if h.Config.MaxJSONMessageBytes > 0 {
		conn.SetReadLimit(h.Config.MaxJSONMessageBytes)
	}
	if h.Config.WSReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(h.Config.WSReadTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(h.Config.WSReadTimeout))
		})
	}

	start, err := h.awaitStart(conn)
	if err != nil {
		logger.Warn("media handshake failed", "error", err)
		_ = conn.Close()
		return
	}

	sessionID := start.StreamSID
	sess, err := h.Registry.Create(sessionID, now())
	if err != nil {
		logger.Warn("session rejected", "session_id", sessionID, "error", err)
		_ = conn.Close()
		return
	}
	logger.Info("session started",
		"session_id", sessionID,
		"call_id", start.CallSID,
		"caller", start.CustomParameters["from"],
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sttStream stt.Stream
	if h.STT != nil {
		sttStream, err = h.STT.NewStream(ctx, stt.StreamConfig{
			Encoding:   "pcm_mulaw",
			SampleRate: 8000,
		})
		if err != nil {
			// Screening continues without transcription: the caller still
			// hears the greeting and the stop path still records the call.
			logger.Error("transcription unavailable", "session_id", sessionID, "error", err)
			sttStream = nil
		}
	}

	frames := make(chan []byte, outboundQueueSize)
	writerErr := make(chan error, 1)
	go func() {
		w := outboundWriter{
			ws:           conn,
			ctx:          ctx,
			frames:       frames,
			pingInterval: h.Config.WSPingInterval,
			writeTimeout: h.Config.WSWriteTimeout,
		}
		writerErr <- w.Run()
	}()

	sink := &wsSink{ctx: ctx, streamSID: sessionID, frames: frames}

	eng, err := engine.New(engine.Dependencies{
		Session:     sess,
		Logger:      logger,
		Assistant:   h.Assistant,
		Synthesizer: h.Synth,
		Sink:        sink,
		Finalize: func(fctx context.Context, s *screen.CallSession) {
			if h.Finalizer != nil {
				h.Finalizer.Finalize(fctx, s)
			}
			h.Registry.Remove(s.SessionID)
			if sttStream != nil {
				_ = sttStream.Close()
			}
		},
		Config: engine.Config{
			Instructions:       h.Config.Instructions,
			Voice:              engine.VoiceOptions{Voice: h.Config.VoiceID, Format: "ulaw", SampleRate: 8000},
			MaxContextTurns:    h.Config.MaxContextTurns,
			MaxContextChars:    h.Config.MaxContextChars,
			MaxSpokenChars:     h.Config.MaxSpokenChars,
			TurnTimeout:        h.Config.TurnTimeout,
			ShortenTimeout:     h.Config.ShortenTimeout,
			SynthesisTimeout:   h.Config.SynthesisTimeout,
			FinalizeTimeout:    h.Config.FinalizeTimeout,
			MaxSessionDuration: h.Config.MaxSessionDuration,
			AudioChunkBytes:    h.Config.AudioChunkBytes,
		},
		Now: now,
	})
	if err != nil {
		logger.Error("engine init failed", "session_id", sessionID, "error", err)
		h.Registry.Remove(sessionID)
		if sttStream != nil {
			_ = sttStream.Close()
		}
		_ = conn.Close()
		return
	}
	h.Registry.Attach(sessionID, registry.Handle{Cancel: eng.Stop})

	if sttStream != nil {
		go func() {
			for res := range sttStream.Results() {
				eng.HandleTranscript(res.Text, res.IsFinal, res.Confidence)
			}
		}()
	}

	go h.readLoop(conn, eng, sttStream, logger, sessionID)

	eng.Start(start.CallSID, start.CustomParameters["userId"], start.CustomParameters["from"])
	if err := eng.Run(); err != nil {
		logger.Error("session run failed", "session_id", sessionID, "error", err)
	}

	// Run has finalized; tear the connection down and let the writer flush
	// its close frame.
	cancel()
	select {
	case <-writerErr:
	case <-time.After(h.Config.WSWriteTimeout + time.Second):
	}
}

// awaitStart consumes handshake messages until the provider's start event
// arrives.
func (h *Handler) awaitStart(conn *websocket.Conn) (*startPayload, error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", screen.ErrTransport, err)
		}
		msg, err := decodeStreamMessage(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", screen.ErrValidation, err)
		}
		switch msg.Event {
		case "connected":
			continue
		case "start":
			return msg.Start, nil
		default:
			return nil, fmt.Errorf("%w: unexpected %q before start", screen.ErrValidation, msg.Event)
		}
	}
}

// readLoop pumps inbound frames until the stream stops or the connection
// drops. Either way the engine gets exactly one stop signal.
func (h *Handler) readLoop(conn *websocket.Conn, eng *engine.Engine, sttStream stt.Stream, logger *slog.Logger, sessionID string) {
	defer eng.Stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("media read failed", "session_id", sessionID, "error", err)
			}
			return
		}
		if h.Config.WSReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(h.Config.WSReadTimeout))
		}

		msg, err := decodeStreamMessage(data)
		if err != nil {
			logger.Warn("bad stream message", "session_id", sessionID, "error", err)
			continue
		}

		switch msg.Event {
		case "media":
			audio, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
			if err != nil {
				logger.Warn("bad media payload", "session_id", sessionID, "error", err)
				continue
			}
			if len(audio) > h.Config.MaxAudioFrameBytes {
				logger.Warn("oversized media frame dropped",
					"session_id", sessionID, "bytes", len(audio))
				continue
			}
			if sttStream != nil {
				if err := sttStream.SendAudio(audio); err != nil {
					logger.Warn("audio forward failed", "session_id", sessionID, "error", err)
				}
			}
		case "mark", "connected":
			continue
		case "stop":
			return
		}
	}
}

// wsSink delivers one session's synthesized audio to the writer goroutine.
type wsSink struct {
	ctx       context.Context
	streamSID string
	frames    chan<- []byte
}

func (s *wsSink) SendAudio(payload []byte) error {
	frame, err := encodeOutboundMedia(s.streamSID, base64.StdEncoding.EncodeToString(payload))
	if err != nil {
		return fmt.Errorf("%w: encode media frame: %v", screen.ErrTransport, err)
	}
	select {
	case s.frames <- frame:
		return nil
	case <-s.ctx.Done():
		return fmt.Errorf("%w: connection closed", screen.ErrTransport)
	}
}
