package media

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quietline/quietline/pkg/gateway/config"
	"github.com/quietline/quietline/pkg/screen"
	"github.com/quietline/quietline/pkg/screen/engine"
	"github.com/quietline/quietline/pkg/screen/registry"
)

type scriptedAssistant struct{ reply string }

func (a scriptedAssistant) Generate(ctx context.Context, c screen.Context) (string, error) {
	return a.reply, nil
}

func (a scriptedAssistant) Shorten(ctx context.Context, text string) (string, error) {
	return text, nil
}

type staticSynth struct{ audio []byte }

func (s staticSynth) Synthesize(ctx context.Context, text string, opts engine.VoiceOptions) ([]byte, error) {
	return s.audio, nil
}

func testConfig() config.Config {
	return config.Config{
		MaxAudioFrameBytes:  8192,
		MaxJSONMessageBytes: 64 * 1024,
		WSWriteTimeout:      time.Second,
		WSReadTimeout:       10 * time.Second,
		WSPingInterval:      time.Hour,
		AudioChunkBytes:     3200,
	}
}

func dialMedia(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func startMessage(streamSID, callSID string) map[string]any {
	return map[string]any{
		"event": "start",
		"start": map[string]any{
			"streamSid": streamSID,
			"callSid":   callSID,
			"customParameters": map[string]string{
				"from":   "+15550100",
				"userId": "user-1",
			},
		},
	}
}

func TestHandler_ScreensCallOverWebsocket(t *testing.T) {
	reg := registry.New()

	h := &Handler{
		Config:    testConfig(),
		Registry:  reg,
		Assistant: scriptedAssistant{reply: "Hello, who is calling?"},
		Synth:     staticSynth{audio: []byte("ulaw-greeting")},
	}
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dialMedia(t, srv)
	defer conn.Close()

	sendJSON(t, conn, map[string]any{"event": "connected"})
	sendJSON(t, conn, startMessage("MZint1", "CAint1"))

	// The greeting comes back as an outbound media frame.
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read greeting: %v", err)
	}
	var frame struct {
		Event     string `json:"event"`
		StreamSID string `json:"streamSid"`
		Media     struct {
			Payload string `json:"payload"`
		} `json:"media"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("frame: %v", err)
	}
	if frame.Event != "media" || frame.StreamSID != "MZint1" {
		t.Fatalf("frame=%+v", frame)
	}
	audio, err := base64.StdEncoding.DecodeString(frame.Media.Payload)
	if err != nil || string(audio) != "ulaw-greeting" {
		t.Fatalf("payload=%q err=%v", audio, err)
	}

	// Inbound audio with no transcriber configured is tolerated.
	sendJSON(t, conn, map[string]any{
		"event":     "media",
		"streamSid": "MZint1",
		"media":     map[string]any{"payload": base64.StdEncoding.EncodeToString([]byte{0x7f})},
	})

	sendJSON(t, conn, map[string]any{"event": "stop", "streamSid": "MZint1"})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && reg.Count() != 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if reg.Count() != 0 {
		t.Fatalf("session not removed after stop, count=%d", reg.Count())
	}
}

func TestHandler_RejectsDuplicateStream(t *testing.T) {
	reg := registry.New()
	if _, err := reg.Create("MZdup", time.Now()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	h := &Handler{
		Config:    testConfig(),
		Registry:  reg,
		Assistant: scriptedAssistant{reply: "hi"},
		Synth:     staticSynth{audio: []byte("a")},
	}
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dialMedia(t, srv)
	defer conn.Close()
	sendJSON(t, conn, startMessage("MZdup", "CAdup"))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected the connection to be closed")
	}
	if reg.Count() != 1 {
		t.Fatalf("existing session must survive, count=%d", reg.Count())
	}
}

func TestHandler_BadHandshakeClosesConnection(t *testing.T) {
	h := &Handler{
		Config:    testConfig(),
		Registry:  registry.New(),
		Assistant: scriptedAssistant{reply: "hi"},
		Synth:     staticSynth{audio: []byte("a")},
	}
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dialMedia(t, srv)
	defer conn.Close()

	// A media event before start is a protocol violation.
	sendJSON(t, conn, map[string]any{
		"event": "media",
		"media": map[string]any{"payload": "AAAA"},
	})

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected the connection to be closed")
	}
}
