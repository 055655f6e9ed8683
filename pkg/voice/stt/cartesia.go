package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	cartesiaWSURL   = "wss://api.cartesia.ai/stt/websocket"
	cartesiaVersion = "2025-04-16"
	defaultModel    = "ink-whisper"
)

// Cartesia implements Provider over Cartesia's websocket STT API.
type Cartesia struct {
	apiKey string
	wsURL  string
}

func NewCartesia(apiKey string) *Cartesia {
	return &Cartesia{apiKey: apiKey, wsURL: cartesiaWSURL}
}

// WithWSURL overrides the websocket endpoint, mainly for tests.
func (c *Cartesia) WithWSURL(u string) *Cartesia {
	if u != "" {
		c.wsURL = u
	}
	return c
}

// NewStream opens a live transcription session. The defaults suit
// telephony audio: μ-law at 8 kHz.
func (c *Cartesia) NewStream(ctx context.Context, cfg StreamConfig) (Stream, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse stt websocket url: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	language := cfg.Language
	if language == "" {
		language = "en"
	}
	encoding := cfg.Encoding
	if encoding == "" {
		encoding = "pcm_mulaw"
	}
	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = 8000
	}

	q := u.Query()
	q.Set("model", model)
	q.Set("language", language)
	q.Set("encoding", encoding)
	q.Set("sample_rate", fmt.Sprintf("%d", sampleRate))
	q.Set("min_volume", "0.01")
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("X-API-Key", c.apiKey)
	headers.Set("Cartesia-Version", cartesiaVersion)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if len(body) > 0 {
				return nil, fmt.Errorf("stt connect (status %d): %s", resp.StatusCode, string(body))
			}
		}
		return nil, fmt.Errorf("stt connect: %w", err)
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &cartesiaStream{
		conn:    conn,
		results: make(chan Result, 64),
		ctx:     sctx,
		cancel:  cancel,
	}
	go s.readLoop()
	return s, nil
}

type cartesiaStream struct {
	conn    *websocket.Conn
	results chan Result
	closed  atomic.Bool
	writeMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

type cartesiaMessage struct {
	Type        string  `json:"type"`
	Text        string  `json:"text"`
	IsFinal     bool    `json:"is_final"`
	Probability float64 `json:"probability"`
	Error       string  `json:"error"`
}

func (s *cartesiaStream) readLoop() {
	defer close(s.results)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg cartesiaMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "transcript":
			confidence := msg.Probability
			if confidence == 0 {
				confidence = 1
			}
			select {
			case s.results <- Result{Text: msg.Text, IsFinal: msg.IsFinal, Confidence: confidence}:
			case <-s.ctx.Done():
				return
			}
		case "flush_done":
			continue
		case "done", "error":
			return
		}
	}
}

func (s *cartesiaStream) SendAudio(data []byte) error {
	if s.closed.Load() {
		return fmt.Errorf("stt stream closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Finalize flushes buffered audio so pending speech becomes a final
// result without closing the stream.
func (s *cartesiaStream) Finalize() error {
	if s.closed.Load() {
		return fmt.Errorf("stt stream closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte("finalize"))
}

func (s *cartesiaStream) Results() <-chan Result {
	return s.results
}

func (s *cartesiaStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.cancel()

	s.writeMu.Lock()
	_ = s.conn.WriteMessage(websocket.TextMessage, []byte("done"))
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()

	return s.conn.Close()
}
