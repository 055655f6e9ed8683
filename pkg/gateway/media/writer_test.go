package media

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeWS struct {
	mu       sync.Mutex
	messages [][]byte
	controls []int
	closed   bool
}

func (f *fakeWS) SetWriteDeadline(t time.Time) error { return nil }

func (f *fakeWS) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, append([]byte(nil), data...))
	return nil
}

func (f *fakeWS) WriteControl(messageType int, data []byte, deadline time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, messageType)
	return nil
}

func (f *fakeWS) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestOutboundWriter_WritesFramesInOrder(t *testing.T) {
	ws := &fakeWS{}
	frames := make(chan []byte, 4)
	ctx, cancel := context.WithCancel(context.Background())
	w := &outboundWriter{ws: ws, ctx: ctx, frames: frames, pingInterval: time.Hour, writeTimeout: time.Second}

	done := make(chan error, 1)
	go func() { done <- w.Run() }()

	frames <- []byte("one")
	frames <- []byte("two")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ws.mu.Lock()
		n := len(ws.messages)
		ws.mu.Unlock()
		if n == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	if len(ws.messages) != 2 || string(ws.messages[0]) != "one" || string(ws.messages[1]) != "two" {
		t.Fatalf("messages=%q", ws.messages)
	}
	if !ws.closed {
		t.Fatalf("socket must be closed on context cancel")
	}
	// A close control frame goes out before Close.
	found := false
	for _, mt := range ws.controls {
		if mt == websocket.CloseMessage {
			found = true
		}
	}
	if !found {
		t.Fatalf("no close frame sent, controls=%v", ws.controls)
	}
}

func TestOutboundWriter_StopsWhenFramesClosed(t *testing.T) {
	ws := &fakeWS{}
	frames := make(chan []byte)
	w := &outboundWriter{ws: ws, ctx: context.Background(), frames: frames, pingInterval: time.Hour}

	done := make(chan error, 1)
	go func() { done <- w.Run() }()
	close(frames)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("writer did not stop on channel close")
	}
}

func TestOutboundWriter_Pings(t *testing.T) {
	ws := &fakeWS{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := &outboundWriter{ws: ws, ctx: ctx, frames: make(chan []byte), pingInterval: 10 * time.Millisecond}

	go func() { _ = w.Run() }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ws.mu.Lock()
		var pings int
		for _, mt := range ws.controls {
			if mt == websocket.PingMessage {
				pings++
			}
		}
		ws.mu.Unlock()
		if pings >= 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no pings observed")
}
