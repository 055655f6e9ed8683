// Package media terminates the telephony provider's media stream
// websocket and wires its lifecycle events into a call session.
package media

import (
	"encoding/json"
	"fmt"
)

// Inbound stream message, one JSON object per websocket text frame. The
// event field discriminates the payload.
type streamMessage struct {
	Event          string        `json:"event"`
	SequenceNumber string        `json:"sequenceNumber,omitempty"`
	StreamSID      string        `json:"streamSid,omitempty"`
	Start          *startPayload `json:"start,omitempty"`
	Media          *mediaPayload `json:"media,omitempty"`
	Stop           *stopPayload  `json:"stop,omitempty"`
	Mark           *markPayload  `json:"mark,omitempty"`
}

type startPayload struct {
	StreamSID        string            `json:"streamSid"`
	CallSID          string            `json:"callSid"`
	AccountSID       string            `json:"accountSid"`
	Tracks           []string          `json:"tracks"`
	MediaFormat      mediaFormat       `json:"mediaFormat"`
	CustomParameters map[string]string `json:"customParameters"`
}

type mediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

type mediaPayload struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

type stopPayload struct {
	AccountSID string `json:"accountSid"`
	CallSID    string `json:"callSid"`
}

type markPayload struct {
	Name string `json:"name"`
}

// Outbound media frame carrying synthesized audio back to the caller.
type outboundMedia struct {
	Event     string        `json:"event"`
	StreamSID string        `json:"streamSid"`
	Media     outboundAudio `json:"media"`
}

type outboundAudio struct {
	Payload string `json:"payload"`
}

// DecodeError carries a stable code alongside the parse failure.
type DecodeError struct {
	Code string
	Msg  string
}

func (e *DecodeError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Msg) }

func decodeStreamMessage(data []byte) (*streamMessage, error) {
	var msg streamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, &DecodeError{Code: "bad_json", Msg: err.Error()}
	}
	if msg.Event == "" {
		return nil, &DecodeError{Code: "missing_event", Msg: "stream message has no event"}
	}
	switch msg.Event {
	case "start":
		if msg.Start == nil || msg.Start.StreamSID == "" {
			return nil, &DecodeError{Code: "bad_start", Msg: "start message has no stream sid"}
		}
	case "media":
		if msg.Media == nil {
			return nil, &DecodeError{Code: "bad_media", Msg: "media message has no payload"}
		}
	}
	return &msg, nil
}

func encodeOutboundMedia(streamSID, payloadB64 string) ([]byte, error) {
	return json.Marshal(outboundMedia{
		Event:     "media",
		StreamSID: streamSID,
		Media:     outboundAudio{Payload: payloadB64},
	})
}
