package media

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeStreamMessage(t *testing.T) {
	raw := `{
		"event": "start",
		"sequenceNumber": "1",
		"start": {
			"streamSid": "MZ123",
			"callSid": "CA456",
			"tracks": ["inbound"],
			"mediaFormat": {"encoding": "audio/x-mulaw", "sampleRate": 8000, "channels": 1},
			"customParameters": {"from": "+15550100", "userId": "user-1"}
		}
	}`
	msg, err := decodeStreamMessage([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Event != "start" || msg.Start.StreamSID != "MZ123" || msg.Start.CallSID != "CA456" {
		t.Fatalf("msg=%+v start=%+v", msg, msg.Start)
	}
	if msg.Start.CustomParameters["from"] != "+15550100" || msg.Start.CustomParameters["userId"] != "user-1" {
		t.Fatalf("custom parameters=%v", msg.Start.CustomParameters)
	}
	if msg.Start.MediaFormat.SampleRate != 8000 {
		t.Fatalf("media format=%+v", msg.Start.MediaFormat)
	}
}

func TestDecodeStreamMessage_Media(t *testing.T) {
	raw := `{"event":"media","streamSid":"MZ123","media":{"track":"inbound","payload":"AAAA"}}`
	msg, err := decodeStreamMessage([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Media.Payload != "AAAA" {
		t.Fatalf("payload=%q", msg.Media.Payload)
	}
}

func TestDecodeStreamMessage_Errors(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		code string
	}{
		{"not json", `{event: start}`, "bad_json"},
		{"no event", `{"streamSid":"MZ123"}`, "missing_event"},
		{"start without sid", `{"event":"start","start":{"callSid":"CA1"}}`, "bad_start"},
		{"start without body", `{"event":"start"}`, "bad_start"},
		{"media without body", `{"event":"media","streamSid":"MZ123"}`, "bad_media"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decodeStreamMessage([]byte(tc.raw))
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("err=%v, want DecodeError", err)
			}
			if de.Code != tc.code {
				t.Fatalf("code=%q, want %q", de.Code, tc.code)
			}
		})
	}
}

func TestDecodeStreamMessage_UnknownEventPasses(t *testing.T) {
	msg, err := decodeStreamMessage([]byte(`{"event":"dtmf","streamSid":"MZ123"}`))
	if err != nil {
		t.Fatalf("unknown events must decode: %v", err)
	}
	if msg.Event != "dtmf" {
		t.Fatalf("event=%q", msg.Event)
	}
}

func TestEncodeOutboundMedia(t *testing.T) {
	data, err := encodeOutboundMedia("MZ123", "c29tZSBhdWRpbw==")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if out["event"] != "media" || out["streamSid"] != "MZ123" {
		t.Fatalf("frame=%v", out)
	}
	media, ok := out["media"].(map[string]any)
	if !ok || media["payload"] != "c29tZSBhdWRpbw==" {
		t.Fatalf("media=%v", out["media"])
	}
}
