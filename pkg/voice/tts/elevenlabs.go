package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	elevenLabsBaseURL = "https://api.elevenlabs.io/v1"
	defaultVoiceID    = "21m00Tcm4TlvDq8ikWAM"
	defaultModelID    = "eleven_turbo_v2_5"
)

// ElevenLabs implements Provider over the ElevenLabs HTTP API.
type ElevenLabs struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewElevenLabs(apiKey string) *ElevenLabs {
	return &ElevenLabs{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    elevenLabsBaseURL,
		httpClient: &http.Client{},
	}
}

func NewElevenLabsWithClient(apiKey string, client *http.Client) *ElevenLabs {
	if client == nil {
		client = &http.Client{}
	}
	return &ElevenLabs{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    elevenLabsBaseURL,
		httpClient: client,
	}
}

// WithBaseURL overrides the API endpoint, mainly for tests.
func (e *ElevenLabs) WithBaseURL(base string) *ElevenLabs {
	base = strings.TrimSpace(base)
	if base != "" {
		e.baseURL = strings.TrimSuffix(base, "/")
	}
	return e
}

type synthesisRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

type voiceSettings struct {
	Speed float64 `json:"speed,omitempty"`
}

// Synthesize renders text as audio bytes. The default output format is
// μ-law at 8 kHz, which telephony media streams play back directly.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string, opts Options) ([]byte, error) {
	voice := opts.Voice
	if voice == "" {
		voice = defaultVoiceID
	}
	format := outputFormat(opts)

	body := synthesisRequest{Text: text, ModelID: defaultModelID}
	if opts.Speed > 0 {
		body.VoiceSettings = &voiceSettings{Speed: opts.Speed}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode synthesis request: %w", err)
	}

	reqURL := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s",
		e.baseURL, url.PathEscape(voice), url.QueryEscape(format))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create synthesis request: %w", err)
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("elevenlabs error %d: %s", resp.StatusCode, string(detail))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read synthesis response: %w", err)
	}
	return audio, nil
}

func outputFormat(opts Options) string {
	if opts.Format != "" {
		if opts.SampleRate > 0 {
			return fmt.Sprintf("%s_%d", opts.Format, opts.SampleRate)
		}
		return opts.Format
	}
	return "ulaw_8000"
}
