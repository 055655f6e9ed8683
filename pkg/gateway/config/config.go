// Package config loads the gateway configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// PublicHost is the externally reachable host used when building the
	// media stream URL handed to the telephony provider in TwiML.
	PublicHost string

	// Provider credentials. Any of these may be empty; the affected
	// adapter then fails per call and the engine speaks fallbacks.
	OpenAIAPIKey     string
	CartesiaAPIKey   string
	ElevenLabsAPIKey string

	// Voice selection for synthesis.
	VoiceID string

	// Screening instructions prepended to every model request.
	Instructions string

	// Firestore collections.
	CallsCollection string
	UsersCollection string
	PersistDisabled bool

	// Engine tuning.
	MaxContextTurns    int
	MaxContextChars    int
	MaxSpokenChars     int
	TurnTimeout        time.Duration
	ShortenTimeout     time.Duration
	SynthesisTimeout   time.Duration
	FinalizeTimeout    time.Duration
	MaxSessionDuration time.Duration
	AudioChunkBytes    int

	// Transport limits.
	MaxAudioFrameBytes  int
	MaxJSONMessageBytes int64
	WSWriteTimeout      time.Duration
	WSReadTimeout       time.Duration
	WSPingInterval      time.Duration

	// Operational defaults.
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("QUIETLINE_ADDR", ":8080"),
		PublicHost:          os.Getenv("QUIETLINE_PUBLIC_HOST"),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		CartesiaAPIKey:      os.Getenv("CARTESIA_API_KEY"),
		ElevenLabsAPIKey:    os.Getenv("ELEVENLABS_API_KEY"),
		VoiceID:             os.Getenv("QUIETLINE_VOICE_ID"),
		Instructions:        os.Getenv("QUIETLINE_INSTRUCTIONS"),
		CallsCollection:     envOr("QUIETLINE_CALLS_COLLECTION", "calls"),
		UsersCollection:     envOr("QUIETLINE_USERS_COLLECTION", "users"),
		PersistDisabled:     envBoolOr("QUIETLINE_PERSIST_DISABLED", false),
		MaxContextTurns:     envIntOr("QUIETLINE_MAX_CONTEXT_TURNS", 6),
		MaxContextChars:     envIntOr("QUIETLINE_MAX_CONTEXT_CHARS", 2000),
		MaxSpokenChars:      envIntOr("QUIETLINE_MAX_SPOKEN_CHARS", 600),
		TurnTimeout:         envDurationOr("QUIETLINE_TURN_TIMEOUT", 10*time.Second),
		ShortenTimeout:      envDurationOr("QUIETLINE_SHORTEN_TIMEOUT", 5*time.Second),
		SynthesisTimeout:    envDurationOr("QUIETLINE_SYNTHESIS_TIMEOUT", 10*time.Second),
		FinalizeTimeout:     envDurationOr("QUIETLINE_FINALIZE_TIMEOUT", 30*time.Second),
		MaxSessionDuration:  envDurationOr("QUIETLINE_MAX_SESSION_DURATION", 10*time.Minute),
		AudioChunkBytes:     envIntOr("QUIETLINE_AUDIO_CHUNK_BYTES", 3200),
		MaxAudioFrameBytes:  envIntOr("QUIETLINE_MAX_AUDIO_FRAME_BYTES", 8192),
		MaxJSONMessageBytes: envInt64Or("QUIETLINE_MAX_JSON_MESSAGE_BYTES", 64*1024),
		WSWriteTimeout:      envDurationOr("QUIETLINE_WS_WRITE_TIMEOUT", 5*time.Second),
		WSReadTimeout:       envDurationOr("QUIETLINE_WS_READ_TIMEOUT", 90*time.Second),
		WSPingInterval:      envDurationOr("QUIETLINE_WS_PING_INTERVAL", 20*time.Second),
		ReadHeaderTimeout:   envDurationOr("QUIETLINE_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod: envDurationOr("QUIETLINE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	if cfg.MaxContextTurns <= 0 {
		return Config{}, fmt.Errorf("QUIETLINE_MAX_CONTEXT_TURNS must be > 0")
	}
	if cfg.MaxContextChars <= 0 {
		return Config{}, fmt.Errorf("QUIETLINE_MAX_CONTEXT_CHARS must be > 0")
	}
	if cfg.MaxSpokenChars <= 0 {
		return Config{}, fmt.Errorf("QUIETLINE_MAX_SPOKEN_CHARS must be > 0")
	}
	if cfg.TurnTimeout <= 0 {
		return Config{}, fmt.Errorf("QUIETLINE_TURN_TIMEOUT must be > 0")
	}
	if cfg.SynthesisTimeout <= 0 {
		return Config{}, fmt.Errorf("QUIETLINE_SYNTHESIS_TIMEOUT must be > 0")
	}
	if cfg.FinalizeTimeout <= 0 {
		return Config{}, fmt.Errorf("QUIETLINE_FINALIZE_TIMEOUT must be > 0")
	}
	if cfg.MaxSessionDuration <= 0 {
		return Config{}, fmt.Errorf("QUIETLINE_MAX_SESSION_DURATION must be > 0")
	}
	if cfg.AudioChunkBytes <= 0 {
		return Config{}, fmt.Errorf("QUIETLINE_AUDIO_CHUNK_BYTES must be > 0")
	}
	if cfg.MaxAudioFrameBytes <= 0 {
		return Config{}, fmt.Errorf("QUIETLINE_MAX_AUDIO_FRAME_BYTES must be > 0")
	}
	if cfg.MaxJSONMessageBytes <= 0 {
		return Config{}, fmt.Errorf("QUIETLINE_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("QUIETLINE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("QUIETLINE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("QUIETLINE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envInt64Or(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDurationOr(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
