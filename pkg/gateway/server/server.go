// Package server assembles the gateway's HTTP surface.
package server

import (
	"log/slog"
	"net/http"

	"github.com/quietline/quietline/pkg/gateway/config"
	"github.com/quietline/quietline/pkg/gateway/handlers"
	"github.com/quietline/quietline/pkg/gateway/media"
	"github.com/quietline/quietline/pkg/gateway/mw"
	"github.com/quietline/quietline/pkg/screen/engine"
	"github.com/quietline/quietline/pkg/screen/finalize"
	"github.com/quietline/quietline/pkg/screen/registry"
	"github.com/quietline/quietline/pkg/voice/stt"
)

// Adapters bundles the external collaborators the gateway screens calls
// with. Any of them may be nil; the affected path degrades to fallbacks.
type Adapters struct {
	STT       stt.Provider
	Assistant engine.Assistant
	Synth     engine.Synthesizer
	Finalizer *finalize.Finalizer
}

type Server struct {
	cfg      config.Config
	logger   *slog.Logger
	mux      *http.ServeMux
	registry *registry.Registry
}

func New(cfg config.Config, logger *slog.Logger, reg *registry.Registry, adapters Adapters) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = registry.New()
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		mux:      http.NewServeMux(),
		registry: reg,
	}

	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: cfg, Registry: reg})
	s.mux.Handle("/twilio/voice", handlers.VoiceWebhookHandler{Config: cfg, Logger: logger})
	s.mux.Handle("/media", &media.Handler{
		Config:    cfg,
		Logger:    logger,
		Registry:  reg,
		STT:       adapters.STT,
		Assistant: adapters.Assistant,
		Synth:     adapters.Synth,
		Finalizer: adapters.Finalizer,
	})

	return s
}

func (s *Server) Registry() *registry.Registry { return s.registry }

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
