// Package handlers holds the gateway's plain HTTP endpoints.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/twilio/twilio-go/twiml"

	"github.com/quietline/quietline/pkg/gateway/config"
	"github.com/quietline/quietline/pkg/screen/registry"
)

type HealthHandler struct{}

func (HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type ReadyHandler struct {
	Config   config.Config
	Registry *registry.Registry
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":          "ok",
		"active_sessions": h.Registry.Count(),
	})
}

// VoiceWebhookHandler answers the telephony provider's inbound-call
// webhook with a TwiML document that bridges the call onto the media
// stream endpoint.
type VoiceWebhookHandler struct {
	Config config.Config
	Logger *slog.Logger
}

func (h VoiceWebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	host := h.Config.PublicHost
	if host == "" {
		host = r.Host
	}
	from := r.PostFormValue("From")
	userID := r.URL.Query().Get("user")

	stream := &twiml.VoiceStream{
		Url: "wss://" + host + "/media",
		InnerElements: []twiml.Element{
			&twiml.VoiceParameter{Name: "from", Value: from},
			&twiml.VoiceParameter{Name: "userId", Value: userID},
		},
	}
	connect := &twiml.VoiceConnect{InnerElements: []twiml.Element{stream}}

	doc, err := twiml.Voice([]twiml.Element{connect})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("twiml render failed", "error", err)
		}
		http.Error(w, "cannot handle call", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(doc))
}
