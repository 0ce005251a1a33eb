package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dermalive/dermalive/internal/observe"
	"github.com/dermalive/dermalive/internal/prompt"
	"github.com/dermalive/dermalive/internal/voice"
	"github.com/dermalive/dermalive/pkg/capture"
	"github.com/dermalive/dermalive/pkg/conversation"
)

// Handler returns the control-plane HTTP handler: session lifecycle,
// conversation history, recaps, health probes, and Prometheus metrics.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	a.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/session/start", a.handleSessionStart)
	mux.HandleFunc("POST /v1/session/stop", a.handleSessionStop)
	mux.HandleFunc("GET /v1/session", a.handleSessionStatus)
	mux.HandleFunc("GET /v1/conversations/{id}/messages", a.handleMessages)
	mux.HandleFunc("POST /v1/conversations/{id}/recap", a.handleRecap)

	return mux
}

// startRequest is the body of POST /v1/session/start.
type startRequest struct {
	ConversationID string `json:"conversation_id"`

	// Voice overrides the configured assistant voice for this session.
	Voice string `json:"voice"`

	Profile struct {
		SkinType string   `json:"skin_type"`
		AgeRange string   `json:"age_range"`
		Concerns []string `json:"concerns"`
	} `json:"profile"`

	// MedicalContext is the user's self-reported medical background.
	MedicalContext string `json:"medical_context"`
}

func (a *App) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	ctx, span := observe.StartSpan(r.Context(), "session.start")
	defer span.End()

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ConversationID == "" {
		writeError(w, http.StatusBadRequest, "conversation_id is required")
		return
	}

	voiceName := req.Voice
	if voiceName == "" {
		voiceName = a.cfg.Assistant.Voice
	}

	err := a.manager.Start(ctx, voice.StartOptions{
		ConversationID: req.ConversationID,
		Voice:          voiceName,
		Prompt: prompt.Context{
			Profile: prompt.Profile{
				SkinType: req.Profile.SkinType,
				AgeRange: req.Profile.AgeRange,
				Concerns: req.Profile.Concerns,
			},
			MedicalContext: req.MedicalContext,
		},
	})
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		writeError(w, http.StatusServiceUnavailable, "microphone unavailable: "+err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, "session start failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "started",
		"conversation_id": req.ConversationID,
		"listening":       a.pipeline.Listening(),
	})
}

func (a *App) handleSessionStop(w http.ResponseWriter, _ *http.Request) {
	a.manager.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"status": "stopped"})
}

func (a *App) handleSessionStatus(w http.ResponseWriter, _ *http.Request) {
	stats := a.pipeline.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"active":           a.manager.Active(),
		"listening":        a.pipeline.Listening(),
		"capture_state":    a.pipeline.State().String(),
		"frames_forwarded": stats.Forwarded,
		"frames_dropped":   stats.Dropped,
		"playback_active":  a.sched.ActiveCount(),
	})
}

// messageJSON is the wire form of one conversation log entry.
type messageJSON struct {
	Role      string                  `json:"role"`
	Text      string                  `json:"text"`
	Timestamp time.Time               `json:"timestamp"`
	Citations []conversation.Citation `json:"citations,omitempty"`
}

func (a *App) handleMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	msgs, err := a.store.Messages(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load messages: "+err.Error())
		return
	}

	out := make([]messageJSON, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageJSON{
			Role:      string(m.Role),
			Text:      m.Text,
			Timestamp: m.Timestamp,
			Citations: m.Citations,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

func (a *App) handleRecap(w http.ResponseWriter, r *http.Request) {
	if a.recaps == nil {
		writeError(w, http.StatusNotFound, "recap generation is not enabled")
		return
	}

	ctx, span := observe.StartSpan(r.Context(), "recap.generate")
	defer span.End()

	id := r.PathValue("id")
	summary, err := a.recaps.Generate(ctx, id)
	if err != nil {
		writeError(w, http.StatusBadGateway, "generate recap: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
