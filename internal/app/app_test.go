package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dermalive/dermalive/internal/app"
	"github.com/dermalive/dermalive/internal/config"
	capmock "github.com/dermalive/dermalive/pkg/capture/mock"
	"github.com/dermalive/dermalive/pkg/conversation"
	livemock "github.com/dermalive/dermalive/pkg/provider/live/mock"
)

type stubCompleter struct{ summary string }

func (s *stubCompleter) Complete(context.Context, string, string) (string, error) {
	return s.summary, nil
}

type fixture struct {
	app      *app.App
	srv      *httptest.Server
	provider *livemock.Provider
	device   *capmock.Device
	store    *conversation.MemStore
}

func newFixture(t *testing.T, cfg *config.Config, extra ...app.Option) *fixture {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{
			Server:    config.ServerConfig{ListenAddr: ":0"},
			Live:      config.ProviderEntry{Name: "gemini-live", APIKey: "test"},
			Assistant: config.AssistantConfig{Voice: "Aoede"},
		}
	}

	f := &fixture{
		provider: &livemock.Provider{},
		device:   &capmock.Device{},
		store:    conversation.NewMemStore(),
	}
	opts := append([]app.Option{
		app.WithLiveProvider(f.provider),
		app.WithDevice(f.device),
		app.WithStore(f.store),
	}, extra...)

	a, err := app.New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	f.app = a
	f.srv = httptest.NewServer(a.Handler())

	t.Cleanup(func() {
		f.srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return f
}

func (f *fixture) post(t *testing.T, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp, decodeBody(t, resp)
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestSessionStart(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	resp, body := f.post(t, "/v1/session/start", `{
		"conversation_id": "conv-1",
		"profile": {"skin_type": "dry", "concerns": ["redness"]},
		"medical_context": "retinoid prescription"
	}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["status"] != "started" {
		t.Errorf("status field = %v", body["status"])
	}

	if f.provider.SessionCount() != 1 {
		t.Fatalf("sessions = %d, want 1", f.provider.SessionCount())
	}
	cfg := f.provider.LastConfig()
	if cfg.Voice != "Aoede" {
		t.Errorf("voice = %q, want configured default Aoede", cfg.Voice)
	}
	if !strings.Contains(cfg.Instructions, "dry") {
		t.Errorf("instructions missing profile tailoring: %q", cfg.Instructions)
	}
	if !strings.Contains(cfg.Instructions, "retinoid prescription") {
		t.Errorf("instructions missing medical context: %q", cfg.Instructions)
	}
}

func TestSessionStart_RequiresConversationID(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	resp, body := f.post(t, "/v1/session/start", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (%v)", resp.StatusCode, body)
	}
}

func TestSessionStart_VoiceOverride(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	f.post(t, "/v1/session/start", `{"conversation_id": "conv-1", "voice": "Puck"}`)
	if got := f.provider.LastConfig().Voice; got != "Puck" {
		t.Errorf("voice = %q, want Puck", got)
	}
}

func TestSessionStopAndStatus(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	f.post(t, "/v1/session/start", `{"conversation_id": "conv-1"}`)
	sess := f.provider.LastSession()

	_, status := f.get(t, "/v1/session")
	if status["active"] != true {
		t.Errorf("active = %v, want true", status["active"])
	}

	resp, _ := f.post(t, "/v1/session/stop", `{}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status = %d", resp.StatusCode)
	}
	if !sess.Closed() {
		t.Error("session should be closed after stop")
	}

	_, status = f.get(t, "/v1/session")
	if status["active"] != false {
		t.Errorf("active = %v, want false after stop", status["active"])
	}
	if status["capture_state"] != "idle" {
		t.Errorf("capture_state = %v, want idle", status["capture_state"])
	}
}

func TestMessagesEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	ctx := context.Background()
	_ = f.store.Append(ctx, "conv-9", conversation.Message{Role: conversation.RoleUser, Text: "hi"})
	_ = f.store.Append(ctx, "conv-9", conversation.Message{Role: conversation.RoleAssistant, Text: "hello"})

	resp, body := f.get(t, "/v1/conversations/conv-9/messages")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	msgs := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	first := msgs[0].(map[string]any)
	if first["role"] != "user" || first["text"] != "hi" {
		t.Errorf("first message = %v", first)
	}
}

func TestRecapEndpoint(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{ListenAddr: ":0"},
		Live:   config.ProviderEntry{Name: "gemini-live", APIKey: "test"},
		Recap: config.RecapConfig{
			Enabled:  true,
			Provider: config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini"},
		},
	}
	f := newFixture(t, cfg, app.WithRecapCompleter(&stubCompleter{summary: "Dry skin; use ceramides."}))

	_ = f.store.Append(context.Background(), "conv-2", conversation.Message{Role: conversation.RoleUser, Text: "dry skin"})

	recapResp, err := http.Post(f.srv.URL+"/v1/conversations/conv-2/recap", "application/json", nil)
	if err != nil {
		t.Fatalf("POST recap: %v", err)
	}
	got := decodeBody(t, recapResp)
	if recapResp.StatusCode != http.StatusOK {
		t.Fatalf("recap status = %d (%v)", recapResp.StatusCode, got)
	}
	if got["summary"] != "Dry skin; use ceramides." {
		t.Errorf("summary = %v", got["summary"])
	}
}

func TestRecapDisabled(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	resp, err := http.Post(f.srv.URL+"/v1/conversations/conv-1/recap", "application/json", nil)
	if err != nil {
		t.Fatalf("POST recap: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when recap is disabled", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, body := f.get(t, path)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d (%v)", path, resp.StatusCode, body)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	resp, err := http.Get(f.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
