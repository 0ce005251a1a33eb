package config_test

import (
	"strings"
	"testing"

	"github.com/dermalive/dermalive/internal/config"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: info
live:
  name: gemini-live
  api_key: test-key
  model: gemini-2.0-flash-exp
assistant:
  voice: Aoede
conversation:
  postgres_dsn: "postgres://localhost/dermalive"
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Live.Model != "gemini-2.0-flash-exp" {
		t.Errorf("live.model = %q", cfg.Live.Model)
	}
	if cfg.Assistant.Voice != "Aoede" {
		t.Errorf("assistant.voice = %q", cfg.Assistant.Voice)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	yaml := validYAML + "\nbogus_section:\n  key: value\n"
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
live:
  name: gemini-live
  api_key: k
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_LiveProviderRequired(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: info
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing live provider, got nil")
	}
	if !strings.Contains(err.Error(), "live.name") {
		t.Errorf("error should mention live.name, got: %v", err)
	}
}

func TestValidate_LiveAPIKeyRequired(t *testing.T) {
	t.Parallel()
	yaml := `
live:
  name: gemini-live
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing API key, got nil")
	}
	if !strings.Contains(err.Error(), "api_key") {
		t.Errorf("error should mention api_key, got: %v", err)
	}
}

func TestValidate_RecapRequiresProvider(t *testing.T) {
	t.Parallel()
	yaml := `
live:
  name: gemini-live
  api_key: k
recap:
  enabled: true
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for recap without provider, got nil")
	}
	if !strings.Contains(err.Error(), "recap.provider.name") {
		t.Errorf("error should mention recap.provider.name, got: %v", err)
	}
}

func TestValidate_TLSRequiresBothFiles(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  tls:
    cert_file: /etc/dermalive/cert.pem
live:
  name: gemini-live
  api_key: k
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing key_file, got nil")
	}
	if !strings.Contains(err.Error(), "key_file") {
		t.Errorf("error should mention key_file, got: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load("/nonexistent/dermalive.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
