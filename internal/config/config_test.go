package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if len(cfg.Sources.FastDomains) != 1 || cfg.Sources.FastDomains[0] != "scatch.ssu.ac.kr" {
		t.Errorf("unexpected fast domains: %v", cfg.Sources.FastDomains)
	}
	if cfg.Fetch.MaxRetries != 2 {
		t.Errorf("expected 2 retries, got %d", cfg.Fetch.MaxRetries)
	}
	if cfg.Fetch.FastRetryDelay != 500*time.Millisecond {
		t.Errorf("expected fast delay 500ms, got %v", cfg.Fetch.FastRetryDelay)
	}
	if cfg.Fetch.GroupedRetryDelay != time.Second {
		t.Errorf("expected grouped delay 1s, got %v", cfg.Fetch.GroupedRetryDelay)
	}
	if cfg.Processing.Workers != 20 {
		t.Errorf("expected 20 processing workers, got %d", cfg.Processing.Workers)
	}
	if cfg.Summarization.Provider != "gemini" {
		t.Errorf("expected provider 'gemini', got %q", cfg.Summarization.Provider)
	}
	if cfg.Distribution.SMTP.Port != 465 {
		t.Errorf("expected smtp port 465, got %d", cfg.Distribution.SMTP.Port)
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("default config should validate, got %v", errs)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
summarization:
  provider: openai
fetch:
  grouped_retry_delay: 3s
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Summarization.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", cfg.Summarization.Provider)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Fetch.GroupedRetryDelay != 3*time.Second {
		t.Errorf("expected grouped delay 3s, got %v", cfg.Fetch.GroupedRetryDelay)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Fetch.FastRetryDelay != 500*time.Millisecond {
		t.Errorf("expected default fast delay, got %v", cfg.Fetch.FastRetryDelay)
	}
	if cfg.Summarization.OllamaURL != "http://localhost:11434" {
		t.Errorf("expected default ollama_url, got %q", cfg.Summarization.OllamaURL)
	}
}

func TestLoadConfigFileWithDotEnv(t *testing.T) {
	t.Setenv("EMAIL_PASSWORD", "")
	os.Unsetenv("EMAIL_PASSWORD")
	t.Setenv("GOOGLE_API_KEY", "from-process")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	dotenv := "EMAIL_PASSWORD=app-secret\nGOOGLE_API_KEY=from-file\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(dotenv), 0o600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Secrets.EmailPassword != "app-secret" {
		t.Errorf("expected password from .env, got %q", cfg.Secrets.EmailPassword)
	}
	if cfg.Secrets.GoogleAPIKey != "from-process" {
		t.Errorf("process environment should win over .env, got %q", cfg.Secrets.GoogleAPIKey)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := parse([]byte(`
processing:
  workers: 0
summarization:
  provider: bard
storage:
  driver: mongo
schedule:
  time: "25:99"
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	fields := map[string]bool{}
	for _, e := range cfg.Validate() {
		fields[e.Field] = true
	}
	for _, want := range []string{"processing.workers", "summarization.provider", "storage.driver", "schedule.time"} {
		if !fields[want] {
			t.Errorf("expected validation error for %s, got %v", want, fields)
		}
	}
}

func TestIsFastDomain(t *testing.T) {
	cfg, _ := parse(nil)
	if !cfg.IsFastDomain("scatch.ssu.ac.kr") {
		t.Error("expected default fast domain to match")
	}
	if cfg.IsFastDomain("www.ssu.ac.kr") {
		t.Error("expected other host not to match")
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
}
