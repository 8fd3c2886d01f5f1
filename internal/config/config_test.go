package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feedstream.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestSetDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	checks := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"Server.Addr", cfg.Server.Addr, ":8000"},
		{"Server.MaxBatch", cfg.Server.MaxBatch, 100},
		{"Aggregator.Concurrency", cfg.Aggregator.Concurrency, 5},
		{"Aggregator.BatchDeadline", cfg.Aggregator.BatchDeadline, 5 * time.Second},
		{"Aggregator.ProbeTimeout", cfg.Aggregator.ProbeTimeout, 3 * time.Second},
		{"Aggregator.FetchTimeout", cfg.Aggregator.FetchTimeout, 6 * time.Second},
		{"Aggregator.ItemsPerSource", cfg.Aggregator.ItemsPerSource, 5},
		{"Aggregator.SummaryMax", cfg.Aggregator.SummaryMax, 350},
		{"Cache.LocationCapacity", cfg.Cache.LocationCapacity, 200},
		{"Cache.LocationTTL", cfg.Cache.LocationTTL, time.Hour},
		{"Cache.ItemsCapacity", cfg.Cache.ItemsCapacity, 500},
		{"Cache.ItemsTTL", cfg.Cache.ItemsTTL, 15 * time.Minute},
		{"HTTP.UserAgent", cfg.HTTP.UserAgent, DefaultUserAgent},
		{"LLM.Model", cfg.LLM.Model, "gpt-3.5-turbo"},
		{"Recommend.MinCached", cfg.Recommend.MinCached, 2},
		{"Log.Level", cfg.Log.Level, "info"},
	}

	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, c.got, c.want)
		}
	}

	if !cfg.Aggregator.ReportAbandonedEnabled() {
		t.Error("report_abandoned should default to true")
	}
	if !cfg.HTTP.InsecureEnabled() {
		t.Error("insecure_skip_verify should default to true")
	}
}

func TestSetDefaults_DoesNotOverride(t *testing.T) {
	off := false
	cfg := &Config{
		Aggregator: AggregatorConfig{Concurrency: 25, BatchDeadline: 2 * time.Second, ReportAbandoned: &off},
		Cache:      CacheConfig{ItemsTTL: time.Minute},
		HTTP:       HTTPConfig{UserAgent: "custom", InsecureSkipVerify: &off},
		Log:        LogConfig{Level: "debug"},
	}
	setDefaults(cfg)

	if cfg.Aggregator.Concurrency != 25 {
		t.Errorf("Concurrency should not be overridden: got %d", cfg.Aggregator.Concurrency)
	}
	if cfg.Aggregator.BatchDeadline != 2*time.Second {
		t.Errorf("BatchDeadline should not be overridden: got %v", cfg.Aggregator.BatchDeadline)
	}
	if cfg.Aggregator.ReportAbandonedEnabled() {
		t.Error("explicit report_abandoned=false should be kept")
	}
	if cfg.Cache.ItemsTTL != time.Minute {
		t.Errorf("ItemsTTL should not be overridden: got %v", cfg.Cache.ItemsTTL)
	}
	if cfg.HTTP.UserAgent != "custom" {
		t.Errorf("UserAgent should not be overridden: got %s", cfg.HTTP.UserAgent)
	}
	if cfg.HTTP.InsecureEnabled() {
		t.Error("explicit insecure_skip_verify=false should be kept")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level should not be overridden: got %s", cfg.Log.Level)
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
  cors_origins: ["https://app.example.com"]
aggregator:
  concurrency: 10
  batch_deadline: 8s
  probe_timeout: 1500ms
  report_abandoned: false
cache:
  items_ttl: 5m
llm:
  api_key: test-key
  model: gpt-4o-mini
  fallbacks:
    - name: backup
      api_url: https://backup.example.com/v1
      api_key: " backup-key "
      model: small
auth:
  url: https://id.example.com/
  admin_emails: ["admin@example.com"]
log:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr: got %q", cfg.Server.Addr)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "https://app.example.com" {
		t.Errorf("Server.CORSOrigins: got %v", cfg.Server.CORSOrigins)
	}
	if cfg.Aggregator.Concurrency != 10 {
		t.Errorf("Aggregator.Concurrency: got %d, want 10", cfg.Aggregator.Concurrency)
	}
	if cfg.Aggregator.BatchDeadline != 8*time.Second {
		t.Errorf("Aggregator.BatchDeadline: got %v, want 8s", cfg.Aggregator.BatchDeadline)
	}
	if cfg.Aggregator.ProbeTimeout != 1500*time.Millisecond {
		t.Errorf("Aggregator.ProbeTimeout: got %v, want 1.5s", cfg.Aggregator.ProbeTimeout)
	}
	if cfg.Aggregator.ReportAbandonedEnabled() {
		t.Error("report_abandoned: false should be honoured")
	}
	if cfg.Cache.ItemsTTL != 5*time.Minute {
		t.Errorf("Cache.ItemsTTL: got %v", cfg.Cache.ItemsTTL)
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("LLM.Model: got %q", cfg.LLM.Model)
	}
	if len(cfg.LLM.Fallbacks) != 1 || cfg.LLM.Fallbacks[0].APIKey != "backup-key" {
		t.Errorf("LLM.Fallbacks: got %+v", cfg.LLM.Fallbacks)
	}
	if cfg.Auth.URL != "https://id.example.com" {
		t.Errorf("Auth.URL should drop the trailing slash, got %q", cfg.Auth.URL)
	}
	// 未设置的字段应使用默认值
	if cfg.Cache.LocationTTL != time.Hour {
		t.Errorf("Cache.LocationTTL should default to 1h, got %v", cfg.Cache.LocationTTL)
	}
	if cfg.Aggregator.FetchTimeout != 6*time.Second {
		t.Errorf("Aggregator.FetchTimeout should default to 6s, got %v", cfg.Aggregator.FetchTimeout)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_API_KEY", "secret-from-env")
	t.Setenv("TEST_AUTH_KEY", "  auth-secret ")

	path := writeConfig(t, `
llm:
  api_key: "${TEST_API_KEY}"
auth:
  key: "${TEST_AUTH_KEY}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.APIKey != "secret-from-env" {
		t.Errorf("expected env var expansion, got %q", cfg.LLM.APIKey)
	}
	if cfg.Auth.Key != "auth-secret" {
		t.Errorf("expected trimmed auth key, got %q", cfg.Auth.Key)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/path/feedstream.yaml"); err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "aggregator: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestLoad_NegativeConcurrencyRejected(t *testing.T) {
	path := writeConfig(t, "aggregator:\n  concurrency: -1\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for negative concurrency")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Aggregator.Concurrency != 5 {
		t.Errorf("Default concurrency: got %d", cfg.Aggregator.Concurrency)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-example")
	cfg, err := Load(filepath.Join("..", "..", "configs", "feedstream.yaml"))
	if err != nil {
		t.Fatalf("example config should load: %v", err)
	}
	if cfg.LLM.APIKey != "sk-example" {
		t.Errorf("api_key = %q", cfg.LLM.APIKey)
	}
	if len(cfg.LLM.Fallbacks) != 1 || cfg.LLM.Fallbacks[0].Model != "deepseek-chat" {
		t.Errorf("fallbacks = %+v", cfg.LLM.Fallbacks)
	}
	if !cfg.Aggregator.ReportAbandonedEnabled() {
		t.Error("report_abandoned should be enabled")
	}
}
