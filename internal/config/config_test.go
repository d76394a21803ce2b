package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go-rash-triage/internal/upstream"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("GEMINI_API_KEY", "AIzaSyTestKey1234")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.ServerAddress() != "0.0.0.0:3000" {
		t.Errorf("Expected default address, got %s", cfg.ServerAddress())
	}
	if cfg.Provider != upstream.ProviderGemini || cfg.Gemini.Model != upstream.DefaultGeminiModel {
		t.Errorf("Expected gemini defaults, got %+v", cfg.Gemini)
	}
	if cfg.RecordStorage != RecordStorageLog || cfg.Azure.Container != "triage-records" {
		t.Errorf("Unexpected record defaults %q %+v", cfg.RecordStorage, cfg.Azure)
	}

	policy := cfg.RetryPolicy()
	if policy.MaxAttempts != 4 || policy.BaseDelay != 400*time.Millisecond || policy.MaxDelay != 4*time.Second || policy.Jitter != 200*time.Millisecond {
		t.Errorf("Unexpected retry policy %+v", policy)
	}

	up := cfg.UpstreamConfig()
	if up.APIKey != "AIzaSyTestKey1234" || up.BaseURL != upstream.DefaultGeminiBaseURL || up.Timeout != 60*time.Second {
		t.Errorf("Unexpected upstream config %+v", up)
	}
}

func TestLoadFromEnv_OpenAIProvider(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("UPSTREAM_PROVIDER", "OpenAI")
	t.Setenv("OPENAI_API_KEY", "sk-test-1234567890")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:11434/v1")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	up := cfg.UpstreamConfig()
	if up.Provider != upstream.ProviderOpenAI || up.APIKey != "sk-test-1234567890" || up.BaseURL != "http://localhost:11434/v1" {
		t.Errorf("Unexpected upstream config %+v", up)
	}
	if up.Model != upstream.DefaultOpenAIModel {
		t.Errorf("Expected default OpenAI model, got %s", up.Model)
	}
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		contains string
	}{
		{"missing gemini key", map[string]string{"GEMINI_API_KEY": ""}, "GEMINI_API_KEY is required"},
		{"missing openai key", map[string]string{"UPSTREAM_PROVIDER": "openai"}, "OPENAI_API_KEY is required"},
		{"unknown provider", map[string]string{"UPSTREAM_PROVIDER": "claude"}, "UPSTREAM_PROVIDER"},
		{"port out of range", map[string]string{"PORT": "70000"}, "invalid PORT"},
		{"port not numeric", map[string]string{"PORT": "http"}, "invalid PORT"},
		{"bad duration", map[string]string{"UPSTREAM_TIMEOUT": "soon"}, "invalid UPSTREAM_TIMEOUT"},
		{"zero timeout", map[string]string{"REQUEST_TIMEOUT": "0s"}, "timeouts must be > 0"},
		{"zero attempts", map[string]string{"RETRY_MAX_ATTEMPTS": "0"}, "RETRY_MAX_ATTEMPTS must be >= 1"},
		{"attempts not numeric", map[string]string{"RETRY_MAX_ATTEMPTS": "four"}, "invalid RETRY_MAX_ATTEMPTS"},
		{"max below base", map[string]string{"RETRY_BASE_DELAY": "2s", "RETRY_MAX_DELAY": "1s"}, "RETRY_MAX_DELAY"},
		{"negative base", map[string]string{"RETRY_BASE_DELAY": "-1s"}, "retry delays must be >= 0"},
		{"azure without credentials", map[string]string{"RECORD_STORAGE": "azure"}, "AZURE_STORAGE_ACCOUNT"},
		{"unknown storage", map[string]string{"RECORD_STORAGE": "s3"}, "RECORD_STORAGE"},
		{"base url with key", map[string]string{"GEMINI_BASE_URL": "https://example.com/v1beta?key=abc"}, "GEMINI_BASE_URL"},
		{"base url scheme", map[string]string{"GEMINI_BASE_URL": "ftp://example.com"}, "GEMINI_BASE_URL"},
		{"bad log level", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			t.Setenv("GEMINI_API_KEY", "AIzaSyTestKey1234")
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			_, err := LoadFromEnv()
			if err == nil {
				t.Fatal("Expected error, got none")
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("Expected error mentioning %q, got %v", tt.contains, err)
			}
		})
	}
}

func TestLoadFromEnv_ZeroBaseDelayAllowed(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("GEMINI_API_KEY", "AIzaSyTestKey1234")
	t.Setenv("RETRY_BASE_DELAY", "0s")
	t.Setenv("RETRY_JITTER", "0s")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Retry.BaseDelay != 0 || cfg.Retry.Jitter != 0 {
		t.Errorf("Expected zero delays, got %+v", cfg.Retry)
	}
}

func TestLoadFromEnv_FileOverlay(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: "8088"
  request_timeout: 45s
  cors_allowed_origin: https://triage.example.org
log_level: debug
upstream:
  provider: openai
  timeout: 20s
  openai:
    api_key: sk-from-file-000000
    model: gpt-4o
retry:
  max_attempts: 2
  base_delay: 100ms
  max_delay: 1s
records:
  storage: none
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Port != "8088" || cfg.RequestTimeout != 45*time.Second || cfg.CORSAllowedOrigin != "https://triage.example.org" {
		t.Errorf("Expected server settings from file, got %+v", cfg)
	}
	if cfg.LogLevel != "debug" || cfg.RecordStorage != RecordStorageNone {
		t.Errorf("Expected log level and storage from file, got %q %q", cfg.LogLevel, cfg.RecordStorage)
	}
	if cfg.Provider != upstream.ProviderOpenAI || cfg.OpenAI.APIKey != "sk-from-file-000000" || cfg.UpstreamTimeout != 20*time.Second {
		t.Errorf("Expected upstream settings from file, got %+v", cfg.UpstreamConfig())
	}
	if cfg.OpenAI.Model != "gpt-4o-mini" {
		t.Errorf("Expected environment to override the file, got %s", cfg.OpenAI.Model)
	}
	if cfg.Retry.MaxAttempts != 2 || cfg.Retry.BaseDelay != 100*time.Millisecond || cfg.Retry.MaxDelay != time.Second {
		t.Errorf("Expected retry settings from file, got %+v", cfg.Retry)
	}
	if cfg.Retry.Jitter != 200*time.Millisecond {
		t.Errorf("Expected unset jitter to keep its default, got %s", cfg.Retry.Jitter)
	}
}

func TestLoadFromEnv_FileErrors(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		contains string
	}{
		{"unknown key", "server:\n  hostname: x\n", "parse config file"},
		{"bad duration", "retry:\n  base_delay: fast\n", "retry.base_delay"},
		{"not yaml", "server: [", "parse config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", writeConfigFile(t, tt.content))
			t.Setenv("GEMINI_API_KEY", "AIzaSyTestKey1234")

			_, err := LoadFromEnv()
			if err == nil || !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("Expected error mentioning %q, got %v", tt.contains, err)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
		if _, err := LoadFromEnv(); err == nil || !strings.Contains(err.Error(), "read config file") {
			t.Errorf("Expected read error, got %v", err)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", writeConfigFile(t, ""))
		t.Setenv("GEMINI_API_KEY", "AIzaSyTestKey1234")
		if _, err := LoadFromEnv(); err != nil {
			t.Errorf("Expected an empty file to be accepted, got %v", err)
		}
	})
}

func TestServerAddress(t *testing.T) {
	cfg := &Config{Host: " 127.0.0.1 ", Port: "3000 "}
	if cfg.ServerAddress() != "127.0.0.1:3000" {
		t.Errorf("Expected trimmed address, got %s", cfg.ServerAddress())
	}
}

func TestWriteTimeoutOutlastsRequestTimeout(t *testing.T) {
	cfg := &Config{RequestTimeout: 30 * time.Second}
	if cfg.WriteTimeout() != 35*time.Second {
		t.Errorf("Expected 35s write timeout, got %s", cfg.WriteTimeout())
	}
	if cfg.WriteTimeout() <= cfg.RequestTimeout {
		t.Error("Write deadline must come after the request deadline")
	}
}
