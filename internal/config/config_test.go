package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("PORT", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Port != 8080 {
		t.Fatalf("port = %d, want 8080", cfg.HTTP.Port)
	}
	if cfg.OpenAI.Model != "gpt-4" {
		t.Fatalf("model = %s, want gpt-4", cfg.OpenAI.Model)
	}
	if cfg.Retry.MaxAttempts != 3 || !cfg.Retry.Exponential {
		t.Fatalf("unexpected retry defaults: %+v", cfg.Retry)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected log defaults: %+v", cfg.Log)
	}
}

func TestLoadRejectsMissingAPIKeyOutsideTest(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error without an API key in production")
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("PORT", "99999")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for an out-of-range port")
	}
}

func TestDurationParsing(t *testing.T) {
	t.Setenv("HTTP_READ_TIMEOUT", "45s")
	if got, err := getEnvDuration("HTTP_READ_TIMEOUT", time.Second); err != nil || got != 45*time.Second {
		t.Fatalf("duration = %s, err = %v, want 45s", got, err)
	}

	// bare numbers read as seconds
	t.Setenv("HTTP_READ_TIMEOUT", "30")
	if got, err := getEnvDuration("HTTP_READ_TIMEOUT", time.Second); err != nil || got != 30*time.Second {
		t.Fatalf("duration = %s, err = %v, want 30s", got, err)
	}

	t.Setenv("HTTP_READ_TIMEOUT", "garbage")
	if _, err := getEnvDuration("HTTP_READ_TIMEOUT", time.Second); err == nil {
		t.Fatal("expected an error for an unparseable duration")
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("HTTP_READ_TIMEOUT", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a malformed duration")
	}
}

func TestIsProduction(t *testing.T) {
	cfg := &Config{Environment: "production"}
	if !cfg.IsProduction() {
		t.Fatal("expected production")
	}
	cfg.Environment = "development"
	if cfg.IsProduction() {
		t.Fatal("expected non-production")
	}
}
