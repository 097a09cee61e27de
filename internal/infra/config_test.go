package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("ENGINE_BASE_URL", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("POSTER_SCALE_MIN", "")
	t.Setenv("POSTER_SCALE_MAX", "")
	t.Setenv("ENGINE_COLLECT_TIMEOUT_SECONDS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.EngineBaseURL != "http://127.0.0.1:8188" {
		t.Fatalf("EngineBaseURL = %q", cfg.EngineBaseURL)
	}
	if cfg.LLMProvider != "openai" {
		t.Fatalf("LLMProvider = %q, want openai", cfg.LLMProvider)
	}
	if cfg.PosterScaleMin != 0.3 || cfg.PosterScaleMax != 0.7 {
		t.Fatalf("scale range = [%v, %v], want [0.3, 0.7]", cfg.PosterScaleMin, cfg.PosterScaleMax)
	}
	if cfg.EngineCollectTimeout != 0 {
		t.Fatalf("EngineCollectTimeout = %v, want unbounded", cfg.EngineCollectTimeout)
	}
	if cfg.PosterBatchsizeUseOnePrompt != 5 {
		t.Fatalf("PosterBatchsizeUseOnePrompt = %d, want 5", cfg.PosterBatchsizeUseOnePrompt)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "Azure")
	t.Setenv("ENGINE_COLLECT_TIMEOUT_SECONDS", "90")
	t.Setenv("POSTER_SCALE_MIN", "0.2")
	t.Setenv("POSTER_SCALE_MAX", "0.9")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.LLMProvider != "azure" {
		t.Fatalf("LLMProvider = %q, want azure", cfg.LLMProvider)
	}
	if cfg.EngineCollectTimeout != 90*time.Second {
		t.Fatalf("EngineCollectTimeout = %v", cfg.EngineCollectTimeout)
	}
	if cfg.PosterScaleMin != 0.2 || cfg.PosterScaleMax != 0.9 {
		t.Fatalf("scale range = [%v, %v]", cfg.PosterScaleMin, cfg.PosterScaleMax)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("CORSAllowedOrigins = %#v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadConfigRejectsInvalidScaleRange(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("POSTER_SCALE_MIN", "0.8")
	t.Setenv("POSTER_SCALE_MAX", "0.4")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for inverted scale range")
	}
}

func TestLoadConfigRejectsUnknownProvider(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("POSTER_SCALE_MIN", "")
	t.Setenv("POSTER_SCALE_MAX", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestRequireDatabase(t *testing.T) {
	cfg := &Config{}
	if err := cfg.RequireDatabase(); err == nil {
		t.Fatal("expected error for empty DATABASE_URL")
	}
	cfg.DatabaseURL = "postgres://example"
	if err := cfg.RequireDatabase(); err != nil {
		t.Fatalf("RequireDatabase returned error: %v", err)
	}
}
