package bootstrap

import (
	"context"
	"strings"
	"testing"

	"posterd/internal/domain"
	"posterd/internal/infra"
)

type nopStore struct{}

func (nopStore) Write(_ context.Context, key string, _ []byte) (string, error) {
	return key, nil
}

func testConfig() *infra.Config {
	return &infra.Config{
		TemplatesDir:                "../../templates",
		EngineBaseURL:               "http://127.0.0.1:8188",
		LLMProvider:                 "openai",
		OpenAIAPIKey:                "sk-test",
		OpenAIModel:                 "gpt-4o-mini",
		OpenAIBaseURL:               "https://api.openai.com/v1",
		PromptMaxAttempts:           5,
		PosterBatchsizeUseOnePrompt: 5,
		PosterOutputWidth:           1024,
		PosterOutputHeight:          1024,
		PosterScaleMin:              0.3,
		PosterScaleMax:              0.7,
	}
}

func TestNewPipeline(t *testing.T) {
	p, err := NewPipeline(context.Background(), testConfig(), Deps{
		Store:   nopStore{},
		OnAsset: func(context.Context, domain.Asset) error { return nil },
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if p.Processor == nil || p.Engine == nil || p.Chat == nil {
		t.Fatalf("pipeline not fully wired: %+v", p)
	}
	if !strings.Contains(p.Engine.StreamURL(), "clientId="+p.Engine.ClientID()) {
		t.Fatalf("stream url %q does not carry client id", p.Engine.StreamURL())
	}
}

func TestNewPipelineErrors(t *testing.T) {
	cases := map[string]func(*infra.Config){
		"missing_api_key":    func(c *infra.Config) { c.OpenAIAPIKey = "" },
		"missing_templates":  func(c *infra.Config) { c.TemplatesDir = t.TempDir() },
		"missing_engine_url": func(c *infra.Config) { c.EngineBaseURL = "" },
		"azure_without_model": func(c *infra.Config) {
			c.LLMProvider = "azure"
			c.AzureOpenAIAPIKey = "k"
			c.AzureOpenAIEndpoint = "https://example.openai.azure.com"
			c.AzureOpenAIAPIVersion = "2024-06-01"
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(cfg)
			if _, err := NewPipeline(context.Background(), cfg, Deps{Store: nopStore{}}); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
	if _, err := NewPipeline(context.Background(), testConfig(), Deps{}); err == nil {
		t.Fatalf("expected error without store")
	}
}

func TestNewPipelinesUseSeparateEngineSessions(t *testing.T) {
	pipelines, err := NewPipelines(context.Background(), testConfig(), Deps{Store: nopStore{}}, 3)
	if err != nil {
		t.Fatalf("NewPipelines: %v", err)
	}
	if len(pipelines) != 3 {
		t.Fatalf("got %d pipelines, want 3", len(pipelines))
	}
	seen := map[string]bool{}
	for i, p := range pipelines {
		id := p.Engine.ClientID()
		if seen[id] {
			t.Fatalf("pipeline %d reuses engine session %q", i, id)
		}
		seen[id] = true
		if p.Chat != pipelines[0].Chat {
			t.Fatalf("pipeline %d built its own chat client", i)
		}
	}
}
