// Package bootstrap assembles the poster pipeline from configuration. The worker and the
// posterctl CLI share it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"posterd/internal/domain"
	"posterd/internal/engine"
	"posterd/internal/infra"
	"posterd/internal/infra/credentials"
	"posterd/internal/poster"
	"posterd/internal/providers/llm"
	"posterd/internal/providers/placement"
	"posterd/internal/providers/prompt"
	"posterd/internal/templates"
	"posterd/internal/workflow"
)

const (
	PromptTemplatesFile = "prompt_templates.yml"
	PosterWorkflowFile  = "comfyui_workflows/image2poster.json"
)

// Deps are the optional collaborators the caller already owns.
type Deps struct {
	// Credentials supplies API keys missing from the environment. Nil disables the lookup.
	Credentials *credentials.Store
	Store       poster.ImageStore
	OnAsset     func(ctx context.Context, asset domain.Asset) error
	Logger      *infra.Logger
}

// Pipeline holds the assembled processor and the clients behind it.
type Pipeline struct {
	Processor *poster.Processor
	Engine    *engine.Client
	Chat      *llm.Client
}

// NewChatClient resolves the API key for the configured provider and builds the client.
func NewChatClient(ctx context.Context, cfg *infra.Config, creds *credentials.Store, logger *infra.Logger) (*llm.Client, error) {
	log := infra.LoggerOrDiscard(logger)
	opts := llm.Options{
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		Logger:     log,
		OnWarning: func(reason, detail string) {
			log.Warn().Str("reason", reason).Str("detail", detail).Msg("llm: model adjusted")
		},
	}
	var err error
	switch cfg.LLMProvider {
	case credentials.ProviderAzureOpenAI:
		opts.APIKey, err = creds.Resolve(ctx, credentials.ProviderAzureOpenAI, cfg.AzureOpenAIAPIKey)
		opts.Model = cfg.AzureOpenAIModel
		opts.AzureEndpoint = cfg.AzureOpenAIEndpoint
		opts.AzureAPIVersion = cfg.AzureOpenAIAPIVersion
	default:
		opts.APIKey, err = creds.Resolve(ctx, credentials.ProviderOpenAI, cfg.OpenAIAPIKey)
		opts.Model = cfg.OpenAIModel
		opts.BaseURL = cfg.OpenAIBaseURL
		opts.Organization = cfg.OpenAIOrg
	}
	if err != nil {
		return nil, fmt.Errorf("resolve %s api key: %w", cfg.LLMProvider, err)
	}
	return llm.NewClient(opts)
}

// NewEngineClient builds the engine client from configuration.
func NewEngineClient(cfg *infra.Config, logger *infra.Logger) (*engine.Client, error) {
	return engine.NewClient(engine.Options{
		BaseURL:        cfg.EngineBaseURL,
		Logger:         logger,
		CollectTimeout: cfg.EngineCollectTimeout,
	})
}

// NewPipeline loads the prompt and workflow templates and wires one processor.
func NewPipeline(ctx context.Context, cfg *infra.Config, deps Deps) (*Pipeline, error) {
	pipelines, err := NewPipelines(ctx, cfg, deps, 1)
	if err != nil {
		return nil, err
	}
	return pipelines[0], nil
}

// NewPipelines wires n processors that share templates and model clients. Each gets its own
// engine client: the engine keeps one stream socket per session id, so concurrent collections
// must not share one.
func NewPipelines(ctx context.Context, cfg *infra.Config, deps Deps, n int) ([]*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if deps.Store == nil {
		return nil, errors.New("bootstrap: image store is required")
	}
	logger := infra.LoggerOrDiscard(deps.Logger)

	set, err := templates.Load(filepath.Join(cfg.TemplatesDir, PromptTemplatesFile))
	if err != nil {
		return nil, err
	}
	posterTpl, err := set.Get(templates.KeyPosterPrompt)
	if err != nil {
		return nil, err
	}
	placementTpl, err := set.Get(templates.KeyProductPlacement)
	if err != nil {
		return nil, err
	}
	graph, err := workflow.LoadTemplate(filepath.Join(cfg.TemplatesDir, filepath.FromSlash(PosterWorkflowFile)))
	if err != nil {
		return nil, err
	}

	chat, err := NewChatClient(ctx, cfg, deps.Credentials, logger)
	if err != nil {
		return nil, err
	}
	prompts, err := prompt.NewGenerator(prompt.Options{
		Chat:        chat,
		MaxAttempts: cfg.PromptMaxAttempts,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	spots, err := placement.NewGenerator(placement.Options{
		Chat:     chat,
		Template: placementTpl,
		ScaleMin: cfg.PosterScaleMin,
		ScaleMax: cfg.PosterScaleMax,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	pipelines := make([]*Pipeline, 0, max(n, 1))
	for i := 0; i < max(n, 1); i++ {
		eng, err := NewEngineClient(cfg, logger)
		if err != nil {
			return nil, err
		}
		proc, err := poster.NewProcessor(poster.Options{
			Engine:       eng,
			Prompts:      prompts,
			Placement:    spots,
			Store:        deps.Store,
			Template:     graph,
			SystemPrompt: posterTpl.SystemPrompt,
			GroupSize:    cfg.PosterBatchsizeUseOnePrompt,
			Width:        cfg.PosterOutputWidth,
			Height:       cfg.PosterOutputHeight,
			OnAsset:      deps.OnAsset,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		logger.Info().
			Str("engine", eng.BaseURL()).
			Str("client_id", eng.ClientID()).
			Str("model", chat.Model()).
			Int("group_size", cfg.PosterBatchsizeUseOnePrompt).
			Msg("bootstrap: poster pipeline ready")
		pipelines = append(pipelines, &Pipeline{Processor: proc, Engine: eng, Chat: chat})
	}
	return pipelines, nil
}
