// Package prompt turns a user's product description into an English image prompt. Model output
// is validated and regenerated with feedback a bounded number of times.
package prompt

import (
	"context"
	"errors"
	"fmt"

	"posterd/internal/infra"
	"posterd/internal/providers/llm"
)

var (
	// ErrAttemptsExhausted means every attempt was rejected for a recoverable reason.
	ErrAttemptsExhausted = errors.New("prompt: attempts exhausted")
	// ErrValidation wraps an internal validator failure.
	ErrValidation = errors.New("prompt: validation failed")
)

// DefaultMaxAttempts bounds the number of model calls per Generate.
const DefaultMaxAttempts = 5

const (
	engineerInstruction = "You are a professional prompt engineer. Please translate and optimize the following prompts for ComfyUI models (like Flux). The output should be in English, well-structured, and effective for image generation. Only return prompt result directly. The format is str format."
	combineInstruction  = "System prompt: %s\nUser input: %s\nPlease combine these prompts, translate to English if needed, and optimize for best results with ComfyUI."

	generationTemperature = 0.7
	generationMaxTokens   = 300
)

// Options configures a Generator.
type Options struct {
	Chat        llm.Chatter
	MaxAttempts int
	Validator   Validator
	Feedback    Feedback

	// DegradeOnError replaces a failed model call with "system, input" instead of returning the
	// error. The degraded text still goes through validation.
	DegradeOnError bool
	Logger         *infra.Logger
}

// Generator runs the generate, validate, retry loop.
type Generator struct {
	chat        llm.Chatter
	maxAttempts int
	validator   Validator
	feedback    Feedback
	degrade     bool
	logger      *infra.Logger
}

// attemptState tracks one Generate call.
type attemptState struct {
	original string
	current  string
	used     int
	max      int
}

func (s *attemptState) exhausted() bool {
	return s.used >= s.max
}

// NewGenerator fills defaults for unset options.
func NewGenerator(opts Options) (*Generator, error) {
	if opts.Chat == nil {
		return nil, errors.New("prompt: chat client is required")
	}
	g := &Generator{
		chat:        opts.Chat,
		maxAttempts: opts.MaxAttempts,
		validator:   opts.Validator,
		feedback:    opts.Feedback,
		degrade:     opts.DegradeOnError,
		logger:      infra.LoggerOrDiscard(opts.Logger),
	}
	if g.maxAttempts < 1 {
		g.maxAttempts = DefaultMaxAttempts
	}
	if g.validator == nil {
		g.validator = FormatValidator{}
	}
	if g.feedback == nil {
		g.feedback = AppendReason{}
	}
	return g, nil
}

// Generate returns a validated prompt. When the provider's safety filter or the validator flags
// a content-policy violation it returns ContentPolicyMessage with policy set and a nil error.
// Exhaustion returns ErrAttemptsExhausted and an internal validator failure ErrValidation.
func (g *Generator) Generate(ctx context.Context, systemPrompt, input string) (string, bool, error) {
	state := &attemptState{original: input, current: input, max: g.maxAttempts}
	for !state.exhausted() {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		state.used++
		candidate, err := g.complete(ctx, systemPrompt, state.current)
		if errors.Is(err, llm.ErrContentFilter) {
			g.logger.Warn().Int("attempt", state.used).Msg("prompt: blocked by content filter")
			return ContentPolicyMessage, true, nil
		}
		if err != nil {
			if !g.degrade {
				return "", false, fmt.Errorf("prompt: generate: %w", err)
			}
			g.logger.Warn().Err(err).Int("attempt", state.used).Msg("prompt: model call failed, degrading")
			candidate = systemPrompt + ", " + state.current
		}

		verdict, err := g.validator.Validate(candidate)
		if err != nil {
			return "", false, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if verdict.OK {
			g.logger.Debug().Int("attempt", state.used).Msg("prompt: accepted")
			return candidate, false, nil
		}
		if verdict.Terminal {
			return ContentPolicyMessage, true, nil
		}
		g.logger.Info().
			Int("attempt", state.used).
			Int("max_attempts", state.max).
			Str("reason", verdict.Reason).
			Msg("prompt: rejected, retrying")
		state.current = g.feedback.Next(state.original, verdict.Reason)
	}
	return "", false, ErrAttemptsExhausted
}

func (g *Generator) complete(ctx context.Context, systemPrompt, input string) (string, error) {
	temp := generationTemperature
	raw, err := g.chat.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: engineerInstruction},
			{Role: "user", Content: fmt.Sprintf(combineInstruction, systemPrompt, input)},
		},
		Format:      llm.FormatText,
		Temperature: &temp,
		MaxTokens:   generationMaxTokens,
	})
	if err != nil {
		return "", err
	}
	return Normalize(raw), nil
}
