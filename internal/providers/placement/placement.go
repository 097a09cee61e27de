// Package placement asks the language model where the product should sit on the poster canvas.
package placement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"posterd/internal/infra"
	"posterd/internal/providers/llm"
	"posterd/internal/templates"
)

// ErrDecode is returned when the model reply is not a usable placement object.
var ErrDecode = errors.New("placement: cannot decode model reply")

// Placement is the product's center on the canvas, in percent, and its scale relative to the
// canvas.
type Placement struct {
	XPercent float64 `json:"x_percent"`
	YPercent float64 `json:"y_percent"`
	Scale    float64 `json:"scale"`
}

// Options configures a Generator.
type Options struct {
	Chat     llm.Chatter
	Template templates.Template
	ScaleMin float64
	ScaleMax float64
	Logger   *infra.Logger
}

// Generator renders the placement template and decodes the model's JSON reply.
type Generator struct {
	chat     llm.Chatter
	tpl      templates.Template
	scaleMin float64
	scaleMax float64
	logger   *infra.Logger
}

// NewGenerator validates the template and scale bounds.
func NewGenerator(opts Options) (*Generator, error) {
	if opts.Chat == nil {
		return nil, errors.New("placement: chat client is required")
	}
	if strings.TrimSpace(opts.Template.UserPromptTemplate) == "" {
		return nil, errors.New("placement: user prompt template is required")
	}
	if opts.ScaleMin <= 0 || opts.ScaleMax < opts.ScaleMin {
		return nil, fmt.Errorf("placement: invalid scale range [%v, %v]", opts.ScaleMin, opts.ScaleMax)
	}
	return &Generator{
		chat:     opts.Chat,
		tpl:      opts.Template,
		scaleMin: opts.ScaleMin,
		scaleMax: opts.ScaleMax,
		logger:   infra.LoggerOrDiscard(opts.Logger),
	}, nil
}

// Generate makes a single model call for the given image prompt. Image URLs, when given, are
// attached to the user message.
func (g *Generator) Generate(ctx context.Context, imagePrompt string, imageURLs ...string) (Placement, error) {
	user, err := templates.Render(g.tpl.UserPromptTemplate, map[string]any{
		"flux_prompt": imagePrompt,
		"scale_min":   g.scaleMin,
		"scale_max":   g.scaleMax,
	})
	if err != nil {
		return Placement{}, fmt.Errorf("placement: render: %w", err)
	}

	raw, err := g.chat.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: g.tpl.SystemPrompt},
			userMessage(user, imageURLs),
		},
		Format: llm.FormatJSON,
	})
	if err != nil {
		return Placement{}, fmt.Errorf("placement: generate: %w", err)
	}

	p, err := decode(raw)
	if err != nil {
		return Placement{}, err
	}
	clamped := g.clamp(p)
	if clamped != p {
		g.logger.Warn().
			Float64("x_percent", p.XPercent).
			Float64("y_percent", p.YPercent).
			Float64("scale", p.Scale).
			Msg("placement: reply out of range, clamped")
	}
	return clamped, nil
}

func userMessage(text string, imageURLs []string) llm.Message {
	if len(imageURLs) == 0 {
		return llm.Message{Role: "user", Content: text}
	}
	parts := []any{llm.NewTextPart(text)}
	for _, u := range imageURLs {
		parts = append(parts, llm.NewImagePart(u))
	}
	return llm.Message{Role: "user", Content: parts}
}

func (g *Generator) clamp(p Placement) Placement {
	p.XPercent = bound(p.XPercent, 0, 100)
	p.YPercent = bound(p.YPercent, 0, 100)
	p.Scale = bound(p.Scale, g.scaleMin, g.scaleMax)
	return p
}

func bound(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}

func decode(raw string) (Placement, error) {
	cleaned := extractJSONFragment(raw)
	if cleaned == "" {
		return Placement{}, fmt.Errorf("%w: empty reply", ErrDecode)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return Placement{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	for _, key := range []string{"x_percent", "y_percent", "scale"} {
		if _, ok := fields[key]; !ok {
			return Placement{}, fmt.Errorf("%w: missing %s", ErrDecode, key)
		}
	}
	var p Placement
	if err := json.Unmarshal([]byte(cleaned), &p); err != nil {
		return Placement{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return p, nil
}

func extractJSONFragment(raw string) string {
	text := trimCodeFence(strings.TrimSpace(raw))
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```JSON")
	text = strings.TrimPrefix(text, "```")
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
