// Package llm is a small chat-completion client for OpenAI and Azure OpenAI deployments.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"posterd/internal/infra"
)

var (
	// ErrContentFilter reports that the provider's safety filter blocked the prompt or the
	// completion.
	ErrContentFilter = errors.New("llm: content filtered")
	// ErrTransport marks network failures, non-2xx replies and undecodable bodies.
	ErrTransport = errors.New("llm: transport failure")
	// ErrEmptyCompletion is returned when the reply has no usable choice.
	ErrEmptyCompletion = errors.New("llm: empty completion")
)

// Format is the response-format hint sent with a request.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json_object"
)

// Message is one chat turn. Content is a string or a list of content parts.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// TextPart and ImagePart build multimodal user content.
type TextPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ImagePart struct {
	Type     string   `json:"type"`
	ImageURL imageURL `json:"image_url"`
}

type imageURL struct {
	URL string `json:"url"`
}

// NewTextPart returns a text content part.
func NewTextPart(text string) TextPart {
	return TextPart{Type: "text", Text: text}
}

// NewImagePart returns an image_url content part.
func NewImagePart(u string) ImagePart {
	return ImagePart{Type: "image_url", ImageURL: imageURL{URL: u}}
}

// ChatRequest is a single completion call.
type ChatRequest struct {
	Messages    []Message
	Format      Format
	Temperature *float64
	MaxTokens   int
}

// Chatter is the completion contract consumed by the prompt and placement generators.
type Chatter interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// Options configures a Client. Setting AzureEndpoint selects the Azure deployment URL scheme
// with Model as the deployment name.
type Options struct {
	APIKey          string
	Model           string
	BaseURL         string
	Organization    string
	AzureEndpoint   string
	AzureAPIVersion string
	HTTPClient      *http.Client
	Logger          *infra.Logger
	OnWarning       func(reason, detail string)
}

// Client implements Chatter over HTTP.
type Client struct {
	apiKey       string
	model        string
	endpoint     string
	organization string
	azure        bool
	client       *http.Client
	logger       *infra.Logger
}

const defaultTimeout = 60 * time.Second

type chatPayload struct {
	Model          string      `json:"model,omitempty"`
	Messages       []Message   `json:"messages"`
	Temperature    *float64    `json:"temperature,omitempty"`
	MaxTokens      int         `json:"max_tokens,omitempty"`
	ResponseFormat *chatFormat `json:"response_format,omitempty"`
}

type chatFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewClient validates credentials and resolves the completion endpoint.
func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("llm: api key is required")
	}
	c := &Client{
		apiKey:       apiKey,
		organization: strings.TrimSpace(opts.Organization),
		client:       opts.HTTPClient,
		logger:       infra.LoggerOrDiscard(opts.Logger),
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: defaultTimeout}
	}

	if azure := strings.TrimRight(strings.TrimSpace(opts.AzureEndpoint), "/"); azure != "" {
		deployment := strings.TrimSpace(opts.Model)
		if deployment == "" {
			return nil, errors.New("llm: azure deployment name is required")
		}
		version := strings.TrimSpace(opts.AzureAPIVersion)
		if version == "" {
			return nil, errors.New("llm: azure api version is required")
		}
		c.azure = true
		c.model = deployment
		c.endpoint = fmt.Sprintf("%s/openai/deployments/%s/chat/completions?%s",
			azure, url.PathEscape(deployment), url.Values{"api-version": []string{version}}.Encode())
		return c, nil
	}

	model, reason := normalizeModel(opts.Model)
	if reason != "" && opts.OnWarning != nil {
		opts.OnWarning("model_"+reason, fmt.Sprintf("requested=%s resolved=%s", strings.TrimSpace(opts.Model), model))
	}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	c.model = model
	c.endpoint = base + "/chat/completions"
	return c, nil
}

// Model returns the resolved model or deployment name.
func (c *Client) Model() string {
	return c.model
}

// Chat performs one completion and returns the trimmed content of the first choice.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	payload := chatPayload{
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if !c.azure {
		payload.Model = c.model
	}
	if req.Format != "" {
		payload.ResponseFormat = &chatFormat{Type: string(req.Format)}
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return "", fmt.Errorf("llm: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("llm: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.azure {
		httpReq.Header.Set("api-key", c.apiKey)
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		if c.organization != "" {
			httpReq.Header.Set("OpenAI-Organization", c.organization)
		}
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}
	if resp.StatusCode >= 300 {
		var apiErr errorResponse
		_ = json.Unmarshal(raw, &apiErr)
		if apiErr.Error.Code == "content_filter" {
			return "", fmt.Errorf("%w: %s", ErrContentFilter, apiErr.Error.Message)
		}
		if apiErr.Error.Message != "" {
			return "", fmt.Errorf("%w: http %d: %s", ErrTransport, resp.StatusCode, apiErr.Error.Message)
		}
		return "", fmt.Errorf("%w: http %d", ErrTransport, resp.StatusCode)
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrTransport, err)
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	choice := out.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", ErrContentFilter
	}
	if choice.Message.Content == nil {
		return "", ErrEmptyCompletion
	}
	c.logger.Debug().
		Str("model", c.model).
		Str("format", string(req.Format)).
		Dur("elapsed", time.Since(start)).
		Msg("llm: completion")
	return strings.TrimSpace(*choice.Message.Content), nil
}

var _ Chatter = (*Client)(nil)

const defaultModel = "gpt-4o-mini"

var modelCanonical = map[string]string{
	"gpt-4o":       "gpt-4o",
	"gpt-4o-mini":  "gpt-4o-mini",
	"gpt-4.1":      "gpt-4.1",
	"gpt-4.1-mini": "gpt-4.1-mini",
}

var modelAliases = map[string]string{
	"gpt4o":                  "gpt-4o",
	"gpt4o-mini":             "gpt-4o-mini",
	"gpt4omini":              "gpt-4o-mini",
	"gpt-4o-mini-2024-07-18": "gpt-4o-mini",
	"gpt-4o-2024-08-06":      "gpt-4o",
	"gpt4.1":                 "gpt-4.1",
	"gpt4.1-mini":            "gpt-4.1-mini",
}

// normalizeModel maps free-form model names onto supported ones. The second value is "alias"
// or "defaulted" when the name was rewritten.
func normalizeModel(name string) (string, string) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return defaultModel, ""
	}
	normalized := strings.ToLower(trimmed)
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	if canonical, ok := modelCanonical[normalized]; ok {
		return canonical, ""
	}
	if alias, ok := modelAliases[normalized]; ok {
		return alias, "alias"
	}
	return defaultModel, "defaulted"
}
