// Package engine talks to a ComfyUI-compatible node-graph execution engine: it enqueues job
// graphs over HTTP and collects the streamed image outputs over a websocket channel bound to
// the same client session.
package engine

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"posterd/internal/infra"
)

var (
	// ErrTransport marks network failures and replies that cannot be decoded.
	ErrTransport = errors.New("engine: transport failure")
	// ErrUpload marks an upload the engine refused.
	ErrUpload = errors.New("engine: upload rejected")
)

// Options configures a Client.
type Options struct {
	BaseURL        string
	ClientID       string
	HTTPClient     *http.Client
	Dialer         *websocket.Dialer
	Logger         *infra.Logger
	CollectTimeout time.Duration
}

// Client is bound to one engine session: the client id sent with every submission is the one
// the stream channel registers with, so the engine routes that session's events to it.
type Client struct {
	baseURL        string
	streamURL      string
	clientID       string
	httpClient     *http.Client
	dialer         *websocket.Dialer
	logger         *infra.Logger
	collectTimeout time.Duration
}

// NewClient validates the base URL and derives the stream address from it.
func NewClient(opts Options) (*Client, error) {
	base, err := normalizeBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	clientID := strings.TrimSpace(opts.ClientID)
	if clientID == "" {
		clientID = uuid.NewString()
	}
	stream, err := streamURL(base, clientID)
	if err != nil {
		return nil, err
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Client{
		baseURL:        base,
		streamURL:      stream,
		clientID:       clientID,
		httpClient:     httpClient,
		dialer:         dialer,
		logger:         infra.LoggerOrDiscard(opts.Logger),
		collectTimeout: opts.CollectTimeout,
	}, nil
}

// ClientID returns the session identifier shared by submissions and the stream channel.
func (c *Client) ClientID() string {
	return c.clientID
}

// BaseURL returns the normalized HTTP base address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// StreamURL returns the websocket address including the clientId query parameter.
func (c *Client) StreamURL() string {
	return c.streamURL
}

func normalizeBaseURL(raw string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if base == "" {
		return "", errors.New("engine: base url is required")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("engine: parse base url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("engine: base url %q has no host", raw)
	}
	return base, nil
}

func streamURL(base, clientID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("engine: parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("engine: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"clientId": []string{clientID}}.Encode()
	return u.String(), nil
}
