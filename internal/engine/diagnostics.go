package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// QueueStatus is the engine's view of running and pending jobs.
type QueueStatus struct {
	Running []json.RawMessage `json:"queue_running"`
	Pending []json.RawMessage `json:"queue_pending"`
}

// QueueStatus fetches the current queue.
func (c *Client) QueueStatus(ctx context.Context) (QueueStatus, error) {
	var out QueueStatus
	err := c.getJSON(ctx, "/queue", &out)
	return out, err
}

// History fetches the engine's execution record for jobID. The record is returned undecoded;
// its shape depends on the nodes in the graph.
func (c *Client) History(ctx context.Context, jobID string) (map[string]json.RawMessage, error) {
	out := map[string]json.RawMessage{}
	if err := c.getJSON(ctx, "/history/"+url.PathEscape(jobID), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("engine: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %v", ErrTransport, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: GET %s: http %d", ErrTransport, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrTransport, path, err)
	}
	return nil
}
