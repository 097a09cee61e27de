package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"posterd/internal/workflow"
)

// Status is the outcome of a submission.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

const unknownErrorMessage = "unknown error"

// Handle is the normalized reply to a submission. JobID is set if and only if Status is
// StatusOK.
type Handle struct {
	JobID   string
	Number  int
	Status  Status
	Message string
}

// OK reports whether the engine accepted the job.
func (h Handle) OK() bool {
	return h.Status == StatusOK && h.JobID != ""
}

type enqueueRequest struct {
	Prompt   workflow.Graph `json:"prompt"`
	ClientID string         `json:"client_id"`
}

type enqueueResponse struct {
	PromptID   *string         `json:"prompt_id"`
	Number     int             `json:"number"`
	Error      json.RawMessage `json:"error"`
	NodeErrors json.RawMessage `json:"node_errors"`
}

type engineError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details string `json:"details"`
}

type nodeError struct {
	Errors           []engineError `json:"errors"`
	DependentOutputs []string      `json:"dependent_outputs"`
	ClassType        string        `json:"class_type"`
}

// Submit enqueues g on the engine. Engine-side rejections come back as a Handle with
// StatusError and an aggregated message; only transport and decoding failures return an error.
// Submit does not retry.
func (c *Client) Submit(ctx context.Context, g workflow.Graph) (Handle, error) {
	body, err := json.Marshal(enqueueRequest{Prompt: g, ClientID: c.clientID})
	if err != nil {
		return Handle{}, fmt.Errorf("engine: encode graph: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return Handle{}, fmt.Errorf("engine: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: enqueue: %v", ErrTransport, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: read enqueue reply: %v", ErrTransport, err)
	}
	var out enqueueResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Handle{}, fmt.Errorf("%w: decode enqueue reply (http %d): %v", ErrTransport, resp.StatusCode, err)
	}

	handle := normalizeEnqueue(out)
	if handle.OK() {
		c.logger.Debug().Str("job_id", handle.JobID).Int("number", handle.Number).Msg("engine: job enqueued")
	} else {
		c.logger.Warn().Int("http_status", resp.StatusCode).Str("reason", handle.Message).Msg("engine: job rejected")
	}
	return handle, nil
}

func normalizeEnqueue(out enqueueResponse) Handle {
	if out.PromptID != nil && strings.TrimSpace(*out.PromptID) != "" {
		return Handle{JobID: *out.PromptID, Number: out.Number, Status: StatusOK, Message: "success"}
	}
	if len(out.Error) == 0 || string(out.Error) == "null" {
		return Handle{Status: StatusError, Message: unknownErrorMessage}
	}
	return Handle{Status: StatusError, Message: rejectionMessage(out.Error, out.NodeErrors)}
}

// rejectionMessage reports the top-level error followed by one line per failing node, so that
// a rejection spanning several nodes is visible in full.
func rejectionMessage(rawErr, rawNodeErrors json.RawMessage) string {
	var top engineError
	if err := json.Unmarshal(rawErr, &top); err != nil {
		// Some engine versions report the error as a bare string.
		var text string
		if json.Unmarshal(rawErr, &text) == nil {
			top.Message = text
		} else {
			top.Message = string(rawErr)
		}
	}
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "Error type: %s, Error message: %s", top.Type, top.Message)

	// node_errors is an object keyed by node id, or an empty list when no node is at fault.
	var rawNodes map[string]json.RawMessage
	_ = json.Unmarshal(rawNodeErrors, &rawNodes)
	ids := make([]string, 0, len(rawNodes))
	for id := range rawNodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		var ne nodeError
		if err := json.Unmarshal(rawNodes[id], &ne); err != nil {
			fmt.Fprintf(sb, "\nNode %s error: %s", id, string(rawNodes[id]))
			continue
		}
		detail := ""
		if len(ne.Errors) > 0 {
			detail = ne.Errors[0].Details
		}
		fmt.Fprintf(sb, "\nNode %s (%s) error: %s", id, ne.ClassType, detail)
	}
	return sb.String()
}
