package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"

	"posterd/internal/infra"
	"posterd/internal/workflow"
)

// PreambleSize is the fixed header the engine prepends to every binary image frame.
const PreambleSize = 8

// ErrStreamClosed is returned when the channel ends before the job reports completion.
var ErrStreamClosed = errors.New("engine: stream closed before job completed")

// FrameKind distinguishes structured events from raw payloads.
type FrameKind int

const (
	FrameControl FrameKind = iota
	FrameData
)

// Frame is one message read from the stream channel.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// FrameSource yields frames in arrival order.
type FrameSource interface {
	Next() (Frame, error)
}

// Outputs maps node ids to the image payloads received for them, in arrival order.
type Outputs map[string][][]byte

// First returns the first payload for node id, or nil.
func (o Outputs) First(id string) []byte {
	if payloads := o[id]; len(payloads) > 0 {
		return payloads[0]
	}
	return nil
}

type controlEvent struct {
	Type string `json:"type"`
	Data struct {
		PromptID string  `json:"prompt_id"`
		Node     *string `json:"node"`
	} `json:"data"`
}

// Collector is the per-job state machine over a frame stream. Data frames carry no job tag;
// they belong to whichever node the engine last announced as executing, so the collector only
// moves its current node on "executing" events for its own job and attributes data frames to
// that node. Each Collector owns its state, so collectors over different channels never
// interfere.
type Collector struct {
	jobID   string
	wanted  workflow.OutputSelector
	current string
	done    bool
	outputs Outputs
	logger  *infra.Logger
}

// NewCollector prepares a collector for jobID that keeps payloads of the wanted nodes only.
func NewCollector(jobID string, wanted workflow.OutputSelector, logger *infra.Logger) *Collector {
	return &Collector{
		jobID:   jobID,
		wanted:  wanted,
		outputs: Outputs{},
		logger:  infra.LoggerOrDiscard(logger),
	}
}

// Current returns the node last announced as executing for the collector's job.
func (c *Collector) Current() string {
	return c.current
}

// Done reports whether the job has signalled completion.
func (c *Collector) Done() bool {
	return c.done
}

// Outputs returns the payloads gathered so far.
func (c *Collector) Outputs() Outputs {
	return c.outputs
}

// Feed advances the state machine by one frame and reports whether the job is complete.
func (c *Collector) Feed(f Frame) (bool, error) {
	if c.done {
		return true, nil
	}
	switch f.Kind {
	case FrameControl:
		var ev controlEvent
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			return false, fmt.Errorf("%w: decode control frame: %v", ErrTransport, err)
		}
		if ev.Type != "executing" || ev.Data.PromptID != c.jobID {
			return false, nil
		}
		if ev.Data.Node == nil {
			c.done = true
			c.logger.Debug().Str("job_id", c.jobID).Msg("engine: job finished executing")
			return true, nil
		}
		c.current = *ev.Data.Node
		c.logger.Debug().Str("job_id", c.jobID).Str("node", c.current).Msg("engine: node executing")
	case FrameData:
		if !c.wanted.Has(c.current) {
			return false, nil
		}
		if len(f.Data) < PreambleSize {
			c.logger.Warn().Str("node", c.current).Int("size", len(f.Data)).Msg("engine: data frame shorter than preamble")
			return false, nil
		}
		c.outputs[c.current] = append(c.outputs[c.current], f.Data[PreambleSize:])
	}
	return false, nil
}

// Drain feeds frames from src until the job completes or src fails.
func (c *Collector) Drain(src FrameSource) (Outputs, error) {
	for {
		f, err := src.Next()
		if err != nil {
			return c.outputs, err
		}
		done, err := c.Feed(f)
		if err != nil {
			return c.outputs, err
		}
		if done {
			return c.outputs, nil
		}
	}
}

// Collect opens a fresh stream channel, waits for jobID to finish and returns the payloads of
// the wanted nodes. The channel is closed on every return path. Without a collect timeout the
// wait is bounded only by ctx.
func (c *Client) Collect(ctx context.Context, jobID string, wanted workflow.OutputSelector) (Outputs, error) {
	if c.collectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.collectTimeout)
		defer cancel()
	}

	conn, _, err := c.dialer.DialContext(ctx, c.streamURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial stream: %v", ErrTransport, err)
	}
	defer func() {
		_ = conn.Close()
	}()
	// A blocked read only returns once the connection is closed.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	collector := NewCollector(jobID, wanted, c.logger)
	outputs, err := collector.Drain(&wsSource{conn: conn})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return outputs, fmt.Errorf("engine: collect %s: %w", jobID, ctxErr)
		}
		return outputs, err
	}
	c.logger.Info().Str("job_id", jobID).Int("nodes", len(outputs)).Msg("engine: outputs collected")
	return outputs, nil
}

type wsSource struct {
	conn *websocket.Conn
}

func (s *wsSource) Next() (Frame, error) {
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return Frame{}, ErrStreamClosed
			}
			return Frame{}, fmt.Errorf("%w: read stream: %v", ErrTransport, err)
		}
		switch kind {
		case websocket.TextMessage:
			return Frame{Kind: FrameControl, Data: data}, nil
		case websocket.BinaryMessage:
			return Frame{Kind: FrameData, Data: data}, nil
		}
	}
}
