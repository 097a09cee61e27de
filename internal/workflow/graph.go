// Package workflow models the node graphs submitted to the execution engine. A graph is loaded
// once as an immutable Template and cloned for every task before per-task inputs are injected.
package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Node is one unit of a job graph.
type Node struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
	Meta      map[string]any `json:"_meta,omitempty"`
}

// Graph maps node identifiers to nodes. It is the payload sent to the engine verbatim.
type Graph map[string]*Node

// Output class types rewritten so that results are streamed instead of written to disk.
var websocketOutputClasses = map[string]struct{}{
	"SaveImage":    {},
	"PreviewImage": {},
}

const websocketOutputClass = "SaveImageWebsocket"

// Template is a read-only graph. Callers obtain a mutable copy through Clone.
type Template struct {
	graph Graph
}

// NewTemplate wraps g after deep-copying it, so later changes to g do not leak into clones.
func NewTemplate(g Graph) *Template {
	return &Template{graph: g.Clone()}
}

// LoadTemplate reads a JSON graph from path and routes its image outputs to the stream.
func LoadTemplate(path string) (*Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("workflow: read template: %w", err)
	}
	return ParseTemplate(raw)
}

// ParseTemplate decodes a JSON graph and routes its image outputs to the stream.
func ParseTemplate(raw []byte) (*Template, error) {
	var g Graph
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("workflow: decode template: %w", err)
	}
	if len(g) == 0 {
		return nil, fmt.Errorf("workflow: template has no nodes")
	}
	for id, node := range g {
		if node == nil {
			return nil, fmt.Errorf("workflow: node %q is empty", id)
		}
		if node.Inputs == nil {
			node.Inputs = map[string]any{}
		}
	}
	UseWebsocketOutputs(g)
	return &Template{graph: g}, nil
}

// Clone returns an independent deep copy of the template graph.
func (t *Template) Clone() Graph {
	if t == nil {
		return Graph{}
	}
	return t.graph.Clone()
}

// NodeIDs lists the template's node identifiers in sorted order.
func (t *Template) NodeIDs() []string {
	if t == nil {
		return nil
	}
	ids := make([]string, 0, len(t.graph))
	for id := range t.graph {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone deep-copies the graph, including nested input values.
func (g Graph) Clone() Graph {
	out := make(Graph, len(g))
	for id, node := range g {
		if node == nil {
			out[id] = nil
			continue
		}
		out[id] = &Node{
			ClassType: node.ClassType,
			Inputs:    cloneMap(node.Inputs),
			Meta:      cloneMap(node.Meta),
		}
	}
	return out
}

// UseWebsocketOutputs rewrites SaveImage and PreviewImage nodes to SaveImageWebsocket in place.
func UseWebsocketOutputs(g Graph) {
	for _, node := range g {
		if node == nil {
			continue
		}
		if _, ok := websocketOutputClasses[node.ClassType]; ok {
			node.ClassType = websocketOutputClass
		}
	}
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = cloneValue(val[i])
		}
		return out
	default:
		return val
	}
}

// StreamOutputs selects every streaming output node of g, reported as "node_<id>".
func StreamOutputs(g Graph) OutputSelector {
	sel := OutputSelector{}
	for id, node := range g {
		if node != nil && node.ClassType == websocketOutputClass {
			sel[id] = "node_" + id
		}
	}
	return sel
}
