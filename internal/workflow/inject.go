package workflow

import (
	"fmt"
	"sort"
)

// NodeIDs names the nodes whose inputs are overwritten for every poster task.
type NodeIDs struct {
	InputImage string
	TextPrompt string
	NoiseSeed  string
	XPosition  string
	YPosition  string
	Scale      string
	OutputSize string
	InputSize  string
}

// DefaultPosterNodeIDs matches the node numbering of templates/comfyui_workflows/image2poster.json.
var DefaultPosterNodeIDs = NodeIDs{
	InputImage: "1",
	TextPrompt: "355",
	NoiseSeed:  "478",
	XPosition:  "9",
	YPosition:  "10",
	Scale:      "11",
	OutputSize: "584",
	InputSize:  "3",
}

// Params carries the per-task values injected into a cloned graph.
type Params struct {
	InputImage string
	Prompt     string
	Seed       int64
	XPercent   float64
	YPercent   float64
	Scale      float64
	Width      int
	Height     int
}

// Inject overwrites exactly the known input fields of the known nodes. Every other input and
// every other node is left as is. When a node is missing nothing is written.
func Inject(g Graph, ids NodeIDs, p Params) error {
	updates := map[string]map[string]any{
		ids.InputImage: {"image": p.InputImage},
		ids.TextPrompt: {"text": p.Prompt},
		ids.NoiseSeed:  {"noise_seed": p.Seed},
		ids.XPosition:  {"number": p.XPercent},
		ids.YPosition:  {"number": p.YPercent},
		ids.Scale:      {"number": p.Scale},
		ids.OutputSize: {"width": p.Width, "height": p.Height},
		ids.InputSize:  {"width": p.Width, "height": p.Height},
	}
	if len(updates) != 8 {
		return fmt.Errorf("workflow: node ids must be distinct")
	}
	var missing []string
	for id := range updates {
		if node, ok := g[id]; !ok || node == nil {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("workflow: graph is missing nodes %v", missing)
	}
	for id, inputs := range updates {
		node := g[id]
		if node.Inputs == nil {
			node.Inputs = make(map[string]any, len(inputs))
		}
		for k, v := range inputs {
			node.Inputs[k] = v
		}
	}
	return nil
}

// OutputSelector maps the node ids whose images are wanted to the result name each is reported
// under, e.g. "585" -> "final_image_url".
type OutputSelector map[string]string

// FinalOutputs returns only the finished poster.
func FinalOutputs() OutputSelector {
	return OutputSelector{"585": "final_image_url"}
}

// IntermediateOutputs returns every stage of the poster pipeline plus the finished poster.
func IntermediateOutputs() OutputSelector {
	return OutputSelector{
		"172": "step1_image_url", // placement preview
		"551": "step2_image_url", // background with subject
		"353": "step3_image_url", // background with subject removed
		"588": "step4_image_url", // composite
		"585": "final_image_url",
	}
}

// Has reports whether node id is selected.
func (s OutputSelector) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// NodeIDs returns the selected node ids in sorted order.
func (s OutputSelector) NodeIDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
