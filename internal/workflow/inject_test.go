package workflow

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func posterGraph() Graph {
	g := Graph{
		"99": {ClassType: "KSampler", Inputs: map[string]any{"steps": float64(20), "cfg": 3.5}},
	}
	for _, id := range []string{"1", "355", "478", "9", "10", "11", "584", "3"} {
		g[id] = &Node{ClassType: "Stub", Inputs: map[string]any{"keep": id}}
	}
	return g
}

func TestInjectOverwritesOnlyKnownFields(t *testing.T) {
	g := posterGraph()
	params := Params{
		InputImage: "image2poster/20250101000000-bottle.png",
		Prompt:     "a green bottle on wet stone",
		Seed:       42,
		XPercent:   50,
		YPercent:   60,
		Scale:      0.45,
		Width:      1024,
		Height:     768,
	}
	if err := Inject(g, DefaultPosterNodeIDs, params); err != nil {
		t.Fatalf("Inject returned error: %v", err)
	}

	checks := map[string]map[string]any{
		"1":   {"keep": "1", "image": params.InputImage},
		"355": {"keep": "355", "text": params.Prompt},
		"478": {"keep": "478", "noise_seed": int64(42)},
		"9":   {"keep": "9", "number": float64(50)},
		"10":  {"keep": "10", "number": float64(60)},
		"11":  {"keep": "11", "number": 0.45},
		"584": {"keep": "584", "width": 1024, "height": 768},
		"3":   {"keep": "3", "width": 1024, "height": 768},
		"99":  {"steps": float64(20), "cfg": 3.5},
	}
	for id, want := range checks {
		if diff := cmp.Diff(want, g[id].Inputs); diff != "" {
			t.Fatalf("node %s inputs mismatch (-want +got):\n%s", id, diff)
		}
	}
}

func TestInjectMissingNodeLeavesGraphUntouched(t *testing.T) {
	g := posterGraph()
	delete(g, "584")
	before := g.Clone()

	if err := Inject(g, DefaultPosterNodeIDs, Params{Prompt: "x"}); err == nil {
		t.Fatal("expected error for missing node")
	}
	if diff := cmp.Diff(before, g); diff != "" {
		t.Fatalf("graph mutated on failure (-want +got):\n%s", diff)
	}
}

func TestInjectRejectsDuplicateNodeIDs(t *testing.T) {
	ids := DefaultPosterNodeIDs
	ids.YPosition = ids.XPosition
	if err := Inject(posterGraph(), ids, Params{}); err == nil {
		t.Fatal("expected error for duplicate node ids")
	}
}

func TestOutputSelectors(t *testing.T) {
	final := FinalOutputs()
	if !final.Has("585") || final.Has("172") {
		t.Fatalf("unexpected final selector: %#v", final)
	}
	want := []string{"172", "353", "551", "585", "588"}
	if diff := cmp.Diff(want, IntermediateOutputs().NodeIDs()); diff != "" {
		t.Fatalf("intermediate ids mismatch (-want +got):\n%s", diff)
	}
	if got := IntermediateOutputs()["585"]; got != "final_image_url" {
		t.Fatalf("final result name = %q", got)
	}
}
