package placement

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"posterd/internal/providers/llm"
	"posterd/internal/templates"
)

type fakeChat struct {
	reply string
	err   error
	req   llm.ChatRequest
	calls int
}

func (f *fakeChat) Chat(_ context.Context, req llm.ChatRequest) (string, error) {
	f.calls++
	f.req = req
	return f.reply, f.err
}

var testTemplate = templates.Template{
	SystemPrompt:       "You place products.",
	UserPromptTemplate: "Scene: {{ flux_prompt }}\nScale between {{ scale_min }} and {{ scale_max }}.",
}

func newTestGenerator(t *testing.T, chat llm.Chatter) *Generator {
	t.Helper()
	g, err := NewGenerator(Options{Chat: chat, Template: testTemplate, ScaleMin: 0.3, ScaleMax: 0.7})
	if err != nil {
		t.Fatalf("NewGenerator returned error: %v", err)
	}
	return g
}

func TestGenerateRendersTemplateAndDecodes(t *testing.T) {
	chat := &fakeChat{reply: "```json\n{\"x_percent\": 40, \"y_percent\": 62, \"scale\": 0.5}\n```"}
	g := newTestGenerator(t, chat)

	got, err := g.Generate(context.Background(), "bottle on slate")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if diff := cmp.Diff(Placement{XPercent: 40, YPercent: 62, Scale: 0.5}, got); diff != "" {
		t.Fatalf("placement mismatch (-want +got):\n%s", diff)
	}
	if chat.req.Format != llm.FormatJSON {
		t.Fatalf("format = %q", chat.req.Format)
	}
	if chat.req.Messages[0].Content != "You place products." {
		t.Fatalf("system = %v", chat.req.Messages[0].Content)
	}
	user := chat.req.Messages[1].Content.(string)
	if user != "Scene: bottle on slate\nScale between 0.3 and 0.7." {
		t.Fatalf("user = %q", user)
	}
}

func TestGenerateClampsOutOfRange(t *testing.T) {
	chat := &fakeChat{reply: `{"x_percent": 130, "y_percent": -4, "scale": 0.95}`}
	g := newTestGenerator(t, chat)
	got, err := g.Generate(context.Background(), "x")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if diff := cmp.Diff(Placement{XPercent: 100, YPercent: 0, Scale: 0.7}, got); diff != "" {
		t.Fatalf("placement mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateAttachesImages(t *testing.T) {
	chat := &fakeChat{reply: `{"x_percent": 50, "y_percent": 50, "scale": 0.4}`}
	g := newTestGenerator(t, chat)
	if _, err := g.Generate(context.Background(), "x", "https://cdn.example/p.png"); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	parts, ok := chat.req.Messages[1].Content.([]any)
	if !ok || len(parts) != 2 {
		t.Fatalf("user content = %#v", chat.req.Messages[1].Content)
	}
	if img, ok := parts[1].(llm.ImagePart); !ok || img.ImageURL.URL != "https://cdn.example/p.png" {
		t.Fatalf("image part = %#v", parts[1])
	}
}

func TestGenerateErrors(t *testing.T) {
	cases := []struct {
		name string
		chat *fakeChat
		want error
	}{
		{name: "not_json", chat: &fakeChat{reply: "center it"}, want: ErrDecode},
		{name: "missing_field", chat: &fakeChat{reply: `{"x_percent": 1, "y_percent": 2}`}, want: ErrDecode},
		{name: "wrong_type", chat: &fakeChat{reply: `{"x_percent": "left", "y_percent": 2, "scale": 0.4}`}, want: ErrDecode},
		{name: "transport", chat: &fakeChat{err: llm.ErrTransport}, want: llm.ErrTransport},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGenerator(t, tc.chat)
			if _, err := g.Generate(context.Background(), "x"); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if tc.chat.calls != 1 {
				t.Fatalf("calls = %d, want 1", tc.chat.calls)
			}
		})
	}
}

func TestGenerateUnrenderedPlaceholder(t *testing.T) {
	chat := &fakeChat{}
	g, err := NewGenerator(Options{
		Chat:     chat,
		Template: templates.Template{SystemPrompt: "s", UserPromptTemplate: "{{ flux_prompt }} {{ brand }}"},
		ScaleMin: 0.3,
		ScaleMax: 0.7,
	})
	if err != nil {
		t.Fatalf("NewGenerator returned error: %v", err)
	}
	_, err = g.Generate(context.Background(), "x")
	if !errors.Is(err, templates.ErrUnrenderedPlaceholder) {
		t.Fatalf("err = %v, want ErrUnrenderedPlaceholder", err)
	}
	if chat.calls != 0 {
		t.Fatalf("model called %d times before render succeeded", chat.calls)
	}
}

func TestNewGeneratorValidation(t *testing.T) {
	chat := &fakeChat{}
	cases := []Options{
		{Template: testTemplate, ScaleMin: 0.3, ScaleMax: 0.7},
		{Chat: chat, ScaleMin: 0.3, ScaleMax: 0.7},
		{Chat: chat, Template: testTemplate, ScaleMin: 0.8, ScaleMax: 0.7},
		{Chat: chat, Template: testTemplate},
	}
	for i, opts := range cases {
		if _, err := NewGenerator(opts); err == nil {
			t.Fatalf("case %d: expected error", i)
		} else if !strings.HasPrefix(err.Error(), "placement:") {
			t.Fatalf("case %d: err = %v", i, err)
		}
	}
}
