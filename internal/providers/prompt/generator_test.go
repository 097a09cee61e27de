package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"posterd/internal/providers/llm"
)

type scriptedChat struct {
	replies []string
	errs    []error
	inputs  []string
}

func (s *scriptedChat) Chat(_ context.Context, req llm.ChatRequest) (string, error) {
	i := len(s.inputs)
	user, _ := req.Messages[1].Content.(string)
	s.inputs = append(s.inputs, strings.TrimPrefix(strings.SplitN(user, "\n", 3)[1], "User input: "))
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return "{still bad}", nil
}

func newTestGenerator(t *testing.T, chat llm.Chatter, opts Options) *Generator {
	t.Helper()
	opts.Chat = chat
	g, err := NewGenerator(opts)
	if err != nil {
		t.Fatalf("NewGenerator returned error: %v", err)
	}
	return g
}

func TestGenerateAcceptsFirstValidCandidate(t *testing.T) {
	chat := &scriptedChat{replies: []string{"a glass bottle\non wet slate,, soft light"}}
	g := newTestGenerator(t, chat, Options{})

	got, policy, err := g.Generate(context.Background(), "poster style", "一瓶香水")
	if err != nil || policy {
		t.Fatalf("Generate = %q, %v, %v", got, policy, err)
	}
	if got != "a glass bottle, on wet slate, soft light" {
		t.Fatalf("Generate = %q", got)
	}
	if len(chat.inputs) != 1 {
		t.Fatalf("calls = %d, want 1", len(chat.inputs))
	}
}

func TestGenerateRetriesWithReasonAppendedToOriginal(t *testing.T) {
	chat := &scriptedChat{replies: []string{
		`{"prompt": "bottle"}`,
		"Prompt: bottle on stone",
		"bottle on stone, morning light",
	}}
	g := newTestGenerator(t, chat, Options{})

	got, policy, err := g.Generate(context.Background(), "sys", "perfume")
	if err != nil || policy {
		t.Fatalf("Generate = %q, %v, %v", got, policy, err)
	}
	if got != "bottle on stone, morning light" {
		t.Fatalf("Generate = %q", got)
	}
	want := []string{
		"perfume",
		"perfume, " + ReasonIllegalCharacters,
		"perfume, " + ReasonPromptKeyword,
	}
	if diff := cmp.Diff(want, chat.inputs); diff != "" {
		t.Fatalf("inputs mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateExhaustsAttempts(t *testing.T) {
	chat := &scriptedChat{}
	g := newTestGenerator(t, chat, Options{MaxAttempts: 3})

	got, policy, err := g.Generate(context.Background(), "sys", "perfume")
	if !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("err = %v, want ErrAttemptsExhausted", err)
	}
	if got != "" || policy {
		t.Fatalf("Generate = %q, %v", got, policy)
	}
	if len(chat.inputs) != 3 {
		t.Fatalf("calls = %d, want 3", len(chat.inputs))
	}
}

func TestGenerateDefaultMaxAttempts(t *testing.T) {
	chat := &scriptedChat{}
	g := newTestGenerator(t, chat, Options{})
	if _, _, err := g.Generate(context.Background(), "sys", "x"); !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("err = %v", err)
	}
	if len(chat.inputs) != DefaultMaxAttempts {
		t.Fatalf("calls = %d, want %d", len(chat.inputs), DefaultMaxAttempts)
	}
}

func TestGenerateContentPolicyIsTerminal(t *testing.T) {
	cases := []struct {
		name string
		chat *scriptedChat
	}{
		{name: "provider_filter", chat: &scriptedChat{errs: []error{llm.ErrContentFilter}}},
		{name: "wrapped_filter", chat: &scriptedChat{errs: []error{fmt.Errorf("azure: %w", llm.ErrContentFilter)}}},
		{name: "sentinel_text", chat: &scriptedChat{replies: []string{ContentPolicyMessage}}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGenerator(t, tc.chat, Options{})
			got, policy, err := g.Generate(context.Background(), "sys", "x")
			if err != nil {
				t.Fatalf("Generate returned error: %v", err)
			}
			if !policy || got != ContentPolicyMessage {
				t.Fatalf("Generate = %q, %v", got, policy)
			}
			if len(tc.chat.inputs) != 1 {
				t.Fatalf("calls = %d, want 1", len(tc.chat.inputs))
			}
		})
	}
}

func TestGenerateValidatorFailure(t *testing.T) {
	chat := &scriptedChat{replies: []string{"fine"}}
	g := newTestGenerator(t, chat, Options{Validator: ValidatorFunc(func(string) (Verdict, error) {
		return Verdict{}, errors.New("regex engine down")
	})})
	got, policy, err := g.Generate(context.Background(), "sys", "x")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if got != "" || policy {
		t.Fatalf("Generate = %q, %v", got, policy)
	}
}

func TestGenerateTransportErrorNotRetried(t *testing.T) {
	chat := &scriptedChat{errs: []error{llm.ErrTransport}}
	g := newTestGenerator(t, chat, Options{})
	if _, _, err := g.Generate(context.Background(), "sys", "x"); !errors.Is(err, llm.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
	if len(chat.inputs) != 1 {
		t.Fatalf("calls = %d, want 1", len(chat.inputs))
	}
}

func TestGenerateDegradeOnError(t *testing.T) {
	chat := &scriptedChat{errs: []error{llm.ErrTransport}}
	g := newTestGenerator(t, chat, Options{DegradeOnError: true})
	got, policy, err := g.Generate(context.Background(), "studio light", "red bottle")
	if err != nil || policy {
		t.Fatalf("Generate = %q, %v, %v", got, policy, err)
	}
	if got != "studio light, red bottle" {
		t.Fatalf("Generate = %q", got)
	}
}

func TestGenerateHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	chat := &scriptedChat{}
	g := newTestGenerator(t, chat, Options{})
	if _, _, err := g.Generate(ctx, "sys", "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(chat.inputs) != 0 {
		t.Fatalf("calls = %d, want 0", len(chat.inputs))
	}
}

func TestNewGeneratorRequiresChat(t *testing.T) {
	if _, err := NewGenerator(Options{}); err == nil {
		t.Fatal("expected error without chat client")
	}
}
