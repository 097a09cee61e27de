package prompt

import "strings"

// ContentPolicyMessage is returned verbatim to callers when the model refuses or its output is
// blocked by the provider's safety filter. Processor code compares against it, so the text must
// not change.
const ContentPolicyMessage = "The content you generated does not comply with content review standards, please use appropriate prompts"

// Rejection reasons appended to the next generation input.
const (
	ReasonIllegalCharacters = "The prompt contains illegal characters {} or [] or `, please return a pure text str format prompt information"
	ReasonPromptKeyword     = "The prompt contains non-essential keywords 'prompt', please return a pure text prompt information directly, without any prompt keyword structure information"
	ReasonCJK               = "The prompt contains Chinese characters"
)

// Verdict is the outcome of validating one candidate.
type Verdict struct {
	OK bool

	// Terminal stops the retry loop immediately with ContentPolicyMessage.
	Terminal bool
	Reason   string
}

// Validator decides whether a generated prompt may be sent to the image engine. A returned
// error is an internal failure and aborts generation.
type Validator interface {
	Validate(candidate string) (Verdict, error)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(candidate string) (Verdict, error)

func (f ValidatorFunc) Validate(candidate string) (Verdict, error) {
	return f(candidate)
}

// FormatValidator applies the plain-text rules for image prompts.
type FormatValidator struct{}

// Validate checks, in order: the content-policy sentinel, structural characters, the literal
// word "prompt" in any case, and CJK unified ideographs. The sentinel is checked first because
// it contains the word "prompts" and would otherwise be retried.
func (FormatValidator) Validate(candidate string) (Verdict, error) {
	if strings.TrimSpace(candidate) == ContentPolicyMessage {
		return Verdict{Terminal: true, Reason: ContentPolicyMessage}, nil
	}
	if strings.ContainsAny(candidate, "{}[]`") {
		return Verdict{Reason: ReasonIllegalCharacters}, nil
	}
	if strings.Contains(strings.ToLower(candidate), "prompt") {
		return Verdict{Reason: ReasonPromptKeyword}, nil
	}
	if containsCJK(candidate) {
		return Verdict{Reason: ReasonCJK}, nil
	}
	return Verdict{OK: true}, nil
}

// ValidateFormat runs FormatValidator on candidate.
func ValidateFormat(candidate string) Verdict {
	v, _ := FormatValidator{}.Validate(candidate)
	return v
}

func containsCJK(s string) bool {
	for _, r := range s {
		if r >= 0x4E00 && r <= 0x9FFF {
			return true
		}
	}
	return false
}
