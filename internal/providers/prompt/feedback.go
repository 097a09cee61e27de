package prompt

import "strings"

// Feedback builds the next generation input after a candidate was rejected.
type Feedback interface {
	Next(original, reason string) string
}

// AppendReason appends the rejection reason to the original input, separated by ", ". Each
// retry starts again from the original text, so reasons do not accumulate.
type AppendReason struct{}

func (AppendReason) Next(original, reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return original
	}
	return original + ", " + reason
}
