package prompt

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize flattens model output into a single comma-separated line: newlines become commas,
// segments are trimmed, empty segments dropped, and the text is NFC-composed.
func Normalize(raw string) string {
	text := norm.NFC.String(raw)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\n", ", ")
	parts := strings.Split(text, ",")
	kept := parts[:0]
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, ", ")
}
