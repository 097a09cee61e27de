package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeGo(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLintTargetsReportsMissingAndDuplicateMarkers(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "a.go", "package q\n\nconst QOne = `--sql 0b6f2f86-3f0e-4a4c-9d63-4f3c6d2f1a10\nSELECT 1`\n\nconst QBad = `SELECT 2`\n")
	writeGo(t, dir, "b.go", "package q\n\nconst QTwo = `--sql 0b6f2f86-3f0e-4a4c-9d63-4f3c6d2f1a10\nSELECT 3`\n\nconst Label = \"not sql\"\n")

	violations, err := lintTargets([]string{dir})
	if err != nil {
		t.Fatalf("lintTargets: %v", err)
	}
	if len(violations) != 2 {
		t.Fatalf("violations = %+v, want 2", violations)
	}
	var missing, dup bool
	for _, v := range violations {
		switch {
		case v.name == "QBad" && strings.Contains(v.message, "missing"):
			missing = true
		case v.name == "QTwo" && strings.Contains(v.message, "already used by QOne"):
			dup = true
		}
	}
	if !missing || !dup {
		t.Fatalf("unexpected violations: %+v", violations)
	}
}

func TestLintTargetsInlineQueries(t *testing.T) {
	violations, err := lintTargets([]string{"../../sqlinline"})
	if err != nil {
		t.Fatalf("lintTargets: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("sqlinline violations: %+v", violations)
	}
}
