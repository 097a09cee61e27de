package infra

import (
	"errors"
	"testing"
)

func TestSplitMarker(t *testing.T) {
	query := `--sql 7d1f0a52-3c3e-4a53-9b8e-1f6b2c0d4e11
select 1;
`
	marker, body, err := SplitMarker(query)
	if err != nil {
		t.Fatalf("SplitMarker returned error: %v", err)
	}
	if marker != "7d1f0a52-3c3e-4a53-9b8e-1f6b2c0d4e11" {
		t.Fatalf("marker = %q", marker)
	}
	if body != "select 1;" {
		t.Fatalf("body = %q", body)
	}
}

func TestSplitMarkerRejectsUntaggedQuery(t *testing.T) {
	if _, _, err := SplitMarker("select 1;"); !errors.Is(err, ErrSQLMarker) {
		t.Fatalf("err = %v, want ErrSQLMarker", err)
	}
	if _, _, err := SplitMarker("   "); err == nil {
		t.Fatal("expected error for empty query")
	}
}
