package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestArchiveAssets(t *testing.T) {
	raw, err := ArchiveAssets([]Asset{
		{Filename: "output/t1-result_1.png", Data: []byte("one")},
		{Filename: "other/t1-result_1.png", Data: []byte("two")},
		{Filename: "t1-background_1.png", Data: []byte("three")},
	})
	if err != nil {
		t.Fatalf("ArchiveAssets: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	got := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		got[f.Name] = string(data)
	}
	want := map[string]string{
		"t1-result_1.png":     "one",
		"t1-result_1_2.png":   "two",
		"t1-background_1.png": "three",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("archive contents mismatch (-want +got):\n%s", diff)
	}
}

func TestArchiveAssetsEmpty(t *testing.T) {
	raw, err := ArchiveAssets(nil)
	if err != nil {
		t.Fatalf("ArchiveAssets: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 0 {
		t.Fatalf("expected empty archive, got %d files", len(zr.File))
	}
}
