// Package zip bundles stored poster images into a single archive.
package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

type Asset struct {
	Filename string
	Data     []byte
	Modified time.Time
}

// Write streams assets into a zip archive on w. Duplicate names get a numeric suffix before
// the extension so nothing is overwritten inside the archive.
func Write(w io.Writer, assets []Asset) error {
	zw := zip.NewWriter(w)
	seen := make(map[string]int, len(assets))
	for _, asset := range assets {
		name := uniqueName(seen, path.Base(asset.Filename))
		header := &zip.FileHeader{Name: name, Method: zip.Deflate}
		if !asset.Modified.IsZero() {
			header.Modified = asset.Modified
		}
		fw, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("zip: create %s: %w", name, err)
		}
		if _, err := fw.Write(asset.Data); err != nil {
			return fmt.Errorf("zip: write %s: %w", name, err)
		}
	}
	return zw.Close()
}

// ArchiveAssets returns the archive bytes.
func ArchiveAssets(assets []Asset) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, assets); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func uniqueName(seen map[string]int, name string) string {
	if name == "" || name == "." || name == "/" {
		name = "file"
	}
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	candidate := fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n+1, ext)
	if _, taken := seen[candidate]; taken {
		return uniqueName(seen, candidate)
	}
	seen[candidate] = 1
	return candidate
}
