package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

type uploadResponse struct {
	Name      string `json:"name"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// Upload sends the local image at imagePath to the engine's input folder under subfolder and
// returns the reference a LoadImage node expects ("subfolder/name", or "name" without a
// subfolder). The stored name is prefixed with a timestamp so repeated uploads do not collide.
func (c *Client) Upload(ctx context.Context, imagePath, subfolder string) (string, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return "", fmt.Errorf("engine: open image: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	name := fmt.Sprintf("%s-%s", time.Now().Format("20060102150405"), filepath.Base(imagePath))

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, name))
	header.Set("Content-Type", contentTypeFor(imagePath))
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("engine: build upload: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("engine: read image: %w", err)
	}
	if err := mw.WriteField("subfolder", subfolder); err != nil {
		return "", fmt.Errorf("engine: build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("engine: build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload/image", body)
	if err != nil {
		return "", fmt.Errorf("engine: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "image/png,image/jpeg,image/jpg")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: upload: %v", ErrTransport, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read upload reply: %v", ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: http %d: %s", ErrUpload, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out uploadResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: decode upload reply: %v", ErrTransport, err)
	}
	if strings.TrimSpace(out.Name) == "" {
		return "", fmt.Errorf("%w: reply carries no name", ErrUpload)
	}

	ref := out.Name
	if subfolder != "" {
		ref = path.Join(subfolder, out.Name)
	}
	c.logger.Info().Str("image", ref).Msg("engine: image uploaded")
	return ref, nil
}

func contentTypeFor(imagePath string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(imagePath))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
