package library

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/openshelf/openshelf-go/internal/rest"
)

const uploadTimeout = 2 * time.Minute

// Media uploads cover images and book files to the upload host. The upload
// host speaks multipart, not the JSON envelope, so it has its own transport
// path outside the request engine.
type Media struct {
	uploadURL string
	uploadKey string
	http      *http.Client
}

// NewMedia builds the media service against the configured upload host.
func NewMedia(uploadURL, uploadKey string) *Media {
	return &Media{
		uploadURL: uploadURL,
		uploadKey: uploadKey,
		http:      &http.Client{Timeout: uploadTimeout},
	}
}

// uploadResponse is the upload host's reply.
type uploadResponse struct {
	Path string `json:"path"`
}

// Upload sends one file as multipart form data and returns the stored path
// reference the catalog records. The upload key travels as a basic-auth-style
// Authorization header.
func (m *Media) Upload(ctx context.Context, filename string, content io.Reader) (string, error) {
	if m.uploadURL == "" {
		return "", &rest.APIError{Message: "upload host not configured", Code: rest.CodeValidation}
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return "", fmt.Errorf("library: build upload form: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", fmt.Errorf("library: read upload content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("library: finish upload form: %w", err)
	}

	target := strings.TrimSuffix(m.uploadURL, "/") + "/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &body)
	if err != nil {
		return "", fmt.Errorf("library: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if m.uploadKey != "" {
		cred := base64.StdEncoding.EncodeToString([]byte("uploader:" + m.uploadKey))
		req.Header.Set("Authorization", "Basic "+cred)
	}

	resp, err := m.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &rest.APIError{Message: err.Error(), Code: rest.CodeNetwork}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &rest.APIError{Message: "read upload response: " + err.Error(), Code: rest.CodeNetwork}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &rest.APIError{
			Message: strings.TrimSpace(string(payload)),
			Status:  resp.StatusCode,
			Code:    rest.CodeAPI,
		}
	}

	var decoded uploadResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", fmt.Errorf("library: decode upload response: %w", err)
	}
	if decoded.Path == "" {
		return "", &rest.APIError{Message: "upload returned no path", Code: rest.CodeAPI}
	}
	return decoded.Path, nil
}
