package upload

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// DefaultTimeout bounds one storage upload.
const DefaultTimeout = 5 * time.Minute

// HTTP posts files to the external storage service as multipart form data.
type HTTP struct {
	client *resty.Client
}

// NewHTTP builds an uploader against the storage service at baseURL.
// A non-positive timeout falls back to DefaultTimeout.
func NewHTTP(baseURL string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &HTTP{client: client}
}

// Upload sends the file and returns the URL the service assigned to it.
func (h *HTTP) Upload(ctx context.Context, fileName string, data []byte) (string, error) {
	resp, err := h.client.R().
		SetContext(ctx).
		SetFileReader("file", fileName, bytes.NewReader(data)).
		Post("/v1/files")
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", fileName, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("storage service returned %s", resp.Status())
	}

	url := gjson.GetBytes(resp.Body(), "url").String()
	if url == "" {
		return "", fmt.Errorf("storage service returned no file URL")
	}
	return url, nil
}
