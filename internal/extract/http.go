package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/reliantlabs/medcat/internal/catalog"
)

// DefaultTimeout bounds one mapping-service call. Extraction of large or
// scanned files can be slow on the service side.
const DefaultTimeout = 2 * time.Minute

// HTTP calls the external mapping service to extract candidate records.
type HTTP struct {
	client *resty.Client
}

// NewHTTP builds an extractor against the mapping service at baseURL.
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

type extractRequest struct {
	FileURL string   `json:"file_url"`
	Kind    string   `json:"kind"`
	Fields  []string `json:"fields"`
}

// Extract posts the file URL and target schema to the mapping service and
// decodes the candidate records from its reply.
func (h *HTTP) Extract(ctx context.Context, fileURL string, def catalog.Definition) ([]catalog.Record, error) {
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(extractRequest{
			FileURL: fileURL,
			Kind:    string(def.Key),
			Fields:  def.FieldNames(),
		}).
		Post("/v1/extract")
	if err != nil {
		return nil, fmt.Errorf("call mapping service: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("mapping service returned %s", resp.Status())
	}

	return decodeResponse(resp.Body(), def)
}
