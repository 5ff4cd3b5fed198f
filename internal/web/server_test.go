package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/reliantlabs/medcat/internal/catalog"
	_ "github.com/reliantlabs/medcat/internal/catalog/kinds"
	"github.com/reliantlabs/medcat/internal/config"
	"github.com/reliantlabs/medcat/internal/extract"
	"github.com/reliantlabs/medcat/internal/imports"
	"github.com/reliantlabs/medcat/internal/source"
	"github.com/reliantlabs/medcat/internal/store"
	"github.com/reliantlabs/medcat/internal/upload"
)

// ==== Test fixtures ====

const diagCSV = "code,condition_name\nE11.9,Type 2 diabetes\nI10,Hypertension\n"

// stubSource is a canned upstream source for handler tests.
type stubSource struct {
	name    string
	kind    catalog.Kind
	records []catalog.Record
}

func (s stubSource) Name() string       { return s.name }
func (s stubSource) Kind() catalog.Kind { return s.kind }

func (s stubSource) Fetch(_ context.Context, limit int) ([]catalog.Record, error) {
	if limit < len(s.records) {
		return s.records[:limit], nil
	}
	return s.records, nil
}

// newTestServer builds a Server over in-memory dependencies. Rate limiting
// and API key auth default to off; tests that exercise them flip the config
// through mutate.
func newTestServer(t *testing.T, mutate ...func(*config.Config)) (*Server, *store.Memory) {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{RequestTimeout: time.Minute},
		Upload: config.UploadConfig{
			MaxFileSize:   1 << 20,
			MaxConcurrent: 1,
			MaxWaitTime:   time.Second,
		},
	}
	for _, m := range mutate {
		m(cfg)
	}

	st := store.NewMemory()
	files := upload.NewMemory()
	svc := imports.New(st, files, extract.NewLocal(files), imports.Options{
		MaxConcurrent: cfg.Upload.MaxConcurrent,
		MaxWait:       cfg.Upload.MaxWaitTime,
	})
	runner := source.NewRunner(st, 10, stubSource{
		name: "stub",
		kind: catalog.KindDrug,
		records: []catalog.Record{
			{"generic_name": "Metformin", "ndc": "0093-1048"},
		},
	})

	return NewServer(svc, st, runner, cfg), st
}

func do(t *testing.T, h http.Handler, method, target string, body io.Reader, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response %q: %v", rr.Body.String(), err)
	}
}

// multipartFile encodes data as a multipart upload with optional extra
// form fields.
func multipartFile(t *testing.T, fileName string, data []byte, fields map[string]string) (io.Reader, string) {
	t.Helper()

	var buf bytes.Buffer
	mp := multipart.NewWriter(&buf)
	fw, err := mp.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("writing form file: %v", err)
	}
	for k, v := range fields {
		if err := mp.WriteField(k, v); err != nil {
			t.Fatalf("writing form field %s: %v", k, err)
		}
	}
	if err := mp.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}
	return &buf, mp.FormDataContentType()
}

// ==== Security headers ====

func TestSecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(t, srv.Router(), http.MethodGet, "/healthz", nil, nil)

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for header, val := range want {
		if got := rr.Header().Get(header); got != val {
			t.Errorf("%s = %q, want %q", header, got, val)
		}
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Error("Content-Security-Policy header missing")
	}
}

// ==== Rate limiting ====

func TestRateLimitBlocksAfterBudget(t *testing.T) {
	srv, _ := newTestServer(t, func(c *config.Config) {
		c.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2}
	})

	for i := 0; i < 2; i++ {
		rr := do(t, srv.Router(), http.MethodGet, "/healthz", nil, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rr.Code)
		}
	}

	rr := do(t, srv.Router(), http.MethodGet, "/healthz", nil, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want %q", rr.Header().Get("Retry-After"), "60")
	}
	var resp map[string]string
	decodeJSON(t, rr, &resp)
	if resp["error"] == "" {
		t.Error("429 response should carry an error message")
	}
}

func TestRateLimitHonorsTrustedProxyHeaders(t *testing.T) {
	// httptest requests arrive from 192.0.2.1, so trusting that address
	// makes the limiter key on X-Real-IP.
	srv, _ := newTestServer(t, func(c *config.Config) {
		c.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1}
		c.Security.TrustedProxies = []string{"192.0.2.1"}
	})

	first := do(t, srv.Router(), http.MethodGet, "/healthz", nil, map[string]string{"X-Real-IP": "10.1.1.1"})
	if first.Code != http.StatusOK {
		t.Fatalf("first client status = %d, want 200", first.Code)
	}

	other := do(t, srv.Router(), http.MethodGet, "/healthz", nil, map[string]string{"X-Real-IP": "10.1.1.2"})
	if other.Code != http.StatusOK {
		t.Fatalf("second client status = %d, want 200", other.Code)
	}

	repeat := do(t, srv.Router(), http.MethodGet, "/healthz", nil, map[string]string{"X-Real-IP": "10.1.1.1"})
	if repeat.Code != http.StatusTooManyRequests {
		t.Fatalf("repeat client status = %d, want 429", repeat.Code)
	}
}

func TestRateLimitIgnoresSpoofedHeaders(t *testing.T) {
	// Without trusted proxies every request keys on the socket address,
	// so rotating X-Real-IP must not widen the budget.
	srv, _ := newTestServer(t, func(c *config.Config) {
		c.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1}
	})

	first := do(t, srv.Router(), http.MethodGet, "/healthz", nil, map[string]string{"X-Real-IP": "10.1.1.1"})
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", first.Code)
	}

	spoofed := do(t, srv.Router(), http.MethodGet, "/healthz", nil, map[string]string{"X-Real-IP": "10.1.1.2"})
	if spoofed.Code != http.StatusTooManyRequests {
		t.Fatalf("spoofed request status = %d, want 429", spoofed.Code)
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl := newRateLimiter(1, 30*time.Millisecond)

	if !rl.allow("10.0.0.1") {
		t.Fatal("first request should pass")
	}
	if rl.allow("10.0.0.1") {
		t.Fatal("second request inside the window should be blocked")
	}

	time.Sleep(40 * time.Millisecond)
	if !rl.allow("10.0.0.1") {
		t.Fatal("request after the window should pass again")
	}
}

// ==== API key auth ====

func TestAPIKeyAuth(t *testing.T) {
	srv, _ := newTestServer(t, func(c *config.Config) {
		c.Security.RequireAPIKey = true
		c.Security.APIKeys = []string{"test-key-1"}
	})

	t.Run("missing key", func(t *testing.T) {
		rr := do(t, srv.Router(), http.MethodGet, "/api/kinds", nil, nil)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rr.Code)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		rr := do(t, srv.Router(), http.MethodGet, "/api/kinds", nil, map[string]string{"X-API-Key": "nope"})
		if rr.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rr.Code)
		}
	})

	t.Run("valid key", func(t *testing.T) {
		rr := do(t, srv.Router(), http.MethodGet, "/api/kinds", nil, map[string]string{"X-API-Key": "test-key-1"})
		if rr.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rr.Code)
		}
	})

	t.Run("healthz needs no key", func(t *testing.T) {
		rr := do(t, srv.Router(), http.MethodGet, "/healthz", nil, nil)
		if rr.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rr.Code)
		}
	})
}
