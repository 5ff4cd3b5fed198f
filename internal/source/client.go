package source

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// Upstream HTTP tunables.
var (
	// DefaultRequestTimeout bounds one upstream request.
	DefaultRequestTimeout = 30 * time.Second
	// DefaultPageDelay paces consecutive page fetches against the same
	// upstream. Public reference APIs throttle aggressively.
	DefaultPageDelay = 500 * time.Millisecond
	// DefaultRetryAttempts is how many times a transient failure is
	// retried before the run gives up.
	DefaultRetryAttempts uint64 = 3
	// DefaultRetryBase seeds the fibonacci backoff.
	DefaultRetryBase = 500 * time.Millisecond
)

// newClient builds the shared resty client for one upstream.
func newClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(DefaultRequestTimeout).
		SetHeader("Accept", "application/json")
}

// newPager builds the token bucket that paces page fetches.
func newPager() *rate.Limiter {
	return rate.NewLimiter(rate.Every(DefaultPageDelay), 1)
}

// fetchJSON performs one GET and parses the body. Network errors, 429 and
// 5xx responses retry with fibonacci backoff; other HTTP errors fail
// immediately since retrying a 404 will not improve it.
func fetchJSON(ctx context.Context, client *resty.Client, path string, params map[string]string) (gjson.Result, error) {
	var body []byte

	backoff := retry.WithMaxRetries(DefaultRetryAttempts, retry.NewFibonacci(DefaultRetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := client.R().
			SetContext(ctx).
			SetQueryParams(params).
			Get(path)
		if err != nil {
			return retry.RetryableError(err)
		}
		if resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500 {
			return retry.RetryableError(fmt.Errorf("upstream status %s", resp.Status()))
		}
		if resp.IsError() {
			return fmt.Errorf("upstream status %s", resp.Status())
		}
		body = resp.Body()
		return nil
	})
	if err != nil {
		return gjson.Result{}, err
	}

	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("upstream returned invalid JSON")
	}
	return gjson.ParseBytes(body), nil
}
