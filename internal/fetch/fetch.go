// Package fetch executes vendor HTTP calls with bounded retries, client-side
// rate limiting and parallel fan-out over tickers and fields.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"quantdata/internal/errors"
	"quantdata/internal/wrangle"
)

// Call describes one vendor HTTP request and the response slot it fills.
type Call struct {
	// Ticker and Field label the response for wrangling. Either may be
	// empty when the vendor returns multi-ticker or multi-field payloads.
	Ticker string
	Field  string

	URL     string
	Query   url.Values
	Headers map[string]string
}

// Client is a retrying, rate-limited HTTP client for vendor APIs.
type Client struct {
	vendor  string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	workers int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit caps the request rate in requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithWorkers sets the fan-out concurrency for FetchAll.
func WithWorkers(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client for one vendor.
func NewClient(vendor string, opts ...Option) *Client {
	c := &Client{
		vendor:  vendor,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(4), 8),
		logger:  slog.Default(),
		workers: 4,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do executes one call, retrying up to trials times with pause between
// attempts. Client errors other than rate limiting are not retried.
func (c *Client) Do(ctx context.Context, call Call, trials int, pause time.Duration) ([]byte, error) {
	if trials < 1 {
		trials = 1
	}
	requestID := uuid.NewString()
	logger := c.logger.With("vendor", c.vendor, "request_id", requestID, "ticker", call.Ticker)

	var lastErr error
	for attempt := 0; attempt < trials; attempt++ {
		if attempt > 0 {
			retriesTotal.WithLabelValues(c.vendor).Inc()
			logger.Debug("retrying request", "attempt", attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(pause):
			}
		}

		body, retryable, err := c.do(ctx, call, requestID)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	logger.Warn("request failed", "error", lastErr, "trials", trials)
	return nil, fmt.Errorf("%s request failed after %d trials: %w", c.vendor, trials, lastErr)
}

func (c *Client) do(ctx context.Context, call Call, requestID string) (body []byte, retryable bool, err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, call.URL, nil)
	if err != nil {
		return nil, false, err
	}
	if len(call.Query) > 0 {
		req.URL.RawQuery = call.Query.Encode()
	}
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	for k, v := range call.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	requestDuration.WithLabelValues(c.vendor).Observe(time.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues(c.vendor, "error").Inc()
		return nil, true, err
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(c.vendor, strconv.Itoa(resp.StatusCode)).Inc()
	body, err = io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, true, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("status %d from %s", resp.StatusCode, req.URL.Host)
	default:
		return nil, false, errors.Newf(errors.CodeBadResponse,
			"status %d from %s", resp.StatusCode, req.URL.Host)
	}
}

// FetchAll executes the calls in parallel and returns one response per
// successful call, in call order. Individual failures are logged and
// skipped; only when every call fails is an error returned.
func (c *Client) FetchAll(ctx context.Context, calls []Call, trials int, pause time.Duration) ([]wrangle.Response, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	results := make([]*wrangle.Response, len(calls))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			body, err := c.Do(ctx, call, trials, pause)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return nil
			}
			results[i] = &wrangle.Response{
				Ticker: call.Ticker,
				Field:  call.Field,
				Raw:    decode(body),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]wrangle.Response, 0, len(calls))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	if len(out) == 0 {
		return nil, errors.Newf(errors.CodeEmptyResponse,
			"no %s response for any of %d requests", c.vendor, len(calls))
	}
	if len(out) < len(calls) {
		c.logger.Warn("partial fetch", "vendor", c.vendor, "ok", len(out), "requested", len(calls))
	}
	return out, nil
}

// decode parses a JSON body, falling back to the raw bytes for vendors that
// return binary payloads such as spreadsheets.
func decode(body []byte) any {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return body
	}
	return v
}
