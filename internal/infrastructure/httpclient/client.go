// Package httpclient provides the shared outbound HTTP client the channel
// adapters are built on: one pooled session per account, a bounded retry
// ladder for transport failures, and Retry-After handling for rate limits.
package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/channel"
)

const (
	// defaultTimeout bounds one attempt
	defaultTimeout = 30 * time.Second
	// maxAttempts is the transport retry budget; 429 waits do not count
	maxAttempts = 3
	// baseBackoff doubles per attempt: 1s, 2s, 4s
	baseBackoff = 1 * time.Second
	// maxRateLimitWaits caps consecutive Retry-After sleeps so a
	// permanently throttled endpoint cannot pin a worker
	maxRateLimitWaits = 5
)

// Request describes one outbound call.
type Request struct {
	Method  string
	URL     string
	Query   map[string]string
	Headers map[string]string
	// Body is JSON-encoded when non-nil
	Body any
	// FormData sends application/x-www-form-urlencoded instead of JSON
	FormData map[string]string
	// BasicAuth switches on HTTP basic authentication
	BasicUser string
	BasicPass string
}

// Response is the decoded outcome of a call.
type Response struct {
	StatusCode int
	Header     http.Header
	// Body is the raw response body
	Body []byte
}

// DecodeJSON unmarshals the body, mapping decode failures to
// channel.ErrMalformedResponse so they never enter the retry ladder.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: %v", channel.ErrMalformedResponse, err)
	}
	return nil
}

// Client is one pooled session. Adapters hold one instance each so
// keep-alive connections are shared per account.
type Client struct {
	rc     *resty.Client
	logger *zap.Logger

	// sleep is swapped out in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures the client.
type Option func(*Client)

// WithTimeout overrides the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.rc.SetTimeout(d) }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a pooled client.
func New(opts ...Option) *Client {
	c := &Client{
		rc:     resty.New().SetTimeout(defaultTimeout),
		logger: zap.NewNop(),
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do executes the request with the retry policy:
//   - transport errors and 5xx retry up to three attempts with exponential
//     backoff (1s, 2s, 4s);
//   - 429 honors Retry-After and repeats without consuming an attempt;
//   - 4xx other than 429 returns immediately with the body for the caller
//     to classify.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	var lastErr error
	rateLimitWaits := 0

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := baseBackoff << uint(attempt-1)
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, fmt.Errorf("%w: %v", channel.ErrTransport, err)
			}
		}

		resp, err := c.attempt(ctx, req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", channel.ErrTransport, err)
			c.logger.Warn("outbound request failed",
				zap.String("method", req.Method),
				zap.String("url", req.URL),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			if rateLimitWaits >= maxRateLimitWaits {
				return resp, fmt.Errorf("%w: retry budget exhausted", channel.ErrRateLimited)
			}
			rateLimitWaits++
			wait := retryAfter(resp.Header)
			c.logger.Info("rate limited, honoring Retry-After",
				zap.String("url", req.URL),
				zap.Duration("wait", wait),
			)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, fmt.Errorf("%w: %v", channel.ErrTransport, err)
			}
			// Does not count against the attempt budget
			attempt--
			continue

		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%w: HTTP %d", channel.ErrTransport, resp.StatusCode)
			continue

		default:
			return resp, nil
		}
	}

	return nil, lastErr
}

// DoJSON executes the request and decodes a JSON response into out.
func (c *Client) DoJSON(ctx context.Context, req *Request, out any) (*Response, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return resp, err
	}
	if out != nil {
		if err := resp.DecodeJSON(out); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// attempt performs a single HTTP exchange.
func (c *Client) attempt(ctx context.Context, req *Request) (*Response, error) {
	r := c.rc.R().SetContext(ctx)
	if len(req.Query) > 0 {
		r.SetQueryParams(req.Query)
	}
	if len(req.Headers) > 0 {
		r.SetHeaders(req.Headers)
	}
	if req.BasicUser != "" {
		r.SetBasicAuth(req.BasicUser, req.BasicPass)
	}
	if req.FormData != nil {
		r.SetFormData(req.FormData)
	} else if req.Body != nil {
		r.SetHeader("Content-Type", "application/json")
		r.SetBody(req.Body)
	}

	resp, err := r.Execute(req.Method, req.URL)
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Body:       resp.Body(),
	}, nil
}

// retryAfter reads the Retry-After header in seconds, defaulting to one
// second when absent or unparseable.
func retryAfter(h http.Header) time.Duration {
	raw := h.Get("Retry-After")
	if raw == "" {
		return time.Second
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return time.Second
	}
	return time.Duration(secs) * time.Second
}

// sleepCtx sleeps unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
