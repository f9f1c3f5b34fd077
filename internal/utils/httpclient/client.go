// internal/utils/httpclient/client.go
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rovshanmuradov/launch-sniper/internal/utils/retry"
)

const maxErrorBody = 512

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, url: %s, body: %s", e.Code, e.URL, e.Body)
}

// StatusCode returns the HTTP status code.
func (e *StatusError) StatusCode() int {
	return e.Code
}

// Config configures a JSON API client.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	RatePerSecond float64 // 0 disables client-side limiting
	Burst         int
	Headers       map[string]string
	Retry         retry.Policy
}

// Client sends JSON requests to a single API with client-side rate limiting
// and the shared retry policy.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	headers map[string]string
	policy  retry.Policy
	logger  *zap.Logger
}

// New creates a client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		headers: cfg.Headers,
		policy:  cfg.Retry,
		logger:  logger,
	}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetJSON performs GET baseURL+path?query and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, target, nil, out)
}

// PostJSON posts body as JSON to baseURL+path and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.baseURL+path, payload, out)
}

func (c *Client) do(ctx context.Context, method, target string, payload []byte, out any) error {
	_, err := retry.Do(ctx, c.policy, c.logger, method+" "+target, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.once(ctx, method, target, payload, out)
	})
	return err
}

func (c *Client) once(ctx context.Context, method, target string, payload []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, URL: req.URL.Redacted(), Body: string(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
