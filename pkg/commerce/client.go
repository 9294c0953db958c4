// Package commerce talks to the Shopify Admin REST API. Every request goes
// through a shared Gate and is retried with backoff on throttling and
// server errors.
package commerce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sipeed/ordersync/pkg/logger"
)

const (
	DefaultMaxAttempts = 5
	DefaultRetryBase   = time.Second
	DefaultRetryCap    = 10 * time.Second

	// MaxRetryAfter bounds a server-supplied Retry-After hint.
	MaxRetryAfter = time.Minute

	maxErrorBodyBytes = 4096
)

// APIError describes a non-success response from the commerce API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Status     string
	Body       string
	Attempts   int
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("shopify %s %s: %s", e.Method, e.Path, e.Status)
	if body := strings.TrimSpace(e.Body); body != "" {
		msg += ": " + body
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" (after %d attempts)", e.Attempts)
	}
	return msg
}

// Retryable reports whether the status is throttling or a server error.
func (e *APIError) Retryable() bool {
	return isRetryableStatus(e.StatusCode)
}

type ClientOptions struct {
	StoreDomain string
	AccessToken string
	APIVersion  string
	// BaseURL overrides the https://<domain>/admin/api/<version> default.
	BaseURL     string
	HTTPClient  *http.Client
	Gate        *Gate
	MaxAttempts int
	RetryBase   time.Duration
	RetryCap    time.Duration
	SleepFn     func(ctx context.Context, d time.Duration) error
}

type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	gate        *Gate
	maxAttempts int
	retryBase   time.Duration
	retryCap    time.Duration
	sleepFn     func(ctx context.Context, d time.Duration) error
}

func NewClient(opts ClientOptions) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		domain := strings.TrimSpace(opts.StoreDomain)
		domain = strings.TrimPrefix(strings.TrimPrefix(domain, "https://"), "http://")
		domain = strings.TrimRight(domain, "/")
		if domain == "" {
			return nil, fmt.Errorf("store domain is required")
		}
		version := strings.TrimSpace(opts.APIVersion)
		if version == "" {
			return nil, fmt.Errorf("API version is required")
		}
		baseURL = fmt.Sprintf("https://%s/admin/api/%s", domain, version)
	}
	if strings.TrimSpace(opts.AccessToken) == "" {
		return nil, fmt.Errorf("access token is required")
	}

	c := &Client{
		baseURL:     baseURL,
		accessToken: opts.AccessToken,
		httpClient:  opts.HTTPClient,
		gate:        opts.Gate,
		maxAttempts: opts.MaxAttempts,
		retryBase:   opts.RetryBase,
		retryCap:    opts.RetryCap,
		sleepFn:     opts.SleepFn,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.gate == nil {
		c.gate = NewGate(DefaultMinGap)
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.retryBase <= 0 {
		c.retryBase = DefaultRetryBase
	}
	if c.retryCap <= 0 {
		c.retryCap = DefaultRetryCap
	}
	if c.sleepFn == nil {
		c.sleepFn = sleepContext
	}
	return c, nil
}

// Get performs a GET against path (relative to the API base) and decodes the
// JSON body into out. Each attempt waits for its own turn at the gate.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	for attempt := 1; ; attempt++ {
		body, resp, err := c.do(ctx, target)
		if err != nil {
			return fmt.Errorf("shopify GET %s: %w", path, err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("decode shopify %s response: %w", path, err)
			}
			return nil
		}

		apiErr := &APIError{
			Method:     http.MethodGet,
			Path:       path,
			StatusCode: resp.StatusCode,
			Status:     statusText(resp),
			Body:       string(body),
			Attempts:   attempt,
		}
		if !apiErr.Retryable() || attempt >= c.maxAttempts {
			return apiErr
		}

		delay := c.retryDelay(resp, attempt)
		logger.WarnCF("commerce", "Shopify request throttled, retrying", map[string]any{
			"path":     path,
			"status":   resp.StatusCode,
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
		})
		if err := c.sleepFn(ctx, delay); err != nil {
			return fmt.Errorf("shopify GET %s: %w", path, err)
		}
	}
}

func (c *Client) do(ctx context.Context, target string) ([]byte, *http.Response, error) {
	release, err := c.gate.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 300 && len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
	}
	return body, resp, nil
}

// retryDelay prefers the server's Retry-After hint, bounded by the larger of
// the retry cap and MaxRetryAfter, and otherwise grows linearly with the
// attempt number up to the cap.
func (c *Client) retryDelay(resp *http.Response, attempt int) time.Duration {
	if d, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
		return min(d, max(c.retryCap, MaxRetryAfter))
	}
	return BackoffDelay(c.retryBase, c.retryCap, attempt)
}

func BackoffDelay(base, maxDelay time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base * time.Duration(attempt)
	if d > maxDelay || d <= 0 {
		return maxDelay
	}
	return d
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 {
			return 0, false
		}
		// Larger values would overflow time.Duration.
		if secs >= math.MaxInt64/float64(time.Second) {
			return time.Duration(math.MaxInt64), true
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func statusText(resp *http.Response) string {
	if resp.Status != "" {
		return resp.Status
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsNotFound reports whether err means the order does not exist.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrOrderNotFound) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
