// Package client talks to the Eventify REST API and adapts its list endpoints
// to the listing data source contract.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/alfredjeanlab/eventify/internal/idgen"
)

// Defaults for NewHTTPClient.
const (
	DefaultTimeout    = 15 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryWait  = 200 * time.Millisecond
)

// HTTPClient is a thin JSON client for the Eventify REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries uint64
	retryWait  time.Duration
	log        *slog.Logger
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithTimeout sets the per-attempt timeout of the underlying http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) { c.httpClient.Timeout = d }
}

// WithRetries sets how many times a GET is retried and the first backoff
// interval. Zero retries disables retrying.
func WithRetries(n uint64, initial time.Duration) Option {
	return func(c *HTTPClient) {
		c.maxRetries = n
		c.retryWait = initial
	}
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *HTTPClient) { c.log = l }
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8000/api"). When token is non-empty, an
// Authorization header is set on every request.
func NewHTTPClient(baseURL, token string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryWait:  DefaultRetryWait,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client was created with.
func (c *HTTPClient) BaseURL() string { return c.baseURL }

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// GetDocument performs a GET and decodes the JSON body into a generic
// document (maps, slices, float64, string, bool, nil). Transport failures and
// 5xx/429 responses are retried with exponential backoff.
func (c *HTTPClient) GetDocument(ctx context.Context, path string, query url.Values) (any, error) {
	var doc any
	if err := c.GetJSON(ctx, path, query, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// GetJSON performs a GET with retries and decodes the response into result.
func (c *HTTPClient) GetJSON(ctx context.Context, path string, query url.Values, result any) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	reqID := idgen.MustWithPrefix(idgen.RequestPrefix)

	var b backoff.BackOff = backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(c.retryWait),
		backoff.WithMaxElapsedTime(0),
	)
	b = backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)

	attempt := 0
	op := func() error {
		attempt++
		err := c.get(ctx, path, reqID, result)
		if err == nil || !retryable(ctx, err) {
			if err != nil {
				return backoff.Permanent(err)
			}
			return nil
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.log.Warn("client: retrying request",
			"path", path, "request_id", reqID, "attempt", attempt, "wait", wait, "err", err)
	}
	return backoff.RetryNotify(op, b, notify)
}

// retryable reports whether a failed attempt is worth repeating.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	var te *transportError
	return errors.As(err, &te)
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// transportError marks failures where no HTTP response was received.
type transportError struct{ err error }

func (e *transportError) Error() string { return "performing request: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// get performs one GET attempt and decodes the JSON response.
// If result is nil, the response body is discarded (for 204 responses).
func (c *HTTPClient) get(ctx context.Context, path, reqID string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &transportError{err: err}
	}
	defer resp.Body.Close()

	// 204 No Content: success with no body.
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &transportError{err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}

// errorMessage pulls a human-readable message out of an error body. The
// backend answers with {"detail": ...}, {"error": ...} or {"message": ...}
// depending on the view.
func errorMessage(body []byte) string {
	var errResp struct {
		Detail  string `json:"detail"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &errResp) == nil {
		switch {
		case errResp.Detail != "":
			return errResp.Detail
		case errResp.Error != "":
			return errResp.Error
		case errResp.Message != "":
			return errResp.Message
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "no response body"
	}
	return msg
}
