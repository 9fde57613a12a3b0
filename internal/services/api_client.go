package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// DefaultBackoff is the wait before each retry
var DefaultBackoff = []time.Duration{200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}

// Client represents an API client with connection pooling and retries
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Headers    map[string]string
	Backoff    []time.Duration
}

// RequestOptions provides options for API requests
type RequestOptions struct {
	Headers     map[string]string
	QueryParams map[string]string
	// Timeout bounds each attempt, not the whole call
	Timeout      time.Duration
	ResponseType string // "json", "text", "binary"
	// Retries defaults to len(Backoff). A negative value disables retries.
	Retries int
	// Form sends an application/x-www-form-urlencoded body instead of JSON
	Form url.Values
	// RawBody is sent as-is with ContentType
	RawBody     []byte
	ContentType string
	// ResponseHeaders receives the headers of the successful response
	ResponseHeaders *http.Header
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API request failed with status code %d: %s", e.StatusCode, e.Body)
}

// ClientConfig holds configuration for the API client
type ClientConfig struct {
	BaseURL             string
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	DialTimeout         time.Duration
	KeepAlive           time.Duration
	TLSHandshakeTimeout time.Duration
	UserAgent           string
}

// DefaultClientConfig returns defaults for the API client
func DefaultClientConfig(baseURL string) *ClientConfig {
	return &ClientConfig{
		BaseURL:             baseURL,
		Timeout:             60 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialTimeout:         10 * time.Second,
		KeepAlive:           30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		UserAgent:           "postcraft-edge/1.0",
	}
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return NewClientWithConfig(DefaultClientConfig(baseURL))
}

// NewClientWithConfig creates a new API client with custom configuration
func NewClientWithConfig(config *ClientConfig) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: config.KeepAlive,
		}).DialContext,
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		TLSHandshakeTimeout: config.TLSHandshakeTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		BaseURL: strings.TrimRight(config.BaseURL, "/"),
		HTTPClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
		Headers: map[string]string{
			"Accept":     "application/json",
			"User-Agent": config.UserAgent,
		},
		Backoff: DefaultBackoff,
	}
}

// Get performs a GET request
func (c *Client) Get(ctx context.Context, path string, result any, opts *RequestOptions) error {
	return c.doRequest(ctx, http.MethodGet, path, nil, result, opts)
}

// Post performs a POST request
func (c *Client) Post(ctx context.Context, path string, body, result any, opts *RequestOptions) error {
	return c.doRequest(ctx, http.MethodPost, path, body, result, opts)
}

// Put performs a PUT request
func (c *Client) Put(ctx context.Context, path string, body, result any, opts *RequestOptions) error {
	return c.doRequest(ctx, http.MethodPut, path, body, result, opts)
}

// Delete performs a DELETE request
func (c *Client) Delete(ctx context.Context, path string, result any, opts *RequestOptions) error {
	return c.doRequest(ctx, http.MethodDelete, path, nil, result, opts)
}

// doRequest performs an HTTP request with retries
func (c *Client) doRequest(ctx context.Context, method, path string, body, result any, opts *RequestOptions) error {
	if opts == nil {
		opts = &RequestOptions{}
	}

	payload, contentType, err := encodeBody(body, opts)
	if err != nil {
		return err
	}

	backoff := c.Backoff
	retries := opts.Retries
	if retries == 0 {
		retries = len(backoff)
	}
	if retries < 0 {
		retries = 0
	}

	target := c.resolveURL(path)

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			delay := backoff[min(attempt-1, len(backoff)-1)]
			fiberlog.Debugf("retrying %s %s in %v (attempt %d): %v", method, target, delay, attempt+1, lastErr)
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}

		err := c.executeRequest(ctx, method, target, payload, contentType, result, opts)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryableError(ctx, err) {
			return err
		}
	}

	return fmt.Errorf("request failed after %d attempts: %w", retries+1, lastErr)
}

func (c *Client) resolveURL(path string) string {
	if strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return path
	}
	return c.BaseURL + path
}

func encodeBody(body any, opts *RequestOptions) ([]byte, string, error) {
	switch {
	case opts.RawBody != nil:
		ct := opts.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		return opts.RawBody, ct, nil
	case opts.Form != nil:
		return []byte(opts.Form.Encode()), "application/x-www-form-urlencoded", nil
	case body != nil:
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("error marshaling request body: %w", err)
		}
		return jsonBody, "application/json", nil
	default:
		return nil, "", nil
	}
}

// executeRequest performs a single HTTP request
func (c *Client) executeRequest(ctx context.Context, method, target string, payload []byte, contentType string, result any, opts *RequestOptions) error {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	if len(opts.QueryParams) > 0 {
		q := req.URL.Query()
		for k, v := range opts.QueryParams {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("error executing request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			fiberlog.Errorf("Error closing response body: %v", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	if opts.ResponseHeaders != nil {
		*opts.ResponseHeaders = resp.Header.Clone()
	}

	return handleResponse(resp, result, opts)
}

// handleResponse processes the HTTP response based on the expected type
func handleResponse(resp *http.Response, result any, opts *RequestOptions) error {
	if result == nil {
		_, err := io.Copy(io.Discard, resp.Body)
		return err
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	switch opts.ResponseType {
	case "", "json":
		if len(bytes.TrimSpace(bodyBytes)) == 0 {
			return nil
		}
		if err := json.Unmarshal(bodyBytes, result); err != nil {
			return fmt.Errorf("error unmarshaling response: %w", err)
		}
		return nil
	case "text":
		stringResult, ok := result.(*string)
		if !ok {
			return fmt.Errorf("result must be *string for text response")
		}
		*stringResult = string(bodyBytes)
		return nil
	case "binary":
		bytesResult, ok := result.(*[]byte)
		if !ok {
			return fmt.Errorf("result must be *[]byte for binary response")
		}
		*bytesResult = bodyBytes
		return nil
	default:
		return fmt.Errorf("unsupported response type: %s", opts.ResponseType)
	}
}

// IsRetryableStatus reports whether a response status is worth retrying
func IsRetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return code >= 500 && code <= 599
}

// isRetryableError determines if an error is retryable. A cancelled or
// expired caller context is never retried.
func isRetryableError(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return IsRetryableStatus(statusErr.StatusCode)
	}

	// per-attempt timeout
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Close closes idle connections of the underlying HTTP client
func (c *Client) Close() {
	if transport, ok := c.HTTPClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
