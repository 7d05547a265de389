package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	kerrors "github.com/PolarWolf314/cryptdrive/internal/errors"
	"github.com/PolarWolf314/cryptdrive/internal/retry"

	"github.com/hashicorp/go-cleanhttp"
)

const maxErrorBody = 4 << 10

// Client talks to the drive backend. All bodies are JSON and every request
// carries the bearer token.
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	userAgent  string
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the pooled default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithTimeout bounds every request made by the client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New returns a client for the backend at baseURL.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: server base URL is empty", kerrors.ErrNotConfigured)
	}
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid server base URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server base URL %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL:    u,
		token:      token,
		httpClient: cleanhttp.DefaultPooledClient(),
		userAgent:  "cryptdrive",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.baseURL.JoinPath(escaped...).String()
}

// do sends one request. Every error it returns is a *retry.Outcome so the
// retry loop never has to inspect HTTP details.
func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return retry.Fail(retry.NonRetryable, 0, fmt.Errorf("failed to encode request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return retry.Fail(retry.NonRetryable, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyStatus(method, req.URL.Path, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return classifyTransport(ctx, err)
		}
		return retry.Fail(retry.Retryable, resp.StatusCode, fmt.Errorf("%w: malformed response from %s: %v", kerrors.ErrServerError, req.URL.Path, err))
	}
	return nil
}

func classifyTransport(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return retry.Fail(retry.Cancelled, 0, fmt.Errorf("%w: %w", kerrors.ErrCancelled, ctxErr))
	}
	if errors.Is(err, context.Canceled) {
		return retry.Fail(retry.Cancelled, 0, fmt.Errorf("%w: %w", kerrors.ErrCancelled, err))
	}
	return retry.Fail(retry.Retryable, 0, fmt.Errorf("%w: %v", kerrors.ErrNetworkFailure, err))
}

func classifyStatus(method, path string, resp *http.Response) error {
	msg := readErrorMessage(resp.Body)

	switch {
	case resp.StatusCode >= 500:
		return retry.Fail(retry.Retryable, resp.StatusCode,
			fmt.Errorf("%w: %s %s: %d %s", kerrors.ErrServerError, method, path, resp.StatusCode, msg))
	default:
		return retry.Fail(retry.NonRetryable, resp.StatusCode,
			fmt.Errorf("%w: %s %s: %d %s", kerrors.ErrClientRequest, method, path, resp.StatusCode, msg))
	}
}

func readErrorMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(data))
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var o *retry.Outcome
	if errors.As(err, &o) {
		return o.Status
	}
	return 0
}
