package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultTimeout = 120 * time.Second

// Client talks to the answer-generation service and its identity, team and
// connector endpoints. It is safe for concurrent use.
type Client struct {
	apiURL string
	client *http.Client
	logger *slog.Logger

	mu             sync.RWMutex
	token          string
	onUnauthorized func(token string)
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client = &http.Client{Timeout: d}
		}
	}
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(apiURL string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		apiURL: strings.TrimRight(apiURL, "/"),
		client: &http.Client{Timeout: defaultTimeout},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) APIURL() string { return c.apiURL }

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// OnUnauthorized registers fn to run when a request carrying a token is
// rejected with 401. fn receives the token that was rejected so a
// handler can ignore rejections of a token that has since been replaced.
func (c *Client) OnUnauthorized(fn func(token string)) {
	c.mu.Lock()
	c.onUnauthorized = fn
	c.mu.Unlock()
}

type call struct {
	method string
	path   string
	query  url.Values
	body   any
	authed bool
}

func (c *Client) do(ctx context.Context, in call, out any) error {
	var token string
	if in.authed {
		token = c.Token()
		if token == "" {
			return ErrNoToken
		}
	}

	var reader io.Reader
	if in.body != nil {
		payload, err := json.Marshal(in.body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	target := c.apiURL + in.path
	if len(in.query) > 0 {
		target += "?" + in.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, in.method, target, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	op := in.method + " " + in.path
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: "read response", Err: err}
	}

	c.logger.Debug("backend request", "method", in.method, "path", in.path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := errorFromResponse(resp.StatusCode, respBody)
		if in.authed && IsAuth(apiErr) {
			c.mu.RLock()
			fn := c.onUnauthorized
			c.mu.RUnlock()
			if fn != nil {
				fn(token)
			}
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &TransportError{Op: "decode " + in.path, Err: err}
	}
	return nil
}

func pathf(format string, ids ...ID) string {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = url.PathEscape(string(id))
	}
	return fmt.Sprintf(format, args...)
}

type messageResponse struct {
	Message string `json:"message"`
}
