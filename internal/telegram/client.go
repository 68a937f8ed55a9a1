package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// maxBody caps how much of a response is read.
const maxBody = 1 << 20

// Client performs Bot API calls over HTTP. Each worker owns its own Client
// so a Reset never disturbs another worker's in-flight call.
type Client struct {
	base  string
	token string

	mu   sync.Mutex
	http *http.Client
}

// New creates a client for the bot identified by token.
func New(base, token string) *Client {
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  newHTTPClient(),
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
}

// Perform issues req as a GET and returns the body of a 2xx response.
func (c *Client) Perform(ctx context.Context, req Request) ([]byte, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	u := c.base + "/bot" + c.token + "/" + req.Method
	if len(req.Params) > 0 {
		u += "?" + req.Params.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, c.redact(fmt.Errorf("build %s request: %w", req.Method, err))
	}

	c.mu.Lock()
	hc := c.http
	c.mu.Unlock()

	res, err := hc.Do(httpReq)
	if err != nil {
		return nil, c.redact(fmt.Errorf("%s: %w", req.Method, err))
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return nil, c.redact(fmt.Errorf("%s: read body: %w", req.Method, err))
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &StatusError{Code: res.StatusCode, Description: describe(body)}
	}
	return body, nil
}

// Reset closes idle connections and replaces the transport.
func (c *Client) Reset() {
	c.mu.Lock()
	old := c.http
	c.http = newHTTPClient()
	c.mu.Unlock()
	old.CloseIdleConnections()
}

// redact keeps the bot token out of error strings (url.Error embeds the URL).
func (c *Client) redact(err error) error {
	if c.token == "" || !strings.Contains(err.Error(), c.token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), c.token, "<token>"), err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// describe pulls the API description out of an error body, if any.
func describe(body []byte) string {
	var p struct {
		Description string `json:"description"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return ""
	}
	return p.Description
}

var _ Performer = (*Client)(nil)
