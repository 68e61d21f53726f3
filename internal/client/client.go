// Package client provides an HTTP client for the Wess module API.
package client

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
)

// DefaultTimeout bounds every request. Requests are never retried.
const DefaultTimeout = 5 * time.Second

// Client talks to the module endpoints of a running Wess service.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for baseURL. A zero timeout means DefaultTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the service origin without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

func (r *Response) String() string {
	return fmt.Sprintf("status %d: %s", r.StatusCode, strings.TrimSpace(string(r.Body)))
}

// Create stores a new module: POST /.
func (c *Client) Create(ctx context.Context, body any) (*Response, error) {
	return c.do(ctx, http.MethodPost, c.baseURL+"/", body)
}

// Update replaces module id: PUT /{id}.
func (c *Client) Update(ctx context.Context, id string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPut, c.moduleURL(id), body)
}

// Delete removes module id: DELETE /{id}.
func (c *Client) Delete(ctx context.Context, id string) (*Response, error) {
	return c.do(ctx, http.MethodDelete, c.moduleURL(id), nil)
}

// Invoke runs module id with args, which must be a JSON array: POST /{id}.
func (c *Client) Invoke(ctx context.Context, id string, args json.RawMessage) (*Response, error) {
	return c.do(ctx, http.MethodPost, c.moduleURL(id), args)
}

// Read fetches module id: GET /{id}.
func (c *Client) Read(ctx context.Context, id string) (*Response, error) {
	return c.do(ctx, http.MethodGet, c.moduleURL(id), nil)
}

// Probe issues GET path and succeeds on any HTTP response. It only tells
// whether the service is accepting connections.
func (c *Client) Probe(ctx context.Context, path string) error {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

func (c *Client) moduleURL(id string) string {
	return c.baseURL + "/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, target string, body any) (*Response, error) {
	var reader io.Reader
	if body != nil {
		var data []byte
		switch b := body.(type) {
		case json.RawMessage:
			data = b
		default:
			var err error
			if data, err = json.Marshal(body); err != nil {
				return nil, fmt.Errorf("encoding request body: %w", err)
			}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: reading response body: %w", method, target, err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: data, Header: resp.Header}, nil
}
