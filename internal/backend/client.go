package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Client talks to the hosted backend: REST tables, RPC functions and edge
// functions all live under one base URL and share one API key.
type Client struct {
	BaseURL string

	apiKey  atomic.Value // string
	hc      *http.Client
	limiter *HostLimiter
}

func New(baseURL, apiKey string, reqPerSec float64) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: 60 * time.Second},
		limiter: NewHostLimiter(reqPerSec, 2),
	}
	c.SetAPIKey(apiKey)
	return c
}

// SetAPIKey swaps the key used by subsequent requests.
func (c *Client) SetAPIKey(key string) {
	c.apiKey.Store(strings.TrimSpace(key))
}

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// NewRequest builds an authenticated request. body, when not nil, is sent as JSON.
func (c *Client) NewRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "edustat-engine/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := c.apiKey.Load().(string); key != "" {
		req.Header.Set("apikey", key)
		req.Header.Set("Authorization", "Bearer "+key)
	}
	return req, nil
}

// Do waits for the host's rate budget, sends req, and turns non-2xx answers
// into *StatusError. On success the caller owns resp.Body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.WaitURL(req.Context(), req.URL.String()); err != nil {
		return nil, err
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{
			Method: req.Method,
			Path:   req.URL.Path,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(b)),
		}
	}
	return resp, nil
}
