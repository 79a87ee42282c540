// Package scrape invokes the backend's scraping functions. What they scrape
// and how is the backend's business; the engine only fires them and reports
// the outcome.
package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"edustat-engine/internal/backend"
)

// Result is what a scrape function reports back.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Triggers struct {
	Client             *backend.Client
	JobsFunction       string
	UniversityFunction string
}

// TriggerJobListingScrape asks the backend to scrape job listings, optionally
// limited to one category. There are no retries.
func (t Triggers) TriggerJobListingScrape(ctx context.Context, category string) (Result, error) {
	body := map[string]string{}
	if c := strings.TrimSpace(category); c != "" {
		body["category"] = c
	}
	return t.invoke(ctx, t.JobsFunction, body)
}

// TriggerUniversityScrape asks the backend to scrape one university site.
func (t Triggers) TriggerUniversityScrape(ctx context.Context, rawURL, name string) (Result, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Result{Error: "invalid url"}, fmt.Errorf("invalid university url %q", rawURL)
	}
	body := map[string]string{"url": u.String()}
	if n := strings.TrimSpace(name); n != "" {
		body["name"] = n
	}
	return t.invoke(ctx, t.UniversityFunction, body)
}

func (t Triggers) invoke(ctx context.Context, fn string, body any) (Result, error) {
	if t.Client == nil || strings.TrimSpace(fn) == "" {
		return Result{Error: "scrape function not configured"}, errors.New("scrape function not configured")
	}

	req, err := t.Client.NewRequest(ctx, http.MethodPost, "/functions/v1/"+url.PathEscape(fn), body)
	if err != nil {
		return Result{Error: err.Error()}, err
	}
	resp, err := t.Client.Do(req)
	if err != nil {
		var se *backend.StatusError
		if errors.As(err, &se) {
			if res, ok := decodeResult([]byte(se.Body)); ok && res.Error != "" {
				return res, fmt.Errorf("%s: %w", fn, err)
			}
		}
		return Result{Error: err.Error()}, fmt.Errorf("%s: %w", fn, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Result{Error: err.Error()}, fmt.Errorf("%s: read: %w", fn, err)
	}
	res, ok := decodeResult(b)
	if !ok {
		// A 2xx with a body we can't read still means the function ran.
		return Result{Success: true, Message: strings.TrimSpace(string(b))}, nil
	}
	if !res.Success && res.Error == "" && res.Message == "" {
		res.Success = true
	}
	return res, nil
}

func decodeResult(b []byte) (Result, bool) {
	var res Result
	if len(b) == 0 || json.Unmarshal(b, &res) != nil {
		return Result{}, false
	}
	return res, true
}
