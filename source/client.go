// Package source fetches the upstream associate list and normalizes it into
// records the pipeline core understands.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"associateflow/associate"
)

var (
	// ErrFetch signals the upstream list could not be retrieved.
	ErrFetch = errors.New("source: fetch failed")
	// ErrDecode signals the upstream list was not valid JSON.
	ErrDecode = errors.New("source: decode failed")
)

// FetchError carries the HTTP status of a failed fetch.
type FetchError struct {
	URL        string
	StatusCode int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("source: fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}

// Client retrieves the associate list over HTTP.
type Client struct {
	url   string
	http  *http.Client
	newID func() string
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// WithIDGenerator sets the generator used for entries without an id.
func (c *Client) WithIDGenerator(newID func() string) *Client {
	c.newID = newID
	return c
}

// Fetch downloads and normalizes the associate list. Failures are returned to
// the caller; no fixture data is substituted.
func (c *Client) Fetch(ctx context.Context) ([]associate.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("source: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{URL: c.url, StatusCode: resp.StatusCode}
	}

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	items, ok := payload.([]any)
	if !ok {
		return []associate.Record{}, nil
	}
	return NormalizeAll(items, c.newID), nil
}
