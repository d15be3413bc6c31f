// Package httpfetch defines the external HTTP-GET collaborator contract
// and a default net/http-backed implementation, grounded on the same
// http.Client-with-options shape the rest of this codebase's HTTP
// callers use.
package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Getter fetches the body of url as a string.
type Getter interface {
	Get(ctx context.Context, url string) (string, error)
}

type config struct {
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*config)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *config) {
		if c != nil {
			cfg.httpClient = c
		}
	}
}

// Client is the default Getter, backed by net/http.
type Client struct {
	httpClient *http.Client
}

// New builds a Client, defaulting to http.DefaultClient.
func New(opts ...Option) *Client {
	cfg := config{httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Client{httpClient: cfg.httpClient}
}

// Get issues a GET request and returns the response body as a string.
func (c *Client) Get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("httpfetch: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("httpfetch: get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("httpfetch: get %s: status %s", url, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("httpfetch: read body of %s: %w", url, err)
	}
	return string(body), nil
}
