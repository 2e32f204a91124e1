// Package fetchref fetches raw HTML for the Pipeline Orchestrator's
// first stage, the way the teacher's scraper package fetches pages —
// trimmed to just the raw document a structural hash/analysis/
// extraction pass needs, with no markdown conversion or link
// harvesting.
package fetchref

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Fetcher retrieves the raw HTML document at targetURL.
type Fetcher interface {
	Fetch(ctx context.Context, targetURL string) (string, error)
}

// HTTPFetcher fetches pages with a plain net/http client; it is the
// default engine for sources that don't render client-side.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher builds an HTTPFetcher with the given per-request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, targetURL string) (string, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "civicpipe/1.0 (+https://civicpipe.example/bot)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch %s: status %d", u.String(), resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
