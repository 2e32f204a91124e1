// Package apiingest implements the API Ingest Handler: bounded
// pagination across a JSON API into raw records for the Domain
// Mapper.
package apiingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"civicpipe/internal/config"
	"civicpipe/internal/model"
)

const (
	maxPages     = 10
	pageDelay    = 250 * time.Millisecond
	pageTimeout  = 60 * time.Second
)

// HTTPClient is the subset of *http.Client the handler needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Sleeper abstracts the inter-page sleep so tests run instantly.
type Sleeper func(time.Duration)

// Fetch pages through source's API (source.API must be set) and
// returns the concatenated raw records, ready for the Domain Mapper.
func Fetch(ctx context.Context, client HTTPClient, sleep Sleeper, baseURL string, source config.DataSourceConfig) model.RawExtractionResult {
	if source.API == nil {
		return model.RawExtractionResult{Success: false, Errors: []string{"missing api configuration"}}
	}
	if sleep == nil {
		sleep = time.Sleep
	}

	api := source.API
	sourceSystem := sourceSystemFromCategory(source.Category)

	var allItems []map[string]any
	var warnings []string

	if api.APIKeyEnvVar != "" && os.Getenv(api.APIKeyEnvVar) == "" {
		warnings = append(warnings, fmt.Sprintf("api key env var %q is unset — proceeding without authentication", api.APIKeyEnvVar))
	}

	var cursor string
	page := 0
	hitMaxPages := false

	for page < maxPages {
		reqURL, err := buildPageURL(baseURL, api, page, cursor)
		if err != nil {
			return model.RawExtractionResult{Success: false, Errors: []string{fmt.Sprintf("build page url: %v", err)}}
		}

		pageCtx, cancel := context.WithTimeout(ctx, pageTimeout)
		req, err := http.NewRequestWithContext(pageCtx, methodOrDefault(api.Method), reqURL, nil)
		if err != nil {
			cancel()
			return model.RawExtractionResult{Success: false, Errors: []string{fmt.Sprintf("build request: %v", err)}}
		}
		resp, err := client.Do(req)
		cancel()
		if err != nil {
			return model.RawExtractionResult{Success: false, Errors: []string{fmt.Sprintf("fetch failed: %v", err)}}
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return model.RawExtractionResult{Success: false, Errors: []string{fmt.Sprintf("api request failed with status %d", resp.StatusCode)}}
		}
		if readErr != nil {
			return model.RawExtractionResult{Success: false, Errors: []string{fmt.Sprintf("read body: %v", readErr)}}
		}

		var payload any
		if err := json.Unmarshal(body, &payload); err != nil {
			payload = nil
		}

		results := navigateResultsPath(payload, api.ResultsPath)
		for _, r := range results {
			if m, ok := r.(map[string]any); ok {
				if sourceSystem != "" {
					m["sourceSystem"] = string(sourceSystem)
				}
				allItems = append(allItems, m)
			}
		}

		page++

		stop := api.Pagination == nil
		if !stop {
			switch api.Pagination.Type {
			case config.PaginationCursor:
				next := nextCursor(payload)
				stop = next == ""
				cursor = next
			case config.PaginationOffset, config.PaginationPage:
				stop = len(results) < effectiveLimit(api.Pagination)
			default:
				stop = true
			}
		}
		if stop {
			break
		}

		if page >= maxPages {
			hitMaxPages = true
			break
		}

		sleep(pageDelay)
	}

	if hitMaxPages {
		warnings = append(warnings, "reached max page limit — more data may be available")
	}

	return model.RawExtractionResult{Items: allItems, Success: true, Warnings: warnings}
}

func methodOrDefault(method string) string {
	if method == "" {
		return http.MethodGet
	}
	return method
}

func effectiveLimit(p *config.APIPaginationConfig) int {
	if p.Limit > 0 {
		return p.Limit
	}
	return 25
}

func buildPageURL(baseURL string, api *config.APIConfig, page int, cursor string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range api.QueryParams {
		q.Set(k, v)
	}

	if api.APIKeyEnvVar != "" {
		if key := os.Getenv(api.APIKeyEnvVar); key != "" {
			header := api.APIKeyHeader
			if header == "" {
				header = "api_key"
			}
			q.Set(header, key)
		}
	}

	if api.Pagination != nil {
		limit := effectiveLimit(api.Pagination)
		switch api.Pagination.Type {
		case config.PaginationOffset:
			pageParam := nonEmpty(api.Pagination.PageParam, "offset")
			limitParam := nonEmpty(api.Pagination.LimitParam, "per_page")
			q.Set(pageParam, strconv.Itoa(page*limit))
			q.Set(limitParam, strconv.Itoa(limit))
		case config.PaginationPage:
			if page >= 1 {
				pageParam := nonEmpty(api.Pagination.PageParam, "page")
				q.Set(pageParam, strconv.Itoa(page+1))
			}
		case config.PaginationCursor:
			if cursor != "" {
				q.Set("last_index", cursor)
			}
		}
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

func nonEmpty(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// navigateResultsPath walks payload by dot-separated keys in path and
// returns the array found there, or an empty slice if path does not
// resolve to an array.
func navigateResultsPath(payload any, path string) []any {
	current := payload
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[key]
		if !ok {
			return nil
		}
	}
	arr, ok := current.([]any)
	if !ok {
		return nil
	}
	return arr
}

// nextCursor probes the FEC-style nested cursor shape first, then the
// generic flat keys, per §4.11.
func nextCursor(payload any) string {
	m, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	pagination, ok := m["pagination"].(map[string]any)
	if !ok {
		return ""
	}
	if lastIndexes, ok := pagination["last_indexes"].(map[string]any); ok {
		if v, ok := lastIndexes["last_index"].(string); ok && v != "" {
			return v
		}
	}
	for _, key := range []string{"last_index", "cursor", "next_cursor", "next"} {
		if v, ok := pagination[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func sourceSystemFromCategory(category string) model.SourceSystem {
	lower := strings.ToLower(category)
	switch {
	case strings.HasPrefix(lower, "cal-access"), strings.HasPrefix(lower, "cal_access"):
		return model.SourceCalAccess
	case strings.HasPrefix(lower, "fec"):
		return model.SourceFEC
	default:
		return ""
	}
}
