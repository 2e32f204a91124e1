package apiingest

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"civicpipe/internal/config"
)

type fakeRoundTripper struct {
	responses []string
	requested []string
}

func (f *fakeRoundTripper) Do(req *http.Request) (*http.Response, error) {
	f.requested = append(f.requested, req.URL.String())
	i := len(f.requested) - 1
	body := "{}"
	if i < len(f.responses) {
		body = f.responses[i]
	}
	return &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}, nil
}

func noSleep(time.Duration) {}

func TestAPICursorPaginationStopsAtTwoCalls(t *testing.T) {
	client := &fakeRoundTripper{
		responses: []string{
			`{"results": [{"externalId": "A"}], "pagination": {"last_indexes": {"last_index": "x"}}}`,
			`{"results": [{"externalId": "B"}], "pagination": {}}`,
		},
	}
	source := config.DataSourceConfig{
		API: &config.APIConfig{
			ResultsPath: "results",
			Pagination:  &config.APIPaginationConfig{Type: config.PaginationCursor},
		},
	}

	result := Fetch(context.Background(), client, noSleep, "https://api.example.gov/v1/items", source)
	if !result.Success {
		t.Fatalf("expected success, got errors %v", result.Errors)
	}
	if len(client.requested) != 2 {
		t.Fatalf("expected exactly 2 requests, got %d: %v", len(client.requested), client.requested)
	}
	if len(result.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(result.Items))
	}
}

func TestAPIOffsetPaginationStopsWhenPageSmallerThanLimit(t *testing.T) {
	client := &fakeRoundTripper{
		responses: []string{
			`{"results": [{"externalId":"1"},{"externalId":"2"}]}`,
			`{"results": [{"externalId":"3"}]}`,
		},
	}
	source := config.DataSourceConfig{
		API: &config.APIConfig{
			ResultsPath: "results",
			Pagination:  &config.APIPaginationConfig{Type: config.PaginationOffset, Limit: 2},
		},
	}
	result := Fetch(context.Background(), client, noSleep, "https://api.example.gov/v1/items", source)
	if len(client.requested) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(client.requested))
	}
	if len(result.Items) != 3 {
		t.Fatalf("expected 3 items total, got %d", len(result.Items))
	}
}

func TestAPIReachesMaxPagesWithWarning(t *testing.T) {
	responses := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		responses = append(responses, `{"results": [{"externalId":"x"},{"externalId":"y"}]}`)
	}
	client := &fakeRoundTripper{responses: responses}
	source := config.DataSourceConfig{
		API: &config.APIConfig{
			ResultsPath: "results",
			Pagination:  &config.APIPaginationConfig{Type: config.PaginationOffset, Limit: 2},
		},
	}
	result := Fetch(context.Background(), client, noSleep, "https://api.example.gov/v1/items", source)
	if len(client.requested) != maxPages {
		t.Fatalf("expected exactly %d requests, got %d", maxPages, len(client.requested))
	}
	found := false
	for _, w := range result.Warnings {
		if w == "reached max page limit — more data may be available" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected max page limit warning, got %v", result.Warnings)
	}
}

func TestAPIMissingAPIKeyEnvVarWarns(t *testing.T) {
	const envVar = "CIVICPIPE_TEST_MISSING_API_KEY"
	os.Unsetenv(envVar)

	client := &fakeRoundTripper{responses: []string{`{"results": [{"externalId":"1"}]}`}}
	source := config.DataSourceConfig{
		API: &config.APIConfig{
			ResultsPath:  "results",
			APIKeyEnvVar: envVar,
		},
	}
	result := Fetch(context.Background(), client, noSleep, "https://api.example.gov/v1/items", source)
	if !result.Success {
		t.Fatalf("expected success, got errors %v", result.Errors)
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, envVar) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a missing-api-key warning naming %q, got %v", envVar, result.Warnings)
	}
}

func TestAPIPresentAPIKeyEnvVarDoesNotWarn(t *testing.T) {
	const envVar = "CIVICPIPE_TEST_PRESENT_API_KEY"
	os.Setenv(envVar, "secret-value")
	defer os.Unsetenv(envVar)

	client := &fakeRoundTripper{responses: []string{`{"results": [{"externalId":"1"}]}`}}
	source := config.DataSourceConfig{
		API: &config.APIConfig{
			ResultsPath:  "results",
			APIKeyEnvVar: envVar,
		},
	}
	result := Fetch(context.Background(), client, noSleep, "https://api.example.gov/v1/items", source)
	if len(result.Warnings) != 0 {
		t.Fatalf("expected no warnings when the api key env var is set, got %v", result.Warnings)
	}
	if len(client.requested) != 1 || !strings.Contains(client.requested[0], "secret-value") {
		t.Fatalf("expected the request to carry the api key, got %v", client.requested)
	}
}

func TestAPINoPaginationFetchesOnePage(t *testing.T) {
	client := &fakeRoundTripper{
		responses: []string{`{"results": [{"externalId":"1"}]}`},
	}
	source := config.DataSourceConfig{
		API: &config.APIConfig{ResultsPath: "results"},
	}
	Fetch(context.Background(), client, noSleep, "https://api.example.gov/v1/items", source)
	if len(client.requested) != 1 {
		t.Fatalf("expected exactly 1 request, got %d", len(client.requested))
	}
}
