// Package bulk implements the Bulk Download Handler: downloading a
// delimited text file (optionally inside a ZIP) and parsing it into
// raw records for the Domain Mapper.
package bulk

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"civicpipe/internal/config"
	"civicpipe/internal/model"
)

const downloadTimeout = 5 * time.Minute

// HTTPClient is the subset of *http.Client the handler needs, so
// tests can substitute a fake round tripper.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetch downloads url and parses it per source.Bulk into a
// RawExtractionResult, ready for the Domain Mapper.
func Fetch(ctx context.Context, client HTTPClient, url string, source config.DataSourceConfig) model.RawExtractionResult {
	if source.Bulk == nil {
		return model.RawExtractionResult{Success: false, Errors: []string{"missing bulk configuration"}}
	}

	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.RawExtractionResult{Success: false, Errors: []string{fmt.Sprintf("build request: %v", err)}}
	}
	resp, err := client.Do(req)
	if err != nil {
		return model.RawExtractionResult{Success: false, Errors: []string{fmt.Sprintf("fetch failed: %v", err)}}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.RawExtractionResult{Success: false, Errors: []string{fmt.Sprintf("bulk download failed with status %d", resp.StatusCode)}}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.RawExtractionResult{Success: false, Errors: []string{fmt.Sprintf("read body: %v", err)}}
	}

	return Parse(body, source)
}

// Parse is the pure half of the handler: given the already-downloaded
// bytes, resolve the ZIP entry (if any) and parse the delimited text.
func Parse(body []byte, source config.DataSourceConfig) model.RawExtractionResult {
	bulk := source.Bulk

	text, err := resolveText(body, bulk)
	if err != nil {
		return model.RawExtractionResult{Success: false, Errors: []string{err.Error()}}
	}

	delimiter := resolveDelimiter(bulk)
	lines := splitLines(text)
	if bulk.HeaderLines >= len(lines) {
		return model.RawExtractionResult{Success: true, Warnings: []string{"no data rows after header lines"}}
	}
	lines = lines[bulk.HeaderLines:]
	if len(lines) == 0 {
		return model.RawExtractionResult{Success: true}
	}

	header := splitRow(lines[0], delimiter)

	var items []map[string]any
	var warnings []string
	unknownColumnWarned := make(map[string]bool)

	sourceSystem := sourceSystemFromCategory(source.Category)

	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cells := splitRow(line, delimiter)

		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(cells) {
				row[col] = cells[i]
			}
		}

		if !passesFilters(row, bulk.Filters) {
			continue
		}

		record := make(map[string]any)
		for col, target := range bulk.ColumnMappings {
			v, ok := row[col]
			if !ok {
				if !unknownColumnWarned[col] {
					warnings = append(warnings, fmt.Sprintf("column %q not present in source", col))
					unknownColumnWarned[col] = true
				}
				continue
			}
			record[target] = v
		}

		injected := false
		if sourceSystem != "" {
			record["sourceSystem"] = string(sourceSystem)
			injected = true
		}

		minFields := 1
		if injected {
			minFields = 2
		}
		if len(record) < minFields {
			continue
		}

		items = append(items, record)
	}

	return model.RawExtractionResult{Items: items, Success: true, Warnings: warnings}
}

func resolveText(body []byte, bulk *config.BulkConfig) (string, error) {
	if !strings.HasPrefix(string(bulk.Format), "zip_") {
		return string(body), nil
	}

	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("open zip: %w", err)
	}

	var match *zip.File
	for _, f := range zr.File {
		if f.Name == bulk.FilePattern {
			match = f
			break
		}
	}
	if match == nil {
		for _, f := range zr.File {
			if strings.HasSuffix(f.Name, "/"+bulk.FilePattern) {
				match = f
				break
			}
		}
	}
	if match == nil {
		for _, f := range zr.File {
			if strings.EqualFold(f.Name, bulk.FilePattern) {
				match = f
				break
			}
		}
	}
	if match == nil {
		names := make([]string, 0, len(zr.File))
		for _, f := range zr.File {
			if len(names) >= 20 {
				break
			}
			names = append(names, f.Name)
		}
		return "", fmt.Errorf("entry %q not found in zip; available entries: %s", bulk.FilePattern, strings.Join(names, ", "))
	}

	rc, err := match.Open()
	if err != nil {
		return "", fmt.Errorf("open zip entry: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read zip entry: %w", err)
	}
	return string(data), nil
}

func resolveDelimiter(bulk *config.BulkConfig) string {
	if bulk.Delimiter != "" {
		return bulk.Delimiter
	}
	switch bulk.Format {
	case config.FormatTSV, config.FormatZipTSV:
		return "\t"
	default:
		return ","
	}
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}

func splitRow(line, delimiter string) []string {
	parts := strings.Split(line, delimiter)
	for i, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.TrimPrefix(p, `"`)
		p = strings.TrimSuffix(p, `"`)
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func passesFilters(row map[string]string, filters map[string]string) bool {
	for col, expected := range filters {
		if row[col] != expected {
			return false
		}
	}
	return true
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
