// Package config decodes and validates the declarative region and
// data-source configuration that drives the pipeline, the same way
// the teacher's config package decodes its YAML server configuration.
package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DataType enumerates the supported data kinds a source can produce.
type DataType string

const (
	DataTypePropositions    DataType = "propositions"
	DataTypeMeetings        DataType = "meetings"
	DataTypeRepresentatives DataType = "representatives"
	DataTypeCampaignFinance DataType = "campaign_finance"
)

// SourceType selects which handler processes a DataSourceConfig.
type SourceType string

const (
	SourceTypeHTML         SourceType = "html"
	SourceTypeBulkDownload SourceType = "bulk_download"
	SourceTypeAPI          SourceType = "api"
)

// BulkFormat enumerates the recognized bulk.format values.
type BulkFormat string

const (
	FormatCSV     BulkFormat = "csv"
	FormatTSV     BulkFormat = "tsv"
	FormatZipCSV  BulkFormat = "zip_csv"
	FormatZipTSV  BulkFormat = "zip_tsv"
)

// BulkConfig configures the Bulk Download Handler for
// sourceType=bulk_download.
type BulkConfig struct {
	Format         BulkFormat        `yaml:"format"`
	FilePattern    string            `yaml:"filePattern,omitempty"`
	Delimiter      string            `yaml:"delimiter,omitempty"`
	HeaderLines    int               `yaml:"headerLines,omitempty"`
	ColumnMappings map[string]string `yaml:"columnMappings"`
	Filters        map[string]string `yaml:"filters,omitempty"`
}

// PaginationType enumerates the recognized api.pagination.type values.
type PaginationType string

const (
	PaginationOffset PaginationType = "offset"
	PaginationPage   PaginationType = "page"
	PaginationCursor PaginationType = "cursor"
)

// APIPaginationConfig configures how the API Ingest Handler pages
// through results.
type APIPaginationConfig struct {
	Type       PaginationType `yaml:"type"`
	Limit      int            `yaml:"limit,omitempty"`
	PageParam  string         `yaml:"pageParam,omitempty"`
	LimitParam string         `yaml:"limitParam,omitempty"`
}

// APIConfig configures the API Ingest Handler for sourceType=api.
type APIConfig struct {
	ResultsPath  string               `yaml:"resultsPath"`
	Method       string               `yaml:"method,omitempty"`
	QueryParams  map[string]string    `yaml:"queryParams,omitempty"`
	APIKeyEnvVar string               `yaml:"apiKeyEnvVar,omitempty"`
	APIKeyHeader string               `yaml:"apiKeyHeader,omitempty"`
	Pagination   *APIPaginationConfig `yaml:"pagination,omitempty"`
}

// DataSourceConfig is the input contract for a single source, as
// described in spec.md §3.
type DataSourceConfig struct {
	URL         string     `yaml:"url"`
	DataType    DataType   `yaml:"dataType"`
	ContentGoal string     `yaml:"contentGoal"`
	SourceType  SourceType `yaml:"sourceType,omitempty"`
	Category    string     `yaml:"category,omitempty"`
	Hints       string     `yaml:"hints,omitempty"`
	Bulk        *BulkConfig `yaml:"bulk,omitempty"`
	API         *APIConfig  `yaml:"api,omitempty"`
}

// EffectiveSourceType returns the configured source type, defaulting
// to html per spec.md §3.
func (d DataSourceConfig) EffectiveSourceType() SourceType {
	if d.SourceType == "" {
		return SourceTypeHTML
	}
	return d.SourceType
}

// FieldError is one validation violation, identifying the offending
// field by a dotted path so multiple errors from one config can be
// reported together.
type FieldError struct {
	Path    string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

var regionIDPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// DeclarativeRegionConfig bundles the data sources for one region.
type DeclarativeRegionConfig struct {
	RegionID         string             `yaml:"regionId"`
	RegionName       string             `yaml:"regionName"`
	Description      string             `yaml:"description"`
	Timezone         string             `yaml:"timezone"`
	DataSources      []DataSourceConfig `yaml:"dataSources"`
	RateLimit        int                `yaml:"rateLimit,omitempty"`
	CacheTTLMs       int                `yaml:"cacheTtlMs,omitempty"`
	RequestTimeoutMs int                `yaml:"requestTimeoutMs,omitempty"`
}

// Load reads and decodes a DeclarativeRegionConfig from YAML bytes.
// Unlike the teacher's config.Load, this returns an error instead of
// calling log.Fatalf: region configs are data the caller supplies per
// invocation, not process bootstrap configuration.
func Load(data []byte) (*DeclarativeRegionConfig, error) {
	var cfg DeclarativeRegionConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode region config: %w", err)
	}
	return &cfg, nil
}

// Validate performs the semantic checks of spec.md §6 and returns
// every violation found, not just the first — validating twice must
// yield identical errors (spec.md §8), which only holds if the
// function is a pure, order-stable pass over the input.
func (cfg *DeclarativeRegionConfig) Validate() []FieldError {
	var errs []FieldError

	if cfg == nil {
		return []FieldError{{Path: "$", Message: "config is nil"}}
	}

	if !regionIDPattern.MatchString(cfg.RegionID) {
		errs = append(errs, FieldError{Path: "regionId", Message: "must be lowercase alphanumeric/hyphen and start with a letter"})
	}
	if strings.TrimSpace(cfg.RegionName) == "" {
		errs = append(errs, FieldError{Path: "regionName", Message: "must not be empty"})
	}
	if len(cfg.DataSources) == 0 {
		errs = append(errs, FieldError{Path: "dataSources", Message: "must contain at least one entry"})
	}

	seen := make(map[string]int)
	for i, ds := range cfg.DataSources {
		prefix := fmt.Sprintf("dataSources[%d]", i)
		errs = append(errs, validateDataSource(prefix, ds)...)

		key := ds.URL + "\x00" + string(ds.DataType) + "\x00" + ds.Category
		if prev, ok := seen[key]; ok {
			errs = append(errs, FieldError{
				Path:    prefix,
				Message: fmt.Sprintf("duplicate (url, dataType, category) also used by dataSources[%d]", prev),
			})
		} else {
			seen[key] = i
		}
	}

	return errs
}

func validateDataSource(prefix string, ds DataSourceConfig) []FieldError {
	var errs []FieldError

	u, err := url.Parse(ds.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, FieldError{Path: prefix + ".url", Message: "must be an absolute URL"})
	} else if u.Scheme != "https" {
		errs = append(errs, FieldError{Path: prefix + ".url", Message: "must use https"})
	}

	switch ds.DataType {
	case DataTypePropositions, DataTypeMeetings, DataTypeRepresentatives, DataTypeCampaignFinance:
	default:
		errs = append(errs, FieldError{Path: prefix + ".dataType", Message: "must be one of propositions, meetings, representatives, campaign_finance"})
	}

	if len(strings.TrimSpace(ds.ContentGoal)) < 10 {
		errs = append(errs, FieldError{Path: prefix + ".contentGoal", Message: "must be at least 10 characters"})
	}

	switch ds.EffectiveSourceType() {
	case SourceTypeHTML:
	case SourceTypeBulkDownload:
		if ds.Bulk == nil {
			errs = append(errs, FieldError{Path: prefix + ".bulk", Message: "required when sourceType=bulk_download"})
		}
	case SourceTypeAPI:
		if ds.API == nil {
			errs = append(errs, FieldError{Path: prefix + ".api", Message: "required when sourceType=api"})
		}
	default:
		errs = append(errs, FieldError{Path: prefix + ".sourceType", Message: "must be one of html, bulk_download, api"})
	}

	return errs
}
