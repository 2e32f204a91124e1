// Package model holds the shared types that flow between pipeline
// stages: the cached StructuralManifest, the raw and typed extraction
// results, and the typed domain records.
package model

import "time"

// ExtractionMethod names how a FieldMapping pulls a value out of a
// matched DOM node.
type ExtractionMethod string

const (
	ExtractText      ExtractionMethod = "text"
	ExtractAttribute ExtractionMethod = "attribute"
	ExtractHTML      ExtractionMethod = "html"
	ExtractRegex     ExtractionMethod = "regex"
)

// TransformType names a post-extraction value transform.
type TransformType string

const (
	TransformTrim        TransformType = "trim"
	TransformLowercase    TransformType = "lowercase"
	TransformUppercase    TransformType = "uppercase"
	TransformStripHTML    TransformType = "strip_html"
	TransformURLResolve   TransformType = "url_resolve"
	TransformRegexReplace TransformType = "regex_replace"
	TransformNameFormat   TransformType = "name_format"
	TransformDateParse    TransformType = "date_parse"
)

// FieldTransform is a tagged post-extraction transform applied to a
// field's raw extracted value.
type FieldTransform struct {
	Type   TransformType  `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// FieldMapping describes how to pull one named field out of an item's
// DOM subtree.
type FieldMapping struct {
	FieldName      string           `json:"fieldName"`
	Selector       string           `json:"selector"`
	ExtractionMethod ExtractionMethod `json:"extractionMethod"`
	Attribute      string           `json:"attribute,omitempty"`
	RegexPattern   string           `json:"regexPattern,omitempty"`
	RegexGroup     int              `json:"regexGroup,omitempty"`
	Required       bool             `json:"required"`
	Transform      *FieldTransform  `json:"transform,omitempty"`
	DefaultValue   string           `json:"defaultValue,omitempty"`
}

// PreprocessingType names a DOM preprocessing step applied before item
// extraction.
type PreprocessingType string

const (
	PreprocessRemoveElements PreprocessingType = "remove_elements"
	PreprocessUnwrapElements PreprocessingType = "unwrap_elements"
	PreprocessMergeTables    PreprocessingType = "merge_tables"
)

// PreprocessingStep is one DOM-mutation step run before containers and
// items are located.
type PreprocessingStep struct {
	Type     PreprocessingType `json:"type"`
	Selector string            `json:"selector"`
}

// PaginationHint carries optional pagination metadata discovered by
// the analyzer; the manifest extractor itself does not follow
// pagination (that is the API/bulk handlers' job for their own
// sources) but keeps the hint around for callers that want to fetch
// subsequent HTML pages themselves.
type PaginationHint struct {
	NextSelector string `json:"nextSelector,omitempty"`
}

// ExtractionRules is the deterministic recipe a manifest carries:
// where the item container is, where each item is within it, and how
// to pull fields out of each item.
type ExtractionRules struct {
	ContainerSelector string              `json:"containerSelector"`
	ItemSelector      string              `json:"itemSelector"`
	FieldMappings     []FieldMapping      `json:"fieldMappings"`
	Preprocessing     []PreprocessingStep `json:"preprocessing,omitempty"`
	Pagination        *PaginationHint     `json:"pagination,omitempty"`
}

// StructuralManifest is the central cached artifact produced by the
// Structural Analyzer and persisted by the Manifest Store.
type StructuralManifest struct {
	ID       string `json:"id"`
	RegionID string `json:"regionId"`
	SourceURL string `json:"sourceUrl"`
	DataType string `json:"dataType"`
	Version  int    `json:"version"`

	StructureHash string `json:"structureHash"`
	PromptHash    string `json:"promptHash"`

	ExtractionRules ExtractionRules `json:"extractionRules"`

	Confidence     float64 `json:"confidence"`
	LLMProvider    string  `json:"llmProvider,omitempty"`
	LLMModel       string  `json:"llmModel,omitempty"`
	LLMTokensUsed  int     `json:"llmTokensUsed,omitempty"`
	AnalysisTimeMs int64   `json:"analysisTimeMs,omitempty"`

	SuccessCount  int        `json:"successCount"`
	FailureCount  int        `json:"failureCount"`
	IsActive      bool       `json:"isActive"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastUsedAt    *time.Time `json:"lastUsedAt,omitempty"`
	LastCheckedAt *time.Time `json:"lastCheckedAt,omitempty"`
}

// Identity is the (regionId, sourceUrl, dataType) tuple that a
// manifest's version history is keyed by.
type Identity struct {
	RegionID  string
	SourceURL string
	DataType  string
}
