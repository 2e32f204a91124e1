// Package analyzer implements the Structural Analyzer: building an
// LLM prompt from an HTML skeleton and a DataSourceConfig, and
// parsing the model's response into a StructuralManifest.
package analyzer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"civicpipe/internal/config"
	"civicpipe/internal/llm"
	"civicpipe/internal/model"
	"civicpipe/internal/promptclient"
	"civicpipe/internal/structhash"
)

// MalformedAnalysisError marks an LLM response that does not parse to
// a valid extractionRules shape; the orchestrator surfaces it as a
// pipeline failure and never caches it.
type MalformedAnalysisError struct {
	Detail string
}

func (e *MalformedAnalysisError) Error() string {
	return fmt.Sprintf("malformed analysis: %s", e.Detail)
}

// Analyzer derives StructuralManifests from HTML + a DataSourceConfig.
type Analyzer struct {
	LLM     llm.Client
	Prompts promptclient.Client
}

// New constructs an Analyzer from its collaborators.
func New(llmClient llm.Client, prompts promptclient.Client) *Analyzer {
	return &Analyzer{LLM: llmClient, Prompts: prompts}
}

// GetCurrentPromptHash returns the hash of the template currently
// bound to dataType, without performing any analysis.
func (a *Analyzer) GetCurrentPromptHash(dataType string) (string, error) {
	prompt, err := a.Prompts.GetPrompt(dataType)
	if err != nil {
		return "", err
	}
	return prompt.Hash, nil
}

// Analyze derives a fresh StructuralManifest for html and source. The
// returned manifest has Version=1; the orchestrator overrides it.
func (a *Analyzer) Analyze(ctx context.Context, rawHTML string, source config.DataSourceConfig) (model.StructuralManifest, error) {
	start := time.Now()

	prompt, err := a.Prompts.GetPrompt(string(source.DataType))
	if err != nil {
		return model.StructuralManifest{}, err
	}

	skeleton := structhash.Skeleton(rawHTML)
	interpolated := interpolate(prompt.Text, source, skeleton)

	completion, err := a.LLM.Complete(ctx, llm.CompletionRequest{Prompt: interpolated, JSONSchema: true})
	if err != nil {
		return model.StructuralManifest{}, err
	}

	rules, confidence, err := parseExtractionRules(completion.Text)
	if err != nil {
		return model.StructuralManifest{}, &MalformedAnalysisError{Detail: err.Error()}
	}

	structureHash := structhash.HashSkeleton(skeleton)

	return model.StructuralManifest{
		RegionID:        "",
		SourceURL:       source.URL,
		DataType:        string(source.DataType),
		Version:         1,
		StructureHash:   structureHash,
		PromptHash:      prompt.Hash,
		ExtractionRules: rules,
		Confidence:      confidence,
		LLMProvider:     string(completion.Provider),
		LLMModel:        completion.Model,
		LLMTokensUsed:   completion.TokensUsed,
		AnalysisTimeMs:  time.Since(start).Milliseconds(),
		CreatedAt:       time.Now().UTC(),
		IsActive:        true,
	}, nil
}

func interpolate(template string, source config.DataSourceConfig, skeleton string) string {
	replacer := strings.NewReplacer(
		"{{url}}", source.URL,
		"{{contentGoal}}", source.ContentGoal,
		"{{category}}", source.Category,
		"{{hints}}", source.Hints,
		"{{htmlSkeleton}}", skeleton,
	)
	return replacer.Replace(template)
}

var allowedExtractionMethods = map[string]bool{
	string(model.ExtractText):      true,
	string(model.ExtractAttribute): true,
	string(model.ExtractHTML):      true,
	string(model.ExtractRegex):     true,
}

// parseExtractionRules validates the model response against §4.4's
// required shape: containerSelector, itemSelector, fieldMappings[]
// each with fieldName/selector/extractionMethod/required.
func parseExtractionRules(text string) (model.ExtractionRules, float64, error) {
	obj, err := llm.ParseJSONObject(text)
	if err != nil {
		return model.ExtractionRules{}, 0, err
	}

	containerSelector, _ := obj["containerSelector"].(string)
	itemSelector, _ := obj["itemSelector"].(string)
	if containerSelector == "" || itemSelector == "" {
		return model.ExtractionRules{}, 0, fmt.Errorf("missing containerSelector/itemSelector")
	}

	rawMappings, ok := obj["fieldMappings"].([]any)
	if !ok || len(rawMappings) == 0 {
		return model.ExtractionRules{}, 0, fmt.Errorf("missing or empty fieldMappings")
	}

	mappings := make([]model.FieldMapping, 0, len(rawMappings))
	for i, rm := range rawMappings {
		m, ok := rm.(map[string]any)
		if !ok {
			return model.ExtractionRules{}, 0, fmt.Errorf("fieldMappings[%d] is not an object", i)
		}
		fieldName, _ := m["fieldName"].(string)
		selector, hasSelector := m["selector"].(string)
		extractionMethod, _ := m["extractionMethod"].(string)
		required, hasRequired := m["required"].(bool)

		if fieldName == "" || extractionMethod == "" {
			return model.ExtractionRules{}, 0, fmt.Errorf("fieldMappings[%d] missing fieldName/extractionMethod", i)
		}
		if !hasSelector || !hasRequired {
			return model.ExtractionRules{}, 0, fmt.Errorf("fieldMappings[%d] missing selector/required", i)
		}
		if !allowedExtractionMethods[extractionMethod] {
			return model.ExtractionRules{}, 0, fmt.Errorf("fieldMappings[%d] has unsupported extractionMethod %q", i, extractionMethod)
		}

		fm := model.FieldMapping{
			FieldName:        fieldName,
			Selector:         selector,
			ExtractionMethod: model.ExtractionMethod(extractionMethod),
			Required:         required,
		}
		if attr, ok := m["attribute"].(string); ok {
			fm.Attribute = attr
		}
		if pattern, ok := m["regexPattern"].(string); ok {
			fm.RegexPattern = pattern
		}
		if group, ok := m["regexGroup"].(float64); ok {
			fm.RegexGroup = int(group)
		}
		if def, ok := m["defaultValue"].(string); ok {
			fm.DefaultValue = def
		}
		if t, ok := m["transform"].(map[string]any); ok {
			fm.Transform = parseFieldTransform(t)
		}
		mappings = append(mappings, fm)
	}

	confidence := 0.8
	if c, ok := obj["confidence"].(float64); ok {
		confidence = c
	}

	return model.ExtractionRules{
		ContainerSelector: containerSelector,
		ItemSelector:      itemSelector,
		FieldMappings:     mappings,
		Preprocessing:     parsePreprocessing(obj["preprocessing"]),
		Pagination:        parsePagination(obj["pagination"]),
	}, confidence, nil
}

// parseFieldTransform reads an optional per-field transform per §3's
// FieldTransform shape; an unrecognized or missing type yields nil
// rather than an error, since transform is optional.
func parseFieldTransform(t map[string]any) *model.FieldTransform {
	typeName, _ := t["type"].(string)
	if typeName == "" {
		return nil
	}
	ft := &model.FieldTransform{Type: model.TransformType(typeName)}
	if params, ok := t["params"].(map[string]any); ok {
		ft.Params = params
	}
	return ft
}

// parsePreprocessing reads the optional preprocessing[] array of
// {type, selector} steps run before container/item lookup.
func parsePreprocessing(raw any) []model.PreprocessingStep {
	rawSteps, ok := raw.([]any)
	if !ok {
		return nil
	}
	steps := make([]model.PreprocessingStep, 0, len(rawSteps))
	for _, rs := range rawSteps {
		s, ok := rs.(map[string]any)
		if !ok {
			continue
		}
		typeName, _ := s["type"].(string)
		selector, _ := s["selector"].(string)
		if typeName == "" {
			continue
		}
		steps = append(steps, model.PreprocessingStep{
			Type:     model.PreprocessingType(typeName),
			Selector: selector,
		})
	}
	if len(steps) == 0 {
		return nil
	}
	return steps
}

// parsePagination reads the optional pagination hint carried alongside
// extraction rules.
func parsePagination(raw any) *model.PaginationHint {
	p, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	nextSelector, _ := p["nextSelector"].(string)
	if nextSelector == "" {
		return nil
	}
	return &model.PaginationHint{NextSelector: nextSelector}
}
