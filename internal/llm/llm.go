// Package llm adapts the teacher's multi-provider chat-completion
// client to the Structural Analyzer's contract: given a prompt, return
// raw completion text (expected to be a JSON extractionRules object),
// token usage, and the provider/model that served it.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Provider names a backing LLM vendor.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
)

// CompletionRequest is the input to Client.Complete.
type CompletionRequest struct {
	Prompt     string
	JSONSchema bool
	Model      string
}

// CompletionResult is the Structural Analyzer's view of an LLM
// response, matching the external contract of spec §6.
type CompletionResult struct {
	Text        string
	TokensUsed  int
	Model       string
	Provider    Provider
}

// Client is the abstraction the analyzer depends on.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// ProviderConfig holds one provider's credentials/model, mirroring the
// teacher's per-provider sub-config shape.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Config is the LLM section of the region/process configuration.
type Config struct {
	DefaultProvider string
	OpenAI          ProviderConfig
	Anthropic       ProviderConfig
	Google          ProviderConfig
}

// NewClientFromConfig constructs a Client for the configured default
// provider, or providerOverride/modelOverride when supplied.
func NewClientFromConfig(cfg Config, providerOverride, modelOverride string) (Client, error) {
	providerName := cfg.DefaultProvider
	if providerOverride != "" {
		providerName = providerOverride
	}
	prov := Provider(providerName)

	httpClient := &http.Client{Timeout: 60 * time.Second}

	switch prov {
	case ProviderOpenAI:
		pc := cfg.OpenAI
		model := firstNonEmpty(modelOverride, pc.Model)
		if pc.APIKey == "" || model == "" {
			return nil, errors.New("openai llm provider is not fully configured")
		}
		return &openAIClient{apiKey: pc.APIKey, baseURL: pc.BaseURL, model: model, http: httpClient}, nil
	case ProviderAnthropic:
		pc := cfg.Anthropic
		model := firstNonEmpty(modelOverride, pc.Model)
		if pc.APIKey == "" || model == "" {
			return nil, errors.New("anthropic llm provider is not fully configured")
		}
		return &anthropicClient{apiKey: pc.APIKey, model: model, http: httpClient}, nil
	case ProviderGoogle:
		pc := cfg.Google
		model := firstNonEmpty(modelOverride, pc.Model)
		if pc.APIKey == "" || model == "" {
			return nil, errors.New("google llm provider is not fully configured")
		}
		return &googleClient{apiKey: pc.APIKey, model: model, http: httpClient}, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", providerName)
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

type openAIClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

type openAIChatRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIChatMessage   `json:"messages"`
	Temperature    float64               `json:"temperature"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *openAIClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	body := openAIChatRequest{
		Model: firstNonEmpty(req.Model, c.model),
		Messages: []openAIChatMessage{
			{Role: "system", Content: "You are a JSON-only extractor. Respond with a single JSON object and no extra text."},
			{Role: "user", Content: req.Prompt},
		},
		Temperature: 0,
	}
	if req.JSONSchema {
		body.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return CompletionResult{}, err
	}

	endpoint := firstNonEmpty(c.baseURL, "https://api.openai.com/v1") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return CompletionResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return CompletionResult{}, err
	}
	defer resp.Body.Close()

	var parsed openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return CompletionResult{}, err
	}
	if len(parsed.Choices) == 0 {
		return CompletionResult{}, errors.New("openai response had no choices")
	}

	return CompletionResult{
		Text:       parsed.Choices[0].Message.Content,
		TokensUsed: parsed.Usage.TotalTokens,
		Model:      body.Model,
		Provider:   ProviderOpenAI,
	}, nil
}

type anthropicClient struct {
	apiKey string
	model  string
	http   *http.Client
}

type anthropicMessagesRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicTextContent  `json:"content"`
}

type anthropicTextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicMessagesResponse struct {
	Content []anthropicTextContent `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *anthropicClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	system := "You are a JSON-only extractor. Respond with a single JSON object and no extra text."
	body := anthropicMessagesRequest{
		Model:     firstNonEmpty(req.Model, c.model),
		MaxTokens: 4096,
		System:    system,
		Messages: []anthropicMessage{
			{Role: "user", Content: []anthropicTextContent{{Type: "text", Text: req.Prompt}}},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return CompletionResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.anthropic.com/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return CompletionResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return CompletionResult{}, err
	}
	defer resp.Body.Close()

	var parsed anthropicMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return CompletionResult{}, err
	}
	if len(parsed.Content) == 0 {
		return CompletionResult{}, errors.New("anthropic response had no content")
	}

	return CompletionResult{
		Text:       parsed.Content[0].Text,
		TokensUsed: parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		Model:      body.Model,
		Provider:   ProviderAnthropic,
	}, nil
}

type googleClient struct {
	apiKey string
	model  string
	http   *http.Client
}

type googleGenerateContentRequest struct {
	Contents []googleContent `json:"contents"`
}

type googleContent struct {
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text string `json:"text,omitempty"`
}

type googleGenerateContentResponse struct {
	Candidates []struct {
		Content googleContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (c *googleClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	model := firstNonEmpty(req.Model, c.model)
	body := googleGenerateContentRequest{
		Contents: []googleContent{{Parts: []googlePart{{Text: req.Prompt}}}},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return CompletionResult{}, err
	}

	endpoint := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s", model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return CompletionResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return CompletionResult{}, err
	}
	defer resp.Body.Close()

	var parsed googleGenerateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return CompletionResult{}, err
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return CompletionResult{}, errors.New("google response had no candidates")
	}

	return CompletionResult{
		Text:       parsed.Candidates[0].Content.Parts[0].Text,
		TokensUsed: parsed.UsageMetadata.TotalTokenCount,
		Model:      model,
		Provider:   ProviderGoogle,
	}, nil
}

// ParseJSONObject tries the whole string as JSON first, then falls
// back to the span from the first '{' to the last '}' in content — the teacher's
// parseJSONFields strategy for tolerating chatty models that wrap
// their JSON in prose.
func ParseJSONObject(content string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err == nil {
		return obj, nil
	}

	start := indexByte(content, '{')
	end := lastIndexByte(content, '}')
	if start == -1 || end <= start {
		return nil, errors.New("no JSON object found in content")
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func lastIndexByte(s string, b byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == b {
			return i
		}
	}
	return -1
}
