// Package promptclient implements the reference Prompt Client
// contract of spec §6: a deterministic, dataType-keyed template source
// for the Structural Analyzer. Templates are embedded so the prompt
// text — and therefore its hash — never drifts between processes.
package promptclient

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
)

//go:embed templates/propositions.txt
var propositionsTemplate string

//go:embed templates/meetings.txt
var meetingsTemplate string

//go:embed templates/representatives.txt
var representativesTemplate string

//go:embed templates/campaign_finance.txt
var campaignFinanceTemplate string

// Prompt is the Prompt Client's response: the raw template text and
// its hash.
type Prompt struct {
	Text string
	Hash string
}

// Client is the external Prompt Client contract.
type Client interface {
	GetPrompt(dataType string) (Prompt, error)
}

// EmbeddedClient serves the built-in per-dataType templates.
type EmbeddedClient struct{}

// NewEmbeddedClient constructs the reference Prompt Client.
func NewEmbeddedClient() *EmbeddedClient { return &EmbeddedClient{} }

// GetPrompt returns the raw template for dataType and its SHA-256
// hash. The hash is computed over the template text before any
// interpolation, per §4.4, so two sources sharing a dataType share a
// promptHash.
func (c *EmbeddedClient) GetPrompt(dataType string) (Prompt, error) {
	text, ok := templateFor(dataType)
	if !ok {
		return Prompt{}, fmt.Errorf("no prompt template for dataType %q", dataType)
	}
	return Prompt{Text: text, Hash: hashTemplate(text)}, nil
}

func templateFor(dataType string) (string, bool) {
	switch dataType {
	case "propositions":
		return propositionsTemplate, true
	case "meetings":
		return meetingsTemplate, true
	case "representatives":
		return representativesTemplate, true
	case "campaign_finance":
		return campaignFinanceTemplate, true
	default:
		return "", false
	}
}

func hashTemplate(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
