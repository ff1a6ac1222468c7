// Package providers talks to the LLM that backs the reasoning step.
package providers

import (
	"os"

	"github.com/crystaldolphin/canvasagent/internal/schema"
)

// Params are the raw values needed to construct a schema.LLMProvider.
// Extracted from config.Config by the caller to avoid an import cycle.
type Params struct {
	APIKey       string
	APIBase      string
	ExtraHeaders map[string]string
	DefaultModel string
	ProviderName string // registry name, e.g. "openrouter", "anthropic"
}

// New creates the provider for p. An empty APIKey falls back to the
// matching spec's environment variable.
func New(p Params) schema.LLMProvider {
	if p.APIKey == "" {
		spec := FindByName(p.ProviderName)
		if spec == nil {
			spec = FindByModel(p.DefaultModel)
		}
		if spec != nil && spec.EnvKey != "" {
			p.APIKey = os.Getenv(spec.EnvKey)
		}
	}
	return NewOpenAIProvider(p.APIKey, p.APIBase, p.DefaultModel, p.ProviderName, p.ExtraHeaders)
}
