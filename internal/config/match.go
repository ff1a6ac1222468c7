package config

import (
	"strings"

	"github.com/crystaldolphin/canvasagent/internal/config/provider"
	"github.com/crystaldolphin/canvasagent/internal/providers"
)

// MatchResult is the resolved LLM provider config and registry name for a model.
type MatchResult struct {
	Provider *provider.ProviderConfig
	Name     string // e.g. "openrouter", "anthropic"
}

// MatchProvider resolves which provider config and registry entry to use for model.
// If model is empty, the default model from agents.defaults.model is used.
//
// Priority order:
//  1. Explicit provider prefix in model string (e.g. "deepseek/deepseek-chat" → deepseek)
//  2. Keyword match in model name (registry order)
//  3. Fallback: first provider with a key, gateways first
//
// Local providers match without a key.
func (c *Config) MatchProvider(model string) MatchResult {
	if model == "" {
		model = c.Agents.Defaults.Model
	}
	modelLower := strings.ToLower(model)
	modelNorm := strings.ReplaceAll(modelLower, "-", "_")
	modelPrefix, _, _ := strings.Cut(modelLower, "/")
	normalizedPrefix := strings.ReplaceAll(modelPrefix, "-", "_")

	usable := func(spec providers.Spec, p *provider.ProviderConfig) bool {
		return p.APIKey != "" || (spec.IsLocal && p.APIBase != "")
	}
	kwMatches := func(kw string) bool {
		kw = strings.ToLower(kw)
		kwNorm := strings.ReplaceAll(kw, "-", "_")
		return strings.Contains(modelLower, kw) || strings.Contains(modelNorm, kwNorm)
	}

	for _, spec := range providers.Specs {
		p := c.ProviderByName(spec.Name)
		if p != nil && modelPrefix != "" && normalizedPrefix == spec.Name && usable(spec, p) {
			return MatchResult{Provider: p, Name: spec.Name}
		}
	}

	for _, spec := range providers.Specs {
		p := c.ProviderByName(spec.Name)
		if p == nil || !usable(spec, p) {
			continue
		}
		for _, kw := range spec.Keywords {
			if kwMatches(kw) {
				return MatchResult{Provider: p, Name: spec.Name}
			}
		}
	}

	for _, gateways := range []bool{true, false} {
		for _, spec := range providers.Specs {
			if spec.IsGateway != gateways {
				continue
			}
			p := c.ProviderByName(spec.Name)
			if p != nil && usable(spec, p) {
				return MatchResult{Provider: p, Name: spec.Name}
			}
		}
	}

	return MatchResult{}
}

// GetAPIBase resolves the effective API base URL for model.
// Precedence: user-configured apiBase > the spec's default (gateways only).
func (c *Config) GetAPIBase(model string) string {
	result := c.MatchProvider(model)
	if result.Provider != nil && result.Provider.APIBase != "" {
		return result.Provider.APIBase
	}
	if result.Name != "" {
		spec := providers.FindByName(result.Name)
		if spec != nil && spec.IsGateway && spec.DefaultAPIBase != "" {
			return spec.DefaultAPIBase
		}
	}
	return ""
}
