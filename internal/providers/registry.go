package providers

import "strings"

// ModelOverride applies extra parameters for a specific model pattern.
type ModelOverride struct {
	Pattern   string         // case-insensitive substring to match in model name
	Overrides map[string]any // parameters to merge into the request body
}

// Spec is the metadata record for one LLM backend.
type Spec struct {
	Name        string   // config key, e.g. "openrouter"
	Keywords    []string // model-name keywords for matching (lowercase)
	EnvKey      string   // env var consulted when no key is configured
	DisplayName string   // shown by `canvasagent status`

	// Prefix the gateway uses for routing; stripped before the request.
	RoutePrefix string

	IsGateway           bool   // routes any model
	IsLocal             bool   // self-hosted deployment
	DetectByKeyPrefix   string // api key prefix identifying the gateway
	DetectByBaseKeyword string // api base substring identifying the gateway
	DefaultAPIBase      string

	// Anthropic Messages API instead of chat completions.
	Native bool

	StripModelPrefix bool
	ModelOverrides   []ModelOverride
}

// Label returns the display name, defaulting to Title-cased Name.
func (s Spec) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return strings.ToUpper(s.Name[:1]) + s.Name[1:]
}

// Specs is the registry. Order is match priority.
var Specs = []Spec{
	{
		Name:        "custom",
		DisplayName: "Custom",
	},
	{
		Name:                "openrouter",
		Keywords:            []string{"openrouter"},
		EnvKey:              "OPENROUTER_API_KEY",
		DisplayName:         "OpenRouter",
		RoutePrefix:         "openrouter",
		IsGateway:           true,
		DetectByKeyPrefix:   "sk-or-",
		DetectByBaseKeyword: "openrouter",
		DefaultAPIBase:      "https://openrouter.ai/api/v1",
	},
	{
		Name:           "anthropic",
		Keywords:       []string{"anthropic", "claude"},
		EnvKey:         "ANTHROPIC_API_KEY",
		DisplayName:    "Anthropic",
		DefaultAPIBase: "https://api.anthropic.com/v1",
		Native:         true,
	},
	{
		Name:           "openai",
		Keywords:       []string{"openai", "gpt"},
		EnvKey:         "OPENAI_API_KEY",
		DisplayName:    "OpenAI",
		DefaultAPIBase: "https://api.openai.com/v1",
	},
	{
		Name:           "deepseek",
		Keywords:       []string{"deepseek"},
		EnvKey:         "DEEPSEEK_API_KEY",
		DisplayName:    "DeepSeek",
		RoutePrefix:    "deepseek",
		DefaultAPIBase: "https://api.deepseek.com/v1",
	},
	{
		Name:           "gemini",
		Keywords:       []string{"gemini"},
		EnvKey:         "GEMINI_API_KEY",
		DisplayName:    "Gemini",
		RoutePrefix:    "gemini",
		DefaultAPIBase: "https://generativelanguage.googleapis.com/v1beta/openai",
	},
	{
		Name:           "groq",
		Keywords:       []string{"groq"},
		EnvKey:         "GROQ_API_KEY",
		DisplayName:    "Groq",
		RoutePrefix:    "groq",
		DefaultAPIBase: "https://api.groq.com/openai/v1",
	},
	{
		Name:           "moonshot",
		Keywords:       []string{"moonshot", "kimi"},
		EnvKey:         "MOONSHOT_API_KEY",
		DisplayName:    "Moonshot",
		RoutePrefix:    "moonshot",
		DefaultAPIBase: "https://api.moonshot.ai/v1",
		ModelOverrides: []ModelOverride{
			{Pattern: "kimi-k2.5", Overrides: map[string]any{"temperature": 1.0}},
		},
	},
	{
		Name:        "vllm",
		Keywords:    []string{"vllm"},
		EnvKey:      "HOSTED_VLLM_API_KEY",
		DisplayName: "vLLM/Local",
		RoutePrefix: "hosted_vllm",
		IsLocal:     true,
	},
}

// FindByModel matches a direct provider by model-name keyword. Gateways and
// local deployments are matched by key or base instead.
func FindByModel(model string) *Spec {
	lower := strings.ToLower(model)
	norm := strings.ReplaceAll(lower, "-", "_")
	prefix, _, _ := strings.Cut(lower, "/")
	prefix = strings.ReplaceAll(prefix, "-", "_")

	for i := range Specs {
		s := &Specs[i]
		if !s.IsGateway && !s.IsLocal && prefix != "" && prefix == s.Name {
			return s
		}
	}
	for i := range Specs {
		s := &Specs[i]
		if s.IsGateway || s.IsLocal {
			continue
		}
		for _, kw := range s.Keywords {
			if strings.Contains(lower, kw) || strings.Contains(norm, strings.ReplaceAll(kw, "-", "_")) {
				return s
			}
		}
	}
	return nil
}

// FindGateway detects a gateway or local provider: by configured name first,
// then api key prefix, then api base keyword.
func FindGateway(providerName, apiKey, apiBase string) *Spec {
	if s := FindByName(providerName); s != nil && (s.IsGateway || s.IsLocal) {
		return s
	}
	for i := range Specs {
		s := &Specs[i]
		if s.DetectByKeyPrefix != "" && strings.HasPrefix(apiKey, s.DetectByKeyPrefix) {
			return s
		}
		if s.DetectByBaseKeyword != "" && strings.Contains(apiBase, s.DetectByBaseKeyword) {
			return s
		}
	}
	return nil
}

// FindByName returns the Spec whose Name equals name.
func FindByName(name string) *Spec {
	name = strings.ReplaceAll(strings.ToLower(name), "-", "_")
	for i := range Specs {
		if Specs[i].Name == name {
			return &Specs[i]
		}
	}
	return nil
}
