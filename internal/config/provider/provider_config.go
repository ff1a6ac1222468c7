package provider

const (
	ProviderCustom     = "custom"
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderDeepSeek   = "deepseek"
	ProviderGemini     = "gemini"
	ProviderGroq       = "groq"
	ProviderMoonshot   = "moonshot"
	ProviderVLLM       = "vllm"
)

// ProviderConfig holds credentials for one LLM provider.
type ProviderConfig struct {
	APIKey       string            `json:"apiKey" yaml:"apiKey"`
	APIBase      string            `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`
	ExtraHeaders map[string]string `json:"extraHeaders,omitempty" yaml:"extraHeaders,omitempty"`
}

// ProvidersConfig holds credentials for every provider the reasoner can use.
type ProvidersConfig struct {
	Custom     ProviderConfig `json:"custom" yaml:"custom"`
	OpenRouter ProviderConfig `json:"openrouter" yaml:"openrouter"`
	Anthropic  ProviderConfig `json:"anthropic" yaml:"anthropic"`
	OpenAI     ProviderConfig `json:"openai" yaml:"openai"`
	DeepSeek   ProviderConfig `json:"deepseek" yaml:"deepseek"`
	Gemini     ProviderConfig `json:"gemini" yaml:"gemini"`
	Groq       ProviderConfig `json:"groq" yaml:"groq"`
	Moonshot   ProviderConfig `json:"moonshot" yaml:"moonshot"`
	VLLM       ProviderConfig `json:"vllm" yaml:"vllm"`
}

func DefaultProvidersConfig() ProvidersConfig {
	return ProvidersConfig{}
}

// ByName returns a pointer to the ProviderConfig field matching the given
// registry name. Returns nil if the name is unknown.
func (p *ProvidersConfig) ByName(name string) *ProviderConfig {
	switch name {
	case ProviderCustom:
		return &p.Custom
	case ProviderOpenRouter:
		return &p.OpenRouter
	case ProviderAnthropic:
		return &p.Anthropic
	case ProviderOpenAI:
		return &p.OpenAI
	case ProviderDeepSeek:
		return &p.DeepSeek
	case ProviderGemini:
		return &p.Gemini
	case ProviderGroq:
		return &p.Groq
	case ProviderMoonshot:
		return &p.Moonshot
	case ProviderVLLM:
		return &p.VLLM
	}
	return nil
}
