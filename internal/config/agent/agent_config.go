package agent

type AgentDefaults struct {
	Workspace    string  `json:"workspace" yaml:"workspace"`
	Model        string  `json:"model" yaml:"model"`
	MaxTokens    int     `json:"maxTokens" yaml:"maxTokens"`
	Temperature  float64 `json:"temperature" yaml:"temperature"`
	MaxPlanSteps int     `json:"maxPlanSteps" yaml:"maxPlanSteps"`
	// HistoryLimit bounds the turns sent to the reasoner; 0 sends all.
	HistoryLimit int `json:"historyLimit" yaml:"historyLimit"`
}

type AgentsConfig struct {
	Defaults AgentDefaults `json:"defaults" yaml:"defaults"`
}

func defaultAgentDefaults() AgentDefaults {
	return AgentDefaults{
		Workspace:    "~/.canvasagent/workspace",
		Model:        "anthropic/claude-sonnet-4-5",
		MaxTokens:    4096,
		Temperature:  0.4,
		MaxPlanSteps: 12,
		HistoryLimit: 40,
	}
}

func DefaultAgentsConfig() AgentsConfig {
	return AgentsConfig{Defaults: defaultAgentDefaults()}
}
