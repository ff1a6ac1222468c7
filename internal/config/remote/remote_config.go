// Package remote configures the connection to the remote tool service.
package remote

import "time"

// Config describes one remote tool service, reached over HTTP (URL) or as
// a stdio subprocess (Command).
type Config struct {
	URL         string            `json:"url" yaml:"url"`
	Token       string            `json:"token,omitempty" yaml:"token,omitempty"`
	TokenHeader string            `json:"tokenHeader" yaml:"tokenHeader"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	Command string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	TimeoutSeconds int `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	MaxRetries     int `json:"maxRetries" yaml:"maxRetries"`
	BaseDelayMs    int `json:"baseDelayMs" yaml:"baseDelayMs"`

	// UploadTool, when offered by the service, receives uploaded files.
	UploadTool string `json:"uploadTool,omitempty" yaml:"uploadTool,omitempty"`
	// RefreshSchedule is a cron expression for tool rediscovery; empty
	// disables it.
	RefreshSchedule string `json:"refreshSchedule" yaml:"refreshSchedule"`
}

func DefaultConfig() Config {
	return Config{
		TokenHeader:     "api_token",
		TimeoutSeconds:  120,
		MaxRetries:      2,
		BaseDelayMs:     1000,
		RefreshSchedule: "@every 10m",
	}
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c Config) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMs) * time.Millisecond
}

// Configured reports whether an endpoint or command is set.
func (c Config) Configured() bool {
	return c.URL != "" || c.Command != ""
}
