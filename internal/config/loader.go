package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables applied on top of the file.
const (
	EnvRemoteURL   = "CANVASAGENT_MCP_URL"
	EnvRemoteToken = "CANVASAGENT_MCP_TOKEN"
	EnvAPIKey      = "CANVASAGENT_API_KEY"
	EnvAddr        = "CANVASAGENT_ADDR"
)

// ConfigPath returns the default configuration file path: ~/.canvasagent/config.json.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.json")
}

// DataDir returns the canvasagent data directory: ~/.canvasagent.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".canvasagent"
	}
	return filepath.Join(home, ".canvasagent")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads and parses the config file at path, then applies environment
// overrides. If path is empty, ConfigPath() is used. A missing file yields
// DefaultConfig(); an unparsable one is reported and replaced by defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if isYAML(path) {
			err = yaml.Unmarshal(data, &cfg)
		} else {
			err = json.Unmarshal(data, &cfg)
		}
		if err != nil {
			slog.Warn("config: parse failed, using defaults", "path", path, "err", err)
			cfg = DefaultConfig()
		}
	}

	applyEnv(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvRemoteURL); v != "" {
		cfg.Remote.URL = v
	}
	if v := os.Getenv(EnvRemoteToken); v != "" {
		cfg.Remote.Token = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv(EnvAddr); v != "" {
		host, port, err := net.SplitHostPort(v)
		if err != nil {
			slog.Warn("config: ignoring malformed address", "env", EnvAddr, "value", v, "err", err)
			return
		}
		n, err := strconv.Atoi(port)
		if err != nil {
			slog.Warn("config: ignoring malformed port", "env", EnvAddr, "value", v)
			return
		}
		cfg.Server.Host = host
		cfg.Server.Port = n
	}
}

// Save writes cfg to path as indented JSON, or YAML for .yaml/.yml paths.
// If path is empty, ConfigPath() is used. The file is readable by the owner
// only since it holds credentials.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
