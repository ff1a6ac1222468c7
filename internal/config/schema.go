// Package config defines the configuration schema for canvasagent.
//
// Keys use camelCase in both JSON and YAML files.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/crystaldolphin/canvasagent/internal/config/agent"
	"github.com/crystaldolphin/canvasagent/internal/config/provider"
	"github.com/crystaldolphin/canvasagent/internal/config/remote"
	"github.com/crystaldolphin/canvasagent/internal/config/server"
)

// StorageConfig locates persistent state.
type StorageConfig struct {
	// DataDir holds sessions and, by default, uploads. Empty means DataDir().
	DataDir string `json:"dataDir,omitempty" yaml:"dataDir,omitempty"`
	// GalleryDB is the SQLite gallery path; empty keeps the gallery in memory.
	GalleryDB string `json:"galleryDB,omitempty" yaml:"galleryDB,omitempty"`
}

// Config is the root configuration object, loaded from ~/.canvasagent/config.json.
type Config struct {
	Remote    remote.Config            `json:"remote" yaml:"remote"`
	Agents    agent.AgentsConfig       `json:"agents" yaml:"agents"`
	Providers provider.ProvidersConfig `json:"providers" yaml:"providers"`
	Server    server.Config            `json:"server" yaml:"server"`
	Storage   StorageConfig            `json:"storage" yaml:"storage"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		Remote:    remote.DefaultConfig(),
		Agents:    agent.DefaultAgentsConfig(),
		Providers: provider.DefaultProvidersConfig(),
		Server:    server.DefaultConfig(),
	}
}

// WorkspacePath returns the expanded path of the workspace holding the
// optional STUDIO.md and STYLE.md prompt files.
func (c *Config) WorkspacePath() string {
	ws := c.Agents.Defaults.Workspace
	if ws == "" {
		ws = "~/.canvasagent/workspace"
	}
	return expandHome(ws)
}

// DataPath returns the expanded data directory.
func (c *Config) DataPath() string {
	if c.Storage.DataDir == "" {
		return DataDir()
	}
	return expandHome(c.Storage.DataDir)
}

// SessionsDir is where per-session JSONL files are written.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.DataPath(), "sessions")
}

// UploadDir is where uploaded files are stored.
func (c *Config) UploadDir() string {
	if c.Server.UploadDir != "" {
		return expandHome(c.Server.UploadDir)
	}
	return filepath.Join(c.DataPath(), "uploads")
}

// GalleryPath returns the expanded SQLite path, or "" for an in-memory gallery.
func (c *Config) GalleryPath() string {
	if c.Storage.GalleryDB == "" {
		return ""
	}
	return expandHome(c.Storage.GalleryDB)
}

// ProviderByName returns the credentials for a registry name, or nil.
func (c *Config) ProviderByName(name string) *provider.ProviderConfig {
	return c.Providers.ByName(name)
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}
