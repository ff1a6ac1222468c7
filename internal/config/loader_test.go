package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.json")
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	def := DefaultConfig()
	if cfg.Agents.Defaults.Model != def.Agents.Defaults.Model {
		t.Errorf("expected default model %q, got %q", def.Agents.Defaults.Model, cfg.Agents.Defaults.Model)
	}
	if cfg.Remote.MaxRetries != 2 || cfg.Remote.BaseDelayMs != 1000 {
		t.Errorf("unexpected retry defaults: %+v", cfg.Remote)
	}
	if cfg.Server.AuxTimeoutSeconds != 5 {
		t.Errorf("expected aux timeout 5, got %d", cfg.Server.AuxTimeoutSeconds)
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]any{
		"agents": map[string]any{
			"defaults": map[string]any{
				"model":        "openai/gpt-4o",
				"maxPlanSteps": 6,
			},
		},
		"remote": map[string]any{
			"url":        "https://tools.example/mcp",
			"maxRetries": 4,
		},
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Agents.Defaults.Model != "openai/gpt-4o" {
		t.Errorf("expected model %q, got %q", "openai/gpt-4o", cfg.Agents.Defaults.Model)
	}
	if cfg.Agents.Defaults.MaxPlanSteps != 6 {
		t.Errorf("expected maxPlanSteps 6, got %d", cfg.Agents.Defaults.MaxPlanSteps)
	}
	if cfg.Remote.URL != "https://tools.example/mcp" || cfg.Remote.MaxRetries != 4 {
		t.Errorf("unexpected remote section: %+v", cfg.Remote)
	}
	if cfg.Remote.TokenHeader != "api_token" {
		t.Errorf("expected default token header, got %q", cfg.Remote.TokenHeader)
	}
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := `
remote:
  url: https://tools.example/mcp
  refreshSchedule: "0 */5 * * * *"
server:
  port: 9000
  apiKey: secret
storage:
  galleryDB: /tmp/gallery.db
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Remote.URL != "https://tools.example/mcp" {
		t.Errorf("unexpected url %q", cfg.Remote.URL)
	}
	if cfg.Remote.RefreshSchedule != "0 */5 * * * *" {
		t.Errorf("unexpected schedule %q", cfg.Remote.RefreshSchedule)
	}
	if cfg.Server.Port != 9000 || cfg.Server.APIKey != "secret" {
		t.Errorf("unexpected server section: %+v", cfg.Server)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected default host to survive, got %q", cfg.Server.Host)
	}
	if cfg.GalleryPath() != "/tmp/gallery.db" {
		t.Errorf("unexpected gallery path %q", cfg.GalleryPath())
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{not valid json"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error for invalid JSON (falls back to default), got: %v", err)
	}
	def := DefaultConfig()
	if cfg.Agents.Defaults.Model != def.Agents.Defaults.Model {
		t.Errorf("expected default model %q, got %q", def.Agents.Defaults.Model, cfg.Agents.Defaults.Model)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvRemoteURL, "https://env.example/mcp")
	t.Setenv(EnvRemoteToken, "tok")
	t.Setenv(EnvAPIKey, "k")
	t.Setenv(EnvAddr, "0.0.0.0:8080")

	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]any{"remote": map[string]any{"url": "https://file.example"}})
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Remote.URL != "https://env.example/mcp" || cfg.Remote.Token != "tok" {
		t.Errorf("remote overrides not applied: %+v", cfg.Remote)
	}
	if cfg.Server.APIKey != "k" || cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("server overrides not applied: %+v", cfg.Server)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			original := DefaultConfig()
			original.Agents.Defaults.Model = "anthropic/claude-3-5-sonnet"
			original.Remote.UploadTool = "upload_image"
			original.Providers.Anthropic.APIKey = "sk-ant"

			if err := Save(&original, path); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if loaded.Agents.Defaults.Model != original.Agents.Defaults.Model {
				t.Errorf("model mismatch: got %q, want %q", loaded.Agents.Defaults.Model, original.Agents.Defaults.Model)
			}
			if loaded.Remote.UploadTool != "upload_image" {
				t.Errorf("uploadTool mismatch: got %q", loaded.Remote.UploadTool)
			}
			if loaded.Providers.Anthropic.APIKey != "sk-ant" {
				t.Errorf("provider key lost")
			}
		})
	}
}

func TestSave_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := DefaultConfig()
	if err := Save(&cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected permissions 0600, got %04o", perm)
	}
}

func TestSave_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "dir", "config.json")

	cfg := DefaultConfig()
	if err := Save(&cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("file not created: %v", err)
	}
}

func TestLoad_PartialConfig_UsesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]any{
		"agents": map[string]any{
			"defaults": map[string]any{
				"model": "custom/model",
			},
		},
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	def := DefaultConfig()
	if cfg.Agents.Defaults.Model != "custom/model" {
		t.Errorf("expected model %q, got %q", "custom/model", cfg.Agents.Defaults.Model)
	}
	if cfg.Agents.Defaults.Temperature != def.Agents.Defaults.Temperature {
		t.Errorf("expected default temperature %v, got %v", def.Agents.Defaults.Temperature, cfg.Agents.Defaults.Temperature)
	}
	if cfg.Agents.Defaults.HistoryLimit != def.Agents.Defaults.HistoryLimit {
		t.Errorf("expected default historyLimit %d, got %d", def.Agents.Defaults.HistoryLimit, cfg.Agents.Defaults.HistoryLimit)
	}
}

func TestMatchProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers.Anthropic.APIKey = "sk-ant"
	cfg.Providers.OpenRouter.APIKey = "sk-or-v1"

	cases := []struct{ model, want string }{
		{"anthropic/claude-sonnet-4-5", "anthropic"},
		{"claude-3-haiku", "anthropic"},
		{"openrouter/google/gemini-2.5-pro", "openrouter"},
		{"gpt-4o", "openrouter"},
	}
	for _, tc := range cases {
		if got := cfg.MatchProvider(tc.model).Name; got != tc.want {
			t.Errorf("MatchProvider(%q) = %q, want %q", tc.model, got, tc.want)
		}
	}

	empty := DefaultConfig()
	if got := empty.MatchProvider("gpt-4o"); got.Provider != nil {
		t.Errorf("expected no match without keys, got %q", got.Name)
	}
}
