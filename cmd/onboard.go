package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/canvasagent/internal/config"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize configuration and workspace",
	RunE:  runOnboard,
}

func runOnboard(_ *cobra.Command, _ []string) error {
	path := cfgPath()

	cfg := config.DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists at %s\n", path)
		fmt.Printf("Press Enter to refresh (keep existing values) or Ctrl+C to cancel: ")
		fmt.Scanln()
		if existing, loadErr := config.Load(path); loadErr == nil {
			cfg = *existing
		}
		if err := config.Save(&cfg, path); err != nil {
			return err
		}
		fmt.Printf("✓ Config refreshed at %s\n", path)
	} else {
		if err := config.Save(&cfg, path); err != nil {
			return err
		}
		fmt.Printf("✓ Created config at %s\n", path)
	}

	workspace := cfg.WorkspacePath()
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	fmt.Printf("✓ Workspace at %s\n", workspace)

	createWorkspaceTemplates(workspace)

	fmt.Printf("\n%s canvasagent is ready!\n\n", logo)
	fmt.Println("Next steps:")
	fmt.Printf("  1. Add an LLM API key and remote.url / remote.token to %s\n", path)
	fmt.Println("     Get an LLM key at: https://openrouter.ai/keys")
	fmt.Println("  2. Check the tools:  canvasagent tools list")
	fmt.Println("  3. Chat:             canvasagent chat -m \"a red fox in the snow\"")
	fmt.Println("  4. Serve the UI API: canvasagent serve")
	return nil
}

func createWorkspaceTemplates(workspace string) {
	templates := map[string]string{
		"STUDIO.md": `# Studio Instructions

You operate a remote image and video tool service on the user's behalf.

## Guidelines

- Pick the single tool that best matches the request
- When the user asks for several variations or a sequence of edits, plan it
- Keep replies short; the produced media speaks for itself
`,
		"STYLE.md": `# House Style

Preferences applied to every generation unless the user says otherwise.

## Defaults

- Aspect ratio: (e.g. 16:9)
- Mood: (e.g. warm, cinematic)
- Avoid: (things you never want in an image)
`,
	}

	for filename, content := range templates {
		p := filepath.Join(workspace, filename)
		if _, err := os.Stat(p); os.IsNotExist(err) {
			_ = os.WriteFile(p, []byte(content), 0o644)
			fmt.Printf("  Created %s\n", filename)
		}
	}
}
