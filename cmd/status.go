package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/canvasagent/internal/dependency"
	"github.com/crystaldolphin/canvasagent/internal/providers"
)

var statusProbe bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show canvasagent status",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusProbe, "probe", false, "Connect to the remote tool service and count its tools")
}

func mark(err error) string {
	if err == nil {
		return "✓"
	}
	return "✗"
}

func runStatus(_ *cobra.Command, _ []string) error {
	path := cfgPath()

	fmt.Printf("%s canvasagent Status\n\n", logo)

	_, statErr := os.Stat(path)
	fmt.Printf("Config:    %s %s\n", path, mark(statErr))

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}

	ws := cfg.WorkspacePath()
	_, wsErr := os.Stat(ws)
	fmt.Printf("Workspace: %s %s\n", ws, mark(wsErr))
	fmt.Printf("Sessions:  %s\n", cfg.SessionsDir())
	fmt.Printf("Gallery:   %s\n", cfg.GalleryPath())
	fmt.Printf("Model:     %s\n", cfg.Agents.Defaults.Model)
	fmt.Printf("Server:    %s\n\n", cfg.Server.Addr())

	fmt.Println("Remote tools:")
	switch r := cfg.Remote; {
	case r.URL != "":
		token := "(no token)"
		if r.Token != "" {
			token = "token ✓"
		}
		fmt.Printf("  %-20s %s %s\n", "URL", r.URL, token)
	case r.Command != "":
		fmt.Printf("  %-20s %s %v\n", "Command", r.Command, r.Args)
	default:
		fmt.Printf("  %-20s (not set)\n", "Endpoint")
	}
	if cfg.Remote.RefreshSchedule != "" {
		fmt.Printf("  %-20s %s\n", "Refresh", cfg.Remote.RefreshSchedule)
	}
	if statusProbe && cfg.Remote.Configured() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		client := dependency.NewClient(cfg)
		defer client.Close()
		tools, err := client.DiscoverTools(ctx)
		if err != nil {
			fmt.Printf("  %-20s ✗ %v\n", "Tools", err)
		} else {
			fmt.Printf("  %-20s ✓ %d\n", "Tools", len(tools))
		}
	}

	fmt.Println("\nProviders:")
	for _, spec := range providers.Specs {
		p := cfg.ProviderByName(spec.Name)
		if p == nil {
			continue
		}
		label := spec.Label()
		switch {
		case spec.IsLocal:
			if p.APIBase != "" {
				fmt.Printf("  %-20s ✓ %s\n", label, p.APIBase)
			} else {
				fmt.Printf("  %-20s (not set)\n", label)
			}
		default:
			if p.APIKey != "" {
				fmt.Printf("  %-20s ✓\n", label)
			} else {
				fmt.Printf("  %-20s (not set)\n", label)
			}
		}
	}
	return nil
}
