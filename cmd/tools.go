package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/crystaldolphin/canvasagent/internal/dependency"
	"github.com/crystaldolphin/canvasagent/internal/mcp"
	"github.com/crystaldolphin/canvasagent/internal/media"
	"github.com/crystaldolphin/canvasagent/internal/shared/cmdutils"
)

var (
	toolsYAML     bool
	toolsArgs     string
	toolsValidate bool
	toolsTimeout  time.Duration
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect and call remote tools",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tools the remote service exposes",
	RunE:  runToolsList,
}

var toolsCallCmd = &cobra.Command{
	Use:   "call <tool>",
	Short: "Call one remote tool with JSON arguments",
	Args:  cobra.ExactArgs(1),
	RunE:  runToolsCall,
}

func init() {
	toolsCmd.PersistentFlags().DurationVar(&toolsTimeout, "timeout", 5*time.Minute, "Overall deadline")
	toolsListCmd.Flags().BoolVar(&toolsYAML, "yaml", false, "Print full descriptors as YAML")
	toolsCallCmd.Flags().StringVarP(&toolsArgs, "args", "a", "{}", "Tool arguments as a JSON object")
	toolsCallCmd.Flags().BoolVar(&toolsValidate, "validate", true, "Validate arguments against the tool's input schema first")

	toolsCmd.AddCommand(toolsListCmd)
	toolsCmd.AddCommand(toolsCallCmd)
}

// connectedClient dials the remote service and discovers its tools.
func connectedClient(ctx context.Context) (*mcp.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	client := dependency.NewClient(cfg)
	if _, err := client.DiscoverTools(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

type toolView struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Required    []string       `yaml:"required,omitempty"`
	InputSchema map[string]any `yaml:"inputSchema"`
}

func runToolsList(_ *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), toolsTimeout)
	defer cancel()

	client, err := connectedClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	tools := client.Tools()
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })

	if toolsYAML {
		views := make([]toolView, 0, len(tools))
		for _, d := range tools {
			v := toolView{Name: d.Name, Description: d.Description, Required: d.Required()}
			_ = json.Unmarshal(d.InputSchema, &v.InputSchema)
			views = append(views, v)
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(views)
	}

	info := client.ServerInfo()
	fmt.Printf("%s %s %s: %d tools\n\n", logo, info.Name, info.Version, len(tools))
	for _, d := range tools {
		fmt.Printf("  %-28s %s\n", d.Name, cmdutils.Elide(firstLine(d.Description), 72))
	}
	return nil
}

func runToolsCall(_ *cobra.Command, args []string) error {
	var toolArgs map[string]any
	if err := json.Unmarshal([]byte(toolsArgs), &toolArgs); err != nil {
		return fmt.Errorf("parse --args: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), toolsTimeout)
	defer cancel()

	client, err := connectedClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	name := args[0]
	d, ok := client.Registry().Get(name)
	if !ok {
		return fmt.Errorf("unknown tool %q; see `canvasagent tools list`", name)
	}
	if toolsValidate {
		if err := d.Validate(toolArgs); err != nil {
			return fmt.Errorf("invalid arguments for %s: %w", name, err)
		}
	}

	res, err := client.CallTool(ctx, name, toolArgs)
	if err != nil {
		return err
	}
	if text := res.Text(); text != "" {
		fmt.Println(text)
	}
	if ref, ok := media.Extract(res); ok {
		fmt.Printf("\n  %s %s\n", ref.MediaType, cmdutils.Elide(ref.MediaURL, 120))
	}
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
