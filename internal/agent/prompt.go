package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/crystaldolphin/canvasagent/internal/mcp"
	"github.com/crystaldolphin/canvasagent/internal/plan"
)

// bootstrapFiles lists workspace files appended to the system prompt.
var bootstrapFiles = []string{"STUDIO.md", "STYLE.md"}

// PromptBuilder assembles the system prompt for the reasoning step.
type PromptBuilder struct {
	workspace string
	now       func() time.Time
}

// NewPromptBuilder creates a builder reading bootstrap files from workspace.
// An empty workspace disables them.
func NewPromptBuilder(workspace string) *PromptBuilder {
	return &PromptBuilder{workspace: workspace, now: time.Now}
}

// Build renders the system prompt for the given tool catalog.
func (pb *PromptBuilder) Build(tools []*mcp.ToolDescriptor) string {
	parts := []string{pb.identity(), catalog(tools), planProtocol}
	if bootstrap := pb.loadBootstrapFiles(); bootstrap != "" {
		parts = append(parts, bootstrap)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func (pb *PromptBuilder) identity() string {
	now := pb.now()
	tz, _ := now.Zone()
	if tz == "" {
		tz = "UTC"
	}
	return fmt.Sprintf(`# canvasagent

You are the creative assistant of an image and video studio. Every turn you
receive the user's request together with the current canvas state (parameters,
current image, reference image, mask, structured prompt). Decide which remote
tool to call and with which arguments.

## Current Time
%s (%s)

Rules:
- Prefer calling a tool over describing what you would do.
- Edits apply to the current image; pass its URL as the image argument.
- Keep the user's own words in the prompt argument; add detail, never drop intent.
- Reply with one short sentence for the user alongside the tool call.`,
		now.Format("2006-01-02 15:04 (Monday)"), tz)
}

func catalog(tools []*mcp.ToolDescriptor) string {
	if len(tools) == 0 {
		return "# Tools\n\nNo remote tools are currently available. Answer in text."
	}
	var b strings.Builder
	b.WriteString("# Tools\n")
	for _, t := range tools {
		fmt.Fprintf(&b, "\n- %s", t.Name)
		if t.Description != "" {
			fmt.Fprintf(&b, ": %s", firstLine(t.Description))
		}
		if req := t.Required(); len(req) > 0 {
			fmt.Fprintf(&b, " (requires %s)", strings.Join(req, ", "))
		}
	}
	return b.String()
}

var planProtocol = fmt.Sprintf(`# Multi-output requests

When the request needs more than one output (several variations, several
different subjects, or a chain of operations), call the tool for the FIRST unit
only and end your reply with a line:

%s {"current":1,"total":N,"description":"...","continue":true,"plan_type":"batch_independent|batch_variations|pipeline","steps":[{"step":1,"tool":"...","args":{...},"description":"..."}]}

- batch_variations: the same source with one parameter varied (aspect ratios, seeds).
- batch_independent: unrelated outputs, each from its own prompt.
- pipeline: each step transforms the previous step's output.
List every step with complete arguments. The studio runs the remaining steps.`, plan.Marker)

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func (pb *PromptBuilder) loadBootstrapFiles() string {
	if pb.workspace == "" {
		return ""
	}
	var parts []string
	for _, name := range bootstrapFiles {
		data, err := os.ReadFile(filepath.Join(expandHome(pb.workspace), name))
		if err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("## %s\n\n%s", name, string(data)))
	}
	return strings.Join(parts, "\n\n")
}

// expandHome replaces a leading "~" with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
