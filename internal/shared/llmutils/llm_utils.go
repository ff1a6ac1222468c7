package llmutils

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/crystaldolphin/canvasagent/internal/schema"
)

var reThink = regexp.MustCompile(`(?s)<think>.*?</think>`)

// Truncate shortens a string to at most n bytes, adding "..." if it was truncated.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// StripThink removes <think>…</think> blocks that some models embed.
func StripThink(s string) string {
	return reThink.ReplaceAllString(s, "")
}

// StringOrDefault returns s if it's not empty, or def if s is empty.
func StringOrDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// ToolHint renders tool calls as a short hint, e.g. `generate_image("a red fox")`.
// The prompt-like argument is preferred; inline data is never shown.
func ToolHint(tcs []schema.ToolCall) string {
	parts := make([]string, 0, len(tcs))
	for _, tc := range tcs {
		val := hintValue(tc.Arguments)
		if val == "" {
			parts = append(parts, tc.Name)
			continue
		}
		if len(val) > 40 {
			val = val[:40] + "…"
		}
		parts = append(parts, fmt.Sprintf("%s(%q)", tc.Name, val))
	}
	return strings.Join(parts, ", ")
}

func hintValue(args map[string]any) string {
	for _, k := range []string{"prompt", "text", "instruction"} {
		if s, ok := args[k].(string); ok && s != "" {
			return s
		}
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s, ok := args[k].(string); ok && s != "" && !strings.HasPrefix(s, "data:") {
			return s
		}
	}
	return ""
}
