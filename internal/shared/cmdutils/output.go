package cmdutils

import (
	"fmt"
	"strings"
)

// PrintResponse prints an agent reply under the given banner.
func PrintResponse(banner, text string) {
	if text == "" {
		return
	}

	fmt.Printf("\n%s canvasagent\n%s\n\n", banner, text)
}

// Elide shortens s for terminal output. Data URIs keep only their header.
func Elide(s string, max int) string {
	if strings.HasPrefix(s, "data:") {
		if i := strings.IndexByte(s, ','); i > 0 {
			s = s[:i] + ",…"
		}
	}
	if max > 0 && len(s) > max {
		return s[:max] + "…"
	}
	return s
}
