package studio

import (
	"errors"
	"fmt"

	"github.com/crystaldolphin/canvasagent/internal/mcp"
)

// Error codes reported to API clients.
const (
	CodeServiceBusy = "service_busy"
	CodeToolFailed  = "tool_failed"
	CodeUnavailable = "unavailable"
)

var (
	// ErrStepLimit faults a plan longer than the configured step limit.
	ErrStepLimit = errors.New("plan exceeds step limit")
	// ErrDriverUsed is returned when Run is called on a driver that already ran.
	ErrDriverUsed = errors.New("driver already ran")

	errNoToolCall = errors.New("no tool call for unit")
	errNoMedia    = errors.New("tool result carried no media")
)

// UnitFailure records one skipped batch unit.
type UnitFailure struct {
	Unit int
	Tool string
	Err  error
}

func (f UnitFailure) Error() string {
	if f.Tool == "" {
		return fmt.Sprintf("unit %d: %v", f.Unit, f.Err)
	}
	return fmt.Sprintf("unit %d (%s): %v", f.Unit, f.Tool, f.Err)
}

func (f UnitFailure) Unwrap() error { return f.Err }

// Classify maps err to an API error code.
func Classify(err error) string {
	var (
		cfg  *mcp.ConfigurationError
		conn *mcp.ConnectionError
		disc *mcp.DiscoveryError
		exec *mcp.ToolExecutionError
	)
	switch {
	case errors.As(err, &cfg), errors.As(err, &conn), errors.As(err, &disc):
		return CodeUnavailable
	case errors.As(err, &exec) && exec.Transient():
		return CodeServiceBusy
	}
	return CodeToolFailed
}

// UserMessage renders err for a toast, separating load problems from other
// failures.
func UserMessage(err error) string {
	switch Classify(err) {
	case CodeServiceBusy:
		return "The image service is under heavy load. Please try again shortly."
	case CodeUnavailable:
		return "The image service is not reachable: " + err.Error()
	}
	return "The operation failed: " + err.Error()
}

// fatal reports errors that end a batch instead of skipping a unit. A unit
// that timed out on its own is skipped; cancellation of the batch itself is
// checked between units.
func fatal(err error) bool {
	var (
		cfg  *mcp.ConfigurationError
		conn *mcp.ConnectionError
	)
	return errors.As(err, &cfg) || errors.As(err, &conn)
}
