package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// ConfigurationError reports a missing endpoint or credential. It is fatal
// for the session and never retried.
type ConfigurationError struct {
	Field string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("mcp: missing configuration value %q", e.Field)
}

// ConnectionError wraps a transport failure while establishing the session.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mcp: connect %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// DiscoveryError wraps a failed tools/list exchange. The registry keeps its
// previous snapshot when this is returned.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("mcp: discover tools: %v", e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// RemoteError is a failure reported by the remote side: an HTTP status, a
// JSON-RPC error object or a tool result flagged isError.
type RemoteError struct {
	Status    int // HTTP status code, 0 when the exchange itself succeeded
	Code      int // JSON-RPC error code, 0 when absent
	Message   string
	ToolError bool // result carried isError=true
}

func (e *RemoteError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("remote HTTP %d: %s", e.Status, e.Message)
	case e.Code != 0:
		return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
	case e.ToolError:
		return "tool reported error: " + e.Message
	}
	return "remote error: " + e.Message
}

// Retryable reports whether another attempt could plausibly succeed.
// Bad request, unauthorized, forbidden and not-found equivalents are final.
func (e *RemoteError) Retryable() bool {
	switch e.Status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return false
	}
	switch e.Code {
	case codeParseError, codeInvalidRequest, codeMethodNotFound, codeInvalidParams:
		return false
	}
	if e.ToolError {
		return !looksFinal(e.Message)
	}
	return true
}

// Transient reports whether the failure indicates an overloaded or briefly
// unavailable service rather than a problem with the request.
func (e *RemoteError) Transient() bool {
	switch {
	case e.Status == http.StatusTooManyRequests:
		return true
	case e.Status >= 500:
		return true
	}
	return looksTransient(e.Message)
}

// ToolExecutionError is returned by CallTool once every allowed attempt has
// failed, or after a single non-retryable failure.
type ToolExecutionError struct {
	Tool     string
	Args     map[string]any
	Attempts int
	Err      error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed after %d attempt(s): %v", e.Tool, e.Attempts, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// Transient reports whether the last failure looks like service load, so
// the user can be told to retry shortly.
func (e *ToolExecutionError) Transient() bool {
	var re *RemoteError
	if errors.As(e.Err, &re) {
		return re.Transient()
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// IsRetryable classifies err for the retry loop.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return false
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	// Transport-level failures (reset, timeout, refused).
	return true
}

var transientMarkers = []string{
	"rate limit",
	"too many requests",
	"overloaded",
	"temporarily unavailable",
	"service unavailable",
	"try again",
	"timeout",
	"timed out",
	"429",
	"503",
}

// reFinal matches tool error text naming a rejected request.
var reFinal = regexp.MustCompile(`(?i)\b(?:required|invalid|unauthori[sz]ed|forbidden|not found|bad request|permission denied|40[0134])\b`)

func looksFinal(msg string) bool {
	return reFinal.MatchString(msg)
}

func looksTransient(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range transientMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
