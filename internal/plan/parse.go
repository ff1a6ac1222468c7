package plan

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Marker introduces a plan embedded in a natural-language reply.
const Marker = "EXECUTION_PLAN:"

var reEmptyFence = regexp.MustCompile("```(?:json)?\\s*```")

// ParseError reports a marker followed by a missing or malformed object.
// Callers treat it as "no plan".
type ParseError struct {
	Offset int
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("execution plan at offset %d: %v", e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Extract looks for Marker in text and decodes the JSON object that follows
// it. It returns the plan (nil when absent) and text with the marker and
// object removed. A present-but-broken plan yields a nil plan, the original
// text and a *ParseError.
func Extract(text string) (*ExecutionPlan, string, error) {
	idx := strings.Index(text, Marker)
	if idx < 0 {
		return nil, text, nil
	}

	open := strings.IndexByte(text[idx+len(Marker):], '{')
	if open < 0 {
		return nil, text, &ParseError{Offset: idx, Err: fmt.Errorf("no object after marker")}
	}
	start := idx + len(Marker) + open
	end, ok := balancedObjectEnd(text, start)
	if !ok {
		return nil, text, &ParseError{Offset: idx, Err: fmt.Errorf("unbalanced braces")}
	}

	var p ExecutionPlan
	if err := json.Unmarshal([]byte(text[start:end]), &p); err != nil {
		return nil, text, &ParseError{Offset: idx, Err: err}
	}
	if err := p.Validate(); err != nil {
		return nil, text, &ParseError{Offset: idx, Err: err}
	}

	rest := text[:idx] + text[end:]
	rest = reEmptyFence.ReplaceAllString(rest, "")
	return &p, strings.TrimSpace(rest), nil
}

// balancedObjectEnd returns the index just past the '}' that closes the
// object opening at s[start]. Braces inside JSON strings are ignored.
func balancedObjectEnd(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}
