package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/crystaldolphin/canvasagent/internal/media"
	"github.com/crystaldolphin/canvasagent/internal/plan"
)

// Parameters are the generic UI generation settings.
type Parameters struct {
	Steps          int      `json:"steps,omitempty"`
	Model          string   `json:"model,omitempty"`
	AspectRatio    string   `json:"aspect_ratio,omitempty"`
	Seed           *int64   `json:"seed,omitempty"`
	Mode           string   `json:"mode,omitempty"`
	ModelInfluence *float64 `json:"modelInfluence,omitempty"`
}

// Operation is an explicit edit the user picked in the UI.
type Operation struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// Continuation marks a context synthesized by the batch driver for the next
// unit of a plan.
type Continuation struct {
	Plan plan.ExecutionPlan
	// Unit is the 1-based unit this cycle must produce.
	Unit int
	// Previous is the last successfully produced result, if any.
	Previous *media.Reference
}

// GenerationContext is the input to one decision cycle. Build a new value
// per cycle; the With* helpers return modified copies.
type GenerationContext struct {
	UserInput        string          `json:"user_input"`
	Parameters       Parameters      `json:"parameters"`
	ReferenceImage   string          `json:"reference_image,omitempty"`
	Operation        *Operation      `json:"ai_operation,omitempty"`
	PreviewImageURL  string          `json:"preview_image_url,omitempty"`
	StructuredPrompt json.RawMessage `json:"structured_prompt,omitempty"`
	// MaskData is a data URI or base64 payload.
	MaskData string `json:"mask_data,omitempty"`

	Continuation *Continuation `json:"-"`
}

// HasText reports whether the user typed anything meaningful.
func (c GenerationContext) HasText() bool {
	return strings.TrimSpace(c.UserInput) != ""
}

// WithResult threads ref into a copy of c: the next cycle sees ref's origin
// URL (or its data URI when no URL exists) and its structured metadata.
func (c GenerationContext) WithResult(ref media.Reference) GenerationContext {
	next := c
	next.PreviewImageURL = ref.ThreadURL()
	next.StructuredPrompt = ref.StructuredPrompt
	next.Operation = nil
	next.MaskData = ""
	return next
}

// ForUnit returns the synthetic continue context for unit n of p.
func (c GenerationContext) ForUnit(p plan.ExecutionPlan, n int, prev *media.Reference) GenerationContext {
	next := c
	next.Operation = nil
	next.MaskData = ""
	next.UserInput = fmt.Sprintf("Continue with step %d of %d.", n, p.Total)
	if p.Type == plan.Pipeline && prev != nil {
		next.PreviewImageURL = prev.ThreadURL()
		next.StructuredPrompt = prev.StructuredPrompt
	}
	next.Continuation = &Continuation{Plan: p.At(n), Unit: n, Previous: prev}
	return next
}

// summary renders c for the reasoning step. Inline payloads are elided.
func (c GenerationContext) summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "User request: %s\n", strings.TrimSpace(c.UserInput))

	params, _ := json.Marshal(c.Parameters)
	fmt.Fprintf(&b, "Current parameters: %s\n", params)

	if c.Operation != nil {
		fmt.Fprintf(&b, "Selected operation: %s", c.Operation.Name)
		if len(c.Operation.Params) > 0 {
			op, _ := json.Marshal(c.Operation.Params)
			fmt.Fprintf(&b, " %s", op)
		}
		b.WriteString("\n")
	}
	if c.PreviewImageURL != "" {
		fmt.Fprintf(&b, "Current image: %s\n", elide(c.PreviewImageURL))
	}
	if c.ReferenceImage != "" {
		fmt.Fprintf(&b, "Reference image: %s\n", elide(c.ReferenceImage))
	}
	if len(c.StructuredPrompt) > 0 {
		fmt.Fprintf(&b, "Structured prompt of current image: %s\n", c.StructuredPrompt)
	}
	if c.MaskData != "" {
		b.WriteString("Mask: provided (painted region)\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func elide(s string) string {
	if strings.HasPrefix(s, "data:") {
		if i := strings.IndexByte(s, ','); i > 0 {
			return s[:i] + ",<inline data>"
		}
		return "<inline data>"
	}
	return s
}
