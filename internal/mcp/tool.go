package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Property is one declared field of a tool's parameter schema.
type Property struct {
	Type        any    `json:"type,omitempty"` // string or []string
	Description string `json:"description,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
}

// ParameterSchema is the JSON-Schema-shaped object a tool declares for its
// arguments.
type ParameterSchema struct {
	Type       string              `json:"type,omitempty"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// ToolDescriptor describes one remote tool. It is immutable once built; a
// new discovery produces new descriptors.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`

	params ParameterSchema

	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
}

// NewToolDescriptor parses inputSchema and returns a descriptor. An empty or
// unparsable schema yields a descriptor that declares no fields.
func NewToolDescriptor(name, description string, inputSchema json.RawMessage) *ToolDescriptor {
	d := &ToolDescriptor{Name: name, Description: description}
	if len(bytes.TrimSpace(inputSchema)) == 0 {
		inputSchema = json.RawMessage(`{"type":"object","properties":{}}`)
	}
	d.InputSchema = append(json.RawMessage(nil), inputSchema...)
	_ = json.Unmarshal(d.InputSchema, &d.params)
	return d
}

// Declares reports whether the schema declares field.
func (d *ToolDescriptor) Declares(field string) bool {
	_, ok := d.params.Properties[field]
	return ok
}

// Fields returns the declared field names in sorted order.
func (d *ToolDescriptor) Fields() []string {
	out := make([]string, 0, len(d.params.Properties))
	for k := range d.params.Properties {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Required returns a copy of the schema's required field list.
func (d *ToolDescriptor) Required() []string {
	return append([]string(nil), d.params.Required...)
}

// FieldType returns the first declared JSON type of field, or "".
func (d *ToolDescriptor) FieldType(field string) string {
	p, ok := d.params.Properties[field]
	if !ok {
		return ""
	}
	switch t := p.Type.(type) {
	case string:
		return t
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && s != "null" {
				return s
			}
		}
	}
	return ""
}

// Definition renders the descriptor in OpenAI function-calling format.
func (d *ToolDescriptor) Definition() map[string]any {
	var params map[string]any
	if err := json.Unmarshal(d.InputSchema, &params); err != nil || params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        d.Name,
			"description": d.Description,
			"parameters":  params,
		},
	}
}

// Validate checks args against the declared schema. The remote service stays
// the authority; callers use the result for diagnostics.
func (d *ToolDescriptor) Validate(args map[string]any) error {
	d.compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := "mem://tools/" + d.Name + ".json"
		if err := c.AddResource(url, bytes.NewReader(d.InputSchema)); err != nil {
			d.compileErr = fmt.Errorf("load schema: %w", err)
			return
		}
		d.compiled, d.compileErr = c.Compile(url)
	})
	if d.compileErr != nil {
		return d.compileErr
	}

	// The validator expects values shaped like decoded JSON.
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decode args: %w", err)
	}
	return d.compiled.Validate(v)
}

// ContentItem is one element of a tool result.
type ContentItem struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// ToolResult is the decoded answer of tools/call.
type ToolResult struct {
	Content           []ContentItem   `json:"content"`
	IsError           bool            `json:"isError,omitempty"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
}

// Text joins the text items of the result.
func (r ToolResult) Text() string {
	var parts []string
	for _, item := range r.Content {
		if item.Text != "" {
			parts = append(parts, item.Text)
		}
	}
	return strings.Join(parts, "\n")
}
