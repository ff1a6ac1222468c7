package mcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const removeBackgroundSchema = `{
	"type": "object",
	"properties": {
		"image": {"type": "string", "description": "URL or base64"},
		"steps": {"type": ["integer", "null"]},
		"sync":  {"type": "boolean"}
	},
	"required": ["image"]
}`

func TestToolDescriptor_Introspection(t *testing.T) {
	d := NewToolDescriptor("remove_background", "cut out", json.RawMessage(removeBackgroundSchema))

	assert.True(t, d.Declares("image"))
	assert.False(t, d.Declares("prompt"))
	assert.Equal(t, []string{"image", "steps", "sync"}, d.Fields())
	assert.Equal(t, []string{"image"}, d.Required())
	assert.Equal(t, "integer", d.FieldType("steps"))
	assert.Equal(t, "", d.FieldType("missing"))

	def := d.Definition()
	fn := def["function"].(map[string]any)
	assert.Equal(t, "remove_background", fn["name"])
	assert.NotNil(t, fn["parameters"])
}

func TestToolDescriptor_EmptySchema(t *testing.T) {
	d := NewToolDescriptor("ping", "", nil)
	assert.Empty(t, d.Fields())
	require.NoError(t, d.Validate(map[string]any{"anything": 1}))
}

func TestToolDescriptor_Validate(t *testing.T) {
	d := NewToolDescriptor("remove_background", "", json.RawMessage(removeBackgroundSchema))

	require.NoError(t, d.Validate(map[string]any{"image": "https://x/img.jpg", "steps": 30}))
	assert.Error(t, d.Validate(map[string]any{"steps": 30}))
	assert.Error(t, d.Validate(map[string]any{"image": 12}))
}

func TestRegistry_DuplicateNamesKeepFirst(t *testing.T) {
	r := NewRegistry()
	r.Replace([]*ToolDescriptor{
		NewToolDescriptor("a", "first", nil),
		NewToolDescriptor("a", "second", nil),
		NewToolDescriptor("", "nameless", nil),
		NewToolDescriptor("b", "", nil),
	})
	assert.Equal(t, 2, r.Len())
	a, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "first", a.Description)
	assert.False(t, r.DiscoveredAt().IsZero())
	assert.Len(t, r.Definitions(), 2)
}

func TestToolResult_Text(t *testing.T) {
	res := ToolResult{Content: []ContentItem{
		{Type: "text", Text: "one"},
		{Type: "image", Data: "AAAA", MimeType: "image/png"},
		{Type: "text", Text: "two"},
	}}
	assert.Equal(t, "one\ntwo", res.Text())
}
