package agent

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/crystaldolphin/canvasagent/internal/mcp"
)

// Concept is a generic UI parameter that tools name differently.
type Concept string

const (
	ConceptPrompt           Concept = "prompt"
	ConceptSteps            Concept = "steps"
	ConceptAspectRatio      Concept = "aspect_ratio"
	ConceptSeed             Concept = "seed"
	ConceptReferenceImage   Concept = "reference_image"
	ConceptImage            Concept = "image"
	ConceptMask             Concept = "mask"
	ConceptStructuredPrompt Concept = "structured_prompt"
)

// candidateFields lists, per concept, the schema field names to try in
// preference order. The first one the tool declares wins.
var candidateFields = map[Concept][]string{
	ConceptPrompt:           {"prompt", "text", "instruction", "description", "query"},
	ConceptSteps:            {"steps", "steps_num", "num_steps", "num_inference_steps"},
	ConceptAspectRatio:      {"aspect_ratio", "aspectRatio", "ratio"},
	ConceptSeed:             {"seed"},
	ConceptReferenceImage:   {"image", "image_data", "reference_image", "file", "data"},
	ConceptImage:            {"image", "image_url", "image_data", "file", "data"},
	ConceptMask:             {"mask", "mask_data", "mask_image", "mask_url"},
	ConceptStructuredPrompt: {"structured_prompt"},
}

// conceptOrder fixes which concept claims a field first when two concepts
// share a candidate name.
var conceptOrder = []Concept{
	ConceptImage,
	ConceptReferenceImage,
	ConceptMask,
	ConceptPrompt,
	ConceptStructuredPrompt,
	ConceptSteps,
	ConceptAspectRatio,
	ConceptSeed,
}

// FieldFor returns the field d uses for concept c.
func FieldFor(d *mcp.ToolDescriptor, c Concept) (string, bool) {
	if d == nil {
		return "", false
	}
	for _, name := range candidateFields[c] {
		if d.Declares(name) {
			return name, true
		}
	}
	return "", false
}

// ConceptOf is the reverse of FieldFor: which concept does field carry for d.
func ConceptOf(d *mcp.ToolDescriptor, field string) (Concept, bool) {
	for _, c := range conceptOrder {
		if f, ok := FieldFor(d, c); ok && f == field {
			return c, true
		}
	}
	return "", false
}

// MapArgs places values on the fields d declares. Concepts the tool does not
// declare are dropped; required fields that stay empty are left for the
// remote side to reject.
func MapArgs(d *mcp.ToolDescriptor, values map[Concept]any) map[string]any {
	return Apply(d, nil, values, false)
}

// Apply merges values into a copy of args. With override unset, fields
// already present in args are kept.
func Apply(d *mcp.ToolDescriptor, args map[string]any, values map[Concept]any, override bool) map[string]any {
	out := make(map[string]any, len(args)+len(values))
	for k, v := range args {
		out[k] = v
	}
	claimed := map[string]bool{}
	for _, c := range conceptOrder {
		v, ok := values[c]
		if !ok || isZero(v) {
			continue
		}
		field, ok := FieldFor(d, c)
		if !ok || claimed[field] {
			continue
		}
		claimed[field] = true
		if _, exists := out[field]; exists && !override {
			continue
		}
		out[field] = coerce(d.FieldType(field), v)
	}
	return out
}

// ParameterValues extracts the concepts carried by UI parameters.
func ParameterValues(p Parameters) map[Concept]any {
	vals := map[Concept]any{}
	if p.Steps > 0 {
		vals[ConceptSteps] = p.Steps
	}
	if p.AspectRatio != "" {
		vals[ConceptAspectRatio] = p.AspectRatio
	}
	if p.Seed != nil {
		vals[ConceptSeed] = *p.Seed
	}
	return vals
}

func isZero(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case json.RawMessage:
		return len(x) == 0
	}
	return false
}

func coerce(schemaType string, v any) any {
	if raw, ok := v.(json.RawMessage); ok {
		if schemaType == "string" {
			return string(raw)
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return string(raw)
		}
		return decoded
	}
	switch schemaType {
	case "string":
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	case "integer", "number":
		if s, ok := v.(string); ok {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		}
	}
	return v
}
