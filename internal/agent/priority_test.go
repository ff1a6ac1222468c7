package agent

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/canvasagent/internal/mcp"
	"github.com/crystaldolphin/canvasagent/internal/plan"
)

func TestToolForOperation(t *testing.T) {
	for in, want := range map[string]string{
		"remove-background":   "remove_background",
		"Remove Background":   "remove_background",
		"change_background":   "replace_background",
		"increase-resolution": "increase_resolution",
		"gen-fill":            "gen_fill",
	} {
		got, ok := ToolForOperation(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ToolForOperation("teleport")
	assert.False(t, ok)
}

func TestEvaluate_Branches(t *testing.T) {
	reg := testRegistry()
	const img = "https://x/img.jpg"
	sp := json.RawMessage(`{"short_description":"a cat"}`)

	cases := []struct {
		name   string
		ctx    GenerationContext
		branch Branch
		tool   string
	}{
		{"operation", GenerationContext{Operation: &Operation{Name: "enhance"}, PreviewImageURL: img}, BranchExplicitOperation, "enhance_image"},
		{"edit keyword", GenerationContext{UserInput: "please remove the background", PreviewImageURL: img}, BranchEditIntent, "remove_background"},
		{"blur keyword", GenerationContext{UserInput: "Blur the background a bit", PreviewImageURL: img}, BranchEditIntent, "blur_background"},
		{"change background", GenerationContext{UserInput: "change the background to a beach", PreviewImageURL: img}, BranchEditIntent, "replace_background"},
		{"expand", GenerationContext{UserInput: "make it wider", PreviewImageURL: img}, BranchEditIntent, "expand_image"},
		{"upscale", GenerationContext{UserInput: "upscale this", PreviewImageURL: img}, BranchEditIntent, "increase_resolution"},
		{"edit keyword without result", GenerationContext{UserInput: "remove the background"}, BranchGenerate, "generate_image"},
		{"mask erase", GenerationContext{UserInput: "erase the lamp", PreviewImageURL: img, MaskData: "m"}, BranchMaskedEdit, "erase"},
		{"mask fill", GenerationContext{UserInput: "a vase of flowers", PreviewImageURL: img, MaskData: "m"}, BranchMaskedEdit, "gen_fill"},
		{"mask without text", GenerationContext{PreviewImageURL: img, MaskData: "m", StructuredPrompt: sp}, BranchGenerate, "generate_image"},
		{"reference", GenerationContext{UserInput: "in this style", ReferenceImage: "data:image/png;base64,AA"}, BranchReference, "generate_image"},
		{"refinement", GenerationContext{UserInput: "now at sunset", PreviewImageURL: img, StructuredPrompt: sp}, BranchRefinement, "generate_image"},
		{"mask and metadata without text", GenerationContext{PreviewImageURL: img, StructuredPrompt: sp, MaskData: "m"}, BranchGenerate, "generate_image"},
		{"default", GenerationContext{UserInput: "a red fox"}, BranchGenerate, "generate_image"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Evaluate(tc.ctx, reg)
			assert.Equal(t, tc.branch, d.Branch)
			assert.Equal(t, tc.tool, d.Tool)
		})
	}
}

func TestEvaluate_ResolvesPrefixedToolNames(t *testing.T) {
	reg := testRegistry()
	d := Evaluate(GenerationContext{Operation: &Operation{Name: "teleport-image"}}, reg)
	assert.Equal(t, "teleport_image", d.Tool)

	reg.Replace([]*mcp.ToolDescriptor{testTool("bria_remove_background", "image")})
	d = Evaluate(GenerationContext{Operation: &Operation{Name: "remove-background"}}, reg)
	assert.Equal(t, "bria_remove_background", d.Tool)
}

func TestDetectMultiUnit(t *testing.T) {
	cases := []struct {
		text  string
		count int
		typ   plan.Type
	}{
		{"generate 3 different dogs", 3, plan.BatchIndependent},
		{"show this in 3 aspect ratios", 3, plan.BatchVariations},
		{"give me four variations of this", 4, plan.BatchVariations},
		{"make a couple of different logos", 2, plan.BatchIndependent},
		{"generate 4 images of a lighthouse", 4, plan.BatchIndependent},
		{"draw 3 cats, each in its own style", 3, plan.BatchIndependent},
		{"give me 2 of these with a red sky", 2, plan.BatchIndependent},
		{"two separate portraits of a knight", 2, plan.BatchIndependent},
		{"generate a cat, remove its background, then replace with forest", 3, plan.Pipeline},
	}
	for _, tc := range cases {
		hint, ok := DetectMultiUnit(tc.text)
		require.True(t, ok, tc.text)
		assert.Equal(t, tc.count, hint.Count, tc.text)
		assert.Equal(t, tc.typ, hint.Type, tc.text)
	}

	single := []string{
		"a 4k photo of a lighthouse", "a 16:9 image of a beach", "use 30 steps", "a cat",
		"a photo of 2 dogs",
		"Generate a photo of 2 dogs playing in a park",
		"a portrait of two people holding hands",
		"draw three cats sleeping on a sofa",
		"a couple of cats playing",
	}
	for _, text := range single {
		_, ok := DetectMultiUnit(text)
		assert.False(t, ok, text)
	}
}

func TestEvaluate_EditEscalatesToVariations(t *testing.T) {
	d := Evaluate(GenerationContext{UserInput: "expand this into 3 aspect ratios", PreviewImageURL: "https://x/a.png"}, testRegistry())
	assert.Equal(t, BranchEditIntent, d.Branch)
	require.NotNil(t, d.MultiUnit)
	assert.Equal(t, plan.BatchVariations, d.MultiUnit.Type)
	assert.Contains(t, d.Instruction(), plan.Marker)
}

func TestEvaluate_PluralSubjectStaysSingleShot(t *testing.T) {
	d := Evaluate(GenerationContext{UserInput: "Generate a photo of 2 dogs playing in a park"}, testRegistry())
	assert.Nil(t, d.MultiUnit)
	assert.NotContains(t, d.Instruction(), plan.Marker)
}

// An explicit operation always wins, whatever else the context carries.
func TestProperty_ExplicitOperationTakesPrecedence(t *testing.T) {
	reg := testRegistry()
	ops := make([]any, 0, len(operationTools))
	for name := range operationTools {
		ops = append(ops, name)
	}

	properties := gopter.NewProperties(gopter.DefaultTestParameters())
	properties.Property("operation beats mask and every later branch", prop.ForAll(
		func(op string, mask string, text string, preview string, ref string) bool {
			c := GenerationContext{
				UserInput:        text,
				Operation:        &Operation{Name: op},
				MaskData:         mask,
				PreviewImageURL:  preview,
				ReferenceImage:   ref,
				StructuredPrompt: json.RawMessage(`{"short_description":"x"}`),
			}
			d := Evaluate(c, reg)
			want, _ := ToolForOperation(op)
			return d.Branch == BranchExplicitOperation && d.Required && d.Tool == want &&
				d.Forced[ConceptImage] == preview
		},
		gen.OneConstOf(ops...),
		gen.Identifier(),
		gen.OneConstOf("", "erase the lamp", "remove the background", "3 different dogs", "a vase"),
		gen.OneConstOf("", "https://x/img.jpg"),
		gen.OneConstOf("", "data:image/png;base64,AA"),
	))
	properties.TestingRun(t)
}
