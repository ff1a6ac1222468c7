package plan

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_NoMarker(t *testing.T) {
	p, rest, err := Extract("Here is your image of a cat.")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, "Here is your image of a cat.", rest)
}

func TestExtract_NestedSteps(t *testing.T) {
	text := `Generating three dogs now.
EXECUTION_PLAN: {"current":1,"total":3,"description":"three dogs","continue":true,"plan_type":"batch_independent",
"steps":[{"step":1,"tool":"generate_image","args":{"prompt":"a corgi {sitting}","extra":{"seed":1}}},
{"step":2,"tool":"generate_image","args":{"prompt":"a \"husky\" in snow"}},
{"step":3,"tool":"generate_image","args":{"prompt":"a poodle"}}]}
Enjoy!`
	p, rest, err := Extract(text)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 1, p.Current)
	assert.Equal(t, 3, p.Total)
	assert.True(t, p.Continue)
	assert.Equal(t, BatchIndependent, p.Type)
	require.Len(t, p.Steps, 3)
	assert.Equal(t, `a "husky" in snow`, p.Steps[1].Args["prompt"])
	assert.Equal(t, "Generating three dogs now.\n\nEnjoy!", rest)
}

func TestExtract_CodeFence(t *testing.T) {
	text := "Sure.\n```json\nEXECUTION_PLAN: {\"current\":1,\"total\":2,\"description\":\"d\",\"continue\":true,\"plan_type\":\"pipeline\"}\n```"
	p, rest, err := Extract(text)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, Pipeline, p.Type)
	assert.Equal(t, "Sure.", rest)
}

func TestExtract_Malformed(t *testing.T) {
	cases := map[string]string{
		"unbalanced":   `EXECUTION_PLAN: {"current":1,"total":2`,
		"no object":    `EXECUTION_PLAN: none`,
		"bad json":     `EXECUTION_PLAN: {"current":1,,}`,
		"bad counters": `EXECUTION_PLAN: {"current":3,"total":2,"continue":false}`,
		"bad type":     `EXECUTION_PLAN: {"current":1,"total":2,"plan_type":"fanout"}`,
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			p, rest, err := Extract(text)
			assert.Nil(t, p)
			assert.Equal(t, text, rest)
			var pe *ParseError
			assert.ErrorAs(t, err, &pe)
		})
	}
}

func TestExtract_DefaultsType(t *testing.T) {
	p, _, err := Extract(`EXECUTION_PLAN: {"current":1,"total":1,"continue":false}`)
	require.NoError(t, err)
	assert.Equal(t, BatchIndependent, p.Type)
	assert.True(t, p.Exhausted())
}

func TestPlan_AtAndStepFor(t *testing.T) {
	p := ExecutionPlan{Current: 1, Total: 3, Continue: true, Type: Pipeline, Steps: []Step{
		{Tool: "generate_image"}, {Tool: "remove_background"}, {Tool: "replace_background"},
	}}
	second := p.At(2)
	assert.Equal(t, 2, second.Current)
	assert.True(t, second.Continue)
	last := p.At(3)
	assert.False(t, last.Continue)
	assert.True(t, last.Exhausted())

	s, ok := p.StepFor(2)
	require.True(t, ok)
	assert.Equal(t, "remove_background", s.Tool)
	_, ok = p.StepFor(4)
	assert.False(t, ok)
}

func TestProperty_ExtractSurvivesArbitraryStrings(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("embedded plan round-trips whatever its strings contain", prop.ForAll(
		func(prefix, desc, prompt string, total int) bool {
			prefix = strings.ReplaceAll(prefix, Marker, "")
			in := ExecutionPlan{
				Current: 1, Total: total, Description: desc, Continue: total > 1, Type: BatchVariations,
				Steps: []Step{{Step: 1, Tool: "generate_image", Args: map[string]any{"prompt": prompt}}},
			}
			raw, err := json.Marshal(in)
			if err != nil {
				return false
			}
			out, _, err := Extract(prefix + "\n" + Marker + " " + string(raw) + "\n{trailing}")
			if err != nil || out == nil {
				return false
			}
			return out.Description == desc && out.Total == total && out.Steps[0].Args["prompt"] == prompt
		},
		gen.AlphaString(),
		jsonHostileString(),
		jsonHostileString(),
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}

// jsonHostileString generates strings dense in braces, quotes and escapes.
func jsonHostileString() gopter.Gen {
	return gen.SliceOf(gen.OneConstOf('{', '}', '"', '\\', '[', ']', ':', ',', 'a', 'z', ' ', '\n')).
		Map(func(rs []rune) string { return string(rs) })
}
