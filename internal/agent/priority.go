package agent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/crystaldolphin/canvasagent/internal/mcp"
	"github.com/crystaldolphin/canvasagent/internal/plan"
)

// Branch is the decision path a context falls into. Lower values win.
type Branch int

const (
	BranchNone Branch = iota
	BranchExplicitOperation
	BranchEditIntent
	BranchMaskedEdit
	BranchReference
	BranchRefinement
	BranchGenerate
	BranchContinuation
)

func (b Branch) String() string {
	switch b {
	case BranchExplicitOperation:
		return "explicit_operation"
	case BranchEditIntent:
		return "edit_intent"
	case BranchMaskedEdit:
		return "masked_edit"
	case BranchReference:
		return "reference_generation"
	case BranchRefinement:
		return "refinement"
	case BranchGenerate:
		return "generate"
	case BranchContinuation:
		return "continuation"
	}
	return "none"
}

const (
	toolGenerateImage = "generate_image"
	toolGenerateVideo = "generate_video"
	toolGenFill       = "gen_fill"
	toolErase         = "erase"
)

// operationTools maps UI operation names to tool names.
var operationTools = map[string]string{
	"remove-background":   "remove_background",
	"remove-bg":           "remove_background",
	"blur-background":     "blur_background",
	"replace-background":  "replace_background",
	"change-background":   "replace_background",
	"expand":              "expand_image",
	"expand-image":        "expand_image",
	"upscale":             "increase_resolution",
	"increase-resolution": "increase_resolution",
	"enhance":             "enhance_image",
	"erase-foreground":    "erase_foreground",
	"erase":               toolErase,
	"gen-fill":            toolGenFill,
	"generative-fill":     toolGenFill,
}

// ToolForOperation resolves an operation name through the fixed table.
func ToolForOperation(name string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer("_", "-", " ", "-").Replace(key)
	tool, ok := operationTools[key]
	return tool, ok
}

type editCategory struct {
	name     string
	tool     string
	keywords []*regexp.Regexp
}

func keywords(words ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(words))
	for i, w := range words {
		out[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(w) + `\b`)
	}
	return out
}

// editCategories are checked in order; the first match wins.
var editCategories = []editCategory{
	{name: "remove-background", tool: "remove_background", keywords: keywords(
		"remove background", "remove the background", "remove its background", "remove bg",
		"transparent background", "cut out", "cutout", "no background", "without background", "without the background")},
	{name: "blur-background", tool: "blur_background", keywords: keywords(
		"blur background", "blur the background", "blur its background", "blurry background", "bokeh")},
	{name: "change-background", tool: "replace_background", keywords: keywords(
		"change background", "change the background", "change its background", "replace background",
		"replace the background", "replace its background", "replace with", "new background",
		"different background", "background to", "background with")},
	{name: "expand", tool: "expand_image", keywords: keywords(
		"expand", "resize", "outpaint", "extend", "aspect ratio", "aspect ratios", "zoom out", "wider", "taller")},
	{name: "upscale", tool: "increase_resolution", keywords: keywords(
		"upscale", "increase resolution", "increase the resolution", "higher resolution", "high resolution", "hi-res", "enlarge")},
	{name: "enhance", tool: "enhance_image", keywords: keywords(
		"enhance", "improve quality", "improve the quality", "sharpen", "more detail", "more details")},
}

var eraseKeywords = keywords("remove", "erase", "delete", "get rid of", "clean up", "clear")

var generateKeywords = keywords("generate", "create", "make", "draw", "render", "paint", "imagine", "show me")

var videoKeywords = keywords("video", "animate", "animation", "clip")

// ClassifyEdit returns the edit category text asks for, if any.
func ClassifyEdit(text string) (name, tool string, ok bool) {
	for _, c := range editCategories {
		for _, re := range c.keywords {
			if re.MatchString(text) {
				return c.name, c.tool, true
			}
		}
	}
	return "", "", false
}

func matchesAny(res []*regexp.Regexp, text string) bool {
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// MultiUnitHint is a local estimate of how many outputs a request implies.
// The reasoning step decides the final plan.
type MultiUnitHint struct {
	Count int
	Type  plan.Type
}

var numberWords = map[string]int{
	"two": 2, "three": 3, "four": 4, "five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"couple": 2, "pair": 2, "few": 3, "several": 3,
}

var reCount = regexp.MustCompile(`(?i)(?:^|[\s,(])(\d{1,2}|two|three|four|five|six|seven|eight|nine|ten|couple|pair|few|several)\s+(of\s+)?(?:(different|distinct|unique|separate|individual|more)\s+)?([a-z][a-z-]*)`)

// Nouns that name the outputs themselves: "3 images", "4 versions".
// A plural subject ("a photo of 2 dogs") is one output.
var outputNouns = map[string]bool{
	"images": true, "pictures": true, "photos": true, "shots": true, "renders": true, "renderings": true,
	"versions": true, "variations": true, "variants": true, "options": true, "alternatives": true,
	"takes": true, "designs": true, "illustrations": true, "drawings": true, "videos": true, "clips": true,
	"concepts": true, "ideas": true, "samples": true, "examples": true, "styles": true,
	"aspect": true, "ratios": true, "sizes": true, "formats": true, "orientations": true, "seeds": true,
}

// "3 of these", "two of them".
var selectionPronouns = map[string]bool{"these": true, "those": true, "them": true, "this": true, "it": true}

var distributiveCues = keywords("each", "one per", "one for every", "apiece")
var variationCues = keywords("aspect ratios", "ratios", "variations", "variation", "versions", "seeds", "sizes", "formats", "orientations")

var reSequence = regexp.MustCompile(`(?i)\bthen\b|\bafter that\b|\bafterwards\b|\bfinally\b|,\s*(?:and\s+)?(?:remove|replace|change|blur|upscale|enhance|expand)`)

// DetectMultiUnit estimates whether text asks for more than one output and
// which plan type fits best.
func DetectMultiUnit(text string) (MultiUnitHint, bool) {
	if steps := pipelineSteps(text); steps >= 2 {
		return MultiUnitHint{Count: steps, Type: plan.Pipeline}, true
	}
	distributive := matchesAny(distributiveCues, text)
	for _, m := range reCount.FindAllStringSubmatch(text, -1) {
		noun := strings.ToLower(m[4])
		switch {
		case m[3] != "", outputNouns[noun], distributive:
		case m[2] != "" && selectionPronouns[noun]:
		default:
			continue
		}
		n, ok := numberWords[strings.ToLower(m[1])]
		if !ok {
			v, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			n = v
		}
		if n < 2 || n > 20 {
			continue
		}
		typ := plan.BatchIndependent
		if matchesAny(variationCues, text) {
			typ = plan.BatchVariations
		}
		return MultiUnitHint{Count: n, Type: typ}, true
	}
	return MultiUnitHint{}, false
}

// pipelineSteps counts the sequential operations in text when it reads as
// a chain ("generate X, remove its background, then ...").
func pipelineSteps(text string) int {
	if !reSequence.MatchString(text) {
		return 0
	}
	steps := 0
	if matchesAny(generateKeywords, text) {
		steps++
	}
	for _, c := range editCategories {
		if matchesAny(c.keywords, text) {
			steps++
		}
	}
	return steps
}

// Directive is the outcome of priority evaluation for one context.
type Directive struct {
	Branch Branch
	// Tool is the suggested tool; empty leaves the choice to the reasoner.
	Tool string
	// Required makes a text-only reply an anomaly.
	Required bool
	// Forced values override whatever the reasoner put on the call.
	Forced map[Concept]any
	// Defaults fill fields the reasoner left unset.
	Defaults map[Concept]any
	// Extra are raw field values (operation params) for declared fields.
	Extra     map[string]any
	MultiUnit *MultiUnitHint
}

// ToolCatalog is the read side of the tool registry.
type ToolCatalog interface {
	Get(name string) (*mcp.ToolDescriptor, bool)
	List() []*mcp.ToolDescriptor
	Definitions() []map[string]any
}

// Evaluate applies the fixed priority order to c; the first match wins.
func Evaluate(c GenerationContext, tools ToolCatalog) Directive {
	text := strings.TrimSpace(c.UserInput)
	params := ParameterValues(c.Parameters)

	switch {
	case c.Operation != nil && c.Operation.Name != "":
		tool, ok := ToolForOperation(c.Operation.Name)
		if !ok {
			tool = strings.ReplaceAll(strings.ToLower(c.Operation.Name), "-", "_")
		}
		d := Directive{
			Branch:   BranchExplicitOperation,
			Tool:     resolveTool(tools, tool),
			Required: true,
			Forced:   map[Concept]any{ConceptImage: c.PreviewImageURL},
			Defaults: map[Concept]any{ConceptPrompt: text},
			Extra:    c.Operation.Params,
		}
		if c.MaskData != "" {
			d.Defaults[ConceptMask] = c.MaskData
		}
		return d

	case c.PreviewImageURL != "" && text != "":
		if _, tool, ok := ClassifyEdit(text); ok {
			d := Directive{
				Branch:   BranchEditIntent,
				Tool:     resolveTool(tools, tool),
				Forced:   map[Concept]any{ConceptImage: c.PreviewImageURL},
				Defaults: mergeConcepts(params, map[Concept]any{ConceptPrompt: text}),
			}
			if hint, ok := DetectMultiUnit(text); ok {
				if hint.Type == plan.BatchIndependent {
					hint.Type = plan.BatchVariations
				}
				d.MultiUnit = &hint
			}
			return d
		}
	}

	switch {
	case c.MaskData != "" && text != "":
		tool := toolGenFill
		if matchesAny(eraseKeywords, text) {
			tool = toolErase
		}
		return Directive{
			Branch: BranchMaskedEdit,
			Tool:   resolveTool(tools, tool),
			Forced: map[Concept]any{
				ConceptMask:  c.MaskData,
				ConceptImage: c.PreviewImageURL,
			},
			Defaults: map[Concept]any{ConceptPrompt: text},
		}

	case c.ReferenceImage != "":
		return Directive{
			Branch:   BranchReference,
			Tool:     resolveTool(tools, generationTool(tools, text)),
			Forced:   map[Concept]any{ConceptReferenceImage: c.ReferenceImage},
			Defaults: mergeConcepts(params, map[Concept]any{ConceptPrompt: text}),
		}

	case c.PreviewImageURL != "" && len(c.StructuredPrompt) > 0 && text != "" && c.MaskData == "":
		return Directive{
			Branch:   BranchRefinement,
			Tool:     resolveTool(tools, generationTool(tools, text)),
			Forced:   map[Concept]any{ConceptStructuredPrompt: c.StructuredPrompt},
			Defaults: mergeConcepts(params, map[Concept]any{ConceptPrompt: text}),
		}
	}

	d := Directive{
		Branch:   BranchGenerate,
		Tool:     resolveTool(tools, generationTool(tools, text)),
		Defaults: mergeConcepts(params, map[Concept]any{ConceptPrompt: text}),
	}
	if hint, ok := DetectMultiUnit(text); ok {
		d.MultiUnit = &hint
	}
	return d
}

// Instruction renders d as guidance appended to the user turn.
func (d Directive) Instruction() string {
	var b strings.Builder
	switch d.Branch {
	case BranchExplicitOperation:
		fmt.Fprintf(&b, "The user selected an operation. You MUST call %s on the current image. Do not answer with text only.", d.Tool)
	case BranchEditIntent:
		fmt.Fprintf(&b, "This is an edit of the current image. Use %s with the current image as input.", d.Tool)
	case BranchMaskedEdit:
		fmt.Fprintf(&b, "A mask was painted. Use %s with the mask, the current image and the user's text as the edit instruction.", d.Tool)
	case BranchReference:
		fmt.Fprintf(&b, "Generate a new image with %s conditioned on the reference image and the prompt.", d.Tool)
	case BranchRefinement:
		fmt.Fprintf(&b, "Refine the current image: call %s with the new text as prompt and pass the structured prompt along for consistency.", d.Tool)
	default:
		fmt.Fprintf(&b, "Generate from the prompt with %s using the current parameters.", d.Tool)
	}
	if d.MultiUnit != nil {
		fmt.Fprintf(&b, "\nThis request implies %d outputs (likely %s). Call the tool for the FIRST unit only and append %s with the plan and every step.",
			d.MultiUnit.Count, d.MultiUnit.Type, plan.Marker)
	}
	return b.String()
}

// resolveTool returns name when the catalog has it, otherwise the first
// tool whose name contains it, otherwise name unchanged.
func resolveTool(tools ToolCatalog, name string) string {
	if tools == nil {
		return name
	}
	if _, ok := tools.Get(name); ok {
		return name
	}
	for _, t := range tools.List() {
		if strings.Contains(t.Name, name) {
			return t.Name
		}
	}
	return name
}

func generationTool(tools ToolCatalog, text string) string {
	if matchesAny(videoKeywords, text) && tools != nil {
		if _, ok := tools.Get(toolGenerateVideo); ok {
			return toolGenerateVideo
		}
	}
	return toolGenerateImage
}

func mergeConcepts(maps ...map[Concept]any) map[Concept]any {
	out := map[Concept]any{}
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
