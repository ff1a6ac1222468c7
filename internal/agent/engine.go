package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/crystaldolphin/canvasagent/internal/mcp"
	"github.com/crystaldolphin/canvasagent/internal/plan"
	"github.com/crystaldolphin/canvasagent/internal/schema"
	"github.com/crystaldolphin/canvasagent/internal/shared/llmutils"
)

// Decision is the engine's output for one cycle.
type Decision struct {
	Message   string              `json:"message"`
	ToolCalls []ToolCallIntent    `json:"toolCalls"`
	Plan      *plan.ExecutionPlan `json:"execution_plan,omitempty"`
	Branch    Branch              `json:"-"`
	// Degraded marks a reply that lacks a tool call the context required.
	Degraded bool `json:"degraded,omitempty"`
}

// Engine turns a GenerationContext into tool-call intents. It keeps no
// state besides the conversation log.
type Engine struct {
	reasoner Reasoner
	tools    ToolCatalog
	history  *Conversation
	prompt   *PromptBuilder
	tracer   trace.Tracer
}

func NewEngine(reasoner Reasoner, tools ToolCatalog, history *Conversation, prompt *PromptBuilder) *Engine {
	if history == nil {
		history = NewConversation(0)
	}
	if prompt == nil {
		prompt = NewPromptBuilder("")
	}
	return &Engine{
		reasoner: reasoner,
		tools:    tools,
		history:  history,
		prompt:   prompt,
		tracer:   otel.Tracer("github.com/crystaldolphin/canvasagent/internal/agent"),
	}
}

func (e *Engine) History() *Conversation { return e.history }

// Decide runs one decision cycle. Contexts built by GenerationContext.ForUnit
// resolve the requested unit of their plan; all others go through priority
// evaluation.
func (e *Engine) Decide(ctx context.Context, c GenerationContext) (Decision, error) {
	ctx, span := e.tracer.Start(ctx, "agent.decide")
	defer span.End()

	var (
		dec Decision
		err error
	)
	if c.Continuation != nil {
		dec, err = e.continueUnit(ctx, c)
	} else {
		dec, err = e.decideFresh(ctx, c)
	}
	if err != nil {
		span.RecordError(err)
		return Decision{}, err
	}
	span.SetAttributes(
		attribute.String("branch", dec.Branch.String()),
		attribute.Int("tool_calls", len(dec.ToolCalls)),
		attribute.Bool("plan", dec.Plan != nil),
	)
	return dec, nil
}

func (e *Engine) decideFresh(ctx context.Context, c GenerationContext) (Decision, error) {
	d := Evaluate(c, e.tools)
	slog.Debug("agent: priority evaluated", "branch", d.Branch, "tool", d.Tool)

	e.history.AppendUser(c.summary() + "\n\n" + d.Instruction())
	reply, err := e.reason(ctx)
	if err != nil {
		return Decision{}, err
	}

	p := reply.Plan
	if p == nil {
		p = extractPlan(&reply.Text)
	}
	calls := reply.ToolCalls
	if p != nil {
		if p.Total < 2 {
			p = nil
		} else {
			first := p.At(1)
			p = &first
			if len(calls) == 0 {
				if step, ok := p.StepFor(1); ok && step.Tool != "" {
					calls = []ToolCallIntent{{Name: step.Tool, Args: copyArgs(step.Args)}}
				}
			}
			if len(calls) > 1 {
				calls = calls[:1]
			}
		}
	}

	for i := range calls {
		calls[i] = e.enforce(d, calls[i], i == 0)
	}

	dec := Decision{
		Message:   reply.Text,
		ToolCalls: calls,
		Plan:      p,
		Branch:    d.Branch,
	}
	if d.Required && len(calls) == 0 {
		slog.Warn("agent: explicit operation produced no tool call",
			"operation", c.Operation.Name, "tool", d.Tool)
		dec.Degraded = true
	}
	if dec.Message == "" && len(calls) > 0 {
		dec.Message = "Running " + llmutils.ToolHint(intentsToCalls(calls)) + "."
	}
	e.record(dec)
	return dec, nil
}

// continueUnit produces the call for unit Continuation.Unit. A pre-planned
// step is used as is; otherwise the reasoner is asked.
func (e *Engine) continueUnit(ctx context.Context, c GenerationContext) (Decision, error) {
	cont := c.Continuation
	p := cont.Plan
	e.history.AppendUser(c.summary())

	var (
		calls   []ToolCallIntent
		message string
	)
	if step, ok := p.StepFor(cont.Unit); ok && step.Tool != "" {
		calls = []ToolCallIntent{{Name: step.Tool, Args: copyArgs(step.Args)}}
		message = llmutils.StringOrDefault(step.Description, fmt.Sprintf("Step %d of %d.", cont.Unit, p.Total))
	} else {
		reply, err := e.reason(ctx)
		if err != nil {
			return Decision{}, err
		}
		if reply.Plan == nil {
			_ = extractPlan(&reply.Text)
		}
		message = reply.Text
		calls = reply.ToolCalls
		if len(calls) > 1 {
			calls = calls[:1]
		}
	}

	if len(calls) == 1 {
		desc := e.lookup(calls[0].Name)
		switch p.Type {
		case plan.Pipeline:
			if cont.Previous != nil {
				calls[0].Args = Apply(desc, calls[0].Args, map[Concept]any{ConceptImage: cont.Previous.ThreadURL()}, true)
			}
		case plan.BatchVariations:
			calls[0].Args = Apply(desc, calls[0].Args, map[Concept]any{ConceptImage: c.PreviewImageURL}, false)
		}
		calls[0].Args = Apply(desc, calls[0].Args, ParameterValues(c.Parameters), false)
	}

	dec := Decision{
		Message:   message,
		ToolCalls: calls,
		Plan:      &p,
		Branch:    BranchContinuation,
	}
	e.record(dec)
	return dec, nil
}

func (e *Engine) reason(ctx context.Context) (Reply, error) {
	var tools []map[string]any
	req := Request{History: e.history.Window()}
	if e.tools != nil {
		tools = e.tools.Definitions()
		req.System = e.prompt.Build(e.tools.List())
	} else {
		req.System = e.prompt.Build(nil)
	}
	req.Tools = tools
	return e.reasoner.Reason(ctx, req)
}

// enforce applies the directive to a call. The explicit-operation table is
// authoritative for the tool name of the first call.
func (e *Engine) enforce(d Directive, call ToolCallIntent, first bool) ToolCallIntent {
	renamed := false
	if d.Branch == BranchExplicitOperation && first && call.Name != d.Tool {
		slog.Warn("agent: overriding tool chosen for explicit operation", "chosen", call.Name, "tool", d.Tool)
		call.Name = d.Tool
		renamed = true
	}
	desc := e.lookup(call.Name)
	if renamed && desc != nil {
		kept := map[string]any{}
		for k, v := range call.Args {
			if desc.Declares(k) {
				kept[k] = v
			}
		}
		call.Args = kept
	}
	args := Apply(desc, call.Args, d.Forced, true)
	args = Apply(desc, args, d.Defaults, false)
	if desc != nil {
		for k, v := range d.Extra {
			if _, set := args[k]; !set && desc.Declares(k) {
				args[k] = v
			}
		}
	}
	call.Args = args
	return call
}

func (e *Engine) lookup(name string) *mcp.ToolDescriptor {
	if e.tools == nil {
		return nil
	}
	d, _ := e.tools.Get(name)
	return d
}

// record appends the assistant turn: the reply text, a compact rendering of
// the calls and the plan header. Tool results are never recorded.
func (e *Engine) record(dec Decision) {
	var b strings.Builder
	b.WriteString(dec.Message)
	calls := intentsToCalls(dec.ToolCalls)
	if len(calls) > 0 {
		fmt.Fprintf(&b, "\n[called %s]", llmutils.ToolHint(calls))
	}
	if dec.Plan != nil {
		header := *dec.Plan
		header.Steps = nil
		raw, _ := json.Marshal(header)
		fmt.Fprintf(&b, "\n%s %s", plan.Marker, raw)
	}
	e.history.AppendAssistant(strings.TrimSpace(b.String()), calls)
}

func extractPlan(text *string) *plan.ExecutionPlan {
	p, rest, err := plan.Extract(*text)
	if err != nil {
		slog.Warn("agent: ignoring malformed execution plan", "err", err)
		return nil
	}
	*text = rest
	return p
}

func intentsToCalls(intents []ToolCallIntent) []schema.ToolCall {
	out := make([]schema.ToolCall, len(intents))
	for i, in := range intents {
		out[i] = schema.ToolCall{ID: in.ID, Name: in.Name, Arguments: elideArgs(in.Args)}
	}
	return out
}

// elideArgs drops inline payloads from recorded arguments.
func elideArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if s, ok := v.(string); ok {
			v = llmutils.Truncate(elide(s), 500)
		}
		out[k] = v
	}
	return out
}

func copyArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
