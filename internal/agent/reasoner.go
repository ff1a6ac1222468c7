package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/crystaldolphin/canvasagent/internal/plan"
	"github.com/crystaldolphin/canvasagent/internal/schema"
	"github.com/crystaldolphin/canvasagent/internal/shared/llmutils"
)

// ToolCallIntent is a tool the engine wants invoked.
type ToolCallIntent struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Request is one reasoning step's input.
type Request struct {
	System  string
	History schema.Messages
	Tools   []map[string]any
}

// Reply is the reasoning step's output. Plan is set when the reply carried
// an execution plan; it is never left embedded in Text.
type Reply struct {
	Text      string
	ToolCalls []ToolCallIntent
	Plan      *plan.ExecutionPlan
}

// Reasoner is the language-model step behind the decision engine.
type Reasoner interface {
	Reason(ctx context.Context, req Request) (Reply, error)
}

// LLMReasoner adapts a schema.LLMProvider to Reasoner.
type LLMReasoner struct {
	provider schema.LLMProvider
	opts     schema.ChatOptions
}

func NewLLMReasoner(provider schema.LLMProvider, opts schema.ChatOptions) *LLMReasoner {
	return &LLMReasoner{provider: provider, opts: opts}
}

func (r *LLMReasoner) Reason(ctx context.Context, req Request) (Reply, error) {
	msgs := schema.NewMessages()
	if req.System != "" {
		msgs.AddSystem(req.System)
	}
	msgs.Append(req.History)

	resp, err := r.provider.Chat(ctx, msgs, req.Tools, r.opts)
	if err != nil {
		return Reply{}, fmt.Errorf("reasoning step: %w", err)
	}
	var content string
	if resp.Content != nil {
		content = *resp.Content
	}
	if resp.FinishReason == "error" {
		return Reply{}, fmt.Errorf("reasoning step: %s", content)
	}

	reply := Reply{Text: strings.TrimSpace(llmutils.StripThink(content))}
	p, rest, perr := plan.Extract(reply.Text)
	if perr != nil {
		slog.Warn("agent: ignoring malformed execution plan", "err", perr)
	}
	if p != nil {
		reply.Plan = p
		reply.Text = rest
	}
	for _, tc := range resp.ToolCalls {
		reply.ToolCalls = append(reply.ToolCalls, ToolCallIntent{ID: tc.Id, Name: tc.Name, Args: tc.Arguments})
	}
	return reply, nil
}
