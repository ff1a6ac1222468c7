package studio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/crystaldolphin/canvasagent/internal/agent"
	"github.com/crystaldolphin/canvasagent/internal/mcp"
)

func testTool(name string, props ...string) *mcp.ToolDescriptor {
	m := map[string]any{}
	for _, p := range props {
		typ := "string"
		switch p {
		case "steps_num", "seed", "unit":
			typ = "integer"
		}
		m[p] = map[string]any{"type": typ}
	}
	raw, _ := json.Marshal(map[string]any{"type": "object", "properties": m})
	return mcp.NewToolDescriptor(name, name+" tool", raw)
}

func testRegistry() *mcp.Registry {
	r := mcp.NewRegistry()
	r.Replace([]*mcp.ToolDescriptor{
		testTool("generate_image", "prompt", "steps_num", "aspect_ratio", "seed", "image_data", "unit"),
		testTool("remove_background", "image"),
		testTool("blur_background", "image"),
		testTool("enhance_image", "image"),
		testTool("upload_file", "file", "filename"),
	})
	return r
}

type toolCall struct {
	Name string
	Args map[string]any
}

// fakeTools answers every call with a numbered preview URL.
type fakeTools struct {
	mu         sync.Mutex
	calls      []toolCall
	connectErr error
	// fail, when set, decides per call whether it errors.
	fail   func(n int, name string, args map[string]any) error
	onCall func(n int)
}

func (f *fakeTools) Connect(context.Context) error { return f.connectErr }

func (f *fakeTools) DiscoverTools(context.Context) ([]*mcp.ToolDescriptor, error) {
	return testRegistry().List(), nil
}

func (f *fakeTools) CallTool(_ context.Context, name string, args map[string]any) (mcp.ToolResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, toolCall{Name: name, Args: args})
	n := len(f.calls)
	fail, onCall := f.fail, f.onCall
	f.mu.Unlock()

	if onCall != nil {
		onCall(n)
	}
	if fail != nil {
		if err := fail(n, name, args); err != nil {
			return mcp.ToolResult{}, err
		}
	}
	return mcp.ToolResult{Content: []mcp.ContentItem{
		{Type: "text", Text: fmt.Sprintf("For Full Image Preview use: https://cdn/r%d.png", n)},
	}}, nil
}

func (f *fakeTools) recorded() []toolCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]toolCall(nil), f.calls...)
}

// unitDecider returns a generate_image call tagged with the requested unit.
type unitDecider struct {
	mu       sync.Mutex
	contexts []agent.GenerationContext
	err      error
}

func (d *unitDecider) Decide(_ context.Context, c agent.GenerationContext) (agent.Decision, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contexts = append(d.contexts, c)
	if d.err != nil {
		return agent.Decision{}, d.err
	}
	p := c.Continuation.Plan
	return agent.Decision{
		ToolCalls: []agent.ToolCallIntent{{Name: "generate_image", Args: map[string]any{"unit": c.Continuation.Unit}}},
		Plan:      &p,
		Branch:    agent.BranchContinuation,
	}, nil
}

// scriptedReasoner replays canned replies and records every request.
type scriptedReasoner struct {
	mu       sync.Mutex
	replies  []agent.Reply
	requests []agent.Request
}

func (s *scriptedReasoner) Reason(_ context.Context, req agent.Request) (agent.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.replies) == 0 {
		return agent.Reply{}, errors.New("no scripted reply left")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

func (s *scriptedReasoner) requestsLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func unitOf(args map[string]any) int {
	switch v := args["unit"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
