package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/crystaldolphin/canvasagent/internal/mcp"
)

func testTool(name string, props ...string) *mcp.ToolDescriptor {
	m := map[string]any{}
	for _, p := range props {
		typ := "string"
		switch p {
		case "steps_num", "seed":
			typ = "integer"
		case "structured_prompt":
			typ = "object"
		}
		m[p] = map[string]any{"type": typ}
	}
	raw, _ := json.Marshal(map[string]any{"type": "object", "properties": m})
	return mcp.NewToolDescriptor(name, name+" tool", raw)
}

func testRegistry() *mcp.Registry {
	r := mcp.NewRegistry()
	r.Replace([]*mcp.ToolDescriptor{
		testTool("generate_image", "prompt", "steps_num", "aspect_ratio", "seed", "image_data", "structured_prompt"),
		testTool("remove_background", "image"),
		testTool("blur_background", "image"),
		testTool("replace_background", "image", "prompt"),
		testTool("expand_image", "image", "aspect_ratio"),
		testTool("increase_resolution", "image", "scale"),
		testTool("enhance_image", "image"),
		testTool("gen_fill", "image", "mask", "prompt"),
		testTool("erase", "image", "mask"),
	})
	return r
}

// scriptedReasoner replays canned replies and records every request.
type scriptedReasoner struct {
	mu       sync.Mutex
	replies  []Reply
	requests []Request
}

func (s *scriptedReasoner) Reason(_ context.Context, req Request) (Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.replies) == 0 {
		return Reply{}, errors.New("no scripted reply left")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

func (s *scriptedReasoner) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func newTestEngine(replies ...Reply) (*Engine, *scriptedReasoner) {
	r := &scriptedReasoner{replies: replies}
	return NewEngine(r, testRegistry(), NewConversation(0), NewPromptBuilder("")), r
}
