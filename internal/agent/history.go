package agent

import (
	"sync"
	"time"

	"github.com/crystaldolphin/canvasagent/internal/schema"
)

// Conversation is an append-only log of user and assistant turns. Entries
// are never edited or removed; Window only limits what is sent.
type Conversation struct {
	mu       sync.Mutex
	messages []schema.Message
	limit    int
	onAppend func(schema.Message)
}

// NewConversation returns a log seeded with prior messages. limit bounds
// Window; zero means unbounded.
func NewConversation(limit int, prior ...schema.Message) *Conversation {
	msgs := make([]schema.Message, len(prior))
	copy(msgs, prior)
	return &Conversation{messages: msgs, limit: limit}
}

// OnAppend registers fn to observe every appended message, e.g. for
// persistence. fn runs under the log's lock and must not call back into it.
func (c *Conversation) OnAppend(fn func(schema.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAppend = fn
}

func (c *Conversation) AppendUser(content string) schema.Message {
	return c.append(schema.NewUserMessage(content))
}

func (c *Conversation) AppendAssistant(content string, calls []schema.ToolCall) schema.Message {
	return c.append(schema.NewAssistantMessage(content, calls))
}

func (c *Conversation) append(m schema.Message) schema.Message {
	m.Timestamp = time.Now().UTC().Format(time.RFC3339)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, m)
	if c.onAppend != nil {
		c.onAppend(m)
	}
	return m
}

// Window returns the most recent turns, starting on a user turn.
func (c *Conversation) Window() schema.Messages {
	c.mu.Lock()
	defer c.mu.Unlock()
	start := 0
	if c.limit > 0 && len(c.messages) > c.limit {
		start = len(c.messages) - c.limit
	}
	for start < len(c.messages) && c.messages[start].Role != schema.RoleUser {
		start++
	}
	return schema.NewMessages(c.messages[start:]...)
}

// All returns a copy of the full log.
func (c *Conversation) All() []schema.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]schema.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}
