package session

import (
	"sync"
	"time"

	"github.com/crystaldolphin/canvasagent/internal/schema"
)

// Session holds one studio conversation. The message list only grows.
type Session struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Metadata  map[string]any

	mu       sync.Mutex
	messages []schema.Message
	turn     sync.Mutex
}

func newSession(id string, createdAt time.Time, meta map[string]any, messages []schema.Message) *Session {
	if meta == nil {
		meta = map[string]any{}
	}
	return &Session{
		ID:        id,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
		Metadata:  meta,
		messages:  messages,
	}
}

// Lock serialises turns on the session: one chat request (and the batch it
// may start) at a time.
func (s *Session) Lock()   { s.turn.Lock() }
func (s *Session) Unlock() { s.turn.Unlock() }

// Messages returns a copy of the message list.
func (s *Session) Messages() []schema.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schema.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages in the session.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *Session) add(m schema.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	s.UpdatedAt = time.Now()
}
