package media

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("gallery item not found")

// Item is one produced artifact. Every field is set when the item is
// created; items are never updated afterwards.
type Item struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Type      Type   `json:"type"`
	// URL is displayable; it may be a data URI.
	URL string `json:"url"`
	// ImageURL is the network origin URL, when one was extracted.
	ImageURL         string          `json:"imageUrl,omitempty"`
	StructuredPrompt json.RawMessage `json:"structuredPrompt,omitempty"`
	Tool             string          `json:"tool,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
}

// NewItem builds the complete record for ref in one step.
func NewItem(sessionID, tool string, ref Reference) Item {
	return Item{
		ID:               uuid.New().String(),
		SessionID:        sessionID,
		Type:             ref.MediaType,
		URL:              ref.MediaURL,
		ImageURL:         ref.OriginURL,
		StructuredPrompt: ref.StructuredPrompt,
		Tool:             tool,
		Timestamp:        time.Now().UTC(),
	}
}

// Reference rebuilds the canonical reference the item was created from.
func (it Item) Reference() Reference {
	return Reference{
		MediaURL:         it.URL,
		OriginURL:        it.ImageURL,
		StructuredPrompt: it.StructuredPrompt,
		MediaType:        it.Type,
	}
}

// Gallery is the append-only log of produced artifacts. Add commits a whole
// item at once, so readers never observe a partially populated item.
type Gallery interface {
	Add(ctx context.Context, item Item) error
	// List returns items oldest first; an empty sessionID lists everything.
	List(ctx context.Context, sessionID string) ([]Item, error)
	Get(ctx context.Context, id string) (Item, error)
	Close() error
}

type MemoryGallery struct {
	mu    sync.RWMutex
	items []Item
	byID  map[string]int
}

func NewMemoryGallery() *MemoryGallery {
	return &MemoryGallery{byID: map[string]int{}}
}

func (g *MemoryGallery) Add(_ context.Context, item Item) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, dup := g.byID[item.ID]; dup {
		return errors.New("gallery item already exists: " + item.ID)
	}
	g.byID[item.ID] = len(g.items)
	g.items = append(g.items, item)
	return nil
}

func (g *MemoryGallery) List(_ context.Context, sessionID string) ([]Item, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Item, 0, len(g.items))
	for _, it := range g.items {
		if sessionID == "" || it.SessionID == sessionID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (g *MemoryGallery) Get(_ context.Context, id string) (Item, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	i, ok := g.byID[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return g.items[i], nil
}

func (g *MemoryGallery) Close() error { return nil }
