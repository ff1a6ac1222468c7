package mcp

import (
	"sync"
	"time"
)

// Registry caches the tool set from the most recent successful discovery.
// The whole set is swapped on each discovery; readers always see one
// consistent snapshot.
type Registry struct {
	mu           sync.RWMutex
	tools        []*ToolDescriptor
	byName       map[string]*ToolDescriptor
	discoveredAt time.Time
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]*ToolDescriptor{}}
}

// Replace installs tools as the current snapshot. Duplicate names keep the
// first occurrence.
func (r *Registry) Replace(tools []*ToolDescriptor) {
	list := make([]*ToolDescriptor, 0, len(tools))
	byName := make(map[string]*ToolDescriptor, len(tools))
	for _, t := range tools {
		if t == nil || t.Name == "" {
			continue
		}
		if _, dup := byName[t.Name]; dup {
			continue
		}
		byName[t.Name] = t
		list = append(list, t)
	}

	r.mu.Lock()
	r.tools = list
	r.byName = byName
	r.discoveredAt = time.Now()
	r.mu.Unlock()
}

func (r *Registry) Get(name string) (*ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns the current snapshot in discovery order.
func (r *Registry) List() []*ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*ToolDescriptor(nil), r.tools...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// DiscoveredAt returns the time of the last successful Replace, or zero.
func (r *Registry) DiscoveredAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.discoveredAt
}

// Definitions returns every tool in OpenAI function-calling format.
func (r *Registry) Definitions() []map[string]any {
	tools := r.List()
	defs := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, t.Definition())
	}
	return defs
}
