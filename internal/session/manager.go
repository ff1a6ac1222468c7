// Package session persists studio conversations as JSONL files.
//
// File format:
//
//	Line 1:  {"_type":"metadata","id":"…","created_at":"…","metadata":{…}}
//	Line 2+: one JSON message object per line
//
// Messages are only ever appended, one line per message.
package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/crystaldolphin/canvasagent/internal/schema"
)

// Info summarises a stored session.
type Info struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Path      string    `json:"path,omitempty"`
}

// Manager loads and persists sessions. With an empty directory it keeps
// sessions in memory only.
type Manager struct {
	dir   string
	mu    sync.Mutex // serialises file writes
	cache sync.Map   // id → *Session
}

// NewManager creates a Manager rooted at dir, creating it if necessary.
func NewManager(dir string) (*Manager, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sessions dir: %w", err)
		}
	}
	return &Manager{dir: dir}, nil
}

// GetOrCreate returns the session for id, loading it from disk if needed or
// creating an empty one.
func (m *Manager) GetOrCreate(id string) (*Session, error) {
	if v, ok := m.cache.Load(id); ok {
		return v.(*Session), nil
	}

	s, err := m.load(id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = newSession(id, time.Now(), nil, nil)
		if err := m.writeHeader(s); err != nil {
			return nil, err
		}
	}
	actual, _ := m.cache.LoadOrStore(id, s)
	return actual.(*Session), nil
}

// Append adds msg to s and appends it to the session file.
func (m *Manager) Append(s *Session, msg schema.Message) error {
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	s.add(msg)
	if m.dir == "" {
		return nil
	}

	line, err := encodeLine(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := os.OpenFile(m.path(s.ID), os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open session %s: %w", s.ID, err)
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append session %s: %w", s.ID, err)
	}
	return nil
}

// Delete forgets a session and removes its file.
func (m *Manager) Delete(id string) error {
	m.cache.Delete(id)
	if m.dir == "" {
		return nil
	}
	if err := os.Remove(m.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session %s: %w", id, err)
	}
	return nil
}

// List returns stored sessions, newest first.
func (m *Manager) List() []Info {
	var out []Info
	if m.dir == "" {
		m.cache.Range(func(_, v any) bool {
			s := v.(*Session)
			out = append(out, Info{ID: s.ID, CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt})
			return true
		})
	} else {
		paths, _ := filepath.Glob(filepath.Join(m.dir, "*.jsonl"))
		for _, p := range paths {
			info, ok := readInfo(p)
			if ok {
				out = append(out, info)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

type header struct {
	Type      string         `json:"_type"`
	ID        string         `json:"id"`
	CreatedAt string         `json:"created_at"`
	Metadata  map[string]any `json:"metadata"`
}

func (m *Manager) writeHeader(s *Session) error {
	if m.dir == "" {
		return nil
	}
	line, err := encodeLine(header{
		Type:      "metadata",
		ID:        s.ID,
		CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
		Metadata:  s.Metadata,
	})
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.WriteFile(m.path(s.ID), line, 0o644); err != nil {
		return fmt.Errorf("write session %s: %w", s.ID, err)
	}
	return nil
}

func encodeLine(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// load reads a session from disk; a missing file yields (nil, nil).
func (m *Manager) load(id string) (*Session, error) {
	if m.dir == "" {
		return nil, nil
	}
	f, err := os.Open(m.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open session %s: %w", id, err)
	}
	defer f.Close()

	var (
		h        header
		messages []schema.Message
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if bytes.Contains(line, []byte(`"_type":"metadata"`)) {
			if err := json.Unmarshal(line, &h); err != nil {
				slog.Warn("session: bad metadata line", "id", id, "err", err)
			}
			continue
		}
		var msg schema.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			slog.Warn("session: skipping malformed line", "id", id, "err", err)
			continue
		}
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}

	createdAt, err := time.Parse(time.RFC3339, h.CreatedAt)
	if err != nil {
		createdAt = time.Now()
	}
	s := newSession(id, createdAt, h.Metadata, messages)
	if st, err := os.Stat(m.path(id)); err == nil {
		s.UpdatedAt = st.ModTime()
	}
	return s, nil
}

func readInfo(path string) (Info, bool) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	if !scanner.Scan() {
		return Info{}, false
	}
	var h header
	if err := json.Unmarshal(scanner.Bytes(), &h); err != nil || h.Type != "metadata" {
		return Info{}, false
	}
	info := Info{ID: h.ID, Path: path}
	info.CreatedAt, _ = time.Parse(time.RFC3339, h.CreatedAt)
	if st, err := os.Stat(path); err == nil {
		info.UpdatedAt = st.ModTime()
	}
	return info, true
}

// path converts a session id to its JSONL file path.
func (m *Manager) path(id string) string {
	return filepath.Join(m.dir, safeFilename(id)+".jsonl")
}

// safeFilename replaces filesystem-unsafe characters with underscores.
func safeFilename(name string) string {
	const unsafe = `<>:"/\|?*`
	var b strings.Builder
	for _, r := range name {
		if strings.ContainsRune(unsafe, r) {
			b.WriteByte('_')
		} else {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
