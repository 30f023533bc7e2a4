package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Adapter. It is used by tests and by the CLI when no
// backend is configured.
type Memory struct {
	mu      sync.RWMutex
	docs    map[string]memEntry
	counter Version
}

type memEntry struct {
	value   []byte
	version Version
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]memEntry)}
}

// Get implements Adapter.
func (m *Memory) Get(ctx context.Context, key string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, Transient(err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.docs[key]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{Key: key, Value: clone(e.value), Version: e.version}, nil
}

// Insert implements Adapter.
func (m *Memory) Insert(ctx context.Context, key string, value []byte) (Version, error) {
	if err := ctx.Err(); err != nil {
		return 0, Transient(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[key]; ok {
		return 0, ErrAlreadyExists
	}
	m.counter++
	m.docs[key] = memEntry{value: clone(value), version: m.counter}
	return m.counter, nil
}

// Replace implements Adapter.
func (m *Memory) Replace(ctx context.Context, key string, value []byte, expected Version) (Version, error) {
	if err := ctx.Err(); err != nil {
		return 0, Transient(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.docs[key]
	if !ok {
		return 0, ErrNotFound
	}
	if e.version != expected {
		return 0, ErrVersionConflict
	}
	m.counter++
	m.docs[key] = memEntry{value: clone(value), version: m.counter}
	return m.counter, nil
}

// Remove implements Adapter.
func (m *Memory) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return Transient(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[key]; !ok {
		return ErrNotFound
	}
	delete(m.docs, key)
	return nil
}

// Keys returns the stored keys that start with prefix, sorted.
func (m *Memory) Keys(prefix string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for k := range m.docs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored documents.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var _ Adapter = (*Memory)(nil)
