// Package kv holds named string slots, the server side counterpart of the
// browser's localStorage.
package kv

import (
	"context"
	"sync"
)

type Storage interface {
	// Get returns the slot value and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

var _ Storage = (*Memory)(nil)

type Memory struct {
	mu    sync.RWMutex
	slots map[string]string
}

func NewMemory() *Memory {
	return &Memory{slots: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.slots[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.slots[key] = value
	m.mu.Unlock()
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.slots, key)
	m.mu.Unlock()
	return nil
}

// Scoped prefixes every key with scope so one backend can hold the slots of
// many devices.
type Scoped struct {
	Storage
	scope string
}

func WithScope(s Storage, scope string) *Scoped {
	return &Scoped{Storage: s, scope: scope}
}

func (s *Scoped) key(k string) string {
	return s.scope + ":" + k
}

func (s *Scoped) Get(ctx context.Context, key string) (string, bool, error) {
	return s.Storage.Get(ctx, s.key(key))
}

func (s *Scoped) Set(ctx context.Context, key, value string) error {
	return s.Storage.Set(ctx, s.key(key), value)
}

func (s *Scoped) Remove(ctx context.Context, key string) error {
	return s.Storage.Remove(ctx, s.key(key))
}
