// Package localcache is the durable key/value mirror used for fast cold
// starts. It is never authoritative: the document service is.
//
// Values are stored as JSON. Two backends exist: Memory (process-local)
// and Redis.
package localcache

import (
	"context"
	"encoding/json"
	"sync"
)

// ProfileKey is the key under which the signed-in user's profile is
// mirrored.
const ProfileKey = "userProfile"

// Cache stores serialized values by key.
type Cache interface {
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value any) error
	// Get decodes the value stored under key into out and reports whether
	// it was present.
	Get(ctx context.Context, key string, out any) (bool, error)
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// Memory is an in-process Cache.
type Memory struct {
	mu   sync.RWMutex
	vals map[string][]byte
}

// NewMemory returns an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{vals: make(map[string][]byte)}
}

func (m *Memory) Set(_ context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.vals[key] = b
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, key string, out any) (bool, error) {
	m.mu.RLock()
	b, ok := m.vals[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, out)
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.vals, key)
	m.mu.Unlock()
	return nil
}

// Has reports whether key is present.
func (m *Memory) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.vals[key]
	return ok
}

// Scoped returns a view of c whose keys are prefixed with scope, so each
// client session gets its own namespace in a shared backend.
func Scoped(c Cache, scope string) Cache {
	return scoped{inner: c, prefix: scope + ":"}
}

type scoped struct {
	inner  Cache
	prefix string
}

func (s scoped) Set(ctx context.Context, key string, value any) error {
	return s.inner.Set(ctx, s.prefix+key, value)
}

func (s scoped) Get(ctx context.Context, key string, out any) (bool, error) {
	return s.inner.Get(ctx, s.prefix+key, out)
}

func (s scoped) Remove(ctx context.Context, key string) error {
	return s.inner.Remove(ctx, s.prefix+key)
}
