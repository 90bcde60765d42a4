// Package cache provides caching implementations for Fabric resolution
// results.
package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xraph/fabric"
	"github.com/xraph/fabric/user"
)

// Compile-time interface check.
var _ fabric.Cache = (*Memory)(nil)

// Memory is an in-memory cache with TTL-based expiration.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	maxSize int
}

type entry struct {
	result    *fabric.ResolveResult
	expiresAt time.Time
}

// MemoryOption configures the memory cache.
type MemoryOption func(*Memory)

// WithTTL sets the cache entry time-to-live.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) { m.ttl = ttl }
}

// WithMaxSize sets the maximum number of cache entries.
func WithMaxSize(n int) MemoryOption {
	return func(m *Memory) { m.maxSize = n }
}

// NewMemory creates a new in-memory cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]*entry),
		ttl:     5 * time.Minute,
		maxSize: 10000,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns a cached resolution result.
func (m *Memory) Get(_ context.Context, req *fabric.ResolveRequest) (*fabric.ResolveResult, bool) {
	key := cacheKey(req)
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false
	}
	return e.result, true
}

// Set stores a resolution result in the cache.
func (m *Memory) Set(_ context.Context, req *fabric.ResolveRequest, result *fabric.ResolveResult) {
	key := cacheKey(req)
	m.mu.Lock()
	defer m.mu.Unlock()

	// Evict if at capacity.
	if len(m.entries) >= m.maxSize {
		m.evictExpired()
		if len(m.entries) >= m.maxSize {
			m.evictOne()
		}
	}

	m.entries[key] = &entry{
		result:    result,
		expiresAt: time.Now().Add(m.ttl),
	}
}

// InvalidateSubject removes all cached results for a subject.
func (m *Memory) InvalidateSubject(_ context.Context, subjectID, identityProvider string) {
	prefix := user.Key(subjectID, identityProvider) + "\x00"
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
}

// InvalidateAll removes every cached result.
func (m *Memory) InvalidateAll(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*entry)
}

// cacheKey builds the entry key. Caller-supplied group names affect the
// result, so they are part of the key: sorted and lowercased so that
// equivalent requests share an entry.
func cacheKey(req *fabric.ResolveRequest) string {
	groups := make([]string, len(req.UserGroups))
	for i, g := range req.UserGroups {
		groups[i] = strings.ToLower(g)
	}
	sort.Strings(groups)
	parts := []string{
		user.Key(req.SubjectID, req.IdentityProvider),
		req.Grain,
		req.SecurableItem,
		strings.Join(groups, ","),
	}
	return strings.Join(parts, "\x00")
}

// evictExpired removes all expired entries. Must hold write lock.
func (m *Memory) evictExpired() {
	now := time.Now()
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
		}
	}
}

// evictOne removes one arbitrary entry. Must hold write lock.
func (m *Memory) evictOne() {
	for k := range m.entries {
		delete(m.entries, k)
		return
	}
}
