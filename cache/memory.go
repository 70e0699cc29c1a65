// Package cache provides Decision Cache implementations for Bastion.
package cache

import (
	"context"
	"slices"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/permission"
)

// Compile-time interface check.
var _ bastion.Cache = (*Memory)(nil)

// Memory is a bounded in-process LRU cache with per-entry TTL. It is safe
// for concurrent use.
type Memory struct {
	lru     *lru.LRU[bastion.CacheKey, *bastion.Decision]
	ttl     time.Duration
	maxSize int
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

// NewMemory creates a new in-memory cache. Defaults: 10000 entries, 5
// minute TTL.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		ttl:     5 * time.Minute,
		maxSize: 10000,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.lru = lru.NewLRU[bastion.CacheKey, *bastion.Decision](m.maxSize, nil, m.ttl)
	return m
}

// Get returns a copy of the cached decision.
func (m *Memory) Get(_ context.Context, key bastion.CacheKey) (*bastion.Decision, bool, error) {
	d, ok := m.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	return cloneDecision(d), true, nil
}

// Set stores a copy of the decision.
func (m *Memory) Set(_ context.Context, key bastion.CacheKey, d *bastion.Decision) error {
	m.lru.Add(key, cloneDecision(d))
	return nil
}

// InvalidateSubject removes every decision cached for the subject.
func (m *Memory) InvalidateSubject(_ context.Context, subjectID string) error {
	m.removeWhere(func(k bastion.CacheKey) bool { return k.SubjectID == subjectID })
	return nil
}

// InvalidateResource removes every decision cached for the resource.
func (m *Memory) InvalidateResource(_ context.Context, rt permission.ResourceType, resourceID string) error {
	m.removeWhere(func(k bastion.CacheKey) bool {
		return k.ResourceType == rt && k.ResourceID == resourceID
	})
	return nil
}

// InvalidateAll empties the cache.
func (m *Memory) InvalidateAll(_ context.Context) error {
	m.lru.Purge()
	return nil
}

// Len returns the number of live entries.
func (m *Memory) Len() int { return m.lru.Len() }

func (m *Memory) removeWhere(match func(bastion.CacheKey) bool) {
	for _, k := range m.lru.Keys() {
		if match(k) {
			m.lru.Remove(k)
		}
	}
}

func cloneDecision(d *bastion.Decision) *bastion.Decision {
	c := *d
	c.Trace = slices.Clone(d.Trace)
	return &c
}
