package cache

import (
	"context"
	"sync"
	"time"

	"goregime/domain/regime"
)

// Memory is a mutex-guarded map with per-entry expiry
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
	stats   counters
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) (*regime.RegimeAnalysisResult, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		m.stats.misses.Add(1)
		return nil, false, nil
	}
	if e.expired(m.now()) {
		m.mu.Lock()
		if cur, still := m.entries[key]; still && cur.expired(m.now()) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		m.stats.misses.Add(1)
		return nil, false, nil
	}
	m.stats.hits.Add(1)
	return e.Result, true, nil
}

// Set stores result; ttl <= 0 keeps it until deleted
func (m *Memory) Set(_ context.Context, key string, result *regime.RegimeAnalysisResult, ttl time.Duration) error {
	now := m.now()
	e := Entry{Result: result, CachedAt: now}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	m.stats.sets.Add(1)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Len counts stored entries including expired ones not yet evicted
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) Stats() Stats { return m.stats.snapshot() }
