package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value      int64
	hasTTL     bool
	expiration time.Time
}

// Memory is an in-memory Store backed by a mutex-protected map.
//
// It is NOT suitable for distributed deployments: each process
// maintains its own state, so a fleet of instances sharing a Memory
// store each enforces its own independent quota. Use Memory only for
// local development and for deterministic unit tests that need to pin
// window boundaries without a real store round trip.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	stopCh  chan struct{}
}

// NewMemory creates an in-memory store with a background janitor that
// evicts expired entries once a minute. Callers must call Close to
// stop the janitor goroutine.
func NewMemory() *Memory {
	m := &Memory{
		entries: make(map[string]*memoryEntry),
		stopCh:  make(chan struct{}),
	}
	go m.janitor()
	return m
}

func (m *Memory) expired(e *memoryEntry, now time.Time) bool {
	return e.hasTTL && !now.Before(e.expiration)
}

// IncrBy increments key by delta, creating it at delta if absent or
// expired.
func (m *Memory) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	e, ok := m.entries[key]
	if !ok || m.expired(e, now) {
		e = &memoryEntry{value: delta}
		m.entries[key] = e
		return e.value, nil
	}
	e.value += delta
	return e.value, nil
}

// Expire arms key's TTL. Returns false if key does not exist or has
// already expired.
func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	e, ok := m.entries[key]
	if !ok || m.expired(e, now) {
		return false, nil
	}
	e.hasTTL = true
	e.expiration = now.Add(ttl)
	return true, nil
}

// TTL reports key's remaining time-to-live, or NoTTL/Absent.
func (m *Memory) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	e, ok := m.entries[key]
	if !ok || m.expired(e, now) {
		return Absent, nil
	}
	if !e.hasTTL {
		return NoTTL, nil
	}
	remaining := e.expiration.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Del deletes the given keys and returns how many were present.
func (m *Memory) Del(_ context.Context, keys ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var n int64
	for _, k := range keys {
		if e, ok := m.entries[k]; ok && !m.expired(e, now) {
			n++
		}
		delete(m.entries, k)
	}
	return n, nil
}

// Exists reports whether key is present and unexpired.
func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	e, ok := m.entries[key]
	return ok && !m.expired(e, now), nil
}

// ScanMatch returns an iterator over unexpired keys matching pattern.
// pattern uses the same glob semantics as Redis's MATCH clause,
// restricted to the "*" wildcard this repository's namespace patterns
// actually use (rate_limit:{subject}:*).
func (m *Memory) ScanMatch(_ context.Context, pattern string) ScanIterator {
	m.mu.Lock()
	now := time.Now()
	matched := make([]string, 0)
	for k, e := range m.entries {
		if m.expired(e, now) {
			continue
		}
		if globMatch(pattern, k) {
			matched = append(matched, k)
		}
	}
	m.mu.Unlock()

	sort.Strings(matched)
	return &memoryScanIterator{keys: matched, pos: -1}
}

type memoryScanIterator struct {
	keys []string
	pos  int
}

func (it *memoryScanIterator) Next(_ context.Context) bool {
	it.pos++
	return it.pos < len(it.keys)
}

func (it *memoryScanIterator) Key() string { return it.keys[it.pos] }
func (it *memoryScanIterator) Err() error  { return nil }

// globMatch supports a single trailing "*" wildcard, sufficient for
// this repository's namespace patterns.
func globMatch(pattern, key string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == key
	}
	prefix := strings.TrimSuffix(pattern, "*")
	return strings.HasPrefix(key, prefix)
}

// Ping always succeeds immediately; there is no network round trip to
// measure.
func (m *Memory) Ping(_ context.Context) (time.Duration, error) {
	return 0, nil
}

// Close stops the janitor goroutine and releases the map.
func (m *Memory) Close() error {
	close(m.stopCh)
	m.mu.Lock()
	m.entries = nil
	m.mu.Unlock()
	return nil
}

func (m *Memory) runJanitor() {
	now := time.Now()
	var dead []string
	m.mu.Lock()
	for k, e := range m.entries {
		if m.expired(e, now) {
			dead = append(dead, k)
		}
	}
	for _, k := range dead {
		delete(m.entries, k)
	}
	m.mu.Unlock()
}

func (m *Memory) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.runJanitor()
		case <-m.stopCh:
			return
		}
	}
}
