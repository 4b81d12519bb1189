// Package keylock hands out one binary semaphore per string key.
package keylock

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// Map holds the locks. Entries are dropped once nobody holds or waits on
// them, so the map only grows with the number of keys in use.
type Map struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *Map {
	return &Map{entries: make(map[string]*entry)}
}

func (m *Map) ref(key string) *entry {
	e, ok := m.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		m.entries[key] = e
	}
	e.refs++
	return e
}

func (m *Map) unref(key string, e *entry) {
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
}

// TryAcquire returns ok=false immediately when key is held.
func (m *Map) TryAcquire(key string) (release func(), ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.ref(key)
	if !e.sem.TryAcquire(1) {
		m.unref(key, e)
		return nil, false
	}
	return m.releaser(key, e), true
}

// Acquire blocks until key is free or ctx is done.
func (m *Map) Acquire(ctx context.Context, key string) (release func(), err error) {
	m.mu.Lock()
	e := m.ref(key)
	m.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		m.mu.Lock()
		m.unref(key, e)
		m.mu.Unlock()
		return nil, err
	}
	return m.releaser(key, e), nil
}

// releaser is safe to call more than once.
func (m *Map) releaser(key string, e *entry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			m.mu.Lock()
			m.unref(key, e)
			m.mu.Unlock()
		})
	}
}

// Len returns the number of keys currently held or waited on.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
