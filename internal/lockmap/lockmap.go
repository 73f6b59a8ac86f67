// Package lockmap provides per-key mutual exclusion. Locks for distinct keys
// never contend, and an entry lives only while someone holds or waits on it.
package lockmap

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type entry struct {
	// ch is a one-slot semaphore so acquisition can honour ctx.
	ch   chan struct{}
	refs int
}

type Map struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*entry
}

func New() *Map {
	return &Map{locks: make(map[uuid.UUID]*entry)}
}

// Lock blocks until key is held or ctx is done. The returned func releases
// the lock; calling it more than once is harmless.
func (m *Map) Lock(ctx context.Context, key uuid.UUID) (func(), error) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			m.release(key, e)
		})
	}, nil
}

// Len returns the number of keys currently held or awaited.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func (m *Map) release(key uuid.UUID, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
}
