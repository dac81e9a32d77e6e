// Package lock provides a registry of named locks.
//
// An entry exists only while somebody holds or waits on it; the last
// release removes it from the registry so memory does not grow with the
// number of distinct keys ever used.
package lock

import (
	"context"
	"sync"

	"github.com/fhuszti/assets-ms-go/internal/port"
)

type entry struct {
	sem  chan struct{}
	refs int
}

type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// compile-time check: *Registry must satisfy port.KeyedLocker
var _ port.KeyedLocker = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

func (r *Registry) acquireRef(key string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		r.entries[key] = e
	}
	e.refs++
	return e
}

func (r *Registry) releaseRef(key string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(r.entries, key)
	}
}

func (r *Registry) unlocker(key string, e *entry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			r.releaseRef(key, e)
		})
	}
}

// TryLock acquires the lock for key without blocking.
func (r *Registry) TryLock(key string) (func(), bool) {
	e := r.acquireRef(key)
	select {
	case e.sem <- struct{}{}:
		return r.unlocker(key, e), true
	default:
		r.releaseRef(key, e)
		return nil, false
	}
}

// Lock blocks until the lock for key is acquired or ctx is done.
// The master mutex is never held while waiting.
func (r *Registry) Lock(ctx context.Context, key string) (func(), error) {
	e := r.acquireRef(key)
	select {
	case e.sem <- struct{}{}:
		return r.unlocker(key, e), nil
	case <-ctx.Done():
		r.releaseRef(key, e)
		return nil, ctx.Err()
	}
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
