// Package handle provides stable integer identities for native objects that
// the channel references repeatedly without re-serializing the full object.
package handle

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned when a handle is unknown or already released. It is
// always surfaced, never coerced to a default value, since it usually
// indicates a double finish or a use after teardown.
var ErrNotFound = errors.New("handle not found")

// Registry maps opaque integer handles to objects of one category. Handles
// allocated by the registry are monotonic and never reused while the process
// lives; handles assigned by the native layer are registered as is.
type Registry[T any] struct {
	mux     sync.Mutex
	next    uint64
	entries map[uint64]T
}

// New creates an empty registry for one object category.
func New[T any]() *Registry[T] {
	return &Registry[T]{entries: make(map[uint64]T)}
}

// Allocate returns the next unused handle of this category.
func (r *Registry[T]) Allocate() uint64 {
	r.mux.Lock()
	defer r.mux.Unlock()
	ret := r.next
	r.next++
	return ret
}

// Register binds a handle to a value, replacing any previous binding.
func (r *Registry[T]) Register(handle uint64, value T) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.entries[handle] = value
	if handle >= r.next {
		r.next = handle + 1
	}
}

// Lookup returns the value bound to a handle or ErrNotFound.
func (r *Registry[T]) Lookup(handle uint64) (T, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	value, ok := r.entries[handle]
	if !ok {
		var zero T
		return zero, fmt.Errorf("handle %v: %w", handle, ErrNotFound)
	}
	return value, nil
}

// Take atomically removes a binding and returns it, so that check and remove
// cannot interleave with a concurrent caller.
func (r *Registry[T]) Take(handle uint64) (T, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	value, ok := r.entries[handle]
	if !ok {
		var zero T
		return zero, fmt.Errorf("handle %v: %w", handle, ErrNotFound)
	}
	delete(r.entries, handle)
	return value, nil
}

// Release removes a handle binding; the handle is not reused afterwards.
func (r *Registry[T]) Release(handle uint64) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if _, ok := r.entries[handle]; !ok {
		return fmt.Errorf("handle %v: %w", handle, ErrNotFound)
	}
	delete(r.entries, handle)
	return nil
}

// Len returns the number of live bindings.
func (r *Registry[T]) Len() int {
	r.mux.Lock()
	defer r.mux.Unlock()
	return len(r.entries)
}

// Values returns a snapshot of the live bindings.
func (r *Registry[T]) Values() []T {
	r.mux.Lock()
	defer r.mux.Unlock()
	ret := make([]T, 0, len(r.entries))
	for _, value := range r.entries {
		ret = append(ret, value)
	}
	return ret
}

// Reset drops every binding; used on process wide teardown. The allocation
// counter is preserved so released handles stay dead.
func (r *Registry[T]) Reset() {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.entries = make(map[uint64]T)
}
