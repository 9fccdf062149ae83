// Package provider holds the two process-wide provider directories
// (client-side and server-side) plus the minimal channel/provider
// interfaces the rest of this module depends on.
package provider

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/epics-go/pva/config"
)

// Factory builds a provider instance of type T from a resolved
// configuration snapshot.
type Factory[T any] func(cfg config.Snapshot) (T, error)

// Registry is a named directory of provider factories. Registration is
// idempotent for an identical (name, factory) pair and fails otherwise,
// per the spec's AlreadyRegistered error kind.
type Registry[T any] struct {
	mu        sync.Mutex
	factories map[string]Factory[T]
}

// NewRegistry returns an empty Registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{factories: make(map[string]Factory[T])}
}

// ErrAlreadyRegistered is returned by Register when name is already bound
// to a different factory.
type ErrAlreadyRegistered struct{ Name string }

func (e *ErrAlreadyRegistered) Error() string {
	return fmt.Sprintf("provider: %q is already registered", e.Name)
}

// ErrNotRegistered is returned by Create when name has no bound factory.
type ErrNotRegistered struct{ Name string }

func (e *ErrNotRegistered) Error() string {
	return fmt.Sprintf("provider: %q is not registered", e.Name)
}

// funcEqual compares two factories for the "identical factory" idempotency
// check. Go func values are not comparable with ==, so this compares the
// underlying code pointers via reflection instead — the usual idiom for
// "is this the same function value", and good enough here since factories
// are always package-level funcs or closures captured once at registration
// time, never freshly allocated per call.
func funcEqual[T any](a, b Factory[T]) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

// Register binds name to factory. A second Register for a name already
// bound to the identical factory is a no-op; a second Register for a name
// bound to a different factory fails with ErrAlreadyRegistered.
func (r *Registry[T]) Register(name string, factory Factory[T]) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, exists := r.factories[name]; exists {
		if funcEqual(existing, factory) {
			return nil
		}
		return &ErrAlreadyRegistered{Name: name}
	}
	r.factories[name] = factory
	return nil
}

// Unregister removes name, if present. No-op if absent.
func (r *Registry[T]) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.factories, name)
}

// Create instantiates the provider bound to name.
func (r *Registry[T]) Create(name string, cfg config.Snapshot) (T, error) {
	r.mu.Lock()
	factory, ok := r.factories[name]
	r.mu.Unlock()
	if !ok {
		var zero T
		return zero, &ErrNotRegistered{Name: name}
	}
	return factory(cfg)
}

// Names returns every currently registered name, in no particular order.
func (r *Registry[T]) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	return out
}
