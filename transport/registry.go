// Package transport holds the live virtual-circuit registry: the
// thread-safe directory the server context and the TCP acceptor consult to
// enforce "at most one circuit per remote endpoint".
package transport

import (
	"sync"

	"github.com/epics-go/pva/addr"
)

// Circuit is the minimal contract a virtual circuit must satisfy to live in
// the registry. The byte-level framing and codec are out of scope here;
// this package only tracks identity and lifecycle.
type Circuit interface {
	// RemoteEndpoint is the registry key this circuit was installed under.
	RemoteEndpoint() addr.Endpoint
	// Close tears the circuit down. Close must be idempotent.
	Close() error
}

// Registry is a thread-safe endpoint -> Circuit directory. The zero value
// is ready to use.
type Registry struct {
	mu   sync.Mutex
	byEP map[addr.Endpoint]Circuit
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byEP: make(map[addr.Endpoint]Circuit)}
}

// Install inserts transport under endpoint if no entry exists yet. It
// reports true if the insert happened. On a collision (false), the caller
// owns transport and must close it itself — the first installer wins.
func (r *Registry) Install(endpoint addr.Endpoint, transport Circuit) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byEP[endpoint]; exists {
		return false
	}
	if r.byEP == nil {
		r.byEP = make(map[addr.Endpoint]Circuit)
	}
	r.byEP[endpoint] = transport
	return true
}

// Lookup returns the circuit installed under endpoint, if any.
func (r *Registry) Lookup(endpoint addr.Endpoint) (Circuit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byEP[endpoint]
	return c, ok
}

// Remove deletes the entry at endpoint only if the current occupant is
// identity-equal to transport, preventing an ABA race where a stale
// removal deletes a newer circuit that happens to share the endpoint.
func (r *Registry) Remove(endpoint addr.Endpoint, transport Circuit) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byEP[endpoint]
	if !ok || cur != transport {
		return false
	}
	delete(r.byEP, endpoint)
	return true
}

// Snapshot returns every installed circuit. Used by shutdown, which closes
// each one without holding the registry lock across the close call.
func (r *Registry) Snapshot() []Circuit {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Circuit, 0, len(r.byEP))
	for _, c := range r.byEP {
		out = append(out, c)
	}
	return out
}

// Len reports the number of installed circuits.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byEP)
}
