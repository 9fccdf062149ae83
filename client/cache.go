package client

import (
	"errors"
	"fmt"
	"sync"
	"weak"

	"golang.org/x/sync/singleflight"

	"github.com/epics-go/pva/provider"
)

// ErrInvalidArgument is returned by Connect for an empty channel name.
var ErrInvalidArgument = errors.New("client: invalid argument")

// Cache is the client channel cache: a weak-map of (name, options) to
// channel handle, plus at-most-one-creation-per-key bookkeeping.
//
// The cache never extends a handle's lifetime — entries are weak.Pointer
// values from the standard library's weak package, so a channel with no
// remaining strong references is free to be collected regardless of
// whether it is still in this map. Concurrent Connect calls for an
// identical key are collapsed onto a single underlying CreateChannel call
// via golang.org/x/sync/singleflight, which resolves what would otherwise
// be a last-writer-wins race between two concurrent cache misses.
type Cache struct {
	provider provider.ClientProvider

	mu      sync.Mutex
	entries map[cacheKey]weak.Pointer[Channel]

	group singleflight.Group
}

// NewCache builds a Cache backed by p.
func NewCache(p provider.ClientProvider) *Cache {
	return &Cache{
		provider: p,
		entries:  make(map[cacheKey]weak.Pointer[Channel]),
	}
}

// Connect returns the cached channel for (name, options), creating one via
// the underlying provider on a cache miss. Concurrent Connect calls with
// an identical key are guaranteed to observe the same handle.
func (c *Cache) Connect(name string, options Options) (*Channel, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: channel name must not be empty", ErrInvalidArgument)
	}
	key := cacheKey{name: name, options: options}

	if ch, ok := c.lookup(key); ok {
		return ch, nil
	}

	sfKey := singleflightKey(key)
	v, err, _ := c.group.Do(sfKey, func() (interface{}, error) {
		// Re-check: another goroutine may have already committed an entry
		// for this key while we were between the first lookup and
		// acquiring the singleflight slot.
		if ch, ok := c.lookup(key); ok {
			return ch, nil
		}

		ch := newChannel(name, options)
		underlying, err := c.provider.CreateChannel(name, ch, options.Priority, options.AddressHint)
		if err != nil {
			return nil, err
		}
		ch.setUnderlying(underlying)

		c.mu.Lock()
		c.entries[key] = weak.Make(ch)
		c.mu.Unlock()
		return ch, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Channel), nil
}

// lookup resolves the weak entry for key, pruning it if it has gone dead.
func (c *Cache) lookup(key cacheKey) (*Channel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	wp, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if ch := wp.Value(); ch != nil {
		return ch, true
	}
	delete(c.entries, key)
	return nil, false
}

// Disconnect removes the cache entry for (name, options), if present. It
// reports whether an entry was removed. The underlying channel is not
// destroyed — strong references elsewhere keep it alive; this only drops
// the cache's weak claim.
func (c *Cache) Disconnect(name string, options Options) bool {
	key := cacheKey{name: name, options: options}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	return true
}

// DisconnectAll clears the cache.
func (c *Cache) DisconnectAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]weak.Pointer[Channel])
}

func singleflightKey(key cacheKey) string {
	return fmt.Sprintf("%s\x00%d\x00%s", key.name, key.options.Priority, key.options.AddressHint)
}
