package client

import (
	"fmt"

	"github.com/epics-go/pva/config"
	"github.com/epics-go/pva/provider"
)

// Provider is the public client-facing facade over the channel cache: the
// thing user code obtains to call Connect. It is a thin wrapper — the
// interesting logic lives in Cache and Channel.
type Provider struct {
	cache *Cache
	under provider.ClientProvider
}

// NewProvider resolves name (via provider.ResolveProviderName, so a
// "server:" prefix is rejected here — this is the client-side entry point)
// against the process-wide client registry and wraps the resulting
// underlying provider in a Provider.
func NewProvider(name string, cfg config.Snapshot) (*Provider, error) {
	dir, bare := provider.ResolveProviderName(name)
	if dir != "clients" {
		return nil, fmt.Errorf("client: %q does not resolve to the clients directory", name)
	}
	under, err := provider.Clients().Create(bare, cfg)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	return NewProviderFromInstance(under), nil
}

// NewProviderFromInstance wraps an already-constructed underlying provider,
// for callers (typically tests) that built one directly instead of going
// through the registry.
func NewProviderFromInstance(under provider.ClientProvider) *Provider {
	return &Provider{cache: NewCache(under), under: under}
}

// Connect returns the cached channel for (name, options), creating one on
// a cache miss.
func (p *Provider) Connect(name string, options Options) (*Channel, error) {
	return p.cache.Connect(name, options)
}

// Disconnect drops the cache's claim on (name, options). See Cache.Disconnect.
func (p *Provider) Disconnect(name string, options Options) bool {
	return p.cache.Disconnect(name, options)
}

// DisconnectAll clears the cache and releases the underlying provider.
func (p *Provider) DisconnectAll() {
	p.cache.DisconnectAll()
	p.under.Destroy()
}
