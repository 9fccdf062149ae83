package provider

import (
	"fmt"
	"strings"
	"sync"
)

var (
	clientsOnce sync.Once
	clients     *Registry[ClientProvider]

	serversOnce sync.Once
	servers     *Registry[ServerChannelProvider]
)

// Clients returns the process-wide client-provider directory, creating it
// on first use. A sync.Once guards initialization so concurrent first
// callers never race to build two directories.
func Clients() *Registry[ClientProvider] {
	clientsOnce.Do(func() { clients = NewRegistry[ClientProvider]() })
	return clients
}

// Servers returns the process-wide server-provider directory, created
// lazily the same way as Clients.
func Servers() *Registry[ServerChannelProvider] {
	serversOnce.Do(func() { servers = NewRegistry[ServerChannelProvider]() })
	return servers
}

// ResolveProviderName splits a compound name of the form "client:<name>" or
// "server:<name>" into its directory selector and bare name. A name with no
// recognized prefix resolves to the "clients" directory.
func ResolveProviderName(compound string) (directory, name string) {
	if rest, ok := strings.CutPrefix(compound, "client:"); ok {
		return "clients", rest
	}
	if rest, ok := strings.CutPrefix(compound, "server:"); ok {
		return "servers", rest
	}
	return "clients", compound
}

// ErrUnrecognizedDirectory reports a directory selector other than
// "clients" or "servers". ResolveProviderName never yields one, and nothing
// in this module returns this error.
type ErrUnrecognizedDirectory struct{ Directory string }

func (e *ErrUnrecognizedDirectory) Error() string {
	return fmt.Sprintf("provider: unrecognized directory %q", e.Directory)
}
