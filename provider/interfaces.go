package provider

import "github.com/epics-go/pva/addr"

// Channel is the minimal surface the cache and channel handle need from an
// underlying provider-created channel object. Everything else about it
// (get/put/monitor/rpc framing) belongs to the codec and is out of scope
// here.
type Channel interface {
	Name() string
	Destroy()
}

// ChannelRequester is the callback interface a ClientProvider uses to
// report channel lifecycle events back to whoever asked for the channel —
// in this module, the client channel handle (client.Channel) that the
// channel cache creates.
type ChannelRequester interface {
	ChannelCreated(err error, channel Channel)
	ChannelStateChanged(channel Channel, connected bool)
}

// ClientProvider is a client-side channel factory: the thing registered
// under the "clients" directory.
type ClientProvider interface {
	Name() string
	CreateChannel(name string, requester ChannelRequester, priority int, addressHint addr.Endpoint) (Channel, error)
	Destroy()
}

// ServerChannelProvider is a server-side channel factory: the thing
// registered under the "servers" directory. It doubles as a search.Provider.
type ServerChannelProvider interface {
	Name() string
	ClaimsChannel(name string) bool
	Destroy()
}
