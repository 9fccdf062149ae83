package client

import (
	"fmt"
	"sync"

	"github.com/epics-go/pva/provider"
)

// State is a channel's connection state.
type State int

const (
	NeverConnected State = iota
	Connected
	Disconnected
	Destroyed
)

func (s State) String() string {
	switch s {
	case NeverConnected:
		return "NEVER_CONNECTED"
	case Connected:
		return "CONNECTED"
	case Disconnected:
		return "DISCONNECTED"
	case Destroyed:
		return "DESTROYED"
	default:
		return "UNKNOWN"
	}
}

// ConnectCallback is a connect-state listener. It is an interface, not a
// bare func, because a Channel's listener set must dedup by identity —
// plain Go func values are not comparable with ==, but interface values
// wrapping pointers are. Use FuncConnectListener to register a plain func
// while keeping that identity.
type ConnectCallback interface {
	OnConnectionState(connected bool)
}

// FuncConnectListener adapts a func(bool) into a ConnectCallback with
// stable pointer identity, so the same wrapper can be registered once and
// later removed by the same reference.
type FuncConnectListener struct {
	Fn func(connected bool)
}

// NewFuncConnectListener wraps fn in a *FuncConnectListener, suitable for
// AddConnectListener/RemoveConnectListener.
func NewFuncConnectListener(fn func(connected bool)) *FuncConnectListener {
	return &FuncConnectListener{Fn: fn}
}

// OnConnectionState implements ConnectCallback.
func (f *FuncConnectListener) OnConnectionState(connected bool) { f.Fn(connected) }

// Channel is a client-side channel handle: a name plus options, a
// connection state, and a set of connect listeners notified on state
// transitions. Listener broadcast follows the "copy-then-iterate"
// discipline: the lock that protects the listener slice is never held
// across a user callback, so a callback may safely re-enter the channel
// (e.g. to register another listener) without deadlocking.
type Channel struct {
	name    string
	options Options

	mu         sync.Mutex
	state      State
	listeners  []ConnectCallback
	underlying provider.Channel

	Logf func(format string, v ...interface{})
}

func newChannel(name string, options Options) *Channel {
	return &Channel{name: name, options: options, state: NeverConnected}
}

func (c *Channel) logf(format string, v ...interface{}) {
	if c.Logf != nil {
		c.Logf(format, v...)
	}
}

// Name is the channel's name.
func (c *Channel) Name() string { return c.name }

// Options is the options this channel was created with.
func (c *Channel) Options() Options { return c.options }

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) setUnderlying(u provider.Channel) {
	c.mu.Lock()
	c.underlying = u
	c.mu.Unlock()
}

// AddConnectListener registers cb, unless it is already registered (by
// identity — duplicate registrations are silently dropped). The new
// listener is invoked synchronously, once, with the channel's current
// connection state, before AddConnectListener returns. If that invocation
// panics, cb is removed and the panic is re-raised to the caller.
func (c *Channel) AddConnectListener(cb ConnectCallback) {
	c.mu.Lock()
	for _, existing := range c.listeners {
		if existing == cb {
			c.mu.Unlock()
			return
		}
	}
	c.listeners = append(c.listeners, cb)
	snapshot := c.state
	c.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			c.removeListener(cb)
			panic(r)
		}
	}()
	cb.OnConnectionState(snapshot == Connected)
}

// RemoveConnectListener deregisters cb. No-op if cb is not registered.
func (c *Channel) RemoveConnectListener(cb ConnectCallback) {
	c.removeListener(cb)
}

func (c *Channel) removeListener(cb ConnectCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.listeners {
		if existing == cb {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

// setState transitions the channel's state and broadcasts it to every
// registered listener. Listeners are notified against a snapshot of the
// listener slice taken at broadcast start; a listener added or removed
// mid-broadcast does not affect that snapshot. A listener whose callback
// panics is removed and the failure is logged; the rest of the snapshot
// still runs.
func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	snapshot := append([]ConnectCallback(nil), c.listeners...)
	c.mu.Unlock()

	connected := s == Connected
	for _, cb := range snapshot {
		c.notifyOne(cb, connected)
	}
}

func (c *Channel) notifyOne(cb ConnectCallback, connected bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logf("client: connect listener panicked, removing it: %v", r)
			c.removeListener(cb)
		}
	}()
	cb.OnConnectionState(connected)
}

// ChannelCreated implements provider.ChannelRequester: the underlying
// provider calls this once channel creation completes (or fails).
func (c *Channel) ChannelCreated(err error, underlying provider.Channel) {
	if err != nil {
		c.logf("client: channel %q creation failed: %v", c.name, err)
		return
	}
	c.setUnderlying(underlying)
}

// ChannelStateChanged implements provider.ChannelRequester: the underlying
// provider calls this whenever the circuit-level connection state flips.
func (c *Channel) ChannelStateChanged(underlying provider.Channel, connected bool) {
	if connected {
		c.setState(Connected)
	} else {
		c.setState(Disconnected)
	}
}

// destroy marks the channel Destroyed and severs the back-reference to the
// underlying provider channel before that object's own teardown runs —
// destruction order between the two must never be relied on.
func (c *Channel) destroy() {
	c.mu.Lock()
	c.state = Destroyed
	c.listeners = nil
	c.underlying = nil
	c.mu.Unlock()
}

func (c *Channel) newOperation(name string) *Operation {
	c.mu.Lock()
	destroyed := c.state == Destroyed
	c.mu.Unlock()
	if name == "" {
		name = fmt.Sprintf("%s-op", c.name)
	}
	return newOperation(name, destroyed)
}

// Get issues a one-shot read. The actual request/response traffic is the
// codec's concern; this layer only owns operation bookkeeping.
func (c *Channel) Get() *Operation { return c.newOperation("get") }

// Put issues a one-shot write.
func (c *Channel) Put() *Operation { return c.newOperation("put") }

// Monitor starts a subscription.
func (c *Channel) Monitor() *Operation { return c.newOperation("monitor") }

// Rpc issues a remote procedure call.
func (c *Channel) Rpc() *Operation { return c.newOperation("rpc") }
