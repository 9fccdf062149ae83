// Package server implements the server-side context: the component that
// owns the UDP search-receive transports, the UDP broadcast transport, the
// periodic beacon emitter, the TCP acceptor, and the transport registry of
// live virtual circuits.
package server

import (
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/epics-go/pva/addr"
	"github.com/epics-go/pva/beacon"
	"github.com/epics-go/pva/config"
	"github.com/epics-go/pva/guid"
	"github.com/epics-go/pva/provider"
	"github.com/epics-go/pva/search"
	"github.com/epics-go/pva/transport"
	"github.com/epics-go/pva/udp"
)

// RunState is the server context's lifecycle state.
type RunState int32

const (
	Initial RunState = iota
	Ready
	Running
	ShuttingDown
	Stopped
)

// maxConcurrentCircuits bounds how many virtual circuits this server
// services at once; an accepted connection beyond this limit waits for a
// slot instead of spawning an unbounded number of watcher goroutines.
const maxConcurrentCircuits = 256

func (s RunState) String() string {
	switch s {
	case Initial:
		return "INITIAL"
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case ShuttingDown:
		return "SHUTTING_DOWN"
	case Stopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// ErrIllegalState is returned for lifecycle operations attempted from a
// state that does not permit them (double-initialize, concurrent run, ...).
type ErrIllegalState struct {
	Op    string
	State RunState
}

func (e *ErrIllegalState) Error() string {
	return fmt.Sprintf("server: %s is not valid from state %s", e.Op, e.State)
}

// Context owns every server-side collaborator: the GUID, the configuration
// snapshot, the transport registry, the UDP transports, the beacon
// emitter, the TCP acceptor, the active channel providers, and the
// optional beacon status provider.
type Context struct {
	// ConfigOverride lets tests (or an embedding launcher) supply a
	// Snapshot directly instead of Initialize resolving one from the
	// process environment.
	ConfigOverride *config.Snapshot
	// Codec performs search-datagram decode/encode; the byte-level wire
	// format is out of scope for this package. Must be set before
	// Initialize.
	Codec search.Codec

	Logf  func(format string, v ...interface{})
	Debug bool

	mu    sync.Mutex
	state RunState

	guid      guid.GUID
	cfg       config.Snapshot
	startTime time.Time

	registry       *transport.Registry
	circuitSem     *transport.Semaphore
	receivers      []*udp.Receiver
	broadcaster    *udp.Broadcaster
	emitter        *beacon.Emitter
	dispatcher     *search.Dispatcher
	acceptor       net.Listener
	providers      []provider.ServerChannelProvider
	statusProvider *BeaconServerStatusProvider

	runGuard  int32
	runWakeCh chan struct{}

	eg *errgroup.Group
}

// NewContext builds an unstarted Context.
func NewContext() *Context {
	return &Context{state: Initial}
}

func (c *Context) logf(format string, v ...interface{}) {
	if c.Logf != nil {
		c.Logf(format, v...)
	}
}

// GetGUID returns this server's GUID. Only meaningful after Initialize.
func (c *Context) GetGUID() guid.GUID { return c.guid }

// GetStartTime returns the time Initialize completed.
func (c *Context) GetStartTime() time.Time { return c.startTime }

// State returns the current run state.
func (c *Context) State() RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetBeaconServerStatusProvider installs a status provider. Must be called
// before Initialize.
func (c *Context) SetBeaconServerStatusProvider(p *BeaconServerStatusProvider) {
	c.statusProvider = p
}

// Initialize resolves configuration, generates the server GUID, and binds
// every transport. On any failure, every prior step is unwound in reverse
// order before the error is returned. Initialize only succeeds from
// Initial.
func (c *Context) Initialize() (err error) {
	c.mu.Lock()
	if c.state != Initial {
		c.mu.Unlock()
		return &ErrIllegalState{Op: "initialize", State: c.state}
	}
	c.mu.Unlock()

	var unwind []func()
	defer func() {
		if err != nil {
			for i := len(unwind) - 1; i >= 0; i-- {
				unwind[i]()
			}
		}
	}()

	cfg, err := c.resolveConfig()
	if err != nil {
		return fmt.Errorf("server: resolve configuration: %w", err)
	}
	c.cfg = cfg

	g, err := guid.New()
	if err != nil {
		return fmt.Errorf("server: generate guid: %w", err)
	}
	c.guid = g

	c.runWakeCh = make(chan struct{})
	unwind = append(unwind, func() { close(c.runWakeCh) })

	if err := c.resolveProviders(); err != nil {
		return err
	}
	unwind = append(unwind, c.releaseProviders)

	acceptor, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", cfg.ServerPort()))
	if err != nil {
		return fmt.Errorf("server: bind TCP acceptor on port %d: %w", cfg.ServerPort(), err)
	}
	c.acceptor = acceptor
	unwind = append(unwind, func() { c.acceptor.Close() })

	locals, err := addr.DiscoverLocalAddresses()
	if err != nil {
		return fmt.Errorf("server: discover local interfaces: %w", err)
	}
	c.registry = transport.NewRegistry()
	c.circuitSem = transport.NewSemaphore(maxConcurrentCircuits)
	unwind = append(unwind, c.circuitSem.Close)
	// The dispatcher is constructed below, once the broadcaster (its reply
	// sender) exists; this closure defers to whatever c.dispatcher ends up
	// being so receiver construction order does not have to match
	// dispatcher construction order.
	dispatch := func(src netip.AddrPort, payload []byte) {
		if c.dispatcher != nil {
			c.dispatcher.Handle(src, payload)
		}
	}
	unwind = append(unwind, c.closeReceivers)
	for _, ip := range locals {
		recv, err := udp.NewReceiver(ip.String(), cfg.BroadcastPort(), cfg.MaxArrayBytes(), dispatch)
		if err != nil {
			return fmt.Errorf("server: bind UDP receiver on %s: %w", ip, err)
		}
		recv.Logf = c.Logf
		recv.Debug = c.Debug
		c.receivers = append(c.receivers, recv)
	}

	broadcaster, err := udp.NewBroadcaster(cfg.BroadcastPort())
	if err != nil {
		return fmt.Errorf("server: bind UDP broadcaster: %w", err)
	}
	c.broadcaster = broadcaster
	unwind = append(unwind, func() { c.broadcaster.Close() })

	searchProviders := make([]search.Provider, len(c.providers))
	for i, p := range c.providers {
		searchProviders[i] = p
	}
	if c.Codec != nil {
		c.dispatcher = search.NewDispatcher(c.cfg, c.Codec, c.broadcaster, searchProviders, 100, 100)
	}

	beaconAddrs, err := cfg.ResolvedBeaconAddresses()
	if err != nil {
		return fmt.Errorf("server: resolve beacon address list: %w", err)
	}
	destinations := make([]netip.AddrPort, len(beaconAddrs))
	for i, a := range beaconAddrs {
		destinations[i] = netip.AddrPortFrom(a, cfg.BroadcastPort())
	}
	c.emitter = beacon.NewEmitter(beaconPeriod(cfg), destinations, c.guid, c.broadcaster, c.encodeBeacon)
	c.emitter.Logf = c.Logf

	c.startTime = time.Now()
	c.mu.Lock()
	c.state = Ready
	c.mu.Unlock()
	return nil
}

func beaconPeriod(cfg config.Snapshot) time.Duration {
	return time.Duration(cfg.BeaconPeriod() * float64(time.Second))
}

func (c *Context) resolveConfig() (config.Snapshot, error) {
	if c.ConfigOverride != nil {
		return *c.ConfigOverride, nil
	}
	return config.Load()
}

func (c *Context) resolveProviders() error {
	for _, name := range c.cfg.ProviderNames() {
		p, err := provider.Servers().Create(name, c.cfg)
		if err != nil {
			return fmt.Errorf("server: resolve provider %q: %w", name, err)
		}
		c.providers = append(c.providers, p)
	}
	return nil
}

func (c *Context) releaseProviders() {
	for _, p := range c.providers {
		p.Destroy()
	}
	c.providers = nil
}

func (c *Context) closeReceivers() {
	for _, r := range c.receivers {
		r.Close()
	}
}

// encodeBeacon is a minimal built-in beacon payload encoder used when the
// embedding application has not supplied its own codec: protocol version,
// GUID, and sequence number. The full wire layout (server address/port,
// optional status payload) is the external codec's concern.
func (c *Context) encodeBeacon(g guid.GUID, seq uint32) []byte {
	if c.statusProvider != nil {
		c.statusProvider.RecordBeacon(seq)
	}
	buf := make([]byte, 0, guid.Size+5)
	buf = append(buf, 1) // protocol version
	buf = append(buf, g[:]...)
	buf = append(buf, byte(seq>>24), byte(seq>>16), byte(seq>>8), byte(seq))
	return buf
}

// Run blocks the calling goroutine until seconds elapse (0 means forever)
// or Shutdown is called, whichever happens first. Run only succeeds from
// Ready, and only one Run may be in flight at a time.
func (c *Context) Run(seconds float64) error {
	c.mu.Lock()
	if c.state != Ready {
		c.mu.Unlock()
		return &ErrIllegalState{Op: "run", State: c.state}
	}
	if !atomic.CompareAndSwapInt32(&c.runGuard, 0, 1) {
		c.mu.Unlock()
		return &ErrIllegalState{Op: "run", State: c.state}
	}
	c.state = Running
	c.mu.Unlock()
	defer atomic.StoreInt32(&c.runGuard, 0)

	c.eg = &errgroup.Group{}
	c.eg.Go(c.acceptLoop)
	for _, recv := range c.receivers {
		recv := recv
		c.eg.Go(recv.Run)
	}
	c.eg.Go(func() error { c.emitter.Run(); return nil })

	var timeout <-chan time.Time
	if seconds > 0 {
		t := time.NewTimer(time.Duration(seconds * float64(time.Second)))
		defer t.Stop()
		timeout = t.C
	}

	select {
	case <-timeout:
	case <-c.runWakeCh:
	}
	return nil
}

// acceptLoop accepts inbound TCP connections, wraps each in a virtual
// circuit, and installs it in the transport registry.
func (c *Context) acceptLoop() error {
	for {
		conn, err := c.acceptor.Accept()
		if err != nil {
			return nil
		}
		if err := c.circuitSem.P(); err != nil {
			// Semaphore closed under us: shutdown is in progress.
			conn.Close()
			return nil
		}
		ep, err := addr.Parse(conn.RemoteAddr().String(), addr.TCP)
		if err != nil {
			conn.Close()
			c.circuitSem.V()
			continue
		}
		circuit := newTCPCircuit(conn, ep)
		if !c.registry.Install(ep, circuit) {
			circuit.Close()
			c.circuitSem.V()
			continue
		}
		go c.watchCircuit(circuit)
	}
}

// watchCircuit waits for the circuit to go idle (EOF or error on the
// underlying connection) and removes it from the registry. The actual PVA
// framing that would otherwise drive this is the codec's concern.
func (c *Context) watchCircuit(circuit *tcpCircuit) {
	defer c.circuitSem.V()
	buf := make([]byte, 1)
	for {
		if _, err := circuit.conn.Read(buf); err != nil {
			c.registry.Remove(circuit.RemoteEndpoint(), circuit)
			circuit.Close()
			return
		}
	}
}

// Shutdown idempotently tears the server down in this order: TCP acceptor,
// circuit semaphore, beacon emitter, UDP receivers, live circuits,
// broadcaster, providers. It then wakes any blocked Run and always ends in
// Stopped.
func (c *Context) Shutdown() error {
	c.mu.Lock()
	if c.state == ShuttingDown || c.state == Stopped {
		c.mu.Unlock()
		return nil
	}
	if c.state == Initial {
		c.state = Stopped
		c.mu.Unlock()
		return nil
	}
	wasRunning := c.state == Running
	c.state = ShuttingDown
	c.mu.Unlock()

	// Every step below runs even if an earlier one failed, so a stuck
	// acceptor close doesn't leave circuits or the broadcaster leaked; the
	// failures are accumulated rather than returned on the first one.
	var merr *multierror.Error

	if c.acceptor != nil {
		merr = multierror.Append(merr, c.acceptor.Close())
	}
	if c.circuitSem != nil {
		c.circuitSem.Close()
	}
	if c.emitter != nil {
		c.emitter.Stop()
	}
	c.closeReceivers()
	for _, circuit := range c.registry.Snapshot() {
		merr = multierror.Append(merr, circuit.Close())
	}
	if c.broadcaster != nil {
		merr = multierror.Append(merr, c.broadcaster.Close())
	}
	c.releaseProviders()

	if wasRunning {
		close(c.runWakeCh)
	}
	if c.eg != nil {
		c.eg.Wait()
	}

	c.mu.Lock()
	c.state = Stopped
	c.mu.Unlock()
	return merr.ErrorOrNil()
}
