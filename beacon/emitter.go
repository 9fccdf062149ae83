// Package beacon implements the periodic server-presence datagram emitter.
package beacon

import (
	"math/rand"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/epics-go/pva/guid"
)

// Sender is the transport a beacon datagram is written through — satisfied
// by *udp.Broadcaster.
type Sender interface {
	SendTo(dst netip.AddrPort, payload []byte) error
}

// Encoder builds the beacon payload for one send. The emitter supplies the
// GUID and sequence counter; the byte layout, and any other fields such as
// protocol version or server address/port, are up to the Encoder.
type Encoder func(g guid.GUID, seq uint32) []byte

// Emitter periodically sends a beacon datagram to every destination in its
// destination list, via its Sender, until Stop is called.
type Emitter struct {
	period       time.Duration
	destinations []netip.AddrPort
	g            guid.GUID
	sender       Sender
	encode       Encoder

	Logf func(format string, v ...interface{})

	seq     uint32
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
	started int32
}

// NewEmitter builds an Emitter. period must be positive.
func NewEmitter(period time.Duration, destinations []netip.AddrPort, g guid.GUID, sender Sender, encode Encoder) *Emitter {
	return &Emitter{
		period:       period,
		destinations: append([]netip.AddrPort(nil), destinations...),
		g:            g,
		sender:       sender,
		encode:       encode,
		stop:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
}

func (e *Emitter) logf(format string, v ...interface{}) {
	if e.Logf != nil {
		e.Logf(format, v...)
	}
}

// Run blocks, sending beacons until Stop is called. It is meant to run on
// its own goroutine.
//
// The first beacon fires after a random fast-start delay in
// [0, min(1s, period)], so that a fleet of servers starting in lockstep
// does not flood the network with synchronized beacons. After that, each
// send is scheduled relative to the previous scheduled time (not the time
// the previous send completed), so a slow or stalled send does not push
// every later beacon later too.
func (e *Emitter) Run() {
	atomic.StoreInt32(&e.started, 1)
	defer close(e.stopped)

	fastStart := e.period
	if fastStart > time.Second {
		fastStart = time.Second
	}
	delay := time.Duration(rand.Int63n(int64(fastStart) + 1))

	next := time.Now().Add(delay)
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-timer.C:
			e.send()
			next = next.Add(e.period)
			d := time.Until(next)
			if d < 0 {
				d = 0
			}
			timer.Reset(d)
		}
	}
}

func (e *Emitter) send() {
	seq := atomic.AddUint32(&e.seq, 1) - 1
	payload := e.encode(e.g, seq)
	for _, dst := range e.destinations {
		if err := e.sender.SendTo(dst, payload); err != nil {
			e.logf("beacon: send to %s failed: %v", dst, err)
		}
	}
}

// Stop signals Run to exit. It is safe to call multiple times and from any
// goroutine; Run exits before the next scheduled send.
func (e *Emitter) Stop() {
	e.once.Do(func() { close(e.stop) })
	if atomic.LoadInt32(&e.started) != 0 {
		<-e.stopped
	}
}
