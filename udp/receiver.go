// Package udp implements the two UDP transports the server context owns:
// a search-receive transport (one per bound local interface) and a single
// broadcast transport shared by the beacon emitter and search replies.
package udp

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync/atomic"
)

// SearchHandler is invoked once per received incoming datagram. src is the
// sender; payload is the raw datagram body, which this package does not
// interpret — decoding search frames is the codec's job.
type SearchHandler func(src netip.AddrPort, payload []byte)

// Receiver is a single bound UDP socket that reads incoming datagrams and
// dispatches them to a SearchHandler until Close is called. The server
// context holds one per local interface.
//
// Closing the underlying connection is how Run is unblocked — the same
// "close to wake a blocked reader" idiom the rest of this codebase's
// ancestry uses for socket shutdown, rather than a second control channel
// racing the read.
type Receiver struct {
	conn    *net.UDPConn
	handler SearchHandler
	bufSize int
	Logf    func(format string, v ...interface{})
	Debug   bool

	closed int32
}

// NewReceiver binds a UDP socket on (iface, port) — iface may be "" to bind
// all interfaces, or a specific local IP to bind just one — and returns a
// Receiver ready to Run. maxArrayBytes sizes the per-datagram receive
// buffer Run allocates; it comes from the configured
// EPICS_PVA_MAX_ARRAY_BYTES, not a package constant, so a deployment that
// raises it actually gets a larger receive buffer.
func NewReceiver(iface string, port uint16, maxArrayBytes int, handler SearchHandler) (*Receiver, error) {
	addr := &net.UDPAddr{Port: int(port)}
	if iface != "" {
		ip, err := netip.ParseAddr(iface)
		if err != nil {
			return nil, fmt.Errorf("udp: invalid receiver interface %q: %w", iface, err)
		}
		addr.IP = ip.AsSlice()
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udp: bind receiver on %s:%d: %w", iface, port, err)
	}
	return &Receiver{conn: conn, handler: handler, bufSize: maxArrayBytes}, nil
}

func (r *Receiver) logf(format string, v ...interface{}) {
	if r.Logf != nil {
		r.Logf(format, v...)
	}
}

// LocalAddr returns the bound local address.
func (r *Receiver) LocalAddr() net.Addr { return r.conn.LocalAddr() }

// Run reads datagrams until Close is called, dispatching each to the
// handler synchronously on the calling goroutine. It returns nil once
// Close causes the read loop to unblock, and a non-nil error for any other
// read failure.
func (r *Receiver) Run() error {
	buf := make([]byte, r.bufSize)
	for {
		n, src, err := r.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if atomic.LoadInt32(&r.closed) != 0 {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("udp: receive on %s: %w", r.conn.LocalAddr(), err)
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		if r.Debug {
			r.logf("udp: received %d bytes from %s", n, src)
		}
		r.handler(src, payload)
	}
}

// Close unblocks any in-progress Run and releases the socket. Idempotent.
func (r *Receiver) Close() error {
	if !atomic.CompareAndSwapInt32(&r.closed, 0, 1) {
		return nil
	}
	return r.conn.Close()
}
