// Package addr implements the endpoint-address type shared by the transport
// registry, the UDP transports, and the client-side channel options. An
// Endpoint is deliberately comparable so it can be used directly as a map
// key, the way the transport registry and the channel cache both need.
package addr

import (
	"fmt"
	"net/netip"
)

// Proto discriminates the transport context an Endpoint was learned in. The
// same IP:port pair reached over UDP (a search reply) and TCP (a virtual
// circuit) are not interchangeable, so it is carried explicitly rather than
// inferred.
type Proto uint8

// The two transport contexts PVA cares about.
const (
	UDP Proto = iota
	TCP
)

// String renders the Proto the way a log line would want it.
func (p Proto) String() string {
	switch p {
	case UDP:
		return "udp"
	case TCP:
		return "tcp"
	default:
		return "unknown"
	}
}

// Endpoint is an IP address, port, and transport discriminator. It is a
// plain comparable struct (netip.Addr is itself comparable) so it can be
// used as a map key without wrapping or hashing, which is how the transport
// registry keys its live virtual circuits and how channel options carry an
// optional address hint.
type Endpoint struct {
	IP    netip.Addr
	Port  uint16
	Proto Proto
}

// New builds an Endpoint from an already-parsed address.
func New(ip netip.Addr, port uint16, proto Proto) Endpoint {
	return Endpoint{IP: ip.Unmap(), Port: port, Proto: proto}
}

// Parse parses a "host:port" string into an Endpoint of the given protocol.
func Parse(hostport string, proto Proto) (Endpoint, error) {
	ap, err := netip.ParseAddrPort(hostport)
	if err != nil {
		return Endpoint{}, fmt.Errorf("addr: invalid endpoint %q: %w", hostport, err)
	}
	return New(ap.Addr(), ap.Port(), proto), nil
}

// IsValid reports whether this Endpoint carries a usable address. The zero
// Endpoint is not valid, which lets it double as the "no address hint"
// sentinel in channel options.
func (e Endpoint) IsValid() bool {
	return e.IP.IsValid()
}

// String renders the Endpoint as "proto://ip:port".
func (e Endpoint) String() string {
	if !e.IsValid() {
		return "<none>"
	}
	return fmt.Sprintf("%s://%s", e.Proto, netip.AddrPortFrom(e.IP, e.Port))
}

// Compare gives Endpoint a total order: by IP, then port, then protocol.
// This is what lets a (name, options) pair that embeds an address hint be
// totally ordered too, as the spec requires for the channel cache key.
func (e Endpoint) Compare(o Endpoint) int {
	if c := e.IP.Compare(o.IP); c != 0 {
		return c
	}
	if e.Port != o.Port {
		if e.Port < o.Port {
			return -1
		}
		return 1
	}
	if e.Proto != o.Proto {
		if e.Proto < o.Proto {
			return -1
		}
		return 1
	}
	return 0
}
