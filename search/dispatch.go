// Package search implements server-side search dispatch: deciding, for an
// incoming UDP search datagram, which registered providers (if any) claim
// the requested channel names, and replying via the broadcast transport.
//
// The byte-level search request/reply framing is delegated to a Codec the
// caller supplies — this package only owns the ignore-list check, ordered
// provider consultation, and rate-limited reply emission.
package search

import (
	"net/netip"

	"golang.org/x/time/rate"

	"github.com/epics-go/pva/config"
)

// Provider is the server-side interface a channel provider exposes to
// search dispatch: "do you host this name?"
type Provider interface {
	ClaimsChannel(name string) bool
}

// Codec decodes the names requested by a search datagram and encodes the
// claimed subset into a reply datagram. The wire format itself is out of
// scope for this package.
type Codec interface {
	DecodeSearchRequest(payload []byte) (names []string, err error)
	EncodeSearchReply(claimed []string) []byte
}

// Sender is the transport a reply is written to — satisfied by
// *udp.Broadcaster.
type Sender interface {
	SendTo(dst netip.AddrPort, payload []byte) error
}

// Dispatcher consults the ignore list and the ordered provider list for
// every incoming search datagram.
type Dispatcher struct {
	cfg       config.Snapshot
	codec     Codec
	sender    Sender
	providers []Provider
	limiter   *rate.Limiter

	Logf func(format string, v ...interface{})
}

// NewDispatcher builds a Dispatcher. providers are consulted in the given
// order; the first to claim a name wins, which is the spec's sole
// disambiguation mechanism. replyRate bounds how many reply datagrams per
// second this dispatcher will emit, guarding against a search storm; pass
// rate.Inf to disable limiting.
func NewDispatcher(cfg config.Snapshot, codec Codec, sender Sender, providers []Provider, replyRate rate.Limit, replyBurst int) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg,
		codec:     codec,
		sender:    sender,
		providers: providers,
		limiter:   rate.NewLimiter(replyRate, replyBurst),
	}
}

func (d *Dispatcher) logf(format string, v ...interface{}) {
	if d.Logf != nil {
		d.Logf(format, v...)
	}
}

// Handle processes one incoming search datagram. It matches udp.SearchHandler
// and is meant to be passed directly as a receive transport's handler.
func (d *Dispatcher) Handle(src netip.AddrPort, payload []byte) {
	if d.cfg.IsIgnored(src.Addr()) {
		d.logf("search: dropping datagram from ignored source %s", src.Addr())
		return
	}

	names, err := d.codec.DecodeSearchRequest(payload)
	if err != nil {
		d.logf("search: failed to decode datagram from %s: %v", src, err)
		return
	}

	var claimed []string
	for _, name := range names {
		for _, p := range d.providers {
			if p.ClaimsChannel(name) {
				claimed = append(claimed, name)
				break
			}
		}
	}
	if len(claimed) == 0 {
		return
	}

	if !d.limiter.Allow() {
		d.logf("search: dropping reply to %s, rate limit exceeded", src)
		return
	}

	reply := d.codec.EncodeSearchReply(claimed)
	if err := d.sender.SendTo(src, reply); err != nil {
		d.logf("search: failed to send reply to %s: %v", src, err)
	}
}
