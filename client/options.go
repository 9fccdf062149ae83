package client

import "github.com/epics-go/pva/addr"

// Options carries the per-connect tuning a channel is created with:
// priority in [0,99], and an optional address hint that steers the
// underlying provider toward a known server instead of a fresh search.
// Options is comparable and totally ordered, so (name, Options) is a valid
// cache key and Options values sort deterministically in diagnostics.
type Options struct {
	Priority    int
	AddressHint addr.Endpoint
}

// DefaultOptions is the zero-value Options: priority 0, no address hint.
var DefaultOptions = Options{}

// Compare gives Options a total order: by Priority, then AddressHint.
func (o Options) Compare(other Options) int {
	if o.Priority != other.Priority {
		if o.Priority < other.Priority {
			return -1
		}
		return 1
	}
	return o.AddressHint.Compare(other.AddressHint)
}

// cacheKey is the map key the channel cache indexes on: a channel name
// plus the options it was requested with.
type cacheKey struct {
	name    string
	options Options
}
