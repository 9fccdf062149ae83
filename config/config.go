// Package config resolves the environment into a sealed configuration
// snapshot. Resolution merges built-in defaults with EPICS_PVA_* (and
// EPICS_PVAS_* for server-only knobs) environment variables; nothing
// mutates a Snapshot after Load returns it.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"github.com/epics-go/pva/addr"
)

// Defaults matching the upstream protocol's well-known ports and timings.
const (
	DefaultServerPort    = 5075
	DefaultBroadcastPort = 5076
	DefaultBeaconPeriod  = 15.0
	DefaultMaxArrayBytes = 16384
)

// Snapshot is an immutable, fully-resolved configuration. Once Load (or
// FromEnv) returns one, nothing about it changes; a server or client that
// wants new settings must resolve a new Snapshot and restart.
type Snapshot struct {
	addrList       []string
	autoAddrList   bool
	beaconPeriod   float64
	serverPort     uint16
	broadcastPort  uint16
	maxArrayBytes  int
	ignoreAddrList []netip.Addr
	providerNames  []string
}

// AddrList returns the configured space-separated beacon/search addresses.
func (s Snapshot) AddrList() []string { return append([]string(nil), s.addrList...) }

// AutoAddrList reports whether interface broadcast addresses should be
// auto-discovered and unioned into the beacon/search address list.
func (s Snapshot) AutoAddrList() bool { return s.autoAddrList }

// BeaconPeriod is the steady-state beacon interval, in seconds.
func (s Snapshot) BeaconPeriod() float64 { return s.beaconPeriod }

// ServerPort is the TCP port the acceptor binds.
func (s Snapshot) ServerPort() uint16 { return s.serverPort }

// BroadcastPort is the UDP port used for beacons and search.
func (s Snapshot) BroadcastPort() uint16 { return s.broadcastPort }

// MaxArrayBytes bounds the receive buffer size for a single PVA message.
func (s Snapshot) MaxArrayBytes() int { return s.maxArrayBytes }

// IgnoreAddrList returns the source addresses whose search requests are
// dropped unanswered.
func (s Snapshot) IgnoreAddrList() []netip.Addr {
	return append([]netip.Addr(nil), s.ignoreAddrList...)
}

// ProviderNames returns the ordered list of server-side provider names to
// instantiate at ServerContext.Initialize.
func (s Snapshot) ProviderNames() []string {
	return append([]string(nil), s.providerNames...)
}

// IsIgnored reports whether ip appears in the ignore list.
func (s Snapshot) IsIgnored(ip netip.Addr) bool {
	for _, i := range s.ignoreAddrList {
		if i == ip {
			return true
		}
	}
	return false
}

// ResolvedBeaconAddresses returns the beacon/search destination list:
// AddrList(), plus auto-discovered interface broadcast addresses when
// AutoAddrList() is set, deduplicated.
func (s Snapshot) ResolvedBeaconAddresses() ([]netip.Addr, error) {
	seen := map[netip.Addr]bool{}
	var out []netip.Addr
	add := func(a netip.Addr) {
		if a.IsValid() && !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}

	for _, s := range s.addrList {
		a, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("config: invalid address %q in EPICS_PVA_ADDR_LIST: %w", s, err)
		}
		add(a)
	}

	if s.autoAddrList {
		discovered, err := addr.DiscoverBroadcastAddresses()
		if err != nil {
			return nil, fmt.Errorf("config: auto address discovery failed: %w", err)
		}
		for _, a := range discovered {
			add(a)
		}
	}

	return out, nil
}

// Load resolves a Snapshot from the process environment, applying defaults
// for anything unset. This is the only way client/server code outside this
// package should obtain a Snapshot.
func Load() (Snapshot, error) {
	return FromEnv(os.Environ())
}

// FromEnv resolves a Snapshot from an explicit "KEY=VALUE" list, which
// exists so tests can exercise resolution without mutating the real
// process environment.
func FromEnv(environ []string) (Snapshot, error) {
	env := map[string]string{}
	for _, kv := range environ {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	s := Snapshot{
		beaconPeriod:  DefaultBeaconPeriod,
		serverPort:    DefaultServerPort,
		broadcastPort: DefaultBroadcastPort,
		maxArrayBytes: DefaultMaxArrayBytes,
	}

	if v, ok := lookup("EPICS_PVA_ADDR_LIST"); ok {
		s.addrList = splitFields(v)
	}

	if v, ok := lookup("EPICS_PVA_AUTO_ADDR_LIST"); ok {
		b, err := parseBool(v)
		if err != nil {
			return Snapshot{}, fmt.Errorf("config: EPICS_PVA_AUTO_ADDR_LIST: %w", err)
		}
		s.autoAddrList = b
	}

	if v, ok := lookup("EPICS_PVA_BEACON_PERIOD"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Snapshot{}, fmt.Errorf("config: EPICS_PVA_BEACON_PERIOD: %w", err)
		}
		s.beaconPeriod = f
	}

	if v, ok := lookup("EPICS_PVA_SERVER_PORT"); ok {
		p, err := parsePort(v)
		if err != nil {
			return Snapshot{}, fmt.Errorf("config: EPICS_PVA_SERVER_PORT: %w", err)
		}
		s.serverPort = p
	}

	if v, ok := lookup("EPICS_PVA_BROADCAST_PORT"); ok {
		p, err := parsePort(v)
		if err != nil {
			return Snapshot{}, fmt.Errorf("config: EPICS_PVA_BROADCAST_PORT: %w", err)
		}
		s.broadcastPort = p
	}

	if v, ok := lookup("EPICS_PVA_MAX_ARRAY_BYTES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Snapshot{}, fmt.Errorf("config: EPICS_PVA_MAX_ARRAY_BYTES: invalid value %q", v)
		}
		s.maxArrayBytes = n
	}

	if v, ok := lookup("EPICS_PVAS_IGNORE_ADDR_LIST"); ok {
		for _, f := range splitFields(v) {
			a, err := netip.ParseAddr(f)
			if err != nil {
				return Snapshot{}, fmt.Errorf("config: EPICS_PVAS_IGNORE_ADDR_LIST: invalid address %q: %w", f, err)
			}
			s.ignoreAddrList = append(s.ignoreAddrList, a)
		}
	}

	if v, ok := lookup("EPICS_PVA_PROVIDER_NAMES"); ok {
		s.providerNames = splitFields(v)
	} else {
		s.providerNames = []string{"local"}
	}

	return s, nil
}

func splitFields(v string) []string {
	fields := strings.Fields(v)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "true", "1", "on":
		return true, nil
	case "no", "false", "0", "off", "":
		return false, nil
	default:
		return false, fmt.Errorf("unrecognized boolean %q", v)
	}
}

func parsePort(v string) (uint16, error) {
	n, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", v, err)
	}
	return uint16(n), nil
}
