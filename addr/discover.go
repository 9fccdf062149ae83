package addr

import (
	"net/netip"

	"github.com/vishvananda/netlink"
	"go4.org/netipx"
)

// DiscoverBroadcastAddresses enumerates the local IPv4 interfaces and
// returns the broadcast address of each configured subnet, deduplicated.
// This is what EPICS_PVA_AUTO_ADDR_LIST=YES asks for: instead of requiring
// an operator to list every subnet's broadcast address by hand, walk the
// host's own interfaces and derive them.
//
// Point-to-point and host-only prefixes (/31, /32) are skipped, since they
// have no meaningful broadcast address.
func DiscoverBroadcastAddresses() ([]netip.Addr, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, err
	}

	var b netipx.IPSetBuilder
	for _, link := range links {
		if link.Attrs().Flags&netLinkUp == 0 {
			continue
		}
		addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
		if err != nil {
			return nil, err
		}
		for _, a := range addrs {
			if a.IPNet == nil {
				continue
			}
			prefix, ok := netipx.FromStdIPNet(a.IPNet)
			if !ok {
				continue
			}
			if prefix.Bits() >= 31 {
				continue
			}
			r := netipx.RangeOfPrefix(prefix.Masked())
			b.Add(r.To())
		}
	}

	set, err := b.IPSet()
	if err != nil {
		return nil, err
	}

	var out []netip.Addr
	for _, r := range set.Ranges() {
		for ip := r.From(); ip.IsValid() && ip.Compare(r.To()) <= 0; ip = ip.Next() {
			out = append(out, ip)
		}
	}
	return out, nil
}

// netLinkUp mirrors net.FlagUp's value so this package does not need to
// import both net and netlink purely for a flag bit.
const netLinkUp = 1 << 0

// DiscoverLocalAddresses enumerates the local IPv4 interfaces and returns
// each one's own address (not its broadcast address). This is what the
// server context uses to decide how many UDP search-receive transports to
// bind — one per local interface.
func DiscoverLocalAddresses() ([]netip.Addr, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, err
	}

	var out []netip.Addr
	for _, link := range links {
		if link.Attrs().Flags&netLinkUp == 0 {
			continue
		}
		addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
		if err != nil {
			return nil, err
		}
		for _, a := range addrs {
			if a.IPNet == nil {
				continue
			}
			prefix, ok := netipx.FromStdIPNet(a.IPNet)
			if !ok {
				continue
			}
			out = append(out, prefix.Addr())
		}
	}
	return out, nil
}
