package udp

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"syscall"

	"golang.org/x/sys/unix"
)

// Broadcaster is the server's single UDP send socket, shared by the beacon
// emitter and by search-reply dispatch. SO_BROADCAST is required to send to
// subnet broadcast addresses at all; SO_REUSEPORT lets this socket share
// its local port with the search-receive transports bound on the same
// port, which is how a single host runs client and server side by side.
type Broadcaster struct {
	conn *net.UDPConn
}

// NewBroadcaster binds a UDP send socket on the given local port.
func NewBroadcaster(port uint16) (*Broadcaster, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
					sockErr = fmt.Errorf("set SO_BROADCAST: %w", err)
					return
				}
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
					sockErr = fmt.Errorf("set SO_REUSEPORT: %w", err)
					return
				}
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("udp: bind broadcaster on port %d: %w", port, err)
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("udp: unexpected packet conn type %T", pc)
	}
	return &Broadcaster{conn: conn}, nil
}

// SendTo writes payload to dst. Callers (the beacon emitter, search
// dispatch) are expected to log-and-swallow failures; this method only
// reports them.
func (b *Broadcaster) SendTo(dst netip.AddrPort, payload []byte) error {
	_, err := b.conn.WriteToUDPAddrPort(payload, dst)
	if err != nil {
		return fmt.Errorf("udp: send to %s: %w", dst, err)
	}
	return nil
}

// Close releases the send socket.
func (b *Broadcaster) Close() error {
	return b.conn.Close()
}
