package server

import (
	"net"

	"github.com/google/uuid"

	"github.com/epics-go/pva/addr"
)

// tcpCircuit is the minimal transport.Circuit wrapping an accepted TCP
// connection. The actual PVA framing that turns this into a real virtual
// circuit belongs to the external codec; this type exists so the registry
// and shutdown path have something concrete to install, look up, and close.
//
// id is a process-local diagnostic handle, not a protocol field: it gives
// Diag (the circuit ids in /status) something stable to name a circuit by
// that survives the remote endpoint being reused across reconnects.
type tcpCircuit struct {
	conn net.Conn
	ep   addr.Endpoint
	id   uuid.UUID
}

func newTCPCircuit(conn net.Conn, ep addr.Endpoint) *tcpCircuit {
	return &tcpCircuit{conn: conn, ep: ep, id: uuid.New()}
}

func (c *tcpCircuit) RemoteEndpoint() addr.Endpoint { return c.ep }

func (c *tcpCircuit) Close() error { return c.conn.Close() }

// ID is this circuit's diagnostic identifier.
func (c *tcpCircuit) ID() uuid.UUID { return c.id }
