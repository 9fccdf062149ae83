// Package guid generates and compares the 12-byte identifiers PVA servers
// use to name themselves for the lifetime of a process.
package guid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Size is the fixed length, in bytes, of a GUID.
const Size = 12

// GUID identifies a server instance. It is opaque: nothing about its bytes
// carries meaning beyond "unique for this server's lifetime".
type GUID [Size]byte

// New generates a random GUID. It only fails if the system entropy source
// fails, which in practice means the process is in very bad shape.
func New() (GUID, error) {
	var g GUID
	if _, err := rand.Read(g[:]); err != nil {
		return GUID{}, fmt.Errorf("guid: failed to generate: %w", err)
	}
	return g, nil
}

// String renders the GUID as lowercase hex, with no separators.
func (g GUID) String() string {
	return hex.EncodeToString(g[:])
}

// IsZero reports whether this is the unset, all-zero GUID.
func (g GUID) IsZero() bool {
	return g == GUID{}
}

// Equal reports whether two GUIDs are byte-for-byte identical.
func (g GUID) Equal(o GUID) bool {
	return g == o
}
