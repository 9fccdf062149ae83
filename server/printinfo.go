package server

import (
	"fmt"
	"io"
)

// PrintInfo writes a human-readable summary of this context's state to w:
// GUID, start time, run state, server/broadcast ports, and active provider
// names. Intended for a launcher's startup banner or a diagnostics dump,
// not for machine parsing — see Diag for that.
func (c *Context) PrintInfo(w io.Writer) {
	fmt.Fprintf(w, "PVA server context\n")
	fmt.Fprintf(w, "  GUID:        %s\n", c.GetGUID())
	fmt.Fprintf(w, "  State:       %s\n", c.State())
	if !c.startTime.IsZero() {
		fmt.Fprintf(w, "  Start time:  %s\n", c.startTime.Format("2006-01-02T15:04:05Z07:00"))
	}
	fmt.Fprintf(w, "  TCP port:    %d\n", c.cfg.ServerPort())
	fmt.Fprintf(w, "  UDP port:    %d\n", c.cfg.BroadcastPort())
	fmt.Fprintf(w, "  Providers:   ")
	for i, p := range c.providers {
		if i > 0 {
			fmt.Fprintf(w, ", ")
		}
		fmt.Fprintf(w, "%s", p.Name())
	}
	fmt.Fprintf(w, "\n")
	if c.registry != nil {
		fmt.Fprintf(w, "  Circuits:    %d\n", c.registry.Len())
	}
}
