package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// DefaultDiagListen binds the diagnostics surface to loopback only; it is
// meant for local operator inspection, not a public API.
const DefaultDiagListen = "127.0.0.1:9235"

// Diag is an optional read-only HTTP surface over a Context's state: GUID,
// start time, run state, provider names, and live circuit count. It never
// mutates the server it reports on.
type Diag struct {
	Listen string

	ctx *Context
	srv *http.Server
}

// NewDiag builds a Diag reporting on ctx.
func NewDiag(ctx *Context) *Diag {
	return &Diag{Listen: DefaultDiagListen, ctx: ctx}
}

func (d *Diag) handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.GET("/status", func(c *gin.Context) {
		var circuitCount int
		var circuitIDs []string
		if d.ctx.registry != nil {
			for _, circuit := range d.ctx.registry.Snapshot() {
				circuitCount++
				if tc, ok := circuit.(*tcpCircuit); ok {
					circuitIDs = append(circuitIDs, tc.ID().String())
				}
			}
		}
		var providerNames []string
		for _, p := range d.ctx.providers {
			providerNames = append(providerNames, p.Name())
		}
		c.JSON(http.StatusOK, gin.H{
			"guid":       d.ctx.GetGUID().String(),
			"state":      d.ctx.State().String(),
			"startTime":  d.ctx.GetStartTime().Format(time.RFC3339),
			"providers":  providerNames,
			"circuits":   circuitCount,
			"circuitIds": circuitIDs,
			"serverPort": d.ctx.cfg.ServerPort(),
		})
	})
	return r
}

// Start serves the diagnostics surface on Listen until Stop is called.
func (d *Diag) Start() error {
	d.srv = &http.Server{Addr: d.Listen, Handler: d.handler()}
	errCh := make(chan error, 1)
	go func() { errCh <- d.srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	default:
	}
	return nil
}

// Stop shuts the diagnostics HTTP server down.
func (d *Diag) Stop() error {
	if d.srv == nil {
		return nil
	}
	return d.srv.Shutdown(context.Background())
}
