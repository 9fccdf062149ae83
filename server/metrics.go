package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultMetricsListen matches the convention of binding a dedicated,
// loopback-only port for the metrics endpoint rather than sharing the
// diagnostics HTTP surface.
const DefaultMetricsListen = "127.0.0.1:9234"

// BeaconStatusSupplier is the interface for an opaque status payload to
// attach to an outgoing beacon (§4.6's "optional status payload
// supplier"). The built-in beacon encoder (Context.encodeBeacon) does not
// call it, so no status bytes are attached. A BeaconServerStatusProvider
// implements it: it reports beacon counts as Prometheus metrics and
// returns no payload bytes.
type BeaconStatusSupplier interface {
	BeaconStatus() []byte
}

// BeaconServerStatusProvider tracks beacon emission as Prometheus metrics
// and optionally serves them over HTTP. It is the server context's
// "beacon-status provider" collaborator.
type BeaconServerStatusProvider struct {
	Listen string

	registry     *prometheus.Registry
	beaconsTotal prometheus.Counter
	lastSeq      prometheus.Gauge

	srv *http.Server
}

// NewBeaconServerStatusProvider builds a provider with its own Prometheus
// registry, so multiple server instances in the same process (as in tests)
// never collide over MustRegister's default global registry.
func NewBeaconServerStatusProvider() *BeaconServerStatusProvider {
	p := &BeaconServerStatusProvider{
		Listen:   DefaultMetricsListen,
		registry: prometheus.NewRegistry(),
		beaconsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pva_beacons_sent_total",
			Help: "Total number of beacon datagrams sent by this server.",
		}),
		lastSeq: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pva_beacon_last_sequence",
			Help: "Sequence number of the most recently sent beacon.",
		}),
	}
	p.registry.MustRegister(p.beaconsTotal, p.lastSeq)
	return p
}

// RecordBeacon counts one beacon and records its sequence number. Context
// calls it from its beacon encoder, once per beacon, before the payload is
// sent to the destinations.
func (p *BeaconServerStatusProvider) RecordBeacon(seq uint32) {
	p.beaconsTotal.Inc()
	p.lastSeq.Set(float64(seq))
}

// BeaconStatus implements BeaconStatusSupplier. This provider attaches no
// payload bytes — it reports through Prometheus instead.
func (p *BeaconServerStatusProvider) BeaconStatus() []byte { return nil }

// Start serves /metrics on Listen until Stop is called.
func (p *BeaconServerStatusProvider) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
	p.srv = &http.Server{Addr: p.Listen, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- p.srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server: metrics listener: %w", err)
		}
	default:
	}
	return nil
}

// Stop shuts the metrics HTTP server down, if it was started.
func (p *BeaconServerStatusProvider) Stop() error {
	if p.srv == nil {
		return nil
	}
	return p.srv.Shutdown(context.Background())
}
