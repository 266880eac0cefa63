package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the process's Prometheus collectors for the engine,
// orchestrator, and trigger scheduler. One Registry is created per process
// in common/bootstrap and threaded into whichever of those components the
// process hosts; a CLI run (cmd/runner) never builds one.
type Registry struct {
	reg *prometheus.Registry

	SuperstepsTotal   *prometheus.CounterVec
	ClaimDuration     prometheus.Histogram
	RunStatusTotal    *prometheus.CounterVec
	TriggerFiresTotal *prometheus.CounterVec
}

// NewRegistry builds a fresh collector set registered against its own
// prometheus.Registry (not the global default, so multiple Components in
// the same test binary don't collide on re-registration).
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		SuperstepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wirl_supersteps_total",
			Help: "Supersteps executed by the engine, labeled by the step's outcome (progress, suspended, canceled, failed).",
		}, []string{"status"}),
		ClaimDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "wirl_run_claim_duration_seconds",
			Help:    "Wall-clock time a claimed run spent executing before reaching a terminal or suspended state.",
			Buckets: prometheus.DefBuckets,
		}),
		RunStatusTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wirl_run_status_total",
			Help: "Run lifecycle transitions observed by workers, labeled by terminal status.",
		}, []string{"status"}),
		TriggerFiresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wirl_trigger_fires_total",
			Help: "Trigger firings enqueued by the scheduler, labeled by trigger name.",
		}, []string{"trigger"}),
	}
}

// Handler exposes the registry in the Prometheus text exposition format,
// mounted by common/telemetry on the configured metrics port.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
