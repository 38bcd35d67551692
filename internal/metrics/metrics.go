package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Version can be overridden at build time via -ldflags.
var Version = "dev"

// Registry holds the daemon's collectors. A fresh one per server keeps tests
// independent of each other.
type Registry struct {
	reg             *prometheus.Registry
	decisions       *prometheus.CounterVec
	execs           *prometheus.CounterVec
	sessionsCreated prometheus.Counter
	sessionsPruned  prometheus.Counter
	catalogRequests *prometheus.CounterVec
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ogkb_gateway_decisions_total",
			Help: "Shutdown gateway decisions by outcome (allow or denial reason).",
		}, []string{"outcome"}),
		execs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ogkb_gateway_exec_total",
			Help: "Power-off command executions by result.",
		}, []string{"result"}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ogkb_sessions_created_total",
			Help: "Sessions minted by the token issuance page.",
		}),
		sessionsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ogkb_sessions_pruned_total",
			Help: "Expired sessions removed by the periodic sweep.",
		}),
		catalogRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ogkb_catalog_requests_total",
			Help: "Catalog listing and media requests by library.",
		}, []string{"library"}),
	}
	buildInfo := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "ogkb_build_info",
		Help:        "Build info of the daemon.",
		ConstLabels: prometheus.Labels{"version": Version},
	})
	buildInfo.Set(1)
	r.reg.MustRegister(r.decisions, r.execs, r.sessionsCreated, r.sessionsPruned, r.catalogRequests, buildInfo,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return r
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Decision counts one gateway verdict. An empty outcome means allowed.
func (r *Registry) Decision(outcome string) {
	if outcome == "" {
		outcome = "allow"
	}
	r.decisions.WithLabelValues(outcome).Inc()
}

func (r *Registry) Exec(result string) { r.execs.WithLabelValues(result).Inc() }

func (r *Registry) SessionCreated() { r.sessionsCreated.Inc() }

func (r *Registry) SessionsPruned(n int) { r.sessionsPruned.Add(float64(n)) }

func (r *Registry) Catalog(library string) { r.catalogRequests.WithLabelValues(library).Inc() }

// Gatherer exposes the registry to tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
