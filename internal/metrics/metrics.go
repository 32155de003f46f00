// Package metrics exposes the gateway's Prometheus metrics. It replaces
// the teacher's hand-rolled text-format registry with client_golang,
// grounded on the collector shape used by pokt-network-redirect-service
// (request counters labelled by port/rule type/status, a latency
// histogram, and a promhttp handler for scraping).
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector the dispatcher touches,
// plus the Prometheus registry they are bound to. Each Registry owns its
// own prometheus.Registry rather than the global DefaultRegisterer, so a
// process (or test binary) can construct more than one without colliding
// on metric names.
type Registry struct {
	reg *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	activeUpstreams *prometheus.GaugeVec
	configReloads   prometheus.Counter
}

func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Registry{
		reg: reg,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_requests_total",
			Help: "Total number of requests handled by the dispatcher.",
		}, []string{"port", "rule_type", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "proxy_request_duration_seconds",
			Help:    "Time from request resolution to last byte written to the client.",
			Buckets: prometheus.DefBuckets,
		}, []string{"port", "rule_type"}),
		activeUpstreams: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "proxy_active_upstream_requests",
			Help: "In-flight requests currently proxied to an upstream.",
		}, []string{"port"}),
		configReloads: factory.NewCounter(prometheus.CounterOpts{
			Name: "proxy_config_reloads_total",
			Help: "Total number of times the routing table was reloaded.",
		}),
	}
}

func (r *Registry) ObserveRequest(port int, ruleType string, status int, d time.Duration) {
	p := strconv.Itoa(port)
	r.requestsTotal.WithLabelValues(p, ruleType, strconv.Itoa(status)).Inc()
	r.requestDuration.WithLabelValues(p, ruleType).Observe(d.Seconds())
}

func (r *Registry) IncActiveUpstream(port int) {
	r.activeUpstreams.WithLabelValues(strconv.Itoa(port)).Inc()
}

func (r *Registry) DecActiveUpstream(port int) {
	r.activeUpstreams.WithLabelValues(strconv.Itoa(port)).Dec()
}

func (r *Registry) IncConfigReload() {
	r.configReloads.Inc()
}

// Handler returns the scrape endpoint for this Registry's collectors.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
