// Package metrics exposes pbrsync counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maksimkurb/pbrsync/src/internal/rule"
)

// Registry owns the collectors. All Observe methods are safe on a nil
// *Registry so components can run without metrics.
type Registry struct {
	reg *prometheus.Registry

	southbound    *prometheus.CounterVec
	notifications *prometheus.CounterVec
	encodeErrors  *prometheus.CounterVec
	roundTrip     *prometheus.HistogramVec
	apiRequests   *prometheus.CounterVec
}

// NewRegistry creates a registry with the pbrsync collectors and the
// standard Go runtime collectors.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		southbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pbrsync",
			Name:      "southbound_status_total",
			Help:      "Outcomes of rule install and uninstall attempts.",
		}, []string{"netns", "status"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pbrsync",
			Name:      "kernel_notifications_total",
			Help:      "Kernel rule notifications by reconciler verdict.",
		}, []string{"netns", "verdict"}),
		encodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pbrsync",
			Name:      "encode_errors_total",
			Help:      "Rule requests that could not be encoded.",
		}, []string{"netns"}),
		roundTrip: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pbrsync",
			Name:      "kernel_round_trip_seconds",
			Help:      "Time from sending a rule request to its acknowledgment.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"netns", "op"}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pbrsync",
			Name:      "api_requests_total",
			Help:      "Rule API requests by route pattern and response code.",
		}, []string{"route", "code"}),
	}

	r.reg.MustRegister(
		r.southbound,
		r.notifications,
		r.encodeErrors,
		r.roundTrip,
		r.apiRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) ObserveStatus(netns string, s rule.Status) {
	if r == nil {
		return
	}
	r.southbound.WithLabelValues(netns, s.String()).Inc()
}

func (r *Registry) ObserveNotification(netns, verdict string) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(netns, verdict).Inc()
}

func (r *Registry) ObserveEncodeError(netns string) {
	if r == nil {
		return
	}
	r.encodeErrors.WithLabelValues(netns).Inc()
}

func (r *Registry) ObserveRoundTrip(netns, op string, d time.Duration) {
	if r == nil {
		return
	}
	r.roundTrip.WithLabelValues(netns, op).Observe(d.Seconds())
}

// ObserveAPIRequest counts a served API request. route is the chi route
// pattern so per-map and per-interface paths share one series.
func (r *Registry) ObserveAPIRequest(route string, code int) {
	if r == nil {
		return
	}
	r.apiRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
