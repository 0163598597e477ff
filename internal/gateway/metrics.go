package gateway

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts backend calls and refresh outcomes. A nil *Metrics records
// nothing.
type Metrics struct {
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	refreshes *prometheus.CounterVec
	retries   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_backend_requests_total",
			Help: "Backend calls by method, route and status (0 = transport failure).",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketplace_backend_request_duration_seconds",
			Help:    "Backend call latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_token_refreshes_total",
			Help: "Access token refresh attempts by outcome.",
		}, []string{"outcome"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketplace_request_retries_total",
			Help: "Requests re-issued after a successful refresh.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration, m.refreshes, m.retries)
	}
	return m
}

func (m *Metrics) observe(method string, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	route := CanonicalRoute(path)
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) observeRefresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// CanonicalRoute collapses numeric path segments to {id} and drops the query
// so label cardinality stays bounded.
func CanonicalRoute(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}

	segments := strings.Split(path, "/")
	for i, segment := range segments {
		if segment == "" {
			continue
		}
		if _, err := strconv.ParseInt(segment, 10, 64); err == nil {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}
