package query

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts network activity of a SharedContext.
type Metrics struct {
	Requests     *prometheus.CounterVec
	Failures     *prometheus.CounterVec
	Deduplicated prometheus.Counter
	Inflight     prometheus.Gauge
}

// NewMetrics registers the query metrics with reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "walletstore",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Network requests issued, by host.",
		}, []string{"host"}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "walletstore",
			Subsystem: "query",
			Name:      "failures_total",
			Help:      "Failed network requests, by host and error kind.",
		}, []string{"host", "kind"}),
		Deduplicated: f.NewCounter(prometheus.CounterOpts{
			Namespace: "walletstore",
			Subsystem: "query",
			Name:      "dedup_total",
			Help:      "Fetches that joined an in-flight request.",
		}),
		Inflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "walletstore",
			Subsystem: "query",
			Name:      "inflight",
			Help:      "Requests currently in flight.",
		}),
	}
}
