package rpc

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "walletstore",
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "JSON-RPC calls, by method and result code.",
		}, []string{"method", "code"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "walletstore",
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "JSON-RPC handler latency.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 7),
		}, []string{"method"}),
	}
}

func (m *metrics) observe(method string, err error, took time.Duration) {
	code := 0
	if err != nil {
		code, _ = errorCode(err)
	}
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(method).Observe(took.Seconds())
}
