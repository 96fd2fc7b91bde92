package handler

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks served requests. A nil *Metrics records nothing.
type Metrics struct {
	// RequestsTotal counts requests by method and status
	RequestsTotal *prometheus.CounterVec

	// RequestDuration observes the request latencies by method
	RequestDuration *prometheus.HistogramVec

	// InFlight tracks the requests being served
	InFlight prometheus.Gauge
}

// NewMetrics creates the request metrics and registers them when reg is not
// nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remotedav_requests_total",
				Help: "Total WebDAV requests by method and status",
			},
			[]string{"method", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "remotedav_request_duration_seconds",
				Help:    "WebDAV request latencies by method",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		InFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "remotedav_requests_in_flight",
				Help: "Current number of WebDAV requests being served",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.RequestsTotal,
			m.RequestDuration,
			m.InFlight,
		)
	}

	return m
}

func (m *Metrics) start() func(method string, status int) {
	if m == nil {
		return func(string, int) {}
	}

	m.InFlight.Inc()
	start := time.Now()

	return func(method string, status int) {
		m.InFlight.Dec()
		m.RequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}
}
