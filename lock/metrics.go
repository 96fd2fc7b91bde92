package lock

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks lock table activity. A nil *Metrics records nothing.
type Metrics struct {
	// AcquisitionsTotal counts lock requests by scope and outcome
	AcquisitionsTotal *prometheus.CounterVec

	// ReleasesTotal counts removed locks by reason
	ReleasesTotal *prometheus.CounterVec

	// LocksActive tracks the number of locks currently held
	LocksActive prometheus.Gauge
}

// NewMetrics creates the lock metrics and registers them when reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AcquisitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remotedav_lock_acquisitions_total",
				Help: "Total lock requests by scope and outcome",
			},
			[]string{"scope", "outcome"}, // "granted", "conflict"
		),
		ReleasesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remotedav_lock_releases_total",
				Help: "Total removed locks by reason",
			},
			[]string{"reason"}, // "unlock", "expired", "purged"
		),
		LocksActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "remotedav_locks_active",
				Help: "Current number of active locks",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.AcquisitionsTotal,
			m.ReleasesTotal,
			m.LocksActive,
		)
	}

	return m
}

func (m *Metrics) recordAcquisition(scope Scope, outcome string) {
	if m == nil {
		return
	}

	m.AcquisitionsTotal.WithLabelValues(string(scope), outcome).Inc()

	if outcome == "granted" {
		m.LocksActive.Inc()
	}
}

func (m *Metrics) recordRelease(reason string, count int) {
	if m == nil || count == 0 {
		return
	}

	m.ReleasesTotal.WithLabelValues(reason).Add(float64(count))
	m.LocksActive.Sub(float64(count))
}

func (m *Metrics) setActive(count int) {
	if m == nil {
		return
	}

	m.LocksActive.Set(float64(count))
}
