package service

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "energy_share"

// Metrics holds the service's Prometheus collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	purchases      *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	cacheRefreshes *prometheus.CounterVec
	kdfDuration    prometheus.Histogram
	watchers       prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		purchases: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "purchase",
				Name:      "requests_total",
				Help:      "Purchase submissions by outcome.",
			},
			[]string{"outcome"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "purchase",
				Name:      "intent_transitions_total",
				Help:      "Purchase intent status changes by target status.",
			},
			[]string{"status"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Cache reads by entity and result (fresh, stale, miss, forced).",
			},
			[]string{"entity", "result"},
		),
		cacheRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "cache",
				Name:      "refreshes_total",
				Help:      "Ledger refreshes by entity and result.",
			},
			[]string{"entity", "result"},
		),
		kdfDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "vault",
				Name:      "kdf_duration_seconds",
				Help:      "Duration of password key derivations.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
			},
		),
		watchers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "purchase",
				Name:      "active_watchers",
				Help:      "Confirmation watchers currently running.",
			},
		),
	}
	m.Registry.MustRegister(
		m.purchases,
		m.transitions,
		m.cacheLookups,
		m.cacheRefreshes,
		m.kdfDuration,
		m.watchers,
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveKDF is handed to the vault.
func (m *Metrics) ObserveKDF(d time.Duration) {
	if m == nil {
		return
	}
	m.kdfDuration.Observe(d.Seconds())
}

func (m *Metrics) purchase(outcome string) {
	if m == nil {
		return
	}
	m.purchases.WithLabelValues(outcome).Inc()
}

func (m *Metrics) transition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) lookup(entity, result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(entity, result).Inc()
}

func (m *Metrics) refresh(entity string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.cacheRefreshes.WithLabelValues(entity, result).Inc()
}

func (m *Metrics) watcherDelta(d float64) {
	if m == nil {
		return
	}
	m.watchers.Add(d)
}
