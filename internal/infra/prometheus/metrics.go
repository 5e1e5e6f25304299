package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "powershare"

// Metrics groups the share service collectors. A nil *Metrics is a no-op.
type Metrics struct {
	sharesRecorded *prometheus.CounterVec
	shareFailures  *prometheus.CounterVec
	visitsRecorded *prometheus.CounterVec
	rateLimited    prometheus.Counter
	statsLookups   *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg; pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		sharesRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shares_recorded_total",
			Help:      "Share events stored, by service.",
		}, []string{"service"}),
		shareFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "share_requests_rejected_total",
			Help:      "Share requests that were not counted, by reason.",
		}, []string{"reason"}),
		visitsRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visits_recorded_total",
			Help:      "Tracked visits appended to item visit logs, by service.",
		}, []string{"service"}),
		rateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "share_rate_limited_total",
			Help:      "Share requests rejected by the hourly limiter.",
		}),
		statsLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stats_cache_lookups_total",
			Help:      "Aggregate cache lookups, by scope and result.",
		}, []string{"scope", "result"}),
	}
}

func (m *Metrics) ShareRecorded(service string) {
	if m == nil {
		return
	}
	m.sharesRecorded.WithLabelValues(service).Inc()
}

func (m *Metrics) ShareRejected(reason string) {
	if m == nil {
		return
	}
	m.shareFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) VisitRecorded(service string) {
	if m == nil {
		return
	}
	m.visitsRecorded.WithLabelValues(service).Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// StatsLookup records a cache hit or miss for scope ("item" or "user").
func (m *Metrics) StatsLookup(scope string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.statsLookups.WithLabelValues(scope, result).Inc()
}
