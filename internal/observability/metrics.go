package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, gauges, and histograms for the
// forecasting and alerting engine.
type Metrics struct {
	ReadingsIngested prometheus.Counter
	ReadingsRejected prometheus.Counter

	ForecastsGenerated prometheus.Counter
	ScoringErrors      prometheus.Counter

	AlertsCreated   *prometheus.CounterVec // labels: type, severity
	AlertsUpdated   prometheus.Counter
	AlertsExpired   prometheus.Counter
	ActiveAlerts    prometheus.Gauge
	NotifyFailures  prometheus.Counter
	StationCycleDur prometheus.Histogram

	TimelineCacheHits   prometheus.Counter
	TimelineCacheMisses prometheus.Counter
}

// NewMetrics creates and registers all engine metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates the metrics without registering them, so
// parallel tests do not trip duplicate-registration panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ReadingsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "readings_ingested_total",
			Help:      "Total readings accepted into station buffers.",
		}),
		ReadingsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "readings_rejected_total",
			Help:      "Total readings rejected by physical-range validation.",
		}),
		ForecastsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "forecasts_generated_total",
			Help:      "Total forecasts produced by the scorer.",
		}),
		ScoringErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "scoring_errors_total",
			Help:      "Station cycles skipped because the feature window was empty.",
		}),
		AlertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "alerts_created_total",
			Help:      "Alerts created, by type and severity.",
		}, []string{"type", "severity"}),
		AlertsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "alerts_updated_total",
			Help:      "Duplicate triggering events folded into an existing active alert.",
		}),
		AlertsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "alerts_expired_total",
			Help:      "Active alerts auto-resolved by the expiry sweep.",
		}),
		ActiveAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "floodwatch",
			Name:      "active_alerts",
			Help:      "Alerts currently in the active state.",
		}),
		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "notify_failures_total",
			Help:      "Alert notifications that could not be dispatched.",
		}),
		StationCycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "floodwatch",
			Name:      "station_cycle_duration_seconds",
			Help:      "Duration of one score-evaluate-apply cycle for a station.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}),
		TimelineCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "timeline_cache_hits_total",
			Help:      "Timeline requests served from the cache.",
		}),
		TimelineCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "timeline_cache_misses_total",
			Help:      "Timeline requests recomputed on a cache miss.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ReadingsIngested,
		m.ReadingsRejected,
		m.ForecastsGenerated,
		m.ScoringErrors,
		m.AlertsCreated,
		m.AlertsUpdated,
		m.AlertsExpired,
		m.ActiveAlerts,
		m.NotifyFailures,
		m.StationCycleDur,
		m.TimelineCacheHits,
		m.TimelineCacheMisses,
	}
}
