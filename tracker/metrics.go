package tracker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the tracker.
type Metrics struct {
	Registry           *prometheus.Registry
	CyclesTotal        *prometheus.CounterVec
	RecordsExtracted   *prometheus.CounterVec
	SyncsTotal         *prometheus.CounterVec
	ActiveSessions     prometheus.Gauge
	ExtractionDuration prometheus.Histogram
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	cycles := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_cycles_total",
			Help: "Total extraction cycles by outcome.",
		},
		[]string{"outcome"},
	)
	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_records_extracted_total",
			Help: "Total product records extracted by strategy.",
		},
		[]string{"strategy"},
	)
	syncs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_sheet_syncs_total",
			Help: "Total spreadsheet sync attempts by outcome.",
		},
		[]string{"outcome"},
	)
	active := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracker_active_sessions",
			Help: "Number of sessions currently being tracked.",
		},
	)
	extraction := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tracker_extraction_duration_seconds",
			Help:    "Duration of one extraction pass.",
			Buckets: prometheus.DefBuckets,
		},
	)

	registry.MustRegister(cycles, records, syncs, active, extraction)

	return &Metrics{
		Registry:           registry,
		CyclesTotal:        cycles,
		RecordsExtracted:   records,
		SyncsTotal:         syncs,
		ActiveSessions:     active,
		ExtractionDuration: extraction,
	}
}

// IncCycle increments the cycle counter for an outcome label.
func (m *Metrics) IncCycle(outcome string) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(outcome).Inc()
}

// AddRecords counts extracted records against their strategy.
func (m *Metrics) AddRecords(strategy string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsExtracted.WithLabelValues(strategy).Add(float64(n))
}

// IncSync increments the sync counter for an outcome label.
func (m *Metrics) IncSync(outcome string) {
	if m == nil {
		return
	}
	m.SyncsTotal.WithLabelValues(outcome).Inc()
}

// SetActive records the current number of tracked sessions.
func (m *Metrics) SetActive(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

// ObserveExtraction records the duration of one extraction pass.
func (m *Metrics) ObserveExtraction(d time.Duration) {
	if m == nil {
		return
	}
	m.ExtractionDuration.Observe(d.Seconds())
}
