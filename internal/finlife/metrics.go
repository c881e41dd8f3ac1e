package finlife

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts ingestion runs and the rows they touched.
type Metrics struct {
	runs    *prometheus.CounterVec
	records *prometheus.CounterVec
}

// NewMetrics registers ingestion collectors against registerer. A nil
// registerer yields unregistered collectors, which is what tests want.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "finboard_finlife_ingest_runs_total",
			Help: "Finlife ingestion runs by outcome.",
		}, []string{"outcome"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "finboard_finlife_ingest_records_total",
			Help: "Finlife records processed by kind (product, option, skipped).",
		}, []string{"kind"}),
	}
	if registerer != nil {
		registerer.MustRegister(m.runs, m.records)
	}
	return m
}

func (m *Metrics) observe(result IngestResult, err error) {
	if m == nil {
		return
	}
	switch {
	case err == nil:
		m.runs.WithLabelValues("success").Inc()
	case isUpstream(err):
		m.runs.WithLabelValues("upstream_error").Inc()
	default:
		m.runs.WithLabelValues("failure").Inc()
	}
	if err != nil {
		return
	}
	m.records.WithLabelValues("product").Add(float64(result.Products))
	m.records.WithLabelValues("option").Add(float64(result.Options))
	m.records.WithLabelValues("skipped").Add(float64(result.Skipped))
}
