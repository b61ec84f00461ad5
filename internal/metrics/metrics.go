// Package metrics exports Prometheus collectors for the extraction pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pagext"

// Outcome labels for ExtractionsTotal.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds the pipeline collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	ExtractionsTotal   *prometheus.CounterVec
	FallbacksTotal     *prometheus.CounterVec
	ExtractionDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers the collectors against reg. A nil reg selects a fresh
// registry that also carries the Go runtime and process collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(reg)

	return &Metrics{
		ExtractionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Total extraction requests by source label and outcome",
		}, []string{"type", "outcome"}),

		FallbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Total requests served through the reader fallback, by reason",
		}, []string{"reason"}),

		ExtractionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "End-to-end extraction time by source label",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		}, []string{"type"}),

		gatherer: reg,
	}
}

// RecordExtraction counts one finished request. pageType is empty when the
// request failed before a source label was known.
func (m *Metrics) RecordExtraction(pageType string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	if pageType == "" {
		pageType = "none"
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.ExtractionsTotal.WithLabelValues(pageType, outcome).Inc()
	m.ExtractionDuration.WithLabelValues(pageType).Observe(duration.Seconds())
}

// RecordFallback counts one switch to the reader fallback.
func (m *Metrics) RecordFallback(reason string) {
	if m == nil {
		return
	}
	m.FallbacksTotal.WithLabelValues(reason).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
