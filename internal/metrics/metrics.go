// Package metrics provides Prometheus metrics for the publish and preview paths.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels shared by the publish and discard counters.
const (
	OutcomeOK       = "ok"
	OutcomeInvalid  = "invalid"
	OutcomeNotFound = "not_found"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

type Metrics struct {
	PublishTotal  *prometheus.CounterVec
	DiscardTotal  *prometheus.CounterVec
	BatchDuration *prometheus.HistogramVec
	BatchSections *prometheus.CounterVec

	PreviewIssuedTotal   prometheus.Counter
	PreviewRedeemedTotal *prometheus.CounterVec
}

// New registers all metrics on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PublishTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_section_publish_total",
			Help: "Section publish attempts by outcome",
		}, []string{"outcome"}),
		DiscardTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_section_discard_total",
			Help: "Section discard attempts by outcome",
		}, []string{"outcome"}),
		BatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "folio_page_batch_duration_seconds",
			Help:    "Duration of page-wide publish/discard batches",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
		BatchSections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_page_batch_sections_total",
			Help: "Sections handled by page batches by result",
		}, []string{"operation", "result"}),
		PreviewIssuedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "folio_preview_tokens_issued_total",
			Help: "Preview tokens issued",
		}),
		PreviewRedeemedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_preview_token_redemptions_total",
			Help: "Preview token redemptions by result",
		}, []string{"result"}),
	}
}

// Nop returns metrics registered on a throwaway registry.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) RecordPublish(outcome string) {
	m.PublishTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordDiscard(outcome string) {
	m.DiscardTotal.WithLabelValues(outcome).Inc()
}

// RecordBatch records one page batch: its duration and per-result section counts.
func (m *Metrics) RecordBatch(operation string, duration time.Duration, succeeded, failed, skipped, notAttempted int) {
	m.BatchDuration.WithLabelValues(operation).Observe(duration.Seconds())
	m.BatchSections.WithLabelValues(operation, "succeeded").Add(float64(succeeded))
	m.BatchSections.WithLabelValues(operation, "failed").Add(float64(failed))
	m.BatchSections.WithLabelValues(operation, "skipped").Add(float64(skipped))
	m.BatchSections.WithLabelValues(operation, "not_attempted").Add(float64(notAttempted))
}

func (m *Metrics) RecordPreviewIssued() {
	m.PreviewIssuedTotal.Inc()
}

func (m *Metrics) RecordPreviewRedeemed(result string) {
	m.PreviewRedeemedTotal.WithLabelValues(result).Inc()
}
