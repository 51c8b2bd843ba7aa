package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gooutlier"

// Stage labels for verdict counters
const (
	StageStreaming = "streaming"
	StageBatch     = "batch"
)

// Metrics holds the detector pipeline collectors
type Metrics struct {
	PointsTotal      *prometheus.CounterVec
	VerdictsTotal    *prometheus.CounterVec
	PublishedTotal   *prometheus.CounterVec
	ContextRetries   prometheus.Counter
	ContextGiveUps   prometheus.Counter
	AnalyzeDuration  *prometheus.HistogramVec
	ContextSize      prometheus.Histogram
	ProcessingErrors *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		PointsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "points_total",
				Help:      "Total number of data points ingested",
			},
			[]string{"source"},
		),
		VerdictsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verdicts_total",
				Help:      "Classifier verdicts by stage and severity",
			},
			[]string{"stage", "severity"},
		),
		PublishedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outliers_published_total",
				Help:      "Confirmed outliers handed to the sink",
			},
			[]string{"severity"},
		),
		ContextRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "context_retries_total",
				Help:      "Context retrievals retried because too few points were returned",
			},
		),
		ContextGiveUps: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "context_exhausted_total",
				Help:      "Candidates confirmed with an undersized context after all retries",
			},
		),
		AnalyzeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "analyze_duration_seconds",
				Help:      "Classifier analyze latency in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"stage"},
		),
		ContextSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "context_points",
				Help:      "Number of points backing a batch confirmation",
				Buckets:   prometheus.ExponentialBuckets(8, 2, 10),
			},
		),
		ProcessingErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "processing_errors_total",
				Help:      "Pipeline errors by operation",
			},
			[]string{"operation"},
		),
	}
}

// ObserveAnalyze records a classifier call that started at start
func (m *Metrics) ObserveAnalyze(stage string, start time.Time) {
	m.AnalyzeDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// RecordVerdict counts one classifier verdict
func (m *Metrics) RecordVerdict(stage, severity string) {
	m.VerdictsTotal.WithLabelValues(stage, severity).Inc()
}
