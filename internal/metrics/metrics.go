package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels analyses that produced a report.
	OutcomeSuccess = "success"
	// OutcomeError labels analyses that failed terminally.
	OutcomeError = "error"
)

var (
	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentra_diag",
			Name:      "analyses_total",
			Help:      "Total number of analyses handled, partitioned by outcome and degradation level.",
		},
		[]string{"outcome", "degradation"},
	)

	analysisDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sentra_diag",
			Name:      "analysis_seconds",
			Help:      "End-to-end analysis latency in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60, 120},
		},
	)

	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sentra_diag",
			Name:      "stage_seconds",
			Help:      "Per-stage pipeline latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentra_diag",
			Name:      "http_requests_total",
			Help:      "HTTP requests served, partitioned by route and status code.",
		},
		[]string{"route", "code"},
	)
)

// Register attaches sentra-diag collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		analysesTotal,
		analysisDurationSeconds,
		stageDurationSeconds,
		httpRequestsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAnalysis records one finished analysis with its outcome and
// degradation label.
func ObserveAnalysis(duration time.Duration, outcome, degradation string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	if degradation == "" {
		degradation = "none"
	}
	analysesTotal.WithLabelValues(label, degradation).Inc()
	if duration < 0 {
		duration = 0
	}
	analysisDurationSeconds.Observe(duration.Seconds())
}

// ObserveStage records a pipeline stage duration.
func ObserveStage(stage string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	stageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveHTTPRequest counts one served request.
func ObserveHTTPRequest(route, code string) {
	httpRequestsTotal.WithLabelValues(route, code).Inc()
}
