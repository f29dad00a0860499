package stats

import (
	"log/slog"
	"sort"

	"github.com/sentrastack/sentra-diag/internal/models"
)

// Enhancer runs the three scoring passes (anomaly detection, severity
// classification, health scoring) over matcher output. If the model failed
// to load, the deterministic health formula still runs and the report is
// marked degraded.
type Enhancer struct {
	model    *Model
	detector *Detector
	logger   *slog.Logger
	degraded bool
}

// NewEnhancer constructs an Enhancer. Model load failure does not fail
// construction; it switches the enhancer into its deterministic fallback.
func NewEnhancer(modelPath string, contamination float64, minSamples int, logger *slog.Logger) *Enhancer {
	if logger == nil {
		logger = slog.Default()
	}
	enhancer := &Enhancer{
		detector: NewDetector(contamination, minSamples),
		logger:   logger,
	}
	model, err := LoadModel(modelPath)
	if err != nil {
		logger.Warn("statistical model unavailable, using deterministic scoring only", slog.Any("error", err))
		enhancer.model = DefaultModel() // weights only; escalation and anomaly passes are skipped
		enhancer.degraded = true
		return enhancer
	}
	enhancer.model = model
	return enhancer
}

// Degraded reports whether the enhancer is running without its models.
func (e *Enhancer) Degraded() bool { return e.degraded }

// Enhance produces severity-adjusted findings, per-component health scores,
// and the anomaly report. The input findings are never mutated.
func (e *Enhancer) Enhance(findings []models.Finding, records []models.Record) ([]models.Finding, map[string]models.ComponentHealth, models.AnomalyReport) {
	report := models.AnomalyReport{
		Contamination: e.detector.Contamination,
		Degraded:      e.degraded,
	}

	adjusted := make([]models.Finding, len(findings))
	copy(adjusted, findings)
	if !e.degraded {
		for i := range adjusted {
			adjusted[i].Severity = e.model.Classify(adjusted[i])
		}
	}

	if !e.degraded {
		report.Anomalies = e.detector.Detect(BuildFeatures(records))
	}

	health := e.scoreHealth(adjusted, records, report.Anomalies)
	return adjusted, health, report
}

// scoreHealth applies the weighted-sum formula per component:
// 100 - sum(severity_weight * finding_count) - anomaly_penalty, clamped.
func (e *Enhancer) scoreHealth(findings []models.Finding, records []models.Record, anomalies []models.Anomaly) map[string]models.ComponentHealth {
	health := make(map[string]models.ComponentHealth)

	ensure := func(component string) models.ComponentHealth {
		if existing, ok := health[component]; ok {
			return existing
		}
		return models.ComponentHealth{Component: component, Score: 100}
	}

	// Every observed component gets a score, including healthy ones.
	for _, record := range records {
		component := record.Component
		if component == "" {
			component = "agent"
		}
		health[component] = ensure(component)
	}

	for _, finding := range findings {
		entry := ensure(finding.Component)
		entry.Score -= e.model.SeverityWeight[finding.Severity]
		entry.ContributingFindings = append(entry.ContributingFindings, finding.ID)
		health[finding.Component] = entry
	}

	for _, anomaly := range anomalies {
		entry := ensure(anomaly.Component)
		entry.Score -= e.model.AnomalyPenalty
		entry.AnomalyFlags = append(entry.AnomalyFlags, anomaly.Feature)
		health[anomaly.Component] = entry
	}

	for component, entry := range health {
		if entry.Score < 0 {
			entry.Score = 0
		}
		if entry.Score > 100 {
			entry.Score = 100
		}
		sort.Strings(entry.ContributingFindings)
		sort.Strings(entry.AnomalyFlags)
		health[component] = entry
	}
	return health
}
