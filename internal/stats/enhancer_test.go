package stats

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sentrastack/sentra-diag/internal/models"
)

func finding(id, component, category, message string, severity models.Severity, confidence float64) models.Finding {
	return models.Finding{
		ID:           id,
		Component:    component,
		Category:     category,
		Severity:     severity,
		RuleSeverity: severity,
		Message:      message,
		Confidence:   confidence,
	}
}

func TestClassifyEscalatesOnly(t *testing.T) {
	model := DefaultModel()

	escalated := model.Classify(finding("f1", "driver", "driver_error", "Protection driver failed to load", models.SeverityError, 0.95))
	if escalated != models.SeverityCritical {
		t.Fatalf("expected escalation to critical, got %s", escalated)
	}

	// The rule severity is a floor; a lower escalation target must not demote.
	kept := model.Classify(finding("f2", "updater", "certificate_error", "certificate trouble", models.SeverityCritical, 0.9))
	if kept != models.SeverityCritical {
		t.Fatalf("expected severity floor preserved, got %s", kept)
	}
}

func TestClassifySkipsLowConfidence(t *testing.T) {
	model := DefaultModel()
	got := model.Classify(finding("f1", "svc", "service_crash", "service crashed hard", models.SeverityWarning, 0.3))
	if got != models.SeverityWarning {
		t.Fatalf("expected low-confidence finding untouched, got %s", got)
	}
}

func TestEnhanceDoesNotMutateInput(t *testing.T) {
	enhancer := NewEnhancer("", 0.05, 4, nil)
	findings := []models.Finding{
		finding("f1", "driver", "driver_error", "driver failed to load", models.SeverityError, 0.95),
	}

	adjusted, _, _ := enhancer.Enhance(findings, nil)
	if findings[0].Severity != models.SeverityError {
		t.Fatalf("input findings were mutated")
	}
	if adjusted[0].Severity != models.SeverityCritical {
		t.Fatalf("expected adjusted copy escalated, got %s", adjusted[0].Severity)
	}
	if adjusted[0].RuleSeverity != models.SeverityError {
		t.Fatalf("expected original rule severity preserved, got %s", adjusted[0].RuleSeverity)
	}
}

func TestEnhanceHealthBounds(t *testing.T) {
	enhancer := NewEnhancer("", 0.05, 4, nil)
	findings := make([]models.Finding, 0, 10)
	for i := 0; i < 10; i++ {
		findings = append(findings, finding("f", "driver", "driver_error", "driver failed to load", models.SeverityCritical, 0.95))
	}
	records := []models.Record{
		{Component: "driver", Level: "critical"},
		{Component: "scanner", Level: "info"},
	}

	_, health, _ := enhancer.Enhance(findings, records)
	if health["driver"].Score != 0 {
		t.Fatalf("expected score clamped at 0, got %f", health["driver"].Score)
	}
	if health["scanner"].Score != 100 {
		t.Fatalf("expected healthy component at 100, got %f", health["scanner"].Score)
	}
}

func TestEnhanceScoresEveryObservedComponent(t *testing.T) {
	enhancer := NewEnhancer("", 0.05, 4, nil)
	records := []models.Record{
		{Component: "updater", Level: "info"},
		{Component: "", Level: "info"},
	}

	_, health, _ := enhancer.Enhance(nil, records)
	if _, ok := health["updater"]; !ok {
		t.Fatalf("expected score for updater")
	}
	if _, ok := health["agent"]; !ok {
		t.Fatalf("expected blank components folded into agent")
	}
}

func TestEnhancerDegradedModelPath(t *testing.T) {
	enhancer := NewEnhancer(filepath.Join(t.TempDir(), "missing.yaml"), 0.05, 4, nil)
	if !enhancer.Degraded() {
		t.Fatalf("expected enhancer degraded for missing model file")
	}

	findings := []models.Finding{
		finding("f1", "driver", "driver_error", "driver failed to load", models.SeverityError, 0.95),
	}
	adjusted, health, report := enhancer.Enhance(findings, []models.Record{{Component: "driver", Level: "error"}})
	if !report.Degraded {
		t.Fatalf("expected anomaly report marked degraded")
	}
	if adjusted[0].Severity != models.SeverityError {
		t.Fatalf("expected no escalation without models, got %s", adjusted[0].Severity)
	}
	if len(report.Anomalies) != 0 {
		t.Fatalf("expected anomaly pass skipped when degraded")
	}
	// Deterministic health scoring still runs.
	if health["driver"].Score >= 100 {
		t.Fatalf("expected deterministic scoring to apply, got %f", health["driver"].Score)
	}
}

func TestDetectSuppressesShortBundles(t *testing.T) {
	detector := NewDetector(0.05, 4)
	features := []FeatureVector{
		{Component: "a", EventCount: 10},
		{Component: "b", EventCount: 500, ErrorCount: 400},
	}
	if anomalies := detector.Detect(features); anomalies != nil {
		t.Fatalf("expected suppression below min samples, got %+v", anomalies)
	}
}

func TestDetectFlagsOutlier(t *testing.T) {
	detector := NewDetector(0.05, 4)
	features := make([]FeatureVector, 0, 10)
	for i := 0; i < 9; i++ {
		features = append(features, FeatureVector{
			Component:  string(rune('a' + i)),
			EventCount: 10,
		})
	}
	features = append(features, FeatureVector{
		Component:  "noisy",
		EventCount: 10,
		ErrorCount: 9,
		ErrorRatio: 0.9,
	})

	anomalies := detector.Detect(features)
	if len(anomalies) != 1 {
		t.Fatalf("expected one anomaly within contamination budget, got %d", len(anomalies))
	}
	if anomalies[0].Component != "noisy" {
		t.Fatalf("expected the outlier flagged, got %s", anomalies[0].Component)
	}
	if anomalies[0].Score < 2 {
		t.Fatalf("expected z-score >= 2, got %f", anomalies[0].Score)
	}
}

func TestBuildFeatures(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	records := []models.Record{
		{Component: "updater", Level: "error", Timestamp: base},
		{Component: "updater", Level: "info", Timestamp: base.Add(2 * time.Minute)},
		{Component: "scanner", Level: "info", Timestamp: base},
	}

	features := BuildFeatures(records)
	if len(features) != 2 {
		t.Fatalf("expected 2 feature vectors, got %d", len(features))
	}
	// Sorted by component name.
	if features[0].Component != "scanner" || features[1].Component != "updater" {
		t.Fatalf("expected deterministic component order, got %+v", features)
	}
	updater := features[1]
	if updater.EventCount != 2 || updater.ErrorCount != 1 || updater.ErrorRatio != 0.5 {
		t.Fatalf("unexpected updater features: %+v", updater)
	}
	if updater.EventsPerMinute != 1 {
		t.Fatalf("expected 1 event per minute over a 2 minute span, got %f", updater.EventsPerMinute)
	}
	if updater.MeanGapSeconds != 120 {
		t.Fatalf("expected mean gap 120s, got %f", updater.MeanGapSeconds)
	}
}

func TestLoadModelFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "severity.yaml")
	content := []byte(`
escalations:
  - keyword: quarantine
    to: critical
    weight: 0.8
severity_weights:
  warning: 3
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}

	model, err := LoadModel(path)
	if err != nil {
		t.Fatalf("load model: %v", err)
	}
	got := model.Classify(finding("f1", "scanner", "quarantine_error", "quarantine denied", models.SeverityWarning, 0.9))
	if got != models.SeverityCritical {
		t.Fatalf("expected file escalation applied, got %s", got)
	}
	if model.AnomalyPenalty != 10 {
		t.Fatalf("expected default anomaly penalty filled, got %f", model.AnomalyPenalty)
	}
}
