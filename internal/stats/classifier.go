package stats

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sentrastack/sentra-diag/internal/models"
)

// Model holds the trained severity-escalation weights. Rule severity is the
// floor; the classifier can raise a finding's severity, never lower it.
type Model struct {
	Escalations    []Escalation                `yaml:"escalations"`
	SeverityWeight map[models.Severity]float64 `yaml:"severity_weights"`
	AnomalyPenalty float64                     `yaml:"anomaly_penalty"`
	MinConfidence  float64                     `yaml:"min_confidence"`
}

// Escalation raises findings whose message or category matches the keyword.
type Escalation struct {
	Keyword string  `yaml:"keyword"`
	To      string  `yaml:"to"`
	Weight  float64 `yaml:"weight"`
}

// LoadModel reads a model weight file. An empty path yields the built-in
// defaults; a missing or malformed file is an error so the caller can record
// the degradation.
func LoadModel(path string) (*Model, error) {
	if path == "" {
		return DefaultModel(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	var model Model
	if err := yaml.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("parse model: %w", err)
	}
	model.fillDefaults()
	return &model, nil
}

// DefaultModel returns the baseline weights shipped with the engine.
func DefaultModel() *Model {
	model := &Model{
		Escalations: []Escalation{
			{Keyword: "driver", To: "critical", Weight: 0.9},
			{Keyword: "crash", To: "critical", Weight: 0.9},
			{Keyword: "tamper", To: "error", Weight: 0.7},
			{Keyword: "certificate", To: "error", Weight: 0.6},
			{Keyword: "disk", To: "error", Weight: 0.6},
		},
	}
	model.fillDefaults()
	return model
}

func (m *Model) fillDefaults() {
	if len(m.SeverityWeight) == 0 {
		m.SeverityWeight = map[models.Severity]float64{
			models.SeverityInfo:     0,
			models.SeverityWarning:  2,
			models.SeverityError:    6,
			models.SeverityCritical: 15,
		}
	}
	if m.AnomalyPenalty <= 0 {
		m.AnomalyPenalty = 10
	}
	if m.MinConfidence <= 0 {
		m.MinConfidence = 0.5
	}
}

// Classify returns the adjusted severity for a finding. The result is always
// at least the rule-assigned severity.
func (m *Model) Classify(finding models.Finding) models.Severity {
	if finding.Confidence < m.MinConfidence {
		return finding.Severity
	}
	adjusted := finding.Severity
	haystack := strings.ToLower(finding.Message + " " + finding.Category)
	for _, esc := range m.Escalations {
		if esc.Keyword == "" || !strings.Contains(haystack, strings.ToLower(esc.Keyword)) {
			continue
		}
		target := models.Severity(esc.To)
		if models.SeverityRank(target) < 0 {
			continue
		}
		adjusted = models.MaxSeverity(adjusted, target)
	}
	return adjusted
}
