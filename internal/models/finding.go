package models

import "time"

// Severity captures impact levels for findings.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// SeverityRank orders severities for comparison; unknown values rank lowest.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityWarning:
		return 1
	case SeverityError:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// MaxSeverity returns the higher-ranked of two severities.
func MaxSeverity(a, b Severity) Severity {
	if SeverityRank(b) > SeverityRank(a) {
		return b
	}
	return a
}

// Record is one normalized log record produced by the parser layer.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Component string    `json:"component"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Line      int       `json:"line"`
}

// Finding is one detected issue instance with evidence and severity.
// A Finding is immutable once emitted; enhancement produces adjusted copies.
type Finding struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Component    string    `json:"component"`
	Category     string    `json:"category"`
	Severity     Severity  `json:"severity"`
	RuleSeverity Severity  `json:"rule_severity"`
	Message      string    `json:"message"`
	Evidence     []string  `json:"evidence"`
	Confidence   float64   `json:"confidence"`
}
