package models

import "time"

// DegradationLevel tags which optional pipeline stages succeeded for a report.
type DegradationLevel string

const (
	DegradationFull        DegradationLevel = "full"
	DegradationNoLLM       DegradationLevel = "no_llm"
	DegradationNoKnowledge DegradationLevel = "no_knowledge"
	DegradationRulesOnly   DegradationLevel = "rules_only"
)

// AnalysisReport is the terminal artifact of one analysis. Written exactly
// once by the session coordinator, read-only thereafter.
type AnalysisReport struct {
	Summary            string                     `json:"summary"`
	Findings           []Finding                  `json:"findings"`
	ComponentHealth    map[string]ComponentHealth `json:"component_health"`
	RetrievedKnowledge []RetrievalResult          `json:"retrieved_knowledge"`
	AnomalyReport      AnomalyReport              `json:"anomaly_report"`
	AINarrative        string                     `json:"ai_narrative,omitempty"`
	ConfidenceScore    float64                    `json:"confidence_score"`
	DegradationLevel   DegradationLevel           `json:"degradation_level"`
	CreatedAt          time.Time                  `json:"created_at"`
}
