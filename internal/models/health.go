package models

// ComponentHealth summarises a subsystem's condition on a 0-100 scale.
// Recomputed per analysis; never mutated after the analysis completes.
type ComponentHealth struct {
	Component            string   `json:"component"`
	Score                float64  `json:"score"`
	ContributingFindings []string `json:"contributing_findings"`
	AnomalyFlags         []string `json:"anomaly_flags"`
}

// Anomaly flags one component feature as an outlier.
type Anomaly struct {
	Component string  `json:"component"`
	Feature   string  `json:"feature"`
	Value     float64 `json:"value"`
	Score     float64 `json:"score"`
}

// AnomalyReport aggregates the unsupervised scoring pass. Degraded is set
// when the statistical models could not be applied and the deterministic
// formula ran alone.
type AnomalyReport struct {
	Anomalies     []Anomaly `json:"anomalies"`
	Contamination float64   `json:"contamination"`
	Degraded      bool      `json:"degraded"`
}
