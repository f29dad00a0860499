package models

// BundleFile is one raw file within a submitted log bundle.
type BundleFile struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// LogBundle groups the files submitted for one analysis. Immutable once
// received; the coordinator deletes its working copy after retention.
type LogBundle struct {
	ID    string       `json:"id"`
	Files []BundleFile `json:"files"`
}

// AnalyzeRequest is the submission payload at the external boundary.
type AnalyzeRequest struct {
	AnalysisType string       `json:"analysis_type"`
	Files        []BundleFile `json:"files"`
}

// StatusResponse answers a status poll.
type StatusResponse struct {
	SessionID string        `json:"session_id"`
	Status    SessionStatus `json:"status"`
	Stage     Stage         `json:"stage,omitempty"`
	Percent   int           `json:"percent"`
}
