package models

import "time"

// SessionStatus enumerates the session state machine. Transitions are
// forward-only: queued -> running -> completed|failed -> expired.
type SessionStatus string

const (
	StatusQueued    SessionStatus = "queued"
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
	StatusExpired   SessionStatus = "expired"
)

// Terminal reports whether the status admits no further pipeline work.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

// Stage enumerates pipeline stages within a running session.
type Stage string

const (
	StageParsing      Stage = "parsing"
	StageMatching     Stage = "matching"
	StageEnhancing    Stage = "enhancing"
	StageRetrieving   Stage = "retrieving"
	StageSynthesizing Stage = "synthesizing"
	StageFinalizing   Stage = "finalizing"
)

// Session tracks one analysis job end-to-end.
type Session struct {
	ID           string          `json:"id"`
	AnalysisType string          `json:"analysis_type"`
	Status       SessionStatus   `json:"status"`
	Stage        Stage           `json:"stage,omitempty"`
	Percent      int             `json:"percent"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  time.Time       `json:"completed_at"`
	Report       *AnalysisReport `json:"report,omitempty"`
	Error        string          `json:"error,omitempty"`
	Cancelled    bool            `json:"cancelled,omitempty"`
	WorkDir      string          `json:"-"`
}
