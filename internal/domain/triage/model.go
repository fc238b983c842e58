package triage

import "time"

// Status is the state of an AI triage run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Done reports whether the run has finished, successfully or not.
func (s Status) Done() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Result is the latest AI triage outcome for a finding.
type Result struct {
	FindingID string    `json:"finding_id"`
	Status    Status    `json:"status"`
	Severity  string    `json:"severity,omitempty"`
	RiskScore float64   `json:"risk_score,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
