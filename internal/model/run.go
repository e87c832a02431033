package model

import "time"

// RunStatus represents the state of a verification run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// VerificationRun records one invocation of the comparison engine for the
// run-history surface. Persisted when a store is configured.
type VerificationRun struct {
	ID          string     `json:"id"`
	Target      GeoPoint   `json:"target"`
	Variable    Variable   `json:"variable"`
	Models      []string   `json:"models"`
	From        time.Time  `json:"from"`
	To          time.Time  `json:"to"`
	LeadHours   int        `json:"lead_hours"`
	Status      RunStatus  `json:"status"`
	Rows        int        `json:"rows"`
	Failures    int        `json:"failures"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
