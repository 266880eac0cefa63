// Package store holds the Postgres-backed repositories for the
// orchestrator's durable state (spec.md §3 Run, Trigger) and the
// filesystem-backed template discovery cache (spec.md §4.5 step 1,
// §6 GET /workflow-templates).
package store

import (
	"encoding/json"
	"time"
)

// Run wire statuses, matching spec.md §6.
const (
	StatusQueued     = "queued"
	StatusRunning    = "running"
	StatusNeedsInput = "needs_input"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// Run is one row of the workflow_runs table (spec.md §3).
type Run struct {
	RunID           string
	TemplateName    string
	WorkflowHash    string
	Inputs          json.RawMessage
	Status          string
	Result          json.RawMessage
	Error           string
	RetryCount      int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ClaimedBy       *string
	ClaimedAt       *time.Time
	CancelRequested bool
	ResumePayload   json.RawMessage
}

// Trigger is one row of the workflow_triggers table (spec.md §3).
type Trigger struct {
	TriggerID       string
	Name            string
	TemplateName    string
	InputsTemplate  json.RawMessage
	CronExpression  string
	Timezone        string
	IsActive        bool
	NextRunAt       *time.Time
	LastRunAt       *time.Time
	LastError       string
}
