package api

import (
	"encoding/json"
	"time"
)

// TemplateDTO is one entry of GET /workflow-templates (spec.md §6).
type TemplateDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// RunListItem is one entry of GET /workflows (spec.md §6).
type RunListItem struct {
	ID        string    `json:"id"`
	Template  string    `json:"template"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// RunListResponse is the full paginated body of GET /workflows.
type RunListResponse struct {
	Items  []RunListItem `json:"items"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// RunDTO is the body of GET /workflows/{id}.
type RunDTO struct {
	ID     string          `json:"id"`
	Template string        `json:"template"`
	Status string          `json:"status"`
	Inputs json.RawMessage `json:"inputs"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Write is one channel mutation observed between two consecutive
// checkpoints, reconstructed by diffing the channel maps of the two
// materialized snapshots (SPEC_FULL.md §D "Run-details trace").
type Write struct {
	Kind    string      `json:"kind"` // "set" or "delete"
	Channel string      `json:"channel"`
	Value   interface{} `json:"value,omitempty"`
}

// RunStep is one recorded superstep in a run's execution trace. The engine
// checkpoints per superstep rather than per node invocation, so Nodes lists
// every node newly completed during this step rather than the single-node
// granularity an in-process per-call trace would offer.
type RunStep struct {
	Step        int                    `json:"step"`
	Nodes       []string               `json:"node"`
	TaskID      string                 `json:"task_id"`
	Timestamp   time.Time              `json:"timestamp"`
	InputState  map[string]interface{} `json:"input_state"`
	OutputState map[string]interface{} `json:"output_state"`
	Branches    []string               `json:"branches"`
	Writes      []Write                `json:"writes"`
}

// RunDetailsDTO is the body of GET /workflows/{id}/run-details.
type RunDetailsDTO struct {
	InitialState map[string]interface{} `json:"initial_state"`
	Steps        []RunStep              `json:"steps"`
}

// TriggerDTO is one entry of GET/POST /workflow-triggers.
type TriggerDTO struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Template       string          `json:"template"`
	InputsTemplate json.RawMessage `json:"inputs_template"`
	CronExpression string          `json:"cron_expression"`
	Timezone       string          `json:"timezone"`
	IsActive       bool            `json:"is_active"`
	NextRunAt      *time.Time      `json:"next_run_at,omitempty"`
	LastRunAt      *time.Time      `json:"last_run_at,omitempty"`
	LastError      string          `json:"last_error,omitempty"`
}

// CreateRunRequest is the body of POST /workflows.
type CreateRunRequest struct {
	TemplateName string                 `json:"template_name"`
	Inputs       map[string]interface{} `json:"inputs"`
}

// ContinueRunRequest is the body of POST /workflows/{id}/continue.
type ContinueRunRequest struct {
	Inputs map[string]interface{} `json:"inputs"`
}

// CreateTriggerRequest is the body of POST /workflow-triggers.
type CreateTriggerRequest struct {
	Name           string                 `json:"name"`
	TemplateName   string                 `json:"template_name"`
	InputsTemplate map[string]interface{} `json:"inputs_template"`
	CronExpression string                 `json:"cron_expression"`
	Timezone       string                 `json:"timezone"`
}

// UpdateTriggerRequest is the body of PATCH /workflow-triggers/{id}. Nil
// fields are left unchanged.
type UpdateTriggerRequest struct {
	IsActive       *bool                  `json:"is_active"`
	CronExpression *string                `json:"cron_expression"`
	Timezone       *string                `json:"timezone"`
	InputsTemplate map[string]interface{} `json:"inputs_template"`
}
