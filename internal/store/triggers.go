package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wirl-lang/wirl/common/db"
)

// TriggerRepository is the `workflow_triggers` table plus the due-trigger
// claim-and-enqueue transaction from spec.md §4.6.
//
// workflow_triggers(trigger_id text primary key, name text,
// template_name text, inputs_template jsonb, cron_expression text,
// timezone text, is_active boolean, next_run_at timestamptz,
// last_run_at timestamptz, last_error text).
type TriggerRepository struct {
	db *db.DB
}

// NewTriggerRepository wraps an existing connection pool.
func NewTriggerRepository(conn *db.DB) *TriggerRepository {
	return &TriggerRepository{db: conn}
}

// Create inserts a new trigger. nextRunAt is the cron evaluator's first
// fire time.
func (r *TriggerRepository) Create(ctx context.Context, t *Trigger, nextRunAt time.Time) (*Trigger, error) {
	if t.TriggerID == "" {
		t.TriggerID = uuid.NewString()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO workflow_triggers
			(trigger_id, name, template_name, inputs_template, cron_expression,
			 timezone, is_active, next_run_at, last_run_at, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, '')
	`, t.TriggerID, t.Name, t.TemplateName, t.InputsTemplate, t.CronExpression, t.Timezone, true, nextRunAt)
	if err != nil {
		return nil, fmt.Errorf("create trigger: %w", err)
	}
	return r.Get(ctx, t.TriggerID)
}

// Get loads one trigger by id.
func (r *TriggerRepository) Get(ctx context.Context, triggerID string) (*Trigger, error) {
	return scanTrigger(r.db.QueryRow(ctx, selectTriggerCols+` WHERE trigger_id = $1`, triggerID))
}

// List returns every trigger.
func (r *TriggerRepository) List(ctx context.Context) ([]*Trigger, error) {
	rows, err := r.db.Query(ctx, selectTriggerCols+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	defer rows.Close()

	var out []*Trigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const selectTriggerCols = `
	SELECT trigger_id, name, template_name, inputs_template, cron_expression,
	       timezone, is_active, next_run_at, last_run_at, last_error
	FROM workflow_triggers`

func scanTrigger(row rowScanner) (*Trigger, error) {
	t := &Trigger{}
	err := row.Scan(
		&t.TriggerID, &t.Name, &t.TemplateName, &t.InputsTemplate, &t.CronExpression,
		&t.Timezone, &t.IsActive, &t.NextRunAt, &t.LastRunAt, &t.LastError,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan trigger: %w", err)
	}
	return t, nil
}

// ErrNotFound is returned by Get when no row matches.
var ErrNotFound = errors.New("store: not found")

// Update applies a partial update (PATCH /workflow-triggers/{id}, §6).
// Pausing sets is_active=false; the fields map may carry is_active,
// cron_expression, timezone, inputs_template, next_run_at.
type TriggerUpdate struct {
	IsActive       *bool
	CronExpression *string
	Timezone       *string
	InputsTemplate json.RawMessage
	NextRunAt      *time.Time
}

func (r *TriggerRepository) Update(ctx context.Context, triggerID string, upd TriggerUpdate) (*Trigger, error) {
	current, err := r.Get(ctx, triggerID)
	if err != nil {
		return nil, err
	}
	if upd.IsActive != nil {
		current.IsActive = *upd.IsActive
	}
	if upd.CronExpression != nil {
		current.CronExpression = *upd.CronExpression
	}
	if upd.Timezone != nil {
		current.Timezone = *upd.Timezone
	}
	if upd.InputsTemplate != nil {
		current.InputsTemplate = upd.InputsTemplate
	}
	if upd.NextRunAt != nil {
		current.NextRunAt = upd.NextRunAt
	}

	_, err = r.db.Exec(ctx, `
		UPDATE workflow_triggers
		SET is_active = $2, cron_expression = $3, timezone = $4, inputs_template = $5,
		    next_run_at = $6
		WHERE trigger_id = $1
	`, triggerID, current.IsActive, current.CronExpression, current.Timezone,
		current.InputsTemplate, current.NextRunAt)
	if err != nil {
		return nil, fmt.Errorf("update trigger: %w", err)
	}
	return current, nil
}

// Delete removes a trigger.
func (r *TriggerRepository) Delete(ctx context.Context, triggerID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM workflow_triggers WHERE trigger_id = $1`, triggerID)
	if err != nil {
		return fmt.Errorf("delete trigger: %w", err)
	}
	return nil
}

// Deactivate disables a trigger and records the reason (CronInvalid /
// InputsTemplateInvalid, spec.md §7).
func (r *TriggerRepository) Deactivate(ctx context.Context, triggerID, reason string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE workflow_triggers SET is_active = false, last_error = $2 WHERE trigger_id = $1
	`, triggerID, reason)
	if err != nil {
		return fmt.Errorf("deactivate trigger: %w", err)
	}
	return nil
}

// ClaimDue locks and returns every trigger due to fire as of now, within
// one transaction using FOR UPDATE SKIP LOCKED (spec.md §4.6) so two
// overlapping scheduler pollers never claim the same trigger. fn is called
// with the transaction open; the caller must invoke Fire (or the tx is
// rolled back) for each claimed trigger before ClaimDue returns.
func (r *TriggerRepository) ClaimDue(ctx context.Context, fn func(ctx context.Context, due []*Trigger, fire func(t *Trigger, runID string, nextRunAt time.Time) error) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin trigger claim tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT trigger_id, name, template_name, inputs_template, cron_expression,
		       timezone, is_active, next_run_at, last_run_at, last_error
		FROM workflow_triggers
		WHERE is_active AND next_run_at <= now()
		ORDER BY next_run_at
		FOR UPDATE SKIP LOCKED
	`)
	if err != nil {
		return fmt.Errorf("due trigger query: %w", err)
	}
	var due []*Trigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			rows.Close()
			return err
		}
		due = append(due, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate due triggers: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	fire := func(t *Trigger, runID string, nextRunAt time.Time) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO workflow_runs
				(run_id, template_name, workflow_hash, inputs, status, retry_count,
				 created_at, updated_at, cancel_requested, resume_payload)
			VALUES ($1, $2, '', $3, 'queued', 0, now(), now(), false, NULL)
		`, runID, t.TemplateName, t.InputsTemplate); err != nil {
			return fmt.Errorf("enqueue triggered run: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE workflow_triggers
			SET last_run_at = now(), next_run_at = $2, last_error = ''
			WHERE trigger_id = $1
		`, t.TriggerID, nextRunAt); err != nil {
			return fmt.Errorf("advance trigger schedule: %w", err)
		}
		return nil
	}

	if err := fn(ctx, due, fire); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
