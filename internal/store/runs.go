package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/wirl-lang/wirl/common/db"
)

// RunRepository is the `workflow_runs` job queue (spec.md §4.5), following
// the teacher's repository style (cmd/orchestrator/repository/*.go): one
// struct wrapping *db.DB, one parameterized query per method, errors
// wrapped with %w.
//
// workflow_runs(run_id text primary key, template_name text,
// workflow_hash text, inputs jsonb, status text, result jsonb,
// error text, retry_count int, created_at timestamptz, updated_at
// timestamptz, claimed_by text, claimed_at timestamptz,
// cancel_requested boolean, resume_payload jsonb).
type RunRepository struct {
	db *db.DB
}

// NewRunRepository wraps an existing connection pool.
func NewRunRepository(conn *db.DB) *RunRepository {
	return &RunRepository{db: conn}
}

// Create inserts a new queued run.
func (r *RunRepository) Create(ctx context.Context, run *Run) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO workflow_runs
			(run_id, template_name, workflow_hash, inputs, status, retry_count,
			 created_at, updated_at, cancel_requested, resume_payload)
		VALUES ($1, $2, $3, $4, $5, 0, now(), now(), false, $6)
	`, run.RunID, run.TemplateName, run.WorkflowHash, run.Inputs, run.Status, run.ResumePayload)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// Get loads one run by id.
func (r *RunRepository) Get(ctx context.Context, runID string) (*Run, error) {
	row := r.db.QueryRow(ctx, `
		SELECT run_id, template_name, workflow_hash, inputs, status, result, error,
		       retry_count, created_at, updated_at, claimed_by, claimed_at,
		       cancel_requested, resume_payload
		FROM workflow_runs WHERE run_id = $1
	`, runID)
	return scanRun(row)
}

// List returns a page of runs ordered newest-first, and the total row count
// (spec.md §6 GET /workflows?limit&offset).
func (r *RunRepository) List(ctx context.Context, limit, offset int) ([]*Run, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM workflow_runs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT run_id, template_name, workflow_hash, inputs, status, result, error,
		       retry_count, created_at, updated_at, claimed_by, claimed_at,
		       cancel_requested, resume_payload
		FROM workflow_runs ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate runs: %w", err)
	}
	return out, total, nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	err := row.Scan(
		&run.RunID, &run.TemplateName, &run.WorkflowHash, &run.Inputs, &run.Status,
		&run.Result, &run.Error, &run.RetryCount, &run.CreatedAt, &run.UpdatedAt,
		&run.ClaimedBy, &run.ClaimedAt, &run.CancelRequested, &run.ResumePayload,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return run, nil
}

// Claim executes the at-most-one claim transaction from spec.md §4.5: pick
// the oldest queued (or stale-claimed) run and mark it running under this
// worker. Returns (nil, nil) if nothing is claimable.
func (r *RunRepository) Claim(ctx context.Context, workerID string, staleTimeout time.Duration) (*Run, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT run_id FROM workflow_runs
		WHERE (status = 'queued' OR (status = 'running' AND claimed_at < now() - make_interval(secs => $1)))
		  AND NOT cancel_requested
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, staleTimeout.Seconds())

	var runID string
	if err := row.Scan(&runID); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim query: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE workflow_runs
		SET status = 'running', claimed_by = $2, claimed_at = now(), updated_at = now()
		WHERE run_id = $1
	`, runID, workerID); err != nil {
		return nil, fmt.Errorf("claim update: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}

	return r.Get(ctx, runID)
}

// MarkNeedsInput releases the claim and records a HITL suspension.
func (r *RunRepository) MarkNeedsInput(ctx context.Context, runID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE workflow_runs
		SET status = 'needs_input', claimed_by = NULL, claimed_at = NULL,
		    resume_payload = NULL, updated_at = now()
		WHERE run_id = $1
	`, runID)
	if err != nil {
		return fmt.Errorf("mark needs_input: %w", err)
	}
	return nil
}

// MarkSucceeded records a terminal success and its result.
func (r *RunRepository) MarkSucceeded(ctx context.Context, runID string, result json.RawMessage) error {
	_, err := r.db.Exec(ctx, `
		UPDATE workflow_runs
		SET status = 'succeeded', result = $2, error = '', claimed_by = NULL,
		    claimed_at = NULL, resume_payload = NULL, updated_at = now()
		WHERE run_id = $1
	`, runID, result)
	if err != nil {
		return fmt.Errorf("mark succeeded: %w", err)
	}
	return nil
}

// MarkFailed records a terminal failure and its error message. The claim is
// released so `continue` can retry from the latest checkpoint.
func (r *RunRepository) MarkFailed(ctx context.Context, runID string, errMsg string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE workflow_runs
		SET status = 'failed', error = $2, claimed_by = NULL, claimed_at = NULL,
		    resume_payload = NULL, updated_at = now()
		WHERE run_id = $1
	`, runID, errMsg)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// MarkCanceled records a terminal cancellation.
func (r *RunRepository) MarkCanceled(ctx context.Context, runID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE workflow_runs
		SET status = 'canceled', claimed_by = NULL, claimed_at = NULL,
		    resume_payload = NULL, updated_at = now()
		WHERE run_id = $1
	`, runID)
	if err != nil {
		return fmt.Errorf("mark canceled: %w", err)
	}
	return nil
}

// RequestCancel sets cancel_requested for the owning worker to observe
// between supersteps. If the run is currently unclaimed (queued or
// needs_input), it is canceled directly (spec.md §4.5, §4.7).
func (r *RunRepository) RequestCancel(ctx context.Context, runID string) (*Run, error) {
	run, err := r.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status == StatusQueued || run.Status == StatusNeedsInput {
		if err := r.MarkCanceled(ctx, runID); err != nil {
			return nil, err
		}
		run.Status = StatusCanceled
		return run, nil
	}
	if _, err := r.db.Exec(ctx, `
		UPDATE workflow_runs SET cancel_requested = true, updated_at = now() WHERE run_id = $1
	`, runID); err != nil {
		return nil, fmt.Errorf("request cancel: %w", err)
	}
	run.CancelRequested = true
	return run, nil
}

// Continue resumes a failed or needs_input run: increments retry_count on a
// retry, stashes the resume payload, and re-queues it for a worker to pick
// up (spec.md §4.5 Retry, §6 POST /workflows/{id}/continue).
func (r *RunRepository) Continue(ctx context.Context, runID string, payload json.RawMessage, wasFailed bool) error {
	retryIncrement := 0
	if wasFailed {
		retryIncrement = 1
	}
	_, err := r.db.Exec(ctx, `
		UPDATE workflow_runs
		SET status = 'queued', resume_payload = $2, retry_count = retry_count + $3,
		    error = '', claimed_by = NULL, claimed_at = NULL, updated_at = now()
		WHERE run_id = $1
	`, runID, payload, retryIncrement)
	if err != nil {
		return fmt.Errorf("continue run: %w", err)
	}
	return nil
}

// CancelRequested reports whether the given run currently has a pending
// cancel flag; used by the engine's CancelChecker between supersteps.
func (r *RunRepository) CancelRequested(ctx context.Context, runID string) (bool, error) {
	var flag bool
	err := r.db.QueryRow(ctx, `SELECT cancel_requested FROM workflow_runs WHERE run_id = $1`, runID).Scan(&flag)
	if err != nil {
		return false, fmt.Errorf("check cancel flag: %w", err)
	}
	return flag, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
