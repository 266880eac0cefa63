// Package api exposes the control-plane HTTP surface from spec.md §4.7 and
// §6: a thin layer reading/writing workflow_runs and workflow_triggers and
// projecting the checkpoint sequence into a run's execution trace.
// Handler style follows the teacher's cmd/orchestrator/handlers (one
// receiver struct per resource, echo.Context bind + validate + delegate).
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/wirl-lang/wirl/common/logger"
	"github.com/wirl-lang/wirl/common/ratelimit"
	"github.com/wirl-lang/wirl/internal/checkpoint"
	"github.com/wirl-lang/wirl/internal/compile"
	"github.com/wirl-lang/wirl/internal/engine"
	"github.com/wirl-lang/wirl/internal/store"
	"github.com/wirl-lang/wirl/internal/trigger"
)

// Handler wires every control-plane endpoint to the orchestrator's durable
// stores. One Handler serves the whole API surface, mirroring the
// teacher's single-container DI style (cmd/orchestrator/container).
type Handler struct {
	Runs        *store.RunRepository
	Triggers    *store.TriggerRepository
	Templates   *store.TemplateStore
	Checkpoints checkpoint.Store
	Log         *logger.Logger
	// RateLimiter, when non-nil, tiers POST /workflows by the target
	// template's compiled complexity (SPEC_FULL.md §C) so a handful of
	// cyclic, long-running templates can't starve worker capacity away
	// from simple, linear ones sharing the same call quota.
	RateLimiter *ratelimit.RateLimiter
}

// inspectWorkflow summarizes a compiled workflow's complexity for
// common/ratelimit.InspectWorkflow, counting cycle bodies toward both the
// cycle and node totals.
func inspectWorkflow(w *compile.Workflow) ratelimit.InspectedWorkflow {
	nodes, hitl := 0, 0
	for _, n := range w.Nodes {
		nodes++
		if n.HITL != nil {
			hitl++
		}
	}
	for _, cyc := range w.Cycles {
		for _, n := range cyc.Nodes {
			nodes++
			if n.HITL != nil {
				hitl++
			}
		}
	}
	return ratelimit.InspectedWorkflow{NodeCount: nodes, CycleCount: len(w.Cycles), HITLCount: hitl}
}

// ListTemplates handles GET /workflow-templates.
func (h *Handler) ListTemplates(c echo.Context) error {
	tpls := h.Templates.List()
	out := make([]TemplateDTO, 0, len(tpls))
	for _, t := range tpls {
		out = append(out, TemplateDTO{ID: t.Name, Name: t.Name, Path: t.Path})
	}
	return c.JSON(http.StatusOK, out)
}

// ListRuns handles GET /workflows?limit&offset.
func (h *Handler) ListRuns(c echo.Context) error {
	limit := queryInt(c, "limit", 20)
	offset := queryInt(c, "offset", 0)

	runs, total, err := h.Runs.List(c.Request().Context(), limit, offset)
	if err != nil {
		h.Log.Error("list runs failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list runs")
	}

	items := make([]RunListItem, 0, len(runs))
	for _, r := range runs {
		items = append(items, RunListItem{ID: r.RunID, Template: r.TemplateName, Status: r.Status, CreatedAt: r.CreatedAt})
	}
	return c.JSON(http.StatusOK, RunListResponse{Items: items, Total: total, Limit: limit, Offset: offset})
}

// GetRun handles GET /workflows/{id}.
func (h *Handler) GetRun(c echo.Context) error {
	run, err := h.loadRun(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RunDTO{
		ID: run.RunID, Template: run.TemplateName, Status: run.Status,
		Inputs: run.Inputs, Result: run.Result, Error: run.Error,
	})
}

// GetRunDetails handles GET /workflows/{id}/run-details, reconstructing the
// per-superstep execution trace by diffing consecutive checkpoints
// (SPEC_FULL.md §D).
func (h *Handler) GetRunDetails(c echo.Context) error {
	run, err := h.loadRun(c)
	if err != nil {
		return err
	}

	snaps, err := h.Checkpoints.List(c.Request().Context(), run.RunID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return c.JSON(http.StatusOK, RunDetailsDTO{InitialState: map[string]interface{}{}, Steps: nil})
		}
		h.Log.Error("load run checkpoints failed", "run_id", run.RunID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load run details")
	}
	if len(snaps) == 0 {
		return c.JSON(http.StatusOK, RunDetailsDTO{InitialState: map[string]interface{}{}, Steps: nil})
	}

	details := RunDetailsDTO{InitialState: snaps[0].State.Channels, Steps: make([]RunStep, 0, len(snaps)-1)}
	for i := 1; i < len(snaps); i++ {
		prev, cur := snaps[i-1], snaps[i]
		writes := diffChannels(prev.State.Channels, cur.State.Channels)
		details.Steps = append(details.Steps, RunStep{
			Step:        cur.Superstep,
			Nodes:       newlyCompleted(prev.State.Completed, cur.State.Completed),
			TaskID:      run.RunID + "-" + strconv.Itoa(cur.Superstep),
			Timestamp:   cur.CreatedAt,
			InputState:  prev.State.Channels,
			OutputState: cur.State.Channels,
			Branches:    nil,
			Writes:      writes,
		})
	}
	return c.JSON(http.StatusOK, details)
}

// CreateRun handles POST /workflows: validates the template exists and
// enqueues a queued run for a worker to claim (spec.md §4.5).
func (h *Handler) CreateRun(c echo.Context) error {
	var req CreateRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.TemplateName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "template_name is required")
	}

	tpl, ok := h.Templates.ByName(req.TemplateName)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown template "+req.TemplateName)
	}

	if h.RateLimiter != nil {
		profile := ratelimit.InspectWorkflow(inspectWorkflow(tpl.Workflow))
		result, err := h.RateLimiter.CheckTieredLimit(c.Request().Context(), c.RealIP(), profile.Tier)
		if err != nil {
			h.Log.Error("tiered rate limit check failed", "error", err)
		} else if !result.Allowed {
			return echo.NewHTTPError(http.StatusTooManyRequests, fmt.Sprintf(
				"rate limit exceeded for %s workflows: retry after %ds", profile.Tier, result.RetryAfterSeconds))
		}
	}

	inputs, err := json.Marshal(req.Inputs)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid inputs")
	}

	run := &store.Run{
		RunID:        uuid.NewString(),
		TemplateName: tpl.Name,
		WorkflowHash: tpl.Workflow.SourceHash,
		Inputs:       inputs,
		Status:       store.StatusQueued,
	}
	if err := h.Runs.Create(c.Request().Context(), run); err != nil {
		h.Log.Error("create run failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create run")
	}

	return c.JSON(http.StatusCreated, RunDTO{ID: run.RunID, Template: run.TemplateName, Status: run.Status})
}

// ContinueRun handles POST /workflows/{id}/continue: resumes a HITL
// suspension or retries a failed run (spec.md §4.5 Retry, §7).
func (h *Handler) ContinueRun(c echo.Context) error {
	run, err := h.loadRun(c)
	if err != nil {
		return err
	}
	if run.Status != store.StatusNeedsInput && run.Status != store.StatusFailed {
		return echo.NewHTTPError(http.StatusConflict, "run is not resumable from status "+run.Status)
	}

	var req ContinueRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	payload, err := json.Marshal(engine.ResumeAnswer(req.Inputs))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid inputs")
	}

	wasFailed := run.Status == store.StatusFailed
	if err := h.Runs.Continue(c.Request().Context(), run.RunID, payload, wasFailed); err != nil {
		h.Log.Error("continue run failed", "run_id", run.RunID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to continue run")
	}
	return c.JSON(http.StatusOK, RunDTO{ID: run.RunID, Template: run.TemplateName, Status: store.StatusQueued})
}

// CancelRun handles POST /workflows/{id}/cancel.
func (h *Handler) CancelRun(c echo.Context) error {
	run, err := h.loadRun(c)
	if err != nil {
		return err
	}
	if run.Status == store.StatusSucceeded || run.Status == store.StatusFailed || run.Status == store.StatusCanceled {
		return echo.NewHTTPError(http.StatusConflict, "run already terminal with status "+run.Status)
	}

	updated, err := h.Runs.RequestCancel(c.Request().Context(), run.RunID)
	if err != nil {
		h.Log.Error("cancel run failed", "run_id", run.RunID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to cancel run")
	}
	return c.JSON(http.StatusOK, RunDTO{ID: updated.RunID, Template: updated.TemplateName, Status: updated.Status})
}

// ListTriggers handles GET /workflow-triggers.
func (h *Handler) ListTriggers(c echo.Context) error {
	triggers, err := h.Triggers.List(c.Request().Context())
	if err != nil {
		h.Log.Error("list triggers failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list triggers")
	}
	out := make([]TriggerDTO, 0, len(triggers))
	for _, t := range triggers {
		out = append(out, triggerDTO(t))
	}
	return c.JSON(http.StatusOK, out)
}

// CreateTrigger handles POST /workflow-triggers: validates the cron
// expression, timezone, and template before persisting (spec.md §7
// CronInvalid).
func (h *Handler) CreateTrigger(c echo.Context) error {
	var req CreateTriggerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" || req.TemplateName == "" || req.CronExpression == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name, template_name and cron_expression are required")
	}
	if _, ok := h.Templates.ByName(req.TemplateName); !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown template "+req.TemplateName)
	}
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}

	sched, err := trigger.ParseSchedule(req.CronExpression, req.Timezone)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	inputsTemplate, err := json.Marshal(req.InputsTemplate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid inputs_template")
	}

	t := &store.Trigger{
		Name: req.Name, TemplateName: req.TemplateName, InputsTemplate: inputsTemplate,
		CronExpression: req.CronExpression, Timezone: req.Timezone,
	}
	created, err := h.Triggers.Create(c.Request().Context(), t, sched.Next(time.Now().UTC()))
	if err != nil {
		h.Log.Error("create trigger failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create trigger")
	}
	return c.JSON(http.StatusCreated, triggerDTO(created))
}

// UpdateTrigger handles PATCH /workflow-triggers/{id}; pausing sets
// is_active=false (spec.md §6).
func (h *Handler) UpdateTrigger(c echo.Context) error {
	id := c.Param("id")
	current, err := h.Triggers.Get(c.Request().Context(), id)
	if err != nil {
		return triggerLookupError(err)
	}

	var req UpdateTriggerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	upd := store.TriggerUpdate{IsActive: req.IsActive, CronExpression: req.CronExpression, Timezone: req.Timezone}
	if req.InputsTemplate != nil {
		b, err := json.Marshal(req.InputsTemplate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid inputs_template")
		}
		upd.InputsTemplate = b
	}

	cron := current.CronExpression
	if upd.CronExpression != nil {
		cron = *upd.CronExpression
	}
	tz := current.Timezone
	if upd.Timezone != nil {
		tz = *upd.Timezone
	}
	if upd.CronExpression != nil || upd.Timezone != nil {
		if _, err := trigger.ParseSchedule(cron, tz); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	updated, err := h.Triggers.Update(c.Request().Context(), id, upd)
	if err != nil {
		h.Log.Error("update trigger failed", "trigger_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update trigger")
	}
	return c.JSON(http.StatusOK, triggerDTO(updated))
}

// DeleteTrigger handles DELETE /workflow-triggers/{id}.
func (h *Handler) DeleteTrigger(c echo.Context) error {
	id := c.Param("id")
	if _, err := h.Triggers.Get(c.Request().Context(), id); err != nil {
		return triggerLookupError(err)
	}
	if err := h.Triggers.Delete(c.Request().Context(), id); err != nil {
		h.Log.Error("delete trigger failed", "trigger_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete trigger")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) loadRun(c echo.Context) (*store.Run, error) {
	id := c.Param("id")
	run, err := h.Runs.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, echo.NewHTTPError(http.StatusNotFound, "run not found")
		}
		h.Log.Error("load run failed", "run_id", id, "error", err)
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to load run")
	}
	if run == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	return run, nil
}

func triggerLookupError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "trigger not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "failed to load trigger")
}

func triggerDTO(t *store.Trigger) TriggerDTO {
	return TriggerDTO{
		ID: t.TriggerID, Name: t.Name, Template: t.TemplateName, InputsTemplate: t.InputsTemplate,
		CronExpression: t.CronExpression, Timezone: t.Timezone, IsActive: t.IsActive,
		NextRunAt: t.NextRunAt, LastRunAt: t.LastRunAt, LastError: t.LastError,
	}
}

func queryInt(c echo.Context, name string, def int) int {
	v := c.QueryParam(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// diffChannels reconstructs the write log between two consecutive channel
// maps: a changed or newly-present key is a "set", a key present in prev
// but absent from cur is a "delete".
func diffChannels(prev, cur map[string]interface{}) []Write {
	var writes []Write
	for k, v := range cur {
		if old, ok := prev[k]; !ok || !equalJSON(old, v) {
			writes = append(writes, Write{Kind: "set", Channel: k, Value: v})
		}
	}
	for k := range prev {
		if _, ok := cur[k]; !ok {
			writes = append(writes, Write{Kind: "delete", Channel: k})
		}
	}
	return writes
}

func equalJSON(a, b interface{}) bool {
	aj, aerr := json.Marshal(a)
	bj, berr := json.Marshal(b)
	if aerr != nil || berr != nil {
		return false
	}
	return string(aj) == string(bj)
}

// newlyCompleted returns the node names present in cur but not prev.
func newlyCompleted(prev, cur map[string]bool) []string {
	var out []string
	for name, done := range cur {
		if done && !prev[name] {
			out = append(out, name)
		}
	}
	return out
}
