// Package orchestrator drives the Postgres-backed job queue from spec.md
// §4.5: claim loop, per-run worker lifecycle, retry via `continue`, and
// stale-claim reclaim. It is the glue between internal/store (persistence)
// and internal/engine (execution), grounded on the teacher's
// cmd/workflow-runner coordinator/executor/supervisor split — here
// collapsed into one package since the engine itself (not Redis pub/sub)
// now owns step sequencing.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/wirl-lang/wirl/common/logger"
	"github.com/wirl-lang/wirl/common/metrics"
	"github.com/wirl-lang/wirl/common/queue"
	"github.com/wirl-lang/wirl/internal/callable"
	"github.com/wirl-lang/wirl/internal/checkpoint"
	"github.com/wirl-lang/wirl/internal/compile"
	"github.com/wirl-lang/wirl/internal/engine"
	"github.com/wirl-lang/wirl/internal/store"
)

// LifecycleTopic is the common/queue topic a Worker publishes run-status
// transitions to; any in-process subscriber (audit log, metrics) consumes
// it the same way the teacher's status_update_consumer drained Redis
// pub/sub, minus the network hop since one worker process now owns both
// the engine and the event bus.
const LifecycleTopic = "run.lifecycle"

// LifecycleEvent is one run-status transition published to LifecycleTopic.
type LifecycleEvent struct {
	RunID    string `json:"run_id"`
	Template string `json:"template"`
	Status   string `json:"status"`
}

// Worker claims and drives runs to completion, suspension, cancellation, or
// failure, per spec.md §4.5's "Worker lifecycle per claimed run". One
// Worker process hosts N concurrently executing runs, gated by a
// semaphore (spec.md §5 "goroutine pool gated by a semaphore").
type Worker struct {
	ID                string
	Runs              *store.RunRepository
	Templates         *store.TemplateStore
	Checkpoints       checkpoint.Store
	Resolver          callable.Resolver
	Log               *logger.Logger
	StaleClaimTimeout time.Duration
	PollInterval      time.Duration
	Concurrency       int
	// Metrics, when non-nil, records claim duration and run status
	// transitions for the Prometheus /metrics endpoint (common/telemetry).
	Metrics *metrics.Registry
	// Queue, when non-nil, publishes a LifecycleEvent to LifecycleTopic on
	// every terminal or suspended transition.
	Queue queue.Queue
}

func (w *Worker) publishLifecycle(ctx context.Context, run *store.Run, status string) {
	if w.Queue == nil {
		return
	}
	payload, err := json.Marshal(LifecycleEvent{RunID: run.RunID, Template: run.TemplateName, Status: status})
	if err != nil {
		return
	}
	if err := w.Queue.Publish(ctx, LifecycleTopic, run.RunID, payload); err != nil {
		w.Log.Warn("failed to publish run lifecycle event", "run_id", run.RunID, "error", err)
	}
}

// Run starts the claim loop; it blocks until ctx is canceled, then waits for
// in-flight runs to finish their current superstep.
func (w *Worker) Run(ctx context.Context) error {
	concurrency := w.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := semaphore.NewWeighted(int64(concurrency))

	for {
		if ctx.Err() != nil {
			// Drain: wait for every in-flight run to release its slot.
			_ = sem.Acquire(context.Background(), int64(concurrency))
			return ctx.Err()
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			continue
		}

		run, err := w.Runs.Claim(ctx, w.ID, w.StaleClaimTimeout)
		if err != nil {
			w.Log.Error("claim query failed", "error", err)
			sem.Release(1)
			time.Sleep(w.PollInterval)
			continue
		}
		if run == nil {
			sem.Release(1)
			select {
			case <-ctx.Done():
			case <-time.After(w.PollInterval):
			}
			continue
		}

		go func() {
			defer sem.Release(1)
			w.execute(ctx, run)
		}()
	}
}

// execute drives one claimed run from its latest checkpoint (or fresh
// inputs) to a terminal or suspended state, then updates the run row
// (spec.md §4.5 steps 1-5).
func (w *Worker) execute(ctx context.Context, run *store.Run) {
	log := w.Log.WithRunID(run.RunID)
	claimedAt := time.Now()
	defer func() {
		if w.Metrics != nil {
			w.Metrics.ClaimDuration.Observe(time.Since(claimedAt).Seconds())
		}
	}()

	tpl, ok := w.Templates.ByName(run.TemplateName)
	if !ok {
		log.Error("template not found", "template", run.TemplateName)
		_ = w.Runs.MarkFailed(ctx, run.RunID, fmt.Sprintf("template %q not found", run.TemplateName))
		return
	}
	graph := tpl.Workflow

	if missing := missingCallables(graph, w.Resolver); len(missing) > 0 {
		log.Error("missing callables", "targets", missing)
		_ = w.Runs.MarkFailed(ctx, run.RunID, fmt.Sprintf("missing callable(s): %v", missing))
		return
	}

	state, answer, err := w.loadState(ctx, run)
	if err != nil {
		log.Error("failed to load run state", "error", err)
		_ = w.Runs.MarkFailed(ctx, run.RunID, err.Error())
		return
	}

	cancel := func() bool {
		requested, err := w.Runs.CancelRequested(ctx, run.RunID)
		if err != nil {
			log.Warn("cancel check failed", "error", err)
			return false
		}
		return requested
	}

	eng := engine.New(graph, w.Resolver)
	eng.Metrics = w.Metrics
	result, err := eng.Run(ctx, run.RunID, state, answer, cancel, w.Checkpoints)
	if err != nil {
		log.Error("engine run failed", "error", err)
		_ = w.Runs.MarkFailed(ctx, run.RunID, err.Error())
		return
	}

	if w.Metrics != nil {
		w.Metrics.RunStatusTotal.WithLabelValues(result.Status).Inc()
	}
	w.publishLifecycle(ctx, run, result.Status)

	switch result.Status {
	case engine.StatusNeedsInput:
		log.Info("run suspended for HITL input", "node", result.Suspend.NodeID)
		if err := w.Runs.MarkNeedsInput(ctx, run.RunID); err != nil {
			log.Error("failed to persist suspension", "error", err)
		}
	case engine.StatusSucceeded:
		out := engine.ProjectOutputs(graph, result.State.Channels)
		payload, merr := json.Marshal(out)
		if merr != nil {
			log.Error("failed to marshal result", "error", merr)
			_ = w.Runs.MarkFailed(ctx, run.RunID, merr.Error())
			return
		}
		log.Info("run succeeded")
		if err := w.Runs.MarkSucceeded(ctx, run.RunID, payload); err != nil {
			log.Error("failed to persist success", "error", err)
		}
	case engine.StatusCanceled:
		log.Info("run canceled")
		if err := w.Runs.MarkCanceled(ctx, run.RunID); err != nil {
			log.Error("failed to persist cancellation", "error", err)
		}
	case engine.StatusFailed:
		log.Error("run failed", "node_error", result.Error.Error())
		if err := w.Runs.MarkFailed(ctx, run.RunID, result.Error.Error()); err != nil {
			log.Error("failed to persist failure", "error", err)
		}
	default:
		log.Error("unexpected engine status", "status", result.Status)
		_ = w.Runs.MarkFailed(ctx, run.RunID, "internal error: unexpected engine status "+result.Status)
	}
}

// loadState resumes from the latest checkpoint when one exists, otherwise
// seeds a fresh State from the run's declared inputs (spec.md §4.5 step 3).
// The run's resume_payload, if any, becomes the engine's ResumeAnswer for a
// HITL node awaiting it.
func (w *Worker) loadState(ctx context.Context, run *store.Run) (*engine.State, engine.ResumeAnswer, error) {
	var answer engine.ResumeAnswer
	if len(run.ResumePayload) > 0 && string(run.ResumePayload) != "null" {
		if err := json.Unmarshal(run.ResumePayload, &answer); err != nil {
			return nil, nil, fmt.Errorf("decode resume payload: %w", err)
		}
	}

	snap, err := w.Checkpoints.LoadLatest(ctx, run.RunID)
	if err == nil {
		return snap.State, answer, nil
	}
	if !errors.Is(err, checkpoint.ErrNotFound) {
		return nil, nil, fmt.Errorf("load checkpoint: %w", err)
	}

	var inputs map[string]interface{}
	if len(run.Inputs) > 0 {
		if err := json.Unmarshal(run.Inputs, &inputs); err != nil {
			return nil, nil, fmt.Errorf("decode run inputs: %w", err)
		}
	}
	return engine.NewState(inputs), answer, nil
}

// missingCallables returns every `call` target in graph that the resolver
// cannot resolve (spec.md §4.5 step 2, §7 MissingCallable).
func missingCallables(graph *compile.Workflow, resolver callable.Resolver) []string {
	seen := map[string]bool{}
	var missing []string
	check := func(target string) {
		if seen[target] {
			return
		}
		seen[target] = true
		if _, ok := resolver.Resolve(target); !ok {
			missing = append(missing, target)
		}
	}
	for _, n := range graph.Nodes {
		check(n.CallTarget)
	}
	for _, c := range graph.Cycles {
		for _, n := range c.Nodes {
			check(n.CallTarget)
		}
	}
	return missing
}
