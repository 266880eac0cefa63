package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wirl-lang/wirl/common/bootstrap"
	"github.com/wirl-lang/wirl/internal/callable"
	"github.com/wirl-lang/wirl/internal/checkpoint"
	"github.com/wirl-lang/wirl/internal/orchestrator"
	"github.com/wirl-lang/wirl/internal/store"
)

// cmd/worker hosts the claim loop from spec.md §4.5: it polls
// workflow_runs for queued/stale work and drives each claimed run to
// completion, suspension, cancellation, or failure through
// internal/orchestrator.Worker.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := bootstrap.Setup(ctx, "wirl-worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap worker: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(context.Background())

	templates, err := store.NewTemplateStore(components.Config.Engine.WorkflowDefinitionsPath, components.Logger)
	if err != nil {
		components.Logger.Error("failed to load workflow templates", "error", err)
		os.Exit(1)
	}
	defer templates.Close()

	hostname, _ := os.Hostname()
	workerID := fmt.Sprintf("%s-%d", hostname, os.Getpid())

	var checkpoints checkpoint.Store = checkpoint.NewPGStore(components.DB)
	if components.Cache != nil {
		checkpoints = checkpoint.NewCachedStore(checkpoints, components.Cache, components.Config.Cache.DefaultTTL)
	}

	w := &orchestrator.Worker{
		ID:                workerID,
		Runs:              store.NewRunRepository(components.DB),
		Templates:         templates,
		Checkpoints:       checkpoints,
		Resolver:          buildResolver(components),
		Log:               components.Logger,
		StaleClaimTimeout: components.Config.Engine.StaleClaimTimeout,
		PollInterval:      components.Config.Engine.PollInterval,
		Concurrency:       components.Config.Engine.WorkerConcurrency,
		Metrics:           components.Metrics,
		Queue:             components.Queue,
	}

	if components.Queue != nil {
		auditLog := components.Logger.WithFields(map[string]any{"subscriber": "lifecycle-audit"})
		_ = components.Queue.Subscribe(ctx, orchestrator.LifecycleTopic, func(ctx context.Context, runID string, value []byte) error {
			var ev orchestrator.LifecycleEvent
			if err := json.Unmarshal(value, &ev); err != nil {
				return err
			}
			auditLog.Info("run lifecycle transition", "run_id", ev.RunID, "template", ev.Template, "status", ev.Status)
			return nil
		})
	}

	components.Logger.Info("starting wirl-worker", "worker_id", workerID, "concurrency", w.Concurrency)
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		components.Logger.Error("worker loop exited", "error", err)
		os.Exit(1)
	}
	components.Logger.Info("wirl-worker shut down")
}

// buildResolver assembles the callable.Chain from spec.md §4.4's three
// binding modes: subprocess commands and HTTP endpoints are both
// optionally configured via a CALLABLE_CONFIG JSON file, layered behind
// an empty in-process Registry (consulted first) an embedding program could
// extend.
func buildResolver(components *bootstrap.Components) callable.Resolver {
	registry := callable.NewRegistry()
	chain := callable.Chain{registry}

	path := os.Getenv("CALLABLE_CONFIG")
	if path == "" {
		return chain
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		components.Logger.Warn("could not read CALLABLE_CONFIG", "path", path, "error", err)
		return chain
	}

	var cfg struct {
		Subprocess map[string][]string `json:"subprocess"`
		HTTP       map[string]string   `json:"http"`
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		components.Logger.Warn("could not parse CALLABLE_CONFIG", "path", path, "error", err)
		return chain
	}

	if len(cfg.Subprocess) > 0 {
		chain = append(chain, callable.NewSubprocessBinder(cfg.Subprocess))
	}
	if len(cfg.HTTP) > 0 {
		chain = append(chain, callable.NewHTTPBinder(cfg.HTTP))
	}
	return chain
}
