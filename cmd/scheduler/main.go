package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wirl-lang/wirl/common/bootstrap"
	"github.com/wirl-lang/wirl/internal/store"
	"github.com/wirl-lang/wirl/internal/trigger"
)

// cmd/scheduler hosts the cron trigger poller from spec.md §4.6: one
// process ticking at TickInterval, claiming due workflow_triggers rows and
// enqueueing one queued run per firing. It needs no callable resolver of
// its own; firing a trigger only inserts a workflow_runs row for a
// cmd/worker process to later claim.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := bootstrap.Setup(ctx, "wirl-scheduler", bootstrap.WithoutRedis())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap scheduler: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(context.Background())

	sched := &trigger.Scheduler{
		Triggers:     store.NewTriggerRepository(components.DB),
		Log:          components.Logger,
		TickInterval: components.Config.Engine.SchedulerTickInterval,
		Metrics:      components.Metrics,
	}

	components.Logger.Info("starting wirl-scheduler", "tick_interval", sched.TickInterval)
	if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
		components.Logger.Error("scheduler loop exited", "error", err)
		os.Exit(1)
	}
	components.Logger.Info("wirl-scheduler shut down")
}
