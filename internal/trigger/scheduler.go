package trigger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/wirl-lang/wirl/common/logger"
	"github.com/wirl-lang/wirl/common/metrics"
	"github.com/wirl-lang/wirl/internal/store"
)

// Scheduler polls workflow_triggers for due rows and enqueues one run per
// firing (spec.md §4.6). Every tick runs inside the TriggerRepository's
// FOR UPDATE SKIP LOCKED transaction, so overlapping scheduler processes
// never double-enqueue the same firing (spec.md §8 testable property #7).
type Scheduler struct {
	Triggers     *store.TriggerRepository
	Log          *logger.Logger
	TickInterval time.Duration
	Metrics      *metrics.Registry
}

// Run polls at TickInterval until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.TickInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				s.Log.Error("trigger tick failed", "error", err)
			}
		}
	}
}

// tick claims every currently-due trigger and fires each: enqueue a queued
// run, compute the next fire time strictly after the *previous*
// next_run_at (not now()), and advance the row.
func (s *Scheduler) tick(ctx context.Context) error {
	return s.Triggers.ClaimDue(ctx, func(ctx context.Context, due []*store.Trigger, fire func(t *store.Trigger, runID string, nextRunAt time.Time) error) error {
		for _, t := range due {
			s.fireOne(ctx, t, fire)
		}
		return nil
	})
}

func (s *Scheduler) fireOne(ctx context.Context, t *store.Trigger, fire func(t *store.Trigger, runID string, nextRunAt time.Time) error) {
	log := s.Log.WithFields(map[string]any{"trigger": t.Name, "template": t.TemplateName})

	sched, err := ParseSchedule(t.CronExpression, t.Timezone)
	if err != nil {
		log.Error("trigger cron became invalid", "error", err)
		if derr := s.Triggers.Deactivate(ctx, t.TriggerID, "CronInvalid: "+err.Error()); derr != nil {
			log.Error("failed to deactivate invalid trigger", "error", derr)
		}
		return
	}

	var inputs map[string]interface{}
	if len(t.InputsTemplate) > 0 {
		if err := json.Unmarshal(t.InputsTemplate, &inputs); err != nil {
			log.Error("trigger inputs_template became invalid", "error", err)
			if derr := s.Triggers.Deactivate(ctx, t.TriggerID, "InputsTemplateInvalid: "+err.Error()); derr != nil {
				log.Error("failed to deactivate invalid trigger", "error", derr)
			}
			return
		}
	}

	base := time.Now().UTC()
	if t.NextRunAt != nil {
		base = *t.NextRunAt
	}
	next := sched.Next(base)

	runID := uuid.NewString()
	if err := fire(t, runID, next); err != nil {
		log.Error("failed to fire trigger", "error", err)
		return
	}
	if s.Metrics != nil {
		s.Metrics.TriggerFiresTotal.WithLabelValues(t.Name).Inc()
	}
	log.Info("trigger fired", "run_id", runID, "next_run_at", next)
}
