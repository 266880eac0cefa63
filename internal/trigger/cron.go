// Package trigger evaluates cron schedules and drives the due-trigger
// lock-and-enqueue loop from spec.md §4.6.
package trigger

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// parser accepts the classic five-field cron form (min hour dom mon dow),
// per spec.md §4.6 — no seconds field, matching the wire format operators
// actually write triggers in (unlike cron/v3's six-field default).
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule validates a five-field cron expression for a given IANA
// timezone name, returning a cron.Schedule usable to compute fire times.
// Invalid expressions or timezones fail validation at create/update time
// (spec.md §4.6, §7 CronInvalid).
func ParseSchedule(expr, timezone string) (cron.Schedule, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return &tzSchedule{sched: sched, loc: loc}, nil
}

// tzSchedule wraps a cron.Schedule so Next is evaluated in the trigger's
// declared timezone rather than the process's local zone.
type tzSchedule struct {
	sched cron.Schedule
	loc   *time.Location
}

// Next computes the first fire time strictly after t, evaluated in the
// trigger's timezone (spec.md §4.6 "timezone aware evaluation").
func (s *tzSchedule) Next(t time.Time) time.Time {
	return s.sched.Next(t.In(s.loc)).UTC()
}
