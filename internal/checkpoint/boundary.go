package checkpoint

import "github.com/wirl-lang/wirl/internal/engine"

// crossedCycleBoundary reports whether the set of cycles held in
// CyclePartial changed between two states: a cycle was suspended
// mid-iteration, or such a suspension ended, since the last recorded
// checkpoint. Save writes a full base snapshot at these points, on top of
// the periodic compaction interval. A cycle that runs to completion inside
// one engine element never appears in CyclePartial, so its entry and exit
// do not force a base.
func crossedCycleBoundary(prev, next *engine.State) bool {
	if prev == nil {
		return true
	}
	if len(prev.CyclePartial) != len(next.CyclePartial) {
		return true
	}
	for k := range next.CyclePartial {
		if _, ok := prev.CyclePartial[k]; !ok {
			return true
		}
	}
	return false
}
