// Package checkpoint persists and restores engine.State snapshots at
// superstep boundaries (spec.md §4.4: save, load_latest, list). It mirrors
// the teacher's content-addressed artifact/CAS-blob design
// (cmd/orchestrator/service/cas.go, artifact.go, compaction.go): a run's
// checkpoint history is a chain of a full base snapshot followed by JSON
// merge-patch deltas, each against the checkpoint before it, periodically
// compacted back into a new
// base so the chain a resume has to replay never grows unbounded.
package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/wirl-lang/wirl/internal/engine"
)

// ErrNotFound is returned by LoadLatest when a run has no checkpoint yet.
var ErrNotFound = errors.New("checkpoint: not found")

// Snapshot is one recorded point in a run's checkpoint history.
type Snapshot struct {
	Superstep int
	State     *engine.State
	CreatedAt time.Time
}

// Store is the durable checkpoint contract every orchestrator backend
// drives the engine against. It satisfies engine.CheckpointSink directly.
type Store interface {
	// Save persists state as the checkpoint for runID at state.Superstep.
	Save(ctx context.Context, runID string, state *engine.State) error

	// LoadLatest returns the most recent snapshot for runID, or ErrNotFound
	// if the run has never been checkpointed.
	LoadLatest(ctx context.Context, runID string) (*Snapshot, error)

	// List returns every recorded snapshot for runID in superstep order,
	// materializing each from its base+delta chain.
	List(ctx context.Context, runID string) ([]Snapshot, error)
}

// compactEvery is the length of one base+delta run: once compactEvery-1
// deltas follow the last base, the next checkpoint is written as a new
// base snapshot, so a replay covers at most 19 deltas (spec.md §4.4's periodic
// full-snapshot requirement; matches the teacher's ~20-patch compaction
// trigger in cmd/orchestrator/service/compaction.go).
const compactEvery = 20
