// Package engine drives a compiled WIRL graph to completion using the
// Pregel-style superstep model from spec.md §4.3: determine the frontier,
// invoke ready callables, apply reducers, checkpoint, repeat until the
// frontier is empty, a HITL node suspends, cancellation is observed, or a
// node errors.
package engine

import "context"

// Run statuses, matching the wire values in spec.md §6.
const (
	StatusRunning    = "running"
	StatusNeedsInput = "needs_input"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// HITLSuspension carries what the orchestrator needs to surface a paused
// run: the suspended node and any declared correlation data.
type HITLSuspension struct {
	NodeID       string
	Correlation  map[string]interface{}
	SuspendToken string
}

// CyclePartial is the in-flight state of a cycle super-node suspended
// mid-iteration by an internal HITL node.
type CyclePartial struct {
	Iteration       int
	Internal        map[string]interface{}
	PendingHITLNode string
}

// State is the full resumable state of one run: the channel map plus
// bookkeeping needed to pick the engine back up from the latest checkpoint.
// It is exactly what a checkpoint.Store persists and loads.
type State struct {
	Superstep    int
	Channels     map[string]interface{}
	Completed    map[string]bool
	PendingHITL  *HITLSuspension
	CyclePartial map[string]*CyclePartial
}

// NewState seeds a fresh run's state from its resolved workflow inputs.
func NewState(inputs map[string]interface{}) *State {
	channels := make(map[string]interface{}, len(inputs))
	for k, v := range inputs {
		channels[k] = v
	}
	return &State{
		Channels:     channels,
		Completed:    map[string]bool{},
		CyclePartial: map[string]*CyclePartial{},
	}
}

func (s *State) clone() *State {
	channels := make(map[string]interface{}, len(s.Channels))
	for k, v := range s.Channels {
		channels[k] = v
	}
	completed := make(map[string]bool, len(s.Completed))
	for k, v := range s.Completed {
		completed[k] = v
	}
	partial := make(map[string]*CyclePartial, len(s.CyclePartial))
	for k, v := range s.CyclePartial {
		partial[k] = v
	}
	return &State{
		Superstep:    s.Superstep,
		Channels:     channels,
		Completed:    completed,
		PendingHITL:  s.PendingHITL,
		CyclePartial: partial,
	}
}

// Result is what one Engine.Run call returns: either a terminal outcome or
// a suspension that the orchestrator must act on.
type Result struct {
	Status   string
	State    *State
	Error    *NodeError
	Suspend  *HITLSuspension
}

// CheckpointSink persists a state snapshot at a superstep boundary. Both the
// embedded file-backed store and the Postgres-backed store implement it.
type CheckpointSink interface {
	Save(ctx context.Context, runID string, state *State) error
}

// CancelChecker reports whether the owning orchestrator has observed a
// cancel request for this run. The engine polls it between elements and
// before each cycle iteration (spec.md §5).
type CancelChecker func() bool

// ResumeAnswer is the payload supplied by a `continue` call, injected into
// the awaiting HITL node's inputs under the key "answer".
type ResumeAnswer map[string]interface{}
