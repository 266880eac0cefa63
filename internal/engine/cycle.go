package engine

import (
	"context"

	"github.com/wirl-lang/wirl/internal/compile"
)

// runCycle drives a cycle super-node: each iteration runs its internal
// nodes to quiescence in topological order, then evaluates the guard
// against the latest internal channel values (spec.md §4.3). Cycle inputs
// are bound once at entry; internal channels tagged with a reducer
// accumulate (append), merge, or are overwritten (replace) across
// iterations. A non-nil *Result signals the caller to return immediately.
func (e *Engine) runCycle(ctx context.Context, runID string, st *State, c *compile.Cycle, cancel CancelChecker, answer ResumeAnswer) (*Result, error) {
	partial := st.CyclePartial[c.Name]
	var internal map[string]interface{}
	var iteration int
	resumingNodeID := ""

	if partial != nil {
		internal = partial.Internal
		iteration = partial.Iteration
		resumingNodeID = partial.PendingHITLNode
	} else {
		internal = map[string]interface{}{}
		for _, b := range c.EntryInputs {
			var v interface{}
			if b.Source.Literal != nil {
				v = literalToValue(*b.Source.Literal)
			} else {
				v = st.Channels[b.Source.ChannelName]
			}
			internal[c.Name+"."+b.Name] = v
		}
	}

	for {
		if cancel != nil && cancel() {
			st.CyclePartial[c.Name] = &CyclePartial{Iteration: iteration, Internal: internal}
			return &Result{Status: StatusCanceled, State: st}, nil
		}

		for _, n := range c.Nodes {
			resuming := resumingNodeID != "" && n.ID == resumingNodeID
			if n.When != nil {
				ok, err := n.When.Eval(internal)
				if err != nil {
					return nil, &NodeError{Node: n.Name, Kind: "invalid_guard", Message: err.Error()}
				}
				if !ok {
					continue
				}
			}

			if n.HITL != nil && !resuming {
				st.CyclePartial[c.Name] = &CyclePartial{Iteration: iteration, Internal: internal, PendingHITLNode: n.ID}
				sus := &HITLSuspension{NodeID: n.ID, Correlation: literalMap(n.HITL.Correlation), SuspendToken: n.ID}
				st.PendingHITL = sus
				return &Result{Status: StatusNeedsInput, State: st, Suspend: sus}, nil
			}

			inputs := resolveInputs(n.Inputs, internal)
			if resuming {
				inputs["answer"] = map[string]interface{}(answer)
				resumingNodeID = ""
				st.PendingHITL = nil
			}

			outputs, err := e.invoke(ctx, runID, n, inputs)
			if err != nil {
				return nil, err
			}
			for _, out := range n.OutputNames {
				v, ok := outputs[out]
				if !ok {
					continue
				}
				channel := n.Name + "." + out
				reducer := c.ChannelReducer[channel]
				merged, rerr := applyReducer(reducer, internal[channel], v)
				if rerr != nil {
					return nil, &NodeError{Node: n.Name, Kind: "reducer_error", Message: rerr.Error()}
				}
				internal[channel] = merged
			}
		}

		iteration++
		guardTrue := false
		if c.Guard != nil {
			ok, err := c.Guard.Eval(internal)
			if err != nil {
				return nil, &NodeError{Node: c.Name, Kind: "invalid_guard", Message: err.Error()}
			}
			guardTrue = ok
		}
		if !guardTrue || iteration >= c.MaxIterations {
			break
		}
	}

	delete(st.CyclePartial, c.Name)
	for name, src := range c.Outputs {
		var v interface{}
		if src.Literal != nil {
			v = literalToValue(*src.Literal)
		} else {
			v = internal[src.ChannelName]
		}
		st.Channels[c.Name+"."+name] = v
	}
	return nil, nil
}
