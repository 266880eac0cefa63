package engine

import (
	"context"
	"fmt"

	"github.com/wirl-lang/wirl/common/metrics"
	"github.com/wirl-lang/wirl/internal/callable"
	"github.com/wirl-lang/wirl/internal/compile"
)

// Engine drives one compiled workflow graph. It holds no per-run state of
// its own; every call to Run is given the run's State explicitly, so a
// single Engine value is safe to reuse across concurrently executing runs
// (spec.md §5: "per-run state is never shared across tasks").
type Engine struct {
	Graph    *compile.Workflow
	Resolver callable.Resolver
	// Metrics, when non-nil, records a superstep counter at every
	// checkpoint boundary labeled by why the boundary was taken. Left nil
	// in tests and the standalone CLI, where no Prometheus registry exists.
	Metrics *metrics.Registry
}

// New builds an Engine for a compiled workflow.
func New(graph *compile.Workflow, resolver callable.Resolver) *Engine {
	return &Engine{Graph: graph, Resolver: resolver}
}

func (e *Engine) recordSuperstep(reason string) {
	if e.Metrics != nil {
		e.Metrics.SuperstepsTotal.WithLabelValues(reason).Inc()
	}
}

// Run drives the engine from state until completion, suspension,
// cancellation, or error. runID is threaded into callable config as
// configurable.thread_id per spec.md §6. answer, when non-nil, is injected
// into the node named by state.PendingHITL before resuming.
func (e *Engine) Run(ctx context.Context, runID string, state *State, answer ResumeAnswer, cancel CancelChecker, sink CheckpointSink) (*Result, error) {
	st := state.clone()

	if st.PendingHITL != nil && answer == nil {
		return &Result{Status: StatusNeedsInput, State: st, Suspend: st.PendingHITL}, nil
	}

	for _, el := range e.Graph.Order {
		name := el.name()
		if st.Completed[name] {
			continue
		}
		if cancel != nil && cancel() {
			st.Superstep++
			e.recordSuperstep("canceled")
			if err := sink.Save(ctx, runID, st); err != nil {
				return nil, fmt.Errorf("saving checkpoint: %w", err)
			}
			return &Result{Status: StatusCanceled, State: st}, nil
		}

		var (
			suspend *Result
			err     error
		)
		if el.Node != nil {
			suspend, err = e.runTopLevelNode(ctx, runID, st, el.Node, answer)
		} else {
			suspend, err = e.runCycle(ctx, runID, st, el.Cycle, cancel, answer)
		}
		if err != nil {
			return e.failRun(ctx, st, err, sink, runID)
		}
		if suspend != nil {
			st.Superstep++
			e.recordSuperstep("suspended")
			if serr := sink.Save(ctx, runID, st); serr != nil {
				return nil, fmt.Errorf("saving checkpoint: %w", serr)
			}
			return suspend, nil
		}
		answer = nil // the resume answer, if any, was consumed by the element it targeted

		st.Completed[name] = true
		st.Superstep++
		e.recordSuperstep("progress")
		if err := sink.Save(ctx, runID, st); err != nil {
			return nil, fmt.Errorf("saving checkpoint: %w", err)
		}
	}

	return &Result{Status: StatusSucceeded, State: st}, nil
}

func (e *Engine) failRun(ctx context.Context, st *State, err error, sink CheckpointSink, runID string) (*Result, error) {
	ne, ok := err.(*NodeError)
	if !ok {
		ne = &NodeError{Kind: "internal_error", Message: err.Error()}
	}
	e.recordSuperstep("failed")
	_ = sink.Save(ctx, runID, st)
	return &Result{Status: StatusFailed, State: st, Error: ne}, nil
}

// runTopLevelNode evaluates a node's `when` guard, suspends for HITL if
// needed, invokes its callable, and writes its outputs into the channel
// map. A non-nil *Result signals the caller to return immediately
// (suspension); nil, nil means "proceed to the next element".
func (e *Engine) runTopLevelNode(ctx context.Context, runID string, st *State, n *compile.Node, answer ResumeAnswer) (*Result, error) {
	if n.When != nil {
		ok, err := n.When.Eval(st.Channels)
		if err != nil {
			return nil, &NodeError{Node: n.Name, Kind: "invalid_guard", Message: err.Error()}
		}
		if !ok {
			return nil, nil
		}
	}

	resuming := st.PendingHITL != nil && st.PendingHITL.NodeID == n.ID
	if n.HITL != nil && !resuming {
		st.PendingHITL = &HITLSuspension{
			NodeID:       n.ID,
			Correlation:  literalMap(n.HITL.Correlation),
			SuspendToken: n.ID,
		}
		return &Result{Status: StatusNeedsInput, State: st, Suspend: st.PendingHITL}, nil
	}

	inputs := resolveInputs(n.Inputs, st.Channels)
	if resuming {
		inputs["answer"] = map[string]interface{}(answer)
		st.PendingHITL = nil
	}

	outputs, err := e.invoke(ctx, runID, n, inputs)
	if err != nil {
		return nil, err
	}
	for _, out := range n.OutputNames {
		if v, ok := outputs[out]; ok {
			st.Channels[n.Name+"."+out] = v
		}
	}
	return nil, nil
}

func (e *Engine) invoke(ctx context.Context, runID string, n *compile.Node, inputs map[string]interface{}) (map[string]interface{}, error) {
	fn, ok := e.Resolver.Resolve(n.CallTarget)
	if !ok {
		return nil, &NodeError{Node: n.Name, Kind: "missing_callable", Message: "no callable registered for " + n.CallTarget}
	}
	config := literalMap(n.Const)
	config["configurable"] = map[string]interface{}{"thread_id": runID}

	out, err := fn.Invoke(ctx, inputs, config)
	if err != nil {
		return nil, &NodeError{Node: n.Name, Kind: "node_error", Message: err.Error()}
	}
	return out, nil
}

func resolveInputs(bindings []compile.InputBinding, channels map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(bindings))
	for _, b := range bindings {
		if b.Source.Literal != nil {
			out[b.Name] = literalToValue(*b.Source.Literal)
			continue
		}
		out[b.Name] = channels[b.Source.ChannelName]
	}
	return out
}
