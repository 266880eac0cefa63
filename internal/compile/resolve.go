package compile

import (
	"fmt"

	"github.com/wirl-lang/wirl/internal/wirl/parser"
)

// scope resolves value-expressions against a set of channels visible at a
// particular point in the graph: either the top level (workflow inputs plus
// every top-level node/cycle's declared outputs) or the inside of one cycle
// (the cycle's own inputs plus its sibling nodes' outputs).
type scope struct {
	// dottedRequired is true inside a cycle, where bare identifiers are
	// rejected (spec.md §3: "Dotted notation is mandatory inside cycles").
	dottedRequired bool

	// workflowInputs is only consulted when dottedRequired is false.
	workflowInputs map[string]bool

	// outputsOf maps a scope name (node or cycle name) to its set of
	// declared output names.
	outputsOf map[string]map[string]bool

	// reducerAllowed reports whether a reducer tag is syntactically legal
	// at this resolution site.
	reducerAllowed bool
}

func (s *scope) resolve(ve parser.ValueExpr, scopeName string) (Source, []*CompileError) {
	switch ve.Kind {
	case parser.RefLiteral:
		lit := ve.Literal
		return Source{Literal: &lit}, nil

	case parser.RefIdent:
		if s.dottedRequired {
			return Source{}, []*CompileError{{
				Kind: ErrNonDottedInCycle, Scope: scopeName, Line: ve.Line, Column: ve.Column,
				Message: fmt.Sprintf("bare reference %q is not allowed inside a cycle; use Cycle.%s", ve.Name, ve.Name),
			}}
		}
		if !s.workflowInputs[ve.Name] {
			return Source{}, []*CompileError{{
				Kind: ErrUnresolvedRef, Scope: scopeName, Line: ve.Line, Column: ve.Column,
				Message: fmt.Sprintf("unresolved reference to workflow input %q", ve.Name),
			}}
		}
		return Source{ChannelName: ve.Name, Reducer: parser.ReducerReplace}, nil

	case parser.RefDotted:
		outs, ok := s.outputsOf[ve.Scope]
		if !ok {
			kind := ErrUnresolvedRef
			msg := fmt.Sprintf("reference to undeclared scope %q", ve.Scope)
			if s.dottedRequired {
				kind = ErrCrossCycleRef
				msg = fmt.Sprintf("reference to %q escapes the enclosing cycle", ve.Scope)
			}
			return Source{}, []*CompileError{{Kind: kind, Scope: scopeName, Line: ve.Line, Column: ve.Column, Message: msg}}
		}
		if !outs[ve.Field] {
			return Source{}, []*CompileError{{
				Kind: ErrUnresolvedRef, Scope: scopeName, Line: ve.Line, Column: ve.Column,
				Message: fmt.Sprintf("%q has no declared output %q", ve.Scope, ve.Field),
			}}
		}
		if ve.Reducer != parser.ReducerReplace && !s.reducerAllowed {
			return Source{}, []*CompileError{{
				Kind: ErrIllegalReducer, Scope: scopeName, Line: ve.Line, Column: ve.Column,
				Message: fmt.Sprintf("reducer tag (%s) is only allowed on cycle outputs or cycle-internal node inputs", ve.Reducer),
			}}
		}
		return Source{ChannelName: ve.Scope + "." + ve.Field, Reducer: ve.Reducer}, nil
	}
	return Source{}, []*CompileError{{Kind: ErrUnresolvedRef, Scope: scopeName, Message: "unrecognized value expression"}}
}

// resolveGuardDeps walks a boolean Expr tree, resolving every leaf
// ValueExpr through scope and returning the union of errors and dependency
// channel names.
func (s *scope) resolveGuardDeps(e *parser.Expr, scopeName string) ([]string, []*CompileError) {
	if e == nil {
		return nil, nil
	}
	if e.Value != nil {
		guardScope := *s
		guardScope.reducerAllowed = false
		src, errs := guardScope.resolve(*e.Value, scopeName)
		if len(errs) > 0 {
			return nil, errs
		}
		if src.ChannelName != "" {
			return []string{src.ChannelName}, nil
		}
		return nil, nil
	}
	var deps []string
	var errs []*CompileError
	for _, c := range e.Children {
		d, e2 := s.resolveGuardDeps(c, scopeName)
		deps = append(deps, d...)
		errs = append(errs, e2...)
	}
	return deps, errs
}

func uniqueStrings(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
