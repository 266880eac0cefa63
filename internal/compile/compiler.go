package compile

import (
	"fmt"

	"github.com/wirl-lang/wirl/internal/wirl/parser"
)

// Compile lowers a parsed WIRL workflow into an executable graph, validating
// every invariant in spec.md §3. On failure it returns an ErrorList holding
// every violation found in this pass, not just the first (spec.md §8,
// testable property #2).
func Compile(wf *parser.Workflow, templateName, sourceHash string) (*Workflow, error) {
	var errs ErrorList

	if len(wf.Inputs) == 0 {
		errs = append(errs, &CompileError{Kind: ErrNoInputs, Scope: wf.Name, Message: "workflow declares no inputs"})
	}
	if len(wf.Outputs) == 0 {
		errs = append(errs, &CompileError{Kind: ErrNoOutputs, Scope: wf.Name, Message: "workflow declares no outputs"})
	}

	seen := map[string]bool{}
	for _, n := range wf.Nodes {
		if seen[n.Name] {
			errs = append(errs, &CompileError{Kind: ErrDuplicateName, Scope: wf.Name, Line: n.Line, Column: n.Column,
				Message: fmt.Sprintf("duplicate top-level node/cycle name %q", n.Name)})
		}
		seen[n.Name] = true
	}
	for _, c := range wf.Cycles {
		if seen[c.Name] {
			errs = append(errs, &CompileError{Kind: ErrDuplicateName, Scope: wf.Name, Line: c.Line, Column: c.Column,
				Message: fmt.Sprintf("duplicate top-level node/cycle name %q", c.Name)})
		}
		seen[c.Name] = true
	}

	workflowInputNames := map[string]bool{}
	inputTypes := map[string]string{}
	for _, p := range wf.Inputs {
		workflowInputNames[p.Name] = true
		inputTypes[p.Name] = p.Type
	}

	outputsOf := map[string]map[string]bool{}
	for _, n := range wf.Nodes {
		set := map[string]bool{}
		for _, o := range n.Outputs {
			set[o.Name] = true
		}
		outputsOf[n.Name] = set
	}
	for _, c := range wf.Cycles {
		set := map[string]bool{}
		for name := range c.Outputs {
			set[name] = true
		}
		outputsOf[c.Name] = set
	}

	topScope := &scope{workflowInputs: workflowInputNames, outputsOf: outputsOf, reducerAllowed: false}

	compiledNodes := map[string]*Node{}
	producedBy := map[string]string{}
	var elements []Element

	for _, n := range wf.Nodes {
		cn, nerrs := compileTopLevelNode(n, topScope)
		errs = append(errs, nerrs...)
		compiledNodes[n.Name] = cn
		for _, p := range cn.Produces {
			producedBy[p] = n.Name
		}
		elements = append(elements, Element{Node: cn})
	}

	compiledCycles := map[string]*Cycle{}
	for _, c := range wf.Cycles {
		cc, cerrs := compileCycle(c, topScope)
		errs = append(errs, cerrs...)
		compiledCycles[c.Name] = cc
		for _, p := range cc.Produces {
			producedBy[p] = c.Name
		}
		elements = append(elements, Element{Cycle: cc})
	}

	order, err := topoSort(elements, producedBy)
	if err != nil {
		errs = append(errs, err.(*CompileError))
	}

	hasConsumer := len(workflowInputNames) == 0
	for _, e := range elements {
		for _, d := range e.dependencies() {
			if workflowInputNames[d] {
				hasConsumer = true
			}
		}
	}
	if !hasConsumer {
		errs = append(errs, &CompileError{Kind: ErrDeadStart, Scope: wf.Name,
			Message: "no node or cycle consumes a workflow input; the graph can never start"})
	}

	outputs := map[string]Source{}
	for name, ve := range wf.Outputs {
		src, oerrs := topScope.resolve(ve, wf.Name)
		errs = append(errs, oerrs...)
		outputs[name] = src
	}

	if len(errs) > 0 {
		return nil, errs
	}

	return &Workflow{
		TemplateName: templateName,
		SourceHash:   sourceHash,
		Inputs:       inputTypes,
		Outputs:      outputs,
		Nodes:        compiledNodes,
		Cycles:       compiledCycles,
		Order:        order,
	}, nil
}

func compileTopLevelNode(n *parser.Node, s *scope) (*Node, ErrorList) {
	var errs ErrorList
	var inputs []InputBinding
	var deps []string

	for _, ni := range n.Inputs {
		src, ierrs := s.resolve(ni.Expr, n.Name)
		errs = append(errs, ierrs...)
		inputs = append(inputs, InputBinding{Name: ni.Name, Source: src})
		if src.ChannelName != "" {
			deps = append(deps, src.ChannelName)
		}
	}

	var outputNames []string
	for _, o := range n.Outputs {
		outputNames = append(outputNames, o.Name)
	}

	var guard *Guard
	if n.When != nil {
		d, gerrs := s.resolveGuardDeps(n.When, n.Name)
		errs = append(errs, gerrs...)
		deps = append(deps, d...)
		if len(gerrs) == 0 {
			g, err := CompileGuard(n.When)
			if err != nil {
				errs = append(errs, &CompileError{Kind: ErrInvalidGuard, Scope: n.Name, Line: n.Line, Column: n.Column, Message: err.Error()})
			} else {
				guard = g
			}
		}
	}

	var produces []string
	for _, o := range outputNames {
		produces = append(produces, n.Name+"."+o)
	}

	return &Node{
		ID:           n.Name,
		Name:         n.Name,
		CallTarget:   n.CallTarget,
		Inputs:       inputs,
		OutputNames:  outputNames,
		Const:        n.Const,
		When:         guard,
		HITL:         n.HITL,
		Dependencies: uniqueStrings(deps),
		Produces:     produces,
	}, errs
}

func compileCycle(c *parser.Cycle, outerScope *scope) (*Cycle, ErrorList) {
	var errs ErrorList

	var entryInputs []InputBinding
	var entryDeps []string
	for _, ni := range c.Inputs {
		src, ierrs := outerScope.resolve(ni.Expr, c.Name)
		errs = append(errs, ierrs...)
		entryInputs = append(entryInputs, InputBinding{Name: ni.Name, Source: src})
		if src.ChannelName != "" {
			entryDeps = append(entryDeps, src.ChannelName)
		}
	}

	internalOutputsOf := map[string]map[string]bool{
		c.Name: {},
	}
	for _, ni := range c.Inputs {
		internalOutputsOf[c.Name][ni.Name] = true
	}

	internalNames := map[string]bool{}
	for _, n := range c.Nodes {
		if internalNames[n.Name] {
			errs = append(errs, &CompileError{Kind: ErrDuplicateName, Scope: c.Name, Line: n.Line, Column: n.Column,
				Message: fmt.Sprintf("duplicate node name %q inside cycle %q", n.Name, c.Name)})
		}
		internalNames[n.Name] = true
		set := map[string]bool{}
		for _, o := range n.Outputs {
			set[o.Name] = true
		}
		internalOutputsOf[n.Name] = set
	}

	internalScope := &scope{dottedRequired: true, outputsOf: internalOutputsOf, reducerAllowed: true}

	channelReducer := map[string]parser.Reducer{}
	var compiledNodes []*Node
	var internalElements []Element
	internalProducedBy := map[string]string{}

	for _, n := range c.Nodes {
		cn, nerrs := compileInternalNode(n, c.Name, internalScope, channelReducer)
		errs = append(errs, nerrs...)
		compiledNodes = append(compiledNodes, cn)
		for _, p := range cn.Produces {
			internalProducedBy[p] = n.Name
		}
		internalElements = append(internalElements, Element{Node: cn})
	}

	order, oerr := topoSort(internalElements, internalProducedBy)
	if oerr != nil {
		errs = append(errs, &CompileError{Kind: ErrCycleInternalCycle, Scope: c.Name,
			Message: fmt.Sprintf("cycle %q contains an internal dependency cycle among its nodes", c.Name)})
	} else {
		compiledNodes = make([]*Node, 0, len(order))
		for _, e := range order {
			compiledNodes = append(compiledNodes, e.Node)
		}
	}

	var guard *Guard
	if c.Guard != nil {
		_, gerrs := internalScope.resolveGuardDeps(c.Guard, c.Name)
		errs = append(errs, gerrs...)
		if len(gerrs) == 0 {
			g, err := CompileGuard(c.Guard)
			if err != nil {
				errs = append(errs, &CompileError{Kind: ErrInvalidGuard, Scope: c.Name, Line: c.Line, Column: c.Column, Message: err.Error()})
			} else {
				guard = g
			}
		}
	}

	if c.MaxIterations <= 0 {
		errs = append(errs, &CompileError{Kind: ErrInvalidMaxIter, Scope: c.Name, Line: c.Line, Column: c.Column,
			Message: fmt.Sprintf("max_iterations must be positive, got %d", c.MaxIterations)})
	}

	outputs := map[string]Source{}
	var produces []string
	for name, ve := range c.Outputs {
		src, oerrs := internalScope.resolve(ve, c.Name)
		errs = append(errs, oerrs...)
		outputs[name] = src
		if src.Reducer != parser.ReducerReplace && src.ChannelName != "" {
			channelReducer[src.ChannelName] = src.Reducer
		}
		produces = append(produces, c.Name+"."+name)
	}

	return &Cycle{
		Name:           c.Name,
		EntryInputs:    entryInputs,
		Nodes:          compiledNodes,
		ChannelReducer: channelReducer,
		Guard:          guard,
		MaxIterations:  c.MaxIterations,
		Outputs:        outputs,
		Dependencies:   uniqueStrings(entryDeps),
		Produces:       produces,
	}, errs
}

func compileInternalNode(n *parser.Node, cycleName string, s *scope, channelReducer map[string]parser.Reducer) (*Node, ErrorList) {
	var errs ErrorList
	var inputs []InputBinding
	var deps []string

	for _, ni := range n.Inputs {
		src, ierrs := s.resolve(ni.Expr, cycleName+"/"+n.Name)
		errs = append(errs, ierrs...)
		inputs = append(inputs, InputBinding{Name: ni.Name, Source: src})
		if src.ChannelName != "" {
			deps = append(deps, src.ChannelName)
			if src.Reducer != parser.ReducerReplace {
				channelReducer[src.ChannelName] = src.Reducer
			}
		}
	}

	var outputNames []string
	for _, o := range n.Outputs {
		outputNames = append(outputNames, o.Name)
	}

	var guard *Guard
	if n.When != nil {
		d, gerrs := s.resolveGuardDeps(n.When, cycleName+"/"+n.Name)
		errs = append(errs, gerrs...)
		deps = append(deps, d...)
		if len(gerrs) == 0 {
			g, err := CompileGuard(n.When)
			if err != nil {
				errs = append(errs, &CompileError{Kind: ErrInvalidGuard, Scope: cycleName + "/" + n.Name, Line: n.Line, Column: n.Column, Message: err.Error()})
			} else {
				guard = g
			}
		}
	}

	var produces []string
	for _, o := range outputNames {
		produces = append(produces, n.Name+"."+o)
	}

	return &Node{
		ID:           cycleName + "/" + n.Name,
		Name:         n.Name,
		CallTarget:   n.CallTarget,
		Inputs:       inputs,
		OutputNames:  outputNames,
		Const:        n.Const,
		When:         guard,
		HITL:         n.HITL,
		Dependencies: uniqueStrings(deps),
		Produces:     produces,
	}, errs
}
