// Package compile validates a parsed WIRL AST against the invariants in
// spec.md §3 and lowers it into an executable graph: reducers, dependency
// sets, and a topological execution order.
package compile

import (
	"github.com/wirl-lang/wirl/internal/wirl/parser"
)

// Source is one resolved value-expression: either a literal, a reference to
// a workflow input, or a qualified channel reference with its reducer.
type Source struct {
	Literal     *parser.Literal
	ChannelName string // qualified name: "x" (workflow input) or "Node.out"
	Reducer     parser.Reducer
}

// InputBinding is a resolved node/cycle input: the local name bound to a
// Source.
type InputBinding struct {
	Name   string
	Source Source
}

// Node is a compiled node, ready for execution. ID is fully qualified
// ("A" at top level, "C/Pick" inside cycle C) to disambiguate names across
// cycle scopes while keeping cycle-internal dotted references ("Pick.value")
// distinct from the qualifying ID.
type Node struct {
	ID           string
	Name         string
	CallTarget   string
	Inputs       []InputBinding
	OutputNames  []string
	Const        map[string]parser.Literal
	When         *Guard
	HITL         *parser.HITL
	Dependencies []string // qualified channel names read
	Produces     []string // qualified channel names written ("Name.out")
}

// Cycle is a compiled cycle super-node.
type Cycle struct {
	Name          string
	EntryInputs   []InputBinding // bound from the OUTER scope at cycle entry
	Nodes         []*Node        // internal topological order
	ChannelReducer map[string]parser.Reducer // internal channel -> reducer (non-replace entries only)
	Guard         *Guard
	MaxIterations int
	Outputs       map[string]Source // declared cycle output -> internal channel ref
	Dependencies  []string          // outer channels EntryInputs read
	Produces      []string          // outer-qualified cycle outputs ("C.items")
}

// Element is either a *Node or a *Cycle participating in the top-level
// topological order.
type Element struct {
	Node  *Node
	Cycle *Cycle
}

func (e Element) name() string {
	if e.Node != nil {
		return e.Node.Name
	}
	return e.Cycle.Name
}

func (e Element) dependencies() []string {
	if e.Node != nil {
		return e.Node.Dependencies
	}
	return e.Cycle.Dependencies
}

func (e Element) produces() []string {
	if e.Node != nil {
		return e.Node.Produces
	}
	return e.Cycle.Produces
}

// Workflow is the immutable, compiled graph described in spec.md §3.
type Workflow struct {
	TemplateName string
	SourceHash   string
	Inputs       map[string]string // name -> declared (documentary) type
	Outputs      map[string]Source // workflow output name -> source channel
	Nodes        map[string]*Node
	Cycles       map[string]*Cycle
	Order        []Element // topological order, lexicographic tie-break
}

// NodeByName returns a top-level node, or nil.
func (w *Workflow) NodeByName(name string) *Node { return w.Nodes[name] }

// CycleByName returns a top-level cycle, or nil.
func (w *Workflow) CycleByName(name string) *Cycle { return w.Cycles[name] }
