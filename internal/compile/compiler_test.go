package compile

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wirl-lang/wirl/internal/wirl/parser"
)

func mustParse(t *testing.T, src string) *parser.Workflow {
	t.Helper()
	wf, err := parser.Parse([]byte(src))
	require.NoError(t, err)
	return wf
}

const linearSumSrc = `
workflow LinearSum {
  inputs { int x; }
  outputs { y = B.out; }
  node A {
    call add_one;
    inputs { x = x; }
    outputs { int out; }
  }
  node B {
    call double;
    inputs { x = A.out; }
    outputs { int out; }
  }
}
`

func TestCompileLinearSum(t *testing.T) {
	wf := mustParse(t, linearSumSrc)
	g, err := Compile(wf, "linear_sum", "deadbeef")
	require.NoError(t, err)
	require.Len(t, g.Order, 2)
	require.Equal(t, "A", g.Order[0].name())
	require.Equal(t, "B", g.Order[1].name())
	require.Equal(t, []string{"A.out"}, g.Nodes["B"].Dependencies)
	require.Equal(t, "B.out", g.Outputs["y"].ChannelName)
}

const cycleSrc2 = `
workflow Loopy {
  inputs { seed; }
  outputs { items = C.items; }
  cycle C {
    inputs { seed = seed; }
    outputs { items = Accumulate.items (append); }
    nodes {
      node Pick {
        call pick;
        inputs { seed = C.seed; }
        outputs { done; value; }
      }
      node Accumulate {
        call accumulate;
        inputs { value = Pick.value; }
        outputs { items; }
      }
    }
    guard !Pick.done;
    max_iterations 10;
  }
}
`

func TestCompileCycle(t *testing.T) {
	wf := mustParse(t, cycleSrc2)
	g, err := Compile(wf, "loopy", "abc123")
	require.NoError(t, err)
	c := g.Cycles["C"]
	require.Len(t, c.Nodes, 2)
	require.Equal(t, "Pick", c.Nodes[0].Name)
	require.Equal(t, "Accumulate", c.Nodes[1].Name)
	require.Equal(t, parser.ReducerAppend, c.ChannelReducer["Accumulate.items"])
	require.Equal(t, []string{"seed"}, c.Dependencies)
	require.Equal(t, "C.items", g.Outputs["items"].ChannelName)
}

func TestCompileDuplicateName(t *testing.T) {
	src := `
workflow Dup {
  inputs { x; }
  outputs { y = A.out; }
  node A { call f; inputs { x = x; } outputs { out; } }
  node A { call g; inputs { x = x; } outputs { out; } }
}
`
	wf := mustParse(t, src)
	_, err := Compile(wf, "dup", "h")
	require.Error(t, err)
	el, ok := err.(ErrorList)
	require.True(t, ok)
	require.Contains(t, el.Error(), string(ErrDuplicateName))
}

func TestCompileUnresolvedReference(t *testing.T) {
	src := `
workflow Bad {
  inputs { x; }
  outputs { y = A.out; }
  node A { call f; inputs { x = nope; } outputs { out; } }
}
`
	wf := mustParse(t, src)
	_, err := Compile(wf, "bad", "h")
	require.Error(t, err)
	el := err.(ErrorList)
	found := false
	for _, e := range el {
		if e.Kind == ErrUnresolvedRef {
			found = true
		}
	}
	require.True(t, found)
}

func TestCompileNonDottedInsideCycle(t *testing.T) {
	src := `
workflow Bad {
  inputs { x; }
  outputs { y = C.out; }
  cycle C {
    inputs { x = x; }
    outputs { out = Pick.value; }
    nodes {
      node Pick {
        call pick;
        inputs { v = x; }
        outputs { value; }
      }
    }
    guard true;
    max_iterations 3;
  }
}
`
	wf := mustParse(t, src)
	_, err := Compile(wf, "bad", "h")
	require.Error(t, err)
	el := err.(ErrorList)
	found := false
	for _, e := range el {
		if e.Kind == ErrNonDottedInCycle {
			found = true
		}
	}
	require.True(t, found, "expected non_dotted_in_cycle, got: %s", el.Error())
}

func TestCompileDeadStart(t *testing.T) {
	src := `
workflow Dead {
  inputs { x; }
  outputs { y = A.out; }
  node A { call f; inputs { c = "literal"; } outputs { out; } const { k: 1 } }
}
`
	wf := mustParse(t, src)
	_, err := Compile(wf, "dead", "h")
	require.Error(t, err)
	el := err.(ErrorList)
	found := false
	for _, e := range el {
		if e.Kind == ErrDeadStart {
			found = true
		}
	}
	require.True(t, found, "expected dead_start_graph, got: %s", el.Error())
}

func TestCompileBatchesMultipleErrors(t *testing.T) {
	src := `
workflow Multi {
  inputs { x; }
  outputs { y = A.out; }
  node A { call f; inputs { a = nope; } outputs { out; } }
  node A { call g; inputs { b = alsonope; } outputs { out; } }
}
`
	wf := mustParse(t, src)
	_, err := Compile(wf, "multi", "h")
	require.Error(t, err)
	el := err.(ErrorList)
	require.GreaterOrEqual(t, len(el), 3)
}
