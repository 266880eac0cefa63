package parser

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

const linearSum = `
workflow LinearSum {
  inputs {
    int x;
  }
  outputs {
    y = B.out;
  }
  node A {
    call add_one;
    inputs {
      x = x;
    }
    outputs {
      int out;
    }
  }
  node B {
    call double;
    inputs {
      x = A.out;
    }
    outputs {
      int out;
    }
  }
}
`

func TestParseLinearSum(t *testing.T) {
	wf, err := Parse([]byte(linearSum))
	require.NoError(t, err)
	require.Equal(t, "LinearSum", wf.Name)
	require.Len(t, wf.Inputs, 1)
	require.Equal(t, "x", wf.Inputs[0].Name)
	require.Equal(t, "int", wf.Inputs[0].Type)
	require.Len(t, wf.Nodes, 2)
	require.Equal(t, "add_one", wf.Nodes[0].CallTarget)
	out, ok := wf.Outputs["y"]
	require.True(t, ok)
	require.Equal(t, RefDotted, out.Kind)
	require.Equal(t, "B", out.Scope)
}

func TestParseCycleWithGuardAndReducer(t *testing.T) {
	src := `
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
	wf, err := Parse([]byte(src))
	require.NoError(t, err)
	require.Len(t, wf.Cycles, 1)
	c := wf.Cycles[0]
	require.Equal(t, 10, c.MaxIterations)
	require.NotNil(t, c.Guard)
	require.Equal(t, "!", c.Guard.Op)
	out := c.Outputs["items"]
	require.Equal(t, ReducerAppend, out.Reducer)
}

func TestParseErrorReportsPosition(t *testing.T) {
	_, err := Parse([]byte("workflow X { inputs { } outputs } }"))
	require.Error(t, err)
	pe, ok := err.(*ParseError)
	require.True(t, ok)
	require.Greater(t, pe.Line, 0)
}

func stripPositions(wf *Workflow) {
	for k, v := range wf.Outputs {
		stripValueExprPositions(&v)
		wf.Outputs[k] = v
	}
	for _, n := range wf.Nodes {
		stripNodePositions(n)
	}
	for _, c := range wf.Cycles {
		c.Line, c.Column = 0, 0
		for i := range c.Inputs {
			stripValueExprPositions(&c.Inputs[i].Expr)
		}
		for k, v := range c.Outputs {
			stripValueExprPositions(&v)
			c.Outputs[k] = v
		}
		for _, n := range c.Nodes {
			stripNodePositions(n)
		}
		stripExprPositions(c.Guard)
	}
}

func stripNodePositions(n *Node) {
	n.Line, n.Column = 0, 0
	for i := range n.Inputs {
		stripValueExprPositions(&n.Inputs[i].Expr)
	}
	stripExprPositions(n.When)
}

func stripValueExprPositions(ve *ValueExpr) {
	ve.Line, ve.Column = 0, 0
}

func stripExprPositions(e *Expr) {
	if e == nil {
		return
	}
	e.Line, e.Column = 0, 0
	if e.Value != nil {
		e.Value.Line, e.Value.Column = 0, 0
	}
	for _, c := range e.Children {
		stripExprPositions(c)
	}
}

var cycleSrc = `
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

func TestRoundTripShape(t *testing.T) {
	sources := []string{linearSum, cycleSrc}
	for _, src := range sources {
		wf1, err := Parse([]byte(src))
		require.NoError(t, err)
		printed := Print(wf1)

		wf2, err := Parse([]byte(printed))
		require.NoError(t, err, "re-parsing printed output: %s", printed)

		stripPositions(wf1)
		stripPositions(wf2)
		require.True(t, reflect.DeepEqual(wf1, wf2), "round-trip mismatch:\n--- original ---\n%s\n--- reprinted ---\n%s", src, printed)
	}
}
