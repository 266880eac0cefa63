package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wirl-lang/wirl/internal/callable"
	"github.com/wirl-lang/wirl/internal/compile"
	"github.com/wirl-lang/wirl/internal/wirl/parser"
)

type memSink struct {
	saves []*State
}

func (m *memSink) Save(ctx context.Context, runID string, st *State) error {
	m.saves = append(m.saves, st.clone())
	return nil
}

func compileSrc(t *testing.T, src, name, hash string) *compile.Workflow {
	t.Helper()
	wf, err := parser.Parse([]byte(src))
	require.NoError(t, err)
	g, err := compile.Compile(wf, name, hash)
	require.NoError(t, err)
	return g
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

func TestEngineLinearSum(t *testing.T) {
	g := compileSrc(t, linearSumSrc, "linear_sum", "h1")

	reg := callable.NewRegistry()
	reg.RegisterFunc("add_one", func(ctx context.Context, in, cfg map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"out": in["x"].(int64) + 1}, nil
	})
	reg.RegisterFunc("double", func(ctx context.Context, in, cfg map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"out": in["x"].(int64) * 2}, nil
	})

	eng := New(g, reg)
	st := NewState(map[string]interface{}{"x": int64(3)})
	sink := &memSink{}
	res, err := eng.Run(context.Background(), "run-1", st, nil, nil, sink)
	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, res.Status)

	out := ProjectOutputs(g, res.State.Channels)
	require.Equal(t, int64(8), out["y"])
	require.NotEmpty(t, sink.saves)
}

const branchSrc = `
workflow Branch {
  inputs { flag; }
  outputs { y = B.out; }
  node A {
    call check;
    inputs { flag = flag; }
    outputs { out; }
  }
  node B {
    call act;
    inputs { v = A.out; }
    outputs { out; }
    when A.out;
  }
}
`

func TestEngineBranchSkipped(t *testing.T) {
	g := compileSrc(t, branchSrc, "branch", "h2")
	reg := callable.NewRegistry()
	reg.RegisterFunc("check", func(ctx context.Context, in, cfg map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"out": in["flag"]}, nil
	})
	called := false
	reg.RegisterFunc("act", func(ctx context.Context, in, cfg map[string]interface{}) (map[string]interface{}, error) {
		called = true
		return map[string]interface{}{"out": "acted"}, nil
	})

	eng := New(g, reg)
	st := NewState(map[string]interface{}{"flag": false})
	res, err := eng.Run(context.Background(), "run-2", st, nil, nil, &memSink{})
	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, res.Status)
	require.False(t, called)
	out := ProjectOutputs(g, res.State.Channels)
	require.Nil(t, out["y"])
}

const cycleAppendSrc = `
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

func TestEngineCycleWithAppend(t *testing.T) {
	g := compileSrc(t, cycleAppendSrc, "loopy", "h3")
	reg := callable.NewRegistry()
	calls := 0
	reg.RegisterFunc("pick", func(ctx context.Context, in, cfg map[string]interface{}) (map[string]interface{}, error) {
		calls++
		done := calls >= 3
		return map[string]interface{}{"done": done, "value": int64(calls)}, nil
	})
	reg.RegisterFunc("accumulate", func(ctx context.Context, in, cfg map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"items": in["value"]}, nil
	})

	eng := New(g, reg)
	st := NewState(map[string]interface{}{"seed": int64(0)})
	res, err := eng.Run(context.Background(), "run-3", st, nil, nil, &memSink{})
	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, res.Status)
	out := ProjectOutputs(g, res.State.Channels)
	require.Equal(t, []interface{}{int64(1), int64(2), int64(3)}, out["items"])
}

const hitlSrc = `
workflow Approve {
  inputs { x; }
  outputs { y = Act.out; }
  node Ask {
    call ask;
    inputs { x = x; }
    outputs { out; }
    hitl {
      question: "ok?"
    }
  }
  node Act {
    call act;
    inputs { a = Ask.out; }
    outputs { out; }
  }
}
`

func TestEngineHITLRoundTrip(t *testing.T) {
	g := compileSrc(t, hitlSrc, "approve", "h4")
	reg := callable.NewRegistry()
	reg.RegisterFunc("ask", func(ctx context.Context, in, cfg map[string]interface{}) (map[string]interface{}, error) {
		ans := in["answer"].(map[string]interface{})
		return map[string]interface{}{"out": ans["answer"]}, nil
	})
	reg.RegisterFunc("act", func(ctx context.Context, in, cfg map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"out": in["a"]}, nil
	})

	eng := New(g, reg)
	st := NewState(map[string]interface{}{"x": "hi"})
	res, err := eng.Run(context.Background(), "run-4", st, nil, nil, &memSink{})
	require.NoError(t, err)
	require.Equal(t, StatusNeedsInput, res.Status)
	require.NotNil(t, res.Suspend)
	require.Equal(t, "Ask", res.Suspend.NodeID)

	res2, err := eng.Run(context.Background(), "run-4", res.State, ResumeAnswer{"answer": "ok"}, nil, &memSink{})
	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, res2.Status)
	out := ProjectOutputs(g, res2.State.Channels)
	require.Equal(t, "ok", out["y"])
}

func TestEngineCancelMidCycle(t *testing.T) {
	g := compileSrc(t, cycleAppendSrc, "loopy", "h5")
	reg := callable.NewRegistry()
	calls := 0
	reg.RegisterFunc("pick", func(ctx context.Context, in, cfg map[string]interface{}) (map[string]interface{}, error) {
		calls++
		return map[string]interface{}{"done": false, "value": int64(calls)}, nil
	})
	reg.RegisterFunc("accumulate", func(ctx context.Context, in, cfg map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"items": in["value"]}, nil
	})

	eng := New(g, reg)
	st := NewState(map[string]interface{}{"seed": int64(0)})
	canceled := false
	// Cancel after the first internal pass by flipping the flag once calls >= 1.
	cancelAfterFirstPass := func() bool {
		if calls >= 1 {
			canceled = true
		}
		return canceled
	}
	res, err := eng.Run(context.Background(), "run-5", st, nil, cancelAfterFirstPass, &memSink{})
	require.NoError(t, err)
	require.Equal(t, StatusCanceled, res.Status)
}
