package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagerun/pagerun/internal/dispatch"
	"github.com/pagerun/pagerun/pkg/schema"
)

func loopWorkflow(loop *schema.Loop) *schema.Workflow {
	return &schema.Workflow{
		Name: "t",
		Steps: []schema.Step{
			{Name: "looper", Loop: loop},
		},
	}
}

func TestForLoop_EndBoundIsInclusive(t *testing.T) {
	d := &fakeDispatcher{}
	wf := loopWorkflow(&schema.Loop{
		Type:  schema.LoopFor,
		Var:   "i",
		Start: 1,
		End:   3,
		Actions: []schema.Step{
			{Name: "body", Action: "fill", Value: schema.StringValue("{{i}}")},
		},
	})

	result := execute(t, wf, d)

	assert.Equal(t, schema.RunStatusCompleted, result.Status)
	require.Equal(t, 3, d.callCount(), "for 1..3 runs three passes")
	assert.Equal(t, "1", d.call(0).Value.Text())
	assert.Equal(t, "2", d.call(1).Value.Text())
	assert.Equal(t, "3", d.call(2).Value.Text())
}

func TestForLoop_NegativeStride(t *testing.T) {
	d := &fakeDispatcher{}
	wf := loopWorkflow(&schema.Loop{
		Type:  schema.LoopFor,
		Var:   "i",
		Start: 3,
		End:   1,
		Step:  -1,
		Actions: []schema.Step{
			{Name: "body", Action: "fill", Value: schema.StringValue("{{i}}")},
		},
	})

	result := execute(t, wf, d)

	assert.Equal(t, schema.RunStatusCompleted, result.Status)
	require.Equal(t, 3, d.callCount())
	assert.Equal(t, "3", d.call(0).Value.Text())
	assert.Equal(t, "1", d.call(2).Value.Text())
}

func TestForLoop_IterationAnnotations(t *testing.T) {
	d := &fakeDispatcher{}
	wf := loopWorkflow(&schema.Loop{
		Type:  schema.LoopFor,
		Var:   "i",
		Start: 0,
		End:   1,
		Actions: []schema.Step{
			{Name: "body", Action: "click"},
		},
	})

	result := execute(t, wf, d)

	require.Len(t, result.Trace, 2)
	for n, res := range result.Trace {
		assert.Equal(t, "looper", res.LoopStep)
		require.NotNil(t, res.Iteration)
		assert.Equal(t, n, *res.Iteration)
	}
}

func TestForEachLoop_IteratesListItems(t *testing.T) {
	d := &fakeDispatcher{}
	wf := loopWorkflow(&schema.Loop{
		Type:  schema.LoopForEach,
		Var:   "item",
		Items: schema.ListValue(schema.StringValue("a"), schema.StringValue("b")),
		Actions: []schema.Step{
			{Name: "body", Action: "fill", Value: schema.StringValue("{{item}}")},
		},
	})

	result := execute(t, wf, d)

	assert.Equal(t, schema.RunStatusCompleted, result.Status)
	require.Equal(t, 2, d.callCount())
	assert.Equal(t, "a", d.call(0).Value.Text())
	assert.Equal(t, "b", d.call(1).Value.Text())
}

func TestForEachLoop_ItemsFromVariable(t *testing.T) {
	d := &fakeDispatcher{}
	wf := loopWorkflow(&schema.Loop{
		Type:  schema.LoopForEach,
		Var:   "item",
		Items: schema.StringValue("{{targets}}"),
		Actions: []schema.Step{
			{Name: "body", Action: "fill", Value: schema.StringValue("{{item}}")},
		},
	})
	wf.Variables = map[string]schema.Value{
		"targets": schema.ListValue(schema.StringValue("x"), schema.StringValue("y"), schema.StringValue("z")),
	}

	result := execute(t, wf, d)

	assert.Equal(t, schema.RunStatusCompleted, result.Status)
	assert.Equal(t, 3, d.callCount())
}

func TestForEachLoop_CommaSplitString(t *testing.T) {
	d := &fakeDispatcher{}
	wf := loopWorkflow(&schema.Loop{
		Type:  schema.LoopForEach,
		Var:   "item",
		Items: schema.StringValue("a, b ,c"),
		Actions: []schema.Step{
			{Name: "body", Action: "fill", Value: schema.StringValue("{{item}}")},
		},
	})

	result := execute(t, wf, d)

	assert.Equal(t, schema.RunStatusCompleted, result.Status)
	require.Equal(t, 3, d.callCount())
	assert.Equal(t, "b", d.call(1).Value.Text())
}

func TestWhileLoop_StopsWhenConditionFalsifies(t *testing.T) {
	// The body captures the dispatch output into n; the loop runs while
	// n < 3. The dispatcher returns its own call count.
	var calls int
	d := &fakeDispatcher{fn: func(context.Context, dispatch.Request) (schema.Value, error) {
		calls++
		return schema.NumberValue(float64(calls)), nil
	}}
	wf := loopWorkflow(&schema.Loop{
		Type: schema.LoopWhile,
		Condition: schema.ConditionSet{{
			Left:     schema.StringValue("{{n}}"),
			Operator: schema.OpLess,
			Right:    schema.NumberValue(3),
		}},
		Actions: []schema.Step{
			{Name: "body", Action: "evaluate", OutputVar: "n"},
		},
	})
	wf.Variables = map[string]schema.Value{"n": schema.NumberValue(0)}

	result := execute(t, wf, d)

	assert.Equal(t, schema.RunStatusCompleted, result.Status)
	assert.Equal(t, 3, calls, "runs for n=0,1,2; stops once n reaches 3")
}

func TestWhileLoop_FalseConditionRunsZeroTimes(t *testing.T) {
	d := &fakeDispatcher{}
	wf := loopWorkflow(&schema.Loop{
		Type: schema.LoopWhile,
		Condition: schema.ConditionSet{{
			Left:     schema.StringValue("missing"),
			Operator: schema.OpExists,
		}},
		Actions: []schema.Step{
			{Name: "body", Action: "click"},
		},
	})

	result := execute(t, wf, d)

	assert.Equal(t, schema.RunStatusCompleted, result.Status)
	assert.Equal(t, 0, d.callCount())
}

func TestDoWhileLoop_RunsAtLeastOnce(t *testing.T) {
	d := &fakeDispatcher{}
	wf := loopWorkflow(&schema.Loop{
		Type: schema.LoopDoWhile,
		Condition: schema.ConditionSet{{
			Left:     schema.StringValue("missing"),
			Operator: schema.OpExists,
		}},
		Actions: []schema.Step{
			{Name: "body", Action: "click"},
		},
	})

	result := execute(t, wf, d)

	assert.Equal(t, schema.RunStatusCompleted, result.Status)
	assert.Equal(t, 1, d.callCount(), "do_while tests after the first pass")
}

func TestUntilLoop_RunsUntilConditionHolds(t *testing.T) {
	var calls int
	d := &fakeDispatcher{fn: func(context.Context, dispatch.Request) (schema.Value, error) {
		calls++
		return schema.NumberValue(float64(calls)), nil
	}}
	wf := loopWorkflow(&schema.Loop{
		Type: schema.LoopUntil,
		Condition: schema.ConditionSet{{
			Left:     schema.StringValue("{{n}}"),
			Operator: schema.OpGreaterOrEqual,
			Right:    schema.NumberValue(2),
		}},
		Actions: []schema.Step{
			{Name: "body", Action: "evaluate", OutputVar: "n"},
		},
	})

	result := execute(t, wf, d)

	assert.Equal(t, schema.RunStatusCompleted, result.Status)
	assert.Equal(t, 2, calls, "until loops while the condition is false")
}

func TestRepeatLoop_RunsExactlyTimes(t *testing.T) {
	d := &fakeDispatcher{}
	wf := loopWorkflow(&schema.Loop{
		Type:  schema.LoopRepeat,
		Times: 4,
		Actions: []schema.Step{
			{Name: "body", Action: "click"},
		},
	})

	result := execute(t, wf, d)

	assert.Equal(t, schema.RunStatusCompleted, result.Status)
	assert.Equal(t, 4, d.callCount())
}

func TestConditionLoop_IterationFence(t *testing.T) {
	d := &fakeDispatcher{}
	wf := loopWorkflow(&schema.Loop{
		Type: schema.LoopWhile,
		// Always true: the fence is the only way out.
		Condition: schema.ConditionSet{{
			Left:     schema.NumberValue(1),
			Operator: schema.OpEqual,
			Right:    schema.NumberValue(1),
		}},
		MaxIterations: 5,
		Actions: []schema.Step{
			{Name: "body", Action: "click"},
		},
	})

	result := execute(t, wf, d)

	assert.Equal(t, 5, d.callCount())
	assert.Equal(t, schema.RunStatusFailed, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, schema.ErrCodeIterationFence, result.Error.Code)
}

func TestLoopBody_StopPolicyAbortsWorkflow(t *testing.T) {
	d := &fakeDispatcher{fn: func(_ context.Context, req dispatch.Request) (schema.Value, error) {
		if req.Action == "explode" {
			return schema.Value{}, errors.New("boom")
		}
		return schema.Value{}, nil
	}}
	wf := &schema.Workflow{
		Name: "t",
		Steps: []schema.Step{
			{
				Name: "looper",
				Loop: &schema.Loop{
					Type:  schema.LoopRepeat,
					Times: 3,
					Actions: []schema.Step{
						{Name: "body", Action: "explode"},
					},
				},
			},
			{Name: "after", Action: "click"},
		},
	}

	result := execute(t, wf, d)

	assert.Equal(t, schema.RunStatusFailed, result.Status)
	assert.Equal(t, 1, d.callCount(), "stop semantics reach through loop bodies")
}

func TestLoopBody_ContinuePolicyFinishesIterations(t *testing.T) {
	d := &fakeDispatcher{fn: func(_ context.Context, req dispatch.Request) (schema.Value, error) {
		return schema.Value{}, errors.New("boom")
	}}
	wf := loopWorkflow(&schema.Loop{
		Type:  schema.LoopRepeat,
		Times: 3,
		Actions: []schema.Step{
			{Name: "body", Action: "click", OnError: schema.ErrorPolicyContinue},
		},
	})

	result := execute(t, wf, d)

	assert.Equal(t, 3, d.callCount(), "continue lets the loop finish")
	// The loop step itself is failed; the workflow default policy stops.
	assert.Equal(t, schema.RunStatusFailed, result.Status)
}

func TestNestedLoops(t *testing.T) {
	d := &fakeDispatcher{}
	wf := loopWorkflow(&schema.Loop{
		Type:  schema.LoopFor,
		Var:   "i",
		Start: 1,
		End:   2,
		Actions: []schema.Step{
			{
				Name: "inner",
				Loop: &schema.Loop{
					Type:  schema.LoopForEach,
					Var:   "item",
					Items: schema.StringValue("a,b"),
					Actions: []schema.Step{
						{Name: "leaf", Action: "fill", Value: schema.StringValue("{{i}}-{{item}}")},
					},
				},
			},
		},
	})

	result := execute(t, wf, d)

	assert.Equal(t, schema.RunStatusCompleted, result.Status)
	require.Equal(t, 4, d.callCount())
	assert.Equal(t, "1-a", d.call(0).Value.Text())
	assert.Equal(t, "2-b", d.call(3).Value.Text())
}

func TestLoop_ConditionGatesWholeLoop(t *testing.T) {
	d := &fakeDispatcher{}
	wf := &schema.Workflow{
		Name: "t",
		Steps: []schema.Step{
			{
				Name: "looper",
				Condition: schema.ConditionSet{{
					Left:     schema.StringValue("missing"),
					Operator: schema.OpExists,
				}},
				Loop: &schema.Loop{
					Type:  schema.LoopRepeat,
					Times: 3,
					Actions: []schema.Step{
						{Name: "body", Action: "click"},
					},
				},
			},
		},
	}

	result := execute(t, wf, d)

	assert.Equal(t, schema.RunStatusCompleted, result.Status)
	assert.Equal(t, 0, d.callCount())
	require.Len(t, result.Trace, 1)
	assert.Equal(t, schema.StepStatusSkipped, result.Trace[0].Status)
}
