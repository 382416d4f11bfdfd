package engine

import (
	"context"
	"strings"

	"github.com/pagerun/pagerun/pkg/schema"
)

// runLoop drives the six loop kinds over the nested action list. Every
// inner action is a full Step run back through runStep, so loop bodies nest
// arbitrarily. Inner results are appended in order with their iteration
// index preserved.
func (e *Engine) runLoop(ctx context.Context, r *Run, step *schema.Step) (results []schema.ExecutionResult, failed, abort bool) {
	loop := step.Loop

	switch loop.Type {
	case schema.LoopFor:
		return e.runForLoop(ctx, r, step)
	case schema.LoopForEach:
		return e.runForEachLoop(ctx, r, step)
	case schema.LoopWhile, schema.LoopDoWhile, schema.LoopUntil:
		return e.runConditionLoop(ctx, r, step)
	case schema.LoopRepeat:
		return e.runRepeatLoop(ctx, r, step)
	default:
		// Unknown types are rejected by validation; failing safely here
		// means stop semantics.
		err := schema.NewErrorf(schema.ErrCodeConfiguration,
			"unknown loop type %q", loop.Type).WithStep(step.Name)
		return []schema.ExecutionResult{boundaryMarker(step.Name, err)}, true, true
	}
}

// runForLoop iterates Var from Start to End INCLUSIVE by Step (default 1).
// The inclusive end bound is a documented, tested choice: for 1..3 runs
// three passes. Negative steps count down.
func (e *Engine) runForLoop(ctx context.Context, r *Run, step *schema.Step) (results []schema.ExecutionResult, failed, abort bool) {
	loop := step.Loop
	stride := loop.Step
	if stride == 0 {
		stride = 1
	}

	iteration := 0
	for v := loop.Start; (stride > 0 && v <= loop.End) || (stride < 0 && v >= loop.End); v += stride {
		r.vars.Set(loop.Var, schema.NumberValue(v))

		inner, f, a := e.runLoopBody(ctx, r, step, iteration)
		results = append(results, inner...)
		failed = failed || f
		if a || bodyAborts(ctx, step, &results, &failed) {
			return results, failed, true
		}
		iteration++
	}
	return results, failed, false
}

// runForEachLoop iterates over Items: a list value, a JSON-array string, or
// a comma-split string.
func (e *Engine) runForEachLoop(ctx context.Context, r *Run, step *schema.Step) (results []schema.ExecutionResult, failed, abort bool) {
	loop := step.Loop
	items := iterationItems(r.vars.Resolve(loop.Items))

	for iteration, item := range items {
		r.vars.Set(loop.Var, item)

		inner, f, a := e.runLoopBody(ctx, r, step, iteration)
		results = append(results, inner...)
		failed = failed || f
		if a || bodyAborts(ctx, step, &results, &failed) {
			return results, failed, true
		}
	}
	return results, failed, false
}

// runConditionLoop drives while, do_while, and until. while tests before
// each pass; do_while and until test after (until inverts the predicate).
// The max_iterations fence is a safety bound, not a normal termination:
// exceeding it fails the loop step.
func (e *Engine) runConditionLoop(ctx context.Context, r *Run, step *schema.Step) (results []schema.ExecutionResult, failed, abort bool) {
	loop := step.Loop
	fence := loop.IterationFence()

	for iteration := 0; ; iteration++ {
		if iteration >= fence {
			err := schema.NewErrorf(schema.ErrCodeIterationFence,
				"%s loop exceeded max_iterations (%d)", loop.Type, fence).WithStep(step.Name)
			results = append(results, boundaryMarker(step.Name, err))
			return results, true, false
		}

		if loop.Type == schema.LoopWhile && !e.conditions.Evaluate(ctx, loop.Condition, r.vars) {
			return results, failed, false
		}

		inner, f, a := e.runLoopBody(ctx, r, step, iteration)
		results = append(results, inner...)
		failed = failed || f
		if a || bodyAborts(ctx, step, &results, &failed) {
			return results, failed, true
		}

		switch loop.Type {
		case schema.LoopDoWhile:
			if !e.conditions.Evaluate(ctx, loop.Condition, r.vars) {
				return results, failed, false
			}
		case schema.LoopUntil:
			if e.conditions.Evaluate(ctx, loop.Condition, r.vars) {
				return results, failed, false
			}
		}
	}
}

// runRepeatLoop executes the body exactly Times times, unconditionally.
func (e *Engine) runRepeatLoop(ctx context.Context, r *Run, step *schema.Step) (results []schema.ExecutionResult, failed, abort bool) {
	for iteration := 0; iteration < step.Loop.Times; iteration++ {
		inner, f, a := e.runLoopBody(ctx, r, step, iteration)
		results = append(results, inner...)
		failed = failed || f
		if a || bodyAborts(ctx, step, &results, &failed) {
			return results, failed, true
		}
	}
	return results, failed, false
}

// runLoopBody runs every action of one iteration in sequence. An inner
// failure whose effective policy is not continue aborts the loop (and the
// workflow): stop semantics reach through loop bodies.
func (e *Engine) runLoopBody(ctx context.Context, r *Run, step *schema.Step, iteration int) (results []schema.ExecutionResult, failed, abort bool) {
	frame := &loopFrame{loopStep: step.Name, iteration: iteration}

	for i := range step.Loop.Actions {
		inner := &step.Loop.Actions[i]

		innerResults, innerFailed, innerAbort := e.runStep(ctx, r, inner, frame)
		results = append(results, innerResults...)

		if innerAbort {
			return results, true, true
		}
		if innerFailed {
			failed = true
			if r.effectivePolicy(inner) != schema.ErrorPolicyContinue {
				return results, true, true
			}
		}
	}
	return results, failed, false
}

// bodyAborts checks the run context at iteration boundaries; a dead context
// appends the terminal marker for the loop step and aborts.
func bodyAborts(ctx context.Context, step *schema.Step, results *[]schema.ExecutionResult, failed *bool) bool {
	if err := ctx.Err(); err != nil {
		*results = append(*results, boundaryMarker(step.Name, classify(err, step.Name)))
		*failed = true
		return true
	}
	return false
}

// iterationItems widens a for_each items value into the iteration sequence.
func iterationItems(v schema.Value) []schema.Value {
	switch v.Kind() {
	case schema.KindList:
		return v.List()
	case schema.KindString:
		s := strings.TrimSpace(v.Str())
		if s == "" {
			return nil
		}
		if strings.HasPrefix(s, "[") {
			var parsed schema.Value
			if err := parsed.UnmarshalJSON([]byte(s)); err == nil && parsed.Kind() == schema.KindList {
				return parsed.List()
			}
		}
		parts := strings.Split(s, ",")
		out := make([]schema.Value, len(parts))
		for i, p := range parts {
			out[i] = schema.StringValue(strings.TrimSpace(p))
		}
		return out
	default:
		return nil
	}
}
