package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pagerun/pagerun/internal/dispatch"
	"github.com/pagerun/pagerun/internal/logging"
	"github.com/pagerun/pagerun/pkg/schema"
)

// loopFrame carries iteration diagnostics for steps running inside a loop
// body.
type loopFrame struct {
	loopStep  string
	iteration int
}

// runStep executes one step: condition gate, step-local variable scope,
// then either a loop expansion or a single dispatched action. It returns
// the step's results in trace order plus two flags: failed (the step's
// outcome is a failure, effective policy pending) and abort (the workflow
// must stop now: a stop policy fired inside a loop body).
func (e *Engine) runStep(ctx context.Context, r *Run, step *schema.Step, frame *loopFrame) (results []schema.ExecutionResult, failed, abort bool) {
	ctx = logging.WithStep(ctx, step.Name)
	fsm := newStepFSM()

	// Condition gate: false means skipped, dispatch never happens. For a
	// loop step the condition gates the whole loop.
	if len(step.Condition) > 0 && !e.conditions.Evaluate(ctx, step.Condition, r.vars) {
		_ = fsm.transition(schema.StepStatusSkipped)
		e.logger.DebugContext(ctx, "step skipped by condition")
		res := schema.ExecutionResult{
			StepName: step.Name,
			Status:   schema.StepStatusSkipped,
		}
		applyFrame(&res, frame)
		return []schema.ExecutionResult{res}, false, false
	}

	// Step-local variables shadow workflow variables for this step only.
	restore := r.vars.PushScope(step.Variables)
	defer restore()

	if step.Loop != nil {
		return e.runLoop(ctx, r, step)
	}

	res := e.executeAction(ctx, r, step, fsm)
	applyFrame(&res, frame)
	return []schema.ExecutionResult{res}, res.Status == schema.StepStatusFailed, false
}

// executeAction resolves the step's selector and value, then dispatches with
// the step's retry and timeout policy applied. One call produces exactly one
// ExecutionResult covering the whole attempt sequence.
func (e *Engine) executeAction(ctx context.Context, r *Run, step *schema.Step, fsm *stepFSM) schema.ExecutionResult {
	start := time.Now()
	result := schema.ExecutionResult{StepName: step.Name}

	if err := fsm.transition(schema.StepStatusRunning); err != nil {
		result.Status = schema.StepStatusFailed
		result.Error = classify(err, step.Name)
		return result
	}

	// Substitution happens once per execution: nothing mutates variables
	// between attempts of the same step.
	selector := r.vars.Substitute(step.Selector)
	value := r.vars.SubstituteValue(step.Value)

	budget := 1
	if r.effectivePolicy(step) == schema.ErrorPolicyRetry {
		budget = step.Retry.Attempts()
	}
	delay := secondsToDuration(step.Retry.DelaySeconds())
	stepTimeout := secondsToDuration(step.Timeout)

	var out schema.Value
	var lastErr error

	attempts := 0
	for attempts < budget {
		attempts++

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if stepTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, stepTimeout)
		}

		out, lastErr = e.dispatcher.Dispatch(attemptCtx, dispatch.Request{
			Action:   step.Action,
			Selector: selector,
			Value:    value,
			Timeout:  stepTimeout,
		})
		cancel()

		if lastErr == nil {
			break
		}

		e.logger.WarnContext(ctx, "dispatch failed",
			slog.String("action", step.Action),
			slog.Int("attempt", attempts),
			slog.Int("budget", budget),
			slog.String("error", lastErr.Error()))

		// The run itself being done is never retryable.
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		if attempts < budget {
			if err := waitForRetry(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}
	}

	result.Attempts = attempts
	result.Duration = time.Since(start)

	if lastErr != nil {
		_ = fsm.transition(schema.StepStatusFailed)
		result.Status = schema.StepStatusFailed
		result.Error = retryExhausted(classify(lastErr, step.Name), attempts, budget)
		return result
	}

	// Post-process the opaque dispatch output: optional jq extraction, then
	// optional variable capture.
	if step.Extract != "" {
		extracted, err := e.jq.Apply(ctx, step.Extract, out.Interface())
		if err != nil {
			_ = fsm.transition(schema.StepStatusFailed)
			result.Status = schema.StepStatusFailed
			result.Error = classify(err, step.Name)
			return result
		}
		out = schema.FromAny(extracted)
	}
	if step.OutputVar != "" {
		r.vars.Set(step.OutputVar, out)
	}

	_ = fsm.transition(schema.StepStatusCompleted)
	result.Status = schema.StepStatusCompleted
	result.Output = out
	return result
}

// retryExhausted upgrades the final attempt's error when a retry budget was
// actually spent.
func retryExhausted(err *schema.Error, attempts, budget int) *schema.Error {
	if budget <= 1 || attempts < budget {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return schema.NewErrorf(schema.ErrCodeRetryExhausted,
		"retries exhausted after %d attempts: %s", attempts, err.Message).
		WithStep(err.Step).
		WithCause(err)
}

func applyFrame(res *schema.ExecutionResult, frame *loopFrame) {
	if frame == nil {
		return
	}
	iter := frame.iteration
	res.Iteration = &iter
	res.LoopStep = frame.loopStep
}
