// Package engine executes validated workflow documents: sequential step
// traversal with next_step jumps, per-step retry/timeout/error policy, loop
// expansion, and an ordered execution trace.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pagerun/pagerun/internal/conditions"
	"github.com/pagerun/pagerun/internal/dispatch"
	"github.com/pagerun/pagerun/internal/expressions"
	"github.com/pagerun/pagerun/internal/logging"
	"github.com/pagerun/pagerun/internal/variables"
	"github.com/pagerun/pagerun/pkg/schema"
)

// Recorder persists finished runs. Implemented by the store; optional.
type Recorder interface {
	RecordRun(ctx context.Context, result *schema.RunResult) error
}

// Engine executes workflows. It holds no per-run state: independent runs may
// execute concurrently, each owning its own variable manager and browser
// context.
type Engine struct {
	dispatcher dispatch.Dispatcher
	conditions *conditions.Evaluator
	jq         *expressions.GoJQEngine
	logger     *slog.Logger
	recorder   Recorder
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithRecorder sets a run-history sink. Recording is best-effort: a failing
// recorder never fails a run.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// New creates an Engine dispatching actions to the given Dispatcher.
func New(dispatcher dispatch.Dispatcher, opts ...Option) *Engine {
	e := &Engine{
		dispatcher: dispatcher,
		conditions: conditions.NewEvaluator(),
		jq:         expressions.NewGoJQEngine(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run is one workflow execution in flight. A Run owns its variable manager
// for the duration of the execution; callers inject parameters or
// credentials through Variables().BulkSet before Execute.
type Run struct {
	engine   *Engine
	workflow *schema.Workflow
	id       string
	vars     *variables.Manager
}

// NewRun prepares a run of the given validated workflow, seeding variables
// from the document.
func (e *Engine) NewRun(wf *schema.Workflow) *Run {
	return &Run{
		engine:   e,
		workflow: wf,
		id:       uuid.NewString(),
		vars:     variables.NewManager(wf.Variables),
	}
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// Variables returns the run's variable manager (the injection boundary).
func (r *Run) Variables() *variables.Manager { return r.vars }

// Execute walks the workflow's step graph and returns the run result with
// the ordered execution trace. Once execution has started, callers always
// get a structured result; aborts return the partial trace, never a bare
// error.
func (r *Run) Execute(ctx context.Context) *schema.RunResult {
	wf := r.workflow
	e := r.engine

	result := &schema.RunResult{
		RunID:     r.id,
		Workflow:  wf.Name,
		Version:   wf.Version,
		Status:    schema.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	ctx = logging.WithRunID(logging.WithWorkflow(ctx, wf.Name), r.id)
	if wf.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, secondsToDuration(wf.Timeout))
		defer cancel()
	}

	e.logger.InfoContext(ctx, "workflow started",
		slog.String("version", wf.Version), slog.Int("steps", len(wf.Steps)))

	index := make(map[string]int, len(wf.Steps))
	for i := range wf.Steps {
		index[wf.Steps[i].Name] = i
	}

	visits := make(map[string]int, len(wf.Steps))
	wfRetries := make(map[string]int)
	var terminal *schema.Error

	i := 0
	for i < len(wf.Steps) {
		step := &wf.Steps[i]

		// Cancellation and workflow timeout are checked at step boundaries;
		// a failed marker for the step that would have run next records the
		// termination point.
		if err := ctx.Err(); err != nil {
			terminal = classify(err, step.Name)
			result.Trace = append(result.Trace, boundaryMarker(step.Name, terminal))
			break
		}

		visits[step.Name]++
		if wf.MaxStepVisits > 0 && visits[step.Name] > wf.MaxStepVisits {
			terminal = schema.NewErrorf(schema.ErrCodeIterationFence,
				"step entered %d times, exceeding max_step_visits (%d)",
				visits[step.Name], wf.MaxStepVisits).WithStep(step.Name)
			result.Trace = append(result.Trace, boundaryMarker(step.Name, terminal))
			break
		}

		results, failed, abort := e.runStep(ctx, r, step, nil)
		result.Trace = append(result.Trace, results...)

		if abort {
			terminal = traceError(results, step.Name)
			break
		}

		if failed {
			switch r.effectivePolicy(step) {
			case schema.ErrorPolicyContinue:
				i++
				continue

			case schema.ErrorPolicyRetry:
				// Step-local retries are exhausted; the workflow's own
				// budget re-invokes the step before stop semantics apply.
				if wf.OnError == schema.ErrorPolicyRetry && wfRetries[step.Name] < wf.Retry.Attempts()-1 {
					wfRetries[step.Name]++
					e.logger.WarnContext(ctx, "re-invoking failed step",
						slog.String("failed_step", step.Name),
						slog.Int("workflow_attempt", wfRetries[step.Name]+1))
					if err := waitForRetry(ctx, secondsToDuration(wf.Retry.DelaySeconds())); err != nil {
						terminal = classify(err, step.Name)
						break
					}
					continue // same index: re-invoke
				}
				if wf.OnError == schema.ErrorPolicyContinue {
					i++
					continue
				}
				terminal = traceError(results, step.Name)

			default: // stop
				terminal = traceError(results, step.Name)
			}
			if terminal != nil {
				break
			}
			i++
			continue
		}

		// Completed steps with a jump target branch instead of falling
		// through; skipped steps always fall through in array order.
		if step.NextStep != "" && lastCompleted(results) {
			// Validation rejects dangling targets; if one slips through
			// anyway, stop rather than jumping to a wrong index.
			idx, ok := index[step.NextStep]
			if !ok {
				terminal = schema.NewErrorf(schema.ErrCodeConfiguration,
					"next_step %q does not name a step", step.NextStep).WithStep(step.Name)
				result.Trace = append(result.Trace, boundaryMarker(step.Name, terminal))
				break
			}
			i = idx
			continue
		}
		i++
	}

	now := time.Now().UTC()
	result.CompletedAt = &now
	switch {
	case terminal != nil && terminal.Code == schema.ErrCodeCancelled:
		result.Status = schema.RunStatusCancelled
		result.Error = terminal
	case terminal != nil:
		result.Status = schema.RunStatusFailed
		result.Error = terminal
	default:
		result.Status = schema.RunStatusCompleted
	}

	completed, failed, skipped := result.Trace.Counts()
	e.logger.InfoContext(ctx, "workflow finished",
		slog.String("status", string(result.Status)),
		slog.Int("completed", completed),
		slog.Int("failed", failed),
		slog.Int("skipped", skipped))

	if e.recorder != nil {
		// Recording uses a fresh context: the run's may already be dead.
		if err := e.recorder.RecordRun(context.WithoutCancel(ctx), result); err != nil {
			e.logger.ErrorContext(ctx, "record run", slog.String("error", err.Error()))
		}
	}

	return result
}

// effectivePolicy resolves a step's error policy, inheriting the workflow's
// when the step doesn't set one. The workflow default is stop.
func (r *Run) effectivePolicy(step *schema.Step) schema.ErrorPolicy {
	if step.OnError != "" {
		return step.OnError
	}
	if r.workflow.OnError != "" {
		return r.workflow.OnError
	}
	return schema.ErrorPolicyStop
}

// boundaryMarker builds the failed terminal marker appended when execution
// stops between dispatches (timeout, cancellation, visit fence).
func boundaryMarker(stepName string, err *schema.Error) schema.ExecutionResult {
	return schema.ExecutionResult{
		StepName: stepName,
		Status:   schema.StepStatusFailed,
		Error:    err,
	}
}

// traceError pulls the terminal error out of a step's results, falling back
// to a generic dispatch error.
func traceError(results []schema.ExecutionResult, stepName string) *schema.Error {
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].Status == schema.StepStatusFailed && results[i].Error != nil {
			return results[i].Error
		}
	}
	return schema.NewError(schema.ErrCodeDispatch, "step failed").WithStep(stepName)
}

// lastCompleted reports whether the step's own outcome is completed (for
// loop steps: no failure among the expanded results, at least one of which
// completed).
func lastCompleted(results []schema.ExecutionResult) bool {
	completed := false
	for _, res := range results {
		switch res.Status {
		case schema.StepStatusFailed:
			return false
		case schema.StepStatusCompleted:
			completed = true
		}
	}
	return completed
}

// classify maps an arbitrary dispatch or context error onto the structured
// taxonomy.
func classify(err error, stepName string) *schema.Error {
	var structured *schema.Error
	switch {
	case errors.As(err, &structured):
		if structured.Step == "" {
			structured.Step = stepName
		}
		return structured
	case errors.Is(err, context.DeadlineExceeded):
		return schema.NewError(schema.ErrCodeTimeout, "deadline exceeded").WithStep(stepName).WithCause(err)
	case errors.Is(err, context.Canceled):
		return schema.NewError(schema.ErrCodeCancelled, "run cancelled").WithStep(stepName).WithCause(err)
	default:
		return schema.NewErrorf(schema.ErrCodeDispatch, "%s", err.Error()).WithStep(stepName).WithCause(err)
	}
}
