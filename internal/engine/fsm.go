package engine

import "github.com/pagerun/pagerun/pkg/schema"

// validStepTransitions is the step lifecycle: pending → running →
// {completed | failed | skipped}. Skipped is reachable straight from
// pending (condition gate fires before the step ever runs).
var validStepTransitions = map[schema.StepStatus][]schema.StepStatus{
	schema.StepStatusPending: {schema.StepStatusRunning, schema.StepStatusSkipped, schema.StepStatusFailed},
	schema.StepStatusRunning: {schema.StepStatusCompleted, schema.StepStatusFailed},
}

// stepFSM guards step status transitions. It exists to make lifecycle bugs
// loud: an invalid transition is a programming error in the engine, not a
// workflow failure.
type stepFSM struct {
	status schema.StepStatus
}

func newStepFSM() *stepFSM {
	return &stepFSM{status: schema.StepStatusPending}
}

// transition moves to the target status, returning an error when the move
// is not in the lifecycle table.
func (f *stepFSM) transition(to schema.StepStatus) error {
	for _, allowed := range validStepTransitions[f.status] {
		if allowed == to {
			f.status = to
			return nil
		}
	}
	return schema.NewErrorf(schema.ErrCodeConflict,
		"invalid step transition: %s -> %s", f.status, to)
}
