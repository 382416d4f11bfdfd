package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagerun/pagerun/pkg/schema"
)

func TestStepFSM_HappyPath(t *testing.T) {
	fsm := newStepFSM()

	require.NoError(t, fsm.transition(schema.StepStatusRunning))
	require.NoError(t, fsm.transition(schema.StepStatusCompleted))
}

func TestStepFSM_FailurePath(t *testing.T) {
	fsm := newStepFSM()

	require.NoError(t, fsm.transition(schema.StepStatusRunning))
	require.NoError(t, fsm.transition(schema.StepStatusFailed))
}

func TestStepFSM_SkipFromPending(t *testing.T) {
	fsm := newStepFSM()

	assert.NoError(t, fsm.transition(schema.StepStatusSkipped))
}

func TestStepFSM_InvalidTransitions(t *testing.T) {
	fsm := newStepFSM()
	require.NoError(t, fsm.transition(schema.StepStatusRunning))
	require.NoError(t, fsm.transition(schema.StepStatusCompleted))

	err := fsm.transition(schema.StepStatusRunning)
	require.Error(t, err)
	var perr *schema.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, schema.ErrCodeConflict, perr.Code)

	assert.Error(t, fsm.transition(schema.StepStatusFailed), "completed is terminal")
}

func TestStepFSM_CannotSkipWhileRunning(t *testing.T) {
	fsm := newStepFSM()
	require.NoError(t, fsm.transition(schema.StepStatusRunning))

	assert.Error(t, fsm.transition(schema.StepStatusSkipped))
}
