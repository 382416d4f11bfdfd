package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagerun/pagerun/pkg/schema"
)

func sampleRun(id, workflow string, status schema.RunStatus, started time.Time) *schema.RunResult {
	return &schema.RunResult{
		RunID:     id,
		Workflow:  workflow,
		Status:    status,
		StartedAt: started,
	}
}

func TestMemoryStore_RecordAndGetRun(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	run := sampleRun("r1", "login", schema.RunStatusCompleted, time.Now().UTC())
	require.NoError(t, s.RecordRun(ctx, run))

	got, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "login", got.Workflow)
	assert.Equal(t, schema.RunStatusCompleted, got.Status)
}

func TestMemoryStore_RecordRunOverwrites(t *testing.T) {
	// The engine records once at the end of a run, but re-recording the
	// same id upserts, matching the SQL store.
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.RecordRun(ctx, sampleRun("r1", "login", schema.RunStatusRunning, time.Now())))
	require.NoError(t, s.RecordRun(ctx, sampleRun("r1", "login", schema.RunStatusFailed, time.Now())))

	got, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusFailed, got.Status)
}

func TestMemoryStore_GetRunNotFound(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.GetRun(context.Background(), "missing")

	require.Error(t, err)
	var perr *schema.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, schema.ErrCodeNotFound, perr.Code)
}

func TestMemoryStore_ListRunsFiltersAndOrders(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, s.RecordRun(ctx, sampleRun("r1", "login", schema.RunStatusCompleted, base.Add(-3*time.Minute))))
	require.NoError(t, s.RecordRun(ctx, sampleRun("r2", "login", schema.RunStatusFailed, base.Add(-2*time.Minute))))
	require.NoError(t, s.RecordRun(ctx, sampleRun("r3", "scrape", schema.RunStatusCompleted, base.Add(-1*time.Minute))))

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r3", all[0].RunID, "newest first")

	login, err := s.ListRuns(ctx, RunFilter{Workflow: "login"})
	require.NoError(t, err)
	require.Len(t, login, 2)
	assert.Equal(t, "r2", login[0].RunID)

	failed, err := s.ListRuns(ctx, RunFilter{Status: schema.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "r2", failed[0].RunID)

	limited, err := s.ListRuns(ctx, RunFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMemoryStore_DeleteRun(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.RecordRun(ctx, sampleRun("r1", "login", schema.RunStatusCompleted, time.Now())))
	require.NoError(t, s.DeleteRun(ctx, "r1"))

	_, err := s.GetRun(ctx, "r1")
	assert.Error(t, err)

	err = s.DeleteRun(ctx, "r1")
	assert.Error(t, err)
}

func TestMemoryStore_GetRunReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.RecordRun(ctx, sampleRun("r1", "login", schema.RunStatusCompleted, time.Now())))

	got, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	got.Workflow = "mutated"

	again, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "login", again.Workflow)
}

func TestMemoryStore_TraceDoesNotShareBackingArray(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	run := sampleRun("r1", "login", schema.RunStatusCompleted, time.Now())
	run.Trace = schema.Trace{
		{StepName: "open", Status: schema.StepStatusCompleted},
	}
	require.NoError(t, s.RecordRun(ctx, run))

	// Mutating the caller's trace entries after recording must not leak
	// into the stored run.
	run.Trace[0].StepName = "mutated"

	got, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got.Trace, 1)
	assert.Equal(t, "open", got.Trace[0].StepName)

	// Same for entries read back out of the store.
	got.Trace[0].StepName = "mutated"
	again, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "open", again.Trace[0].StepName)
}

func TestMemoryStore_ScheduledJobCRUD(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	job := &ScheduledJob{
		ID:       "j1",
		Name:     "nightly scrape",
		CronExpr: "0 2 * * *",
		Workflow: "scrape.yaml",
		Enabled:  true,
	}
	require.NoError(t, s.CreateScheduledJob(ctx, job))

	got, err := s.GetScheduledJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "nightly scrape", got.Name)
	assert.False(t, got.CreatedAt.IsZero(), "created_at defaults to now")

	err = s.CreateScheduledJob(ctx, job)
	require.Error(t, err)
	var perr *schema.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, schema.ErrCodeConflict, perr.Code)

	require.NoError(t, s.DeleteScheduledJob(ctx, "j1"))
	_, err = s.GetScheduledJob(ctx, "j1")
	assert.Error(t, err)
}

func TestMemoryStore_UpdateScheduledJob(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateScheduledJob(ctx, &ScheduledJob{
		ID: "j1", Name: "n", CronExpr: "* * * * *", Workflow: "w.yaml", Enabled: true,
	}))

	disabled := false
	last := time.Now().UTC()
	next := last.Add(time.Hour)
	require.NoError(t, s.UpdateScheduledJob(ctx, "j1", ScheduledJobUpdate{
		Enabled:   &disabled,
		LastRunAt: &last,
		NextRunAt: &next,
	}))

	got, err := s.GetScheduledJob(ctx, "j1")
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	require.NotNil(t, got.LastRunAt)
	assert.True(t, got.LastRunAt.Equal(last))
	require.NotNil(t, got.NextRunAt)
	assert.True(t, got.NextRunAt.Equal(next))

	// Nil fields leave values untouched.
	require.NoError(t, s.UpdateScheduledJob(ctx, "j1", ScheduledJobUpdate{}))
	got, err = s.GetScheduledJob(ctx, "j1")
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	err = s.UpdateScheduledJob(ctx, "missing", ScheduledJobUpdate{})
	assert.Error(t, err)
}

func TestMemoryStore_ListScheduledJobs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, s.CreateScheduledJob(ctx, &ScheduledJob{
		ID: "j1", Name: "a", CronExpr: "* * * * *", Workflow: "a.yaml",
		Enabled: true, CreatedAt: base.Add(-2 * time.Hour),
	}))
	require.NoError(t, s.CreateScheduledJob(ctx, &ScheduledJob{
		ID: "j2", Name: "b", CronExpr: "* * * * *", Workflow: "b.yaml",
		Enabled: false, CreatedAt: base.Add(-1 * time.Hour),
	}))

	all, err := s.ListScheduledJobs(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "j1", all[0].ID, "oldest first")

	enabled, err := s.ListScheduledJobs(ctx, true)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "j1", enabled[0].ID)
}

func TestMemoryStore_ImplementsStore(t *testing.T) {
	var _ Store = NewMemoryStore()
	assert.NoError(t, NewMemoryStore().Migrate(context.Background()))
	assert.NoError(t, NewMemoryStore().Close())
}
