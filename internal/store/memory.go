package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pagerun/pagerun/pkg/schema"
)

// MemoryStore is an in-memory Store for tests and history-less runs.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*schema.RunResult
	jobs map[string]*ScheduledJob
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[string]*schema.RunResult),
		jobs: make(map[string]*ScheduledJob),
	}
}

// copyRun clones a run including the trace backing array, so stored runs
// and returned runs never share mutable state with the caller.
func copyRun(run *schema.RunResult) *schema.RunResult {
	cp := *run
	cp.Trace = append(schema.Trace(nil), run.Trace...)
	return &cp
}

// copyJob clones a job including its variables map.
func copyJob(job *ScheduledJob) *ScheduledJob {
	cp := *job
	if job.Variables != nil {
		cp.Variables = make(map[string]schema.Value, len(job.Variables))
		for k, v := range job.Variables {
			cp.Variables[k] = v
		}
	}
	return &cp
}

func (s *MemoryStore) RecordRun(_ context.Context, run *schema.RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.RunID] = copyRun(run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (*schema.RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, storeNotFound("run", id)
	}
	return copyRun(run), nil
}

func (s *MemoryStore) ListRuns(_ context.Context, filter RunFilter) ([]*schema.RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []*schema.RunResult
	for _, run := range s.runs {
		if filter.Workflow != "" && run.Workflow != filter.Workflow {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		runs = append(runs, copyRun(run))
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if filter.Limit > 0 && len(runs) > filter.Limit {
		runs = runs[:filter.Limit]
	}
	return runs, nil
}

func (s *MemoryStore) DeleteRun(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; !ok {
		return storeNotFound("run", id)
	}
	delete(s.runs, id)
	return nil
}

func (s *MemoryStore) CreateScheduledJob(_ context.Context, job *ScheduledJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "scheduled job %q already exists", job.ID)
	}
	cp := copyJob(job)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.jobs[job.ID] = cp
	return nil
}

func (s *MemoryStore) GetScheduledJob(_ context.Context, id string) (*ScheduledJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, storeNotFound("scheduled job", id)
	}
	return copyJob(job), nil
}

func (s *MemoryStore) UpdateScheduledJob(_ context.Context, id string, update ScheduledJobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return storeNotFound("scheduled job", id)
	}
	if update.Enabled != nil {
		job.Enabled = *update.Enabled
	}
	if update.LastRunAt != nil {
		t := *update.LastRunAt
		job.LastRunAt = &t
	}
	if update.NextRunAt != nil {
		t := *update.NextRunAt
		job.NextRunAt = &t
	}
	return nil
}

func (s *MemoryStore) ListScheduledJobs(_ context.Context, enabledOnly bool) ([]*ScheduledJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var jobs []*ScheduledJob
	for _, job := range s.jobs {
		if enabledOnly && !job.Enabled {
			continue
		}
		jobs = append(jobs, copyJob(job))
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func (s *MemoryStore) DeleteScheduledJob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return storeNotFound("scheduled job", id)
	}
	delete(s.jobs, id)
	return nil
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
