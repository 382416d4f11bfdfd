// Package store persists run history and scheduled jobs.
package store

import (
	"context"
	"time"

	"github.com/pagerun/pagerun/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Run history
	RecordRun(ctx context.Context, run *schema.RunResult) error
	GetRun(ctx context.Context, id string) (*schema.RunResult, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*schema.RunResult, error)
	DeleteRun(ctx context.Context, id string) error

	// Scheduled jobs
	CreateScheduledJob(ctx context.Context, job *ScheduledJob) error
	GetScheduledJob(ctx context.Context, id string) (*ScheduledJob, error)
	UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error
	ListScheduledJobs(ctx context.Context, enabledOnly bool) ([]*ScheduledJob, error)
	DeleteScheduledJob(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RunFilter narrows ListRuns results. Zero values mean "no constraint".
type RunFilter struct {
	Workflow string
	Status   schema.RunStatus
	Limit    int
}

// ScheduledJob is a cron-triggered workflow execution.
type ScheduledJob struct {
	ID        string                  `json:"id"`
	Name      string                  `json:"name"`
	CronExpr  string                  `json:"cron_expr"`
	Workflow  string                  `json:"workflow"` // path to the workflow file
	Variables map[string]schema.Value `json:"variables,omitempty"`
	Enabled   bool                    `json:"enabled"`
	CreatedAt time.Time               `json:"created_at"`
	LastRunAt *time.Time              `json:"last_run_at,omitempty"`
	NextRunAt *time.Time              `json:"next_run_at,omitempty"`
}

// ScheduledJobUpdate carries partial updates; nil fields are left unchanged.
type ScheduledJobUpdate struct {
	Enabled   *bool
	LastRunAt *time.Time
	NextRunAt *time.Time
}
