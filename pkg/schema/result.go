package schema

import "time"

// StepStatus is the terminal state of one step execution.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// RunStatus is the overall outcome of a workflow run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// ExecutionResult records the outcome of one step attempt sequence. Results
// are immutable once appended to a trace.
type ExecutionResult struct {
	StepName string        `json:"step_name"`
	Status   StepStatus    `json:"status"`
	Output   Value         `json:"output,omitempty"`
	Error    *Error        `json:"error,omitempty"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`

	// Iteration is the zero-based loop iteration index when the step ran
	// inside a loop body, nil otherwise.
	Iteration *int `json:"iteration,omitempty"`

	// LoopStep names the enclosing loop step for loop-body results.
	LoopStep string `json:"loop_step,omitempty"`
}

// Trace is the ordered sequence of per-step results from one run.
type Trace []ExecutionResult

// Counts tallies results by status for reporting.
func (t Trace) Counts() (completed, failed, skipped int) {
	for _, r := range t {
		switch r.Status {
		case StepStatusCompleted:
			completed++
		case StepStatusFailed:
			failed++
		case StepStatusSkipped:
			skipped++
		}
	}
	return
}

// RunResult is the full outcome of one workflow run.
type RunResult struct {
	RunID       string     `json:"run_id"`
	Workflow    string     `json:"workflow"`
	Version     string     `json:"version"`
	Status      RunStatus  `json:"status"`
	Trace       Trace      `json:"trace"`
	Error       *Error     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
