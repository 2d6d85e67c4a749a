// Package runs records the outcome of every pipeline run.
package runs

import (
	"context"
	"time"
)

// Status is the lifecycle state of a run.
type Status string

const (
	// StatusRunning indicates the run has started and not finished.
	StatusRunning Status = "running"
	// StatusSucceeded indicates every step completed.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates a step failed; Error holds the cause.
	StatusFailed Status = "failed"
)

// maxErrorLen caps the stored error text.
const maxErrorLen = 2000

// Run is one execution of the pipeline.
type Run struct {
	// RunID is the unique identifier for this run.
	RunID string `json:"run_id"`

	// Command is the CLI command that started the run, e.g. "run" or "silver".
	Command string `json:"command"`

	// Input and Output are the source and destination locations.
	Input  string `json:"input"`
	Output string `json:"output"`

	// Status is the current status of the run.
	Status Status `json:"status"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Steps lists the completed step names in order.
	Steps []string `json:"steps,omitempty"`

	// Counts holds row counts per table and the silver transform stats.
	Counts map[string]int `json:"counts,omitempty"`

	// Error contains the failure cause, truncated to 2000 characters.
	Error string `json:"error,omitempty"`
}

// Succeed marks the run succeeded at t.
func (r *Run) Succeed(t time.Time) {
	r.Status = StatusSucceeded
	r.FinishedAt = &t
	r.Error = ""
}

// Fail marks the run failed at t with cause err.
func (r *Run) Fail(t time.Time, err error) {
	r.Status = StatusFailed
	r.FinishedAt = &t
	r.Error = ""
	if err != nil {
		r.Error = err.Error()
		if len(r.Error) > maxErrorLen {
			r.Error = r.Error[:maxErrorLen]
		}
	}
}

// Recorder persists run records. Save is called when a run starts and again
// when it finishes, so it must overwrite an existing record.
type Recorder interface {
	Save(ctx context.Context, run *Run) error
	Get(ctx context.Context, runID string) (*Run, error)
}
