package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/pos-lakehouse/internal/logger"
	"github.com/dvloznov/pos-lakehouse/internal/runs"
)

// Runner executes a pipeline as a recorded run.
type Runner struct {
	Recorder runs.Recorder
	// Now returns the current time. Nil means time.Now.
	Now func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

// Run assigns a run ID, records the run as running, executes p and records
// the outcome. The returned run reflects the final state even on failure.
func (r *Runner) Run(ctx context.Context, command string, p *Pipeline, state *PipelineState) (*runs.Run, error) {
	runID := uuid.NewString()
	ctx = logger.WithRun(ctx, runID)
	log := logger.FromContext(ctx)

	started := r.now()
	state.RunID = runID
	state.Completed = nil
	state.Counts = make(map[string]int)
	if state.Now.IsZero() {
		state.Now = started
	}

	run := &runs.Run{
		RunID:     runID,
		Command:   command,
		Input:     state.Source.String(),
		Output:    state.Output.String(),
		Status:    runs.StatusRunning,
		StartedAt: started,
	}
	if err := r.Recorder.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("Runner.Run: recording start: %w", err)
	}

	log.Info().
		Str("command", command).
		Strs("steps", p.Steps()).
		Str("input", run.Input).
		Str("output", run.Output).
		Msg("Run started")

	execErr := p.Execute(ctx, state)

	run.Steps = state.Completed
	run.Counts = state.Counts
	if execErr != nil {
		run.Fail(r.now(), execErr)
	} else {
		run.Succeed(r.now())
	}

	if err := r.Recorder.Save(ctx, run); err != nil {
		log.Error().
			Err(err).
			Msg("Runner.Run: recording outcome")
		if execErr == nil {
			return run, fmt.Errorf("Runner.Run: recording outcome: %w", err)
		}
	}

	if execErr != nil {
		log.Error().
			Err(execErr).
			Strs("completed_steps", run.Steps).
			Msg("Run failed")
		return run, execErr
	}

	log.Info().
		Dur("elapsed", run.FinishedAt.Sub(run.StartedAt)).
		Msg("Run succeeded")
	return run, nil
}
