package runs

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// MemoryRecorder keeps runs in memory. It is safe for concurrent use.
type MemoryRecorder struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{runs: make(map[string]*Run)}
}

// Save implements the Recorder interface.
func (m *MemoryRecorder) Save(ctx context.Context, run *Run) error {
	if run.RunID == "" {
		return fmt.Errorf("MemoryRecorder.Save: run ID is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs[run.RunID] = clone(run)
	return nil
}

// Get implements the Recorder interface.
func (m *MemoryRecorder) Get(ctx context.Context, runID string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("MemoryRecorder.Get: %s: %w", runID, ErrNotFound)
	}
	return clone(run), nil
}

// Runs returns every recorded run ordered by start time.
func (m *MemoryRecorder) Runs() []*Run {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Run, 0, len(m.runs))
	for _, run := range m.runs {
		out = append(out, clone(run))
	}
	slices.SortFunc(out, func(a, b *Run) int { return a.StartedAt.Compare(b.StartedAt) })
	return out
}

// clone copies run so callers cannot mutate stored state.
func clone(run *Run) *Run {
	c := *run
	c.Steps = slices.Clone(run.Steps)
	c.Counts = maps.Clone(run.Counts)
	if run.FinishedAt != nil {
		t := *run.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

var _ Recorder = (*MemoryRecorder)(nil)
