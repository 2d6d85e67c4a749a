package runs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dvloznov/pos-lakehouse/internal/storage"
)

// Dir is the directory under the output location holding run records.
const Dir = "_runs"

// ErrNotFound is returned when a run ID has no record.
var ErrNotFound = errors.New("run not found")

// StoreRecorder writes each run as <root>/_runs/<run_id>.json.
type StoreRecorder struct {
	store storage.Store
	root  storage.Location
}

// NewStoreRecorder creates a recorder writing under root.
func NewStoreRecorder(s storage.Store, root storage.Location) *StoreRecorder {
	return &StoreRecorder{store: s, root: root}
}

// Save implements the Recorder interface.
func (r *StoreRecorder) Save(ctx context.Context, run *Run) error {
	if run.RunID == "" {
		return fmt.Errorf("StoreRecorder.Save: run ID is required")
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("StoreRecorder.Save: marshal run: %w", err)
	}
	if err := r.store.Put(ctx, r.path(run.RunID), data); err != nil {
		return fmt.Errorf("StoreRecorder.Save: %w", err)
	}
	return nil
}

// Get implements the Recorder interface.
func (r *StoreRecorder) Get(ctx context.Context, runID string) (*Run, error) {
	data, err := r.store.Get(ctx, r.path(runID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("StoreRecorder.Get: %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("StoreRecorder.Get: %w", err)
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("StoreRecorder.Get: decode %s: %w", runID, err)
	}
	return &run, nil
}

func (r *StoreRecorder) path(runID string) string {
	return r.root.Join(Dir, runID+".json").Path
}

var _ Recorder = (*StoreRecorder)(nil)
