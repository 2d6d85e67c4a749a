package pipeline

import (
	"context"
	"fmt"
	"maps"
	"path"
	"time"

	"github.com/dvloznov/pos-lakehouse/internal/lake"
	"github.com/dvloznov/pos-lakehouse/internal/logger"
	"github.com/dvloznov/pos-lakehouse/internal/storage"
)

// PipelineStep represents a single step of a lakehouse run.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *PipelineState) error
}

// Options are the tunables shared by all steps.
type Options struct {
	// Partitions is the silver and key-assignment parallelism.
	Partitions int
	// Keys is the surrogate key strategy: KeysMonotonic or KeysHash.
	Keys string
	// Location is the time zone for transaction dates.
	Location *time.Location
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	RunID string
	// Now is the ingestion timestamp stamped on bronze records.
	Now time.Time

	Source      storage.Location
	SourceStore storage.Store
	Output      storage.Location
	OutputStore storage.Store

	Options Options

	Bronze *BronzeSnapshot
	Silver *SilverSnapshot
	Gold   *GoldSnapshot

	// Completed lists the names of the steps that finished, in order.
	Completed []string
	// Counts collects row counts and transform stats for the run ledger.
	Counts map[string]int
}

func (s *PipelineState) count(name string, n int) {
	if s.Counts == nil {
		s.Counts = make(map[string]int)
	}
	s.Counts[name] = n
}

// BronzeStep ingests the source export and archives it as the bronze table.
type BronzeStep struct{}

func (s *BronzeStep) Name() string { return "bronze" }

func (s *BronzeStep) Execute(ctx context.Context, state *PipelineState) error {
	bronze, err := Ingest(ctx, state.SourceStore, state.Source, state.Now)
	if err != nil {
		return err
	}
	if err := WriteBronze(ctx, state.OutputStore, state.Output, bronze); err != nil {
		return err
	}
	state.Bronze = bronze
	state.count(lake.TableBronze, len(bronze.Records))
	return nil
}

// SilverStep reads the persisted bronze table and writes the silver table.
type SilverStep struct{}

func (s *SilverStep) Name() string { return "silver" }

func (s *SilverStep) Execute(ctx context.Context, state *PipelineState) error {
	bronze, err := ReadBronze(ctx, state.OutputStore, state.Output)
	if err != nil {
		return err
	}
	silver, err := Transform(ctx, bronze, SilverOptions{Partitions: state.Options.Partitions})
	if err != nil {
		return err
	}
	if err := WriteSilver(ctx, state.OutputStore, state.Output, silver); err != nil {
		return err
	}
	state.Silver = silver
	state.count(lake.TableSilver, len(silver.Rows))
	maps.Copy(state.Counts, silver.Stats.Metrics())
	return nil
}

// GoldStep reads the persisted silver table and writes the star schema.
type GoldStep struct{}

func (s *GoldStep) Name() string { return "gold" }

func (s *GoldStep) Execute(ctx context.Context, state *PipelineState) error {
	silver, err := ReadSilver(ctx, state.OutputStore, state.Output)
	if err != nil {
		return err
	}
	keys, err := NewKeyGenerator(state.Options.Keys, state.Options.Partitions)
	if err != nil {
		return transformError("Dimensionalize", err)
	}
	gold, err := Dimensionalize(ctx, silver, GoldOptions{Keys: keys, Location: state.Options.Location})
	if err != nil {
		return err
	}
	if err := WriteGold(ctx, state.OutputStore, state.Output, gold); err != nil {
		return err
	}
	state.Gold = gold
	for table, n := range gold.Counts() {
		state.count(table, n)
	}
	return nil
}

// WarehouseLoader loads a parquet file into a warehouse table. truncate
// replaces the table contents; otherwise rows are appended.
type WarehouseLoader interface {
	LoadParquet(ctx context.Context, table string, data []byte, truncate bool) error
}

// PublishStep loads every gold table into the warehouse. Each table is
// replaced by its first part file and extended by the rest.
type PublishStep struct {
	Loader WarehouseLoader
}

func (s *PublishStep) Name() string { return "publish" }

func (s *PublishStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	for _, table := range lake.GoldTables {
		parts, err := lake.TableParts(ctx, state.OutputStore, state.Output, table)
		if err != nil {
			return ingestionError("Publish", err)
		}

		name := path.Base(table)
		for i, part := range parts {
			data, err := state.OutputStore.Get(ctx, part.Path)
			if err != nil {
				return ingestionError("Publish", fmt.Errorf("reading %s: %w", part, err))
			}
			if err := s.Loader.LoadParquet(ctx, name, data, i == 0); err != nil {
				return writeError("Publish", fmt.Errorf("loading %s into %s: %w", part, name, err))
			}
		}

		log.Info().
			Str("table", name).
			Int("parts", len(parts)).
			Msg("Published gold table")
	}
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Steps returns the step names in execution order.
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}

// Execute runs all steps sequentially and stops at the first failure. Layers
// written by earlier steps are left in place.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}

		stepLog := log.With().Str("step", step.Name()).Logger()
		started := time.Now()
		if err := step.Execute(logger.WithContext(ctx, stepLog), state); err != nil {
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}
		state.Completed = append(state.Completed, step.Name())

		stepLog.Debug().
			Dur("elapsed", time.Since(started)).
			Msg("Pipeline step complete")
	}
	return nil
}

// NewLakehousePipeline creates the bronze, silver, gold pipeline, followed by
// a publish step when loader is non-nil.
func NewLakehousePipeline(loader WarehouseLoader) *Pipeline {
	steps := []PipelineStep{&BronzeStep{}, &SilverStep{}, &GoldStep{}}
	if loader != nil {
		steps = append(steps, &PublishStep{Loader: loader})
	}
	return NewPipeline(steps...)
}
