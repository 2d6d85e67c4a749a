package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dvloznov/pos-lakehouse/internal/lake"
	"github.com/dvloznov/pos-lakehouse/internal/pipeline"
	"github.com/dvloznov/pos-lakehouse/internal/runs"
	"github.com/dvloznov/pos-lakehouse/internal/storage"
)

const export = `{"after":{"TransactionID":"TX1","StoreID":"S1","WorkstationID":1,"OperatorID":"op1","TenderDateTimestamp":1700000000000,
  "LineItem":[{"SalesItem":{"ItemID":"A","ItemDescription":"Wine","Amount":100,"Quantity":1}},
              {"Discount":{"ItemList":[{"ItemID":"A","DiscountAmount":10}]}}]}}
{"after":{"TransactionID":"TX2","StoreID":"S1","WorkstationID":1,"OperatorID":"op1","TenderDateTimestamp":1700000000000,
  "LineItem":[{"SalesItem":{"ItemID":"B","Amount":20,"Quantity":2}},
              {"TransactionInfo":{"InfoType":"Canceled"}}]}}
{"after":{"TransactionID":"TX3","StoreID":"S2","WorkstationID":2,"OperatorID":"op2","TenderDateTimestamp":1700090000000,
  "LineItem":[{"ReturnItem":{"ItemID":"A","ItemDescription":"Wine","Amount":100,"Quantity":1}},
              {"SalesItem":{"ItemID":"C","Amount":3.25,"Quantity":4}}]}}
{"after":{"TransactionID":"CTL","ControlType":"Close"}}
`

// recordingLoader captures LoadParquet calls.
type recordingLoader struct {
	mu    sync.Mutex
	calls []loadCall
	err   error
}

type loadCall struct {
	Table    string
	Truncate bool
	Rows     int
}

func (l *recordingLoader) LoadParquet(ctx context.Context, table string, data []byte, truncate bool) error {
	if l.err != nil {
		return l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, loadCall{Table: table, Truncate: truncate, Rows: len(data)})
	return nil
}

type env struct {
	state    *pipeline.PipelineState
	store    *storage.LocalStore
	output   storage.Location
	recorder *runs.MemoryRecorder
}

func newEnv(t *testing.T, keys string, partitions int) *env {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "export.json"), []byte(export), 0o644); err != nil {
		t.Fatalf("write export: %v", err)
	}
	source, _ := storage.ParseLocation(filepath.Join(dir, "export.json"))
	output, _ := storage.ParseLocation(filepath.Join(dir, "lake"))
	store := storage.NewLocalStore()

	return &env{
		store:    store,
		output:   output,
		recorder: runs.NewMemoryRecorder(),
		state: &pipeline.PipelineState{
			Source:      source,
			SourceStore: store,
			Output:      output,
			OutputStore: store,
			Options:     pipeline.Options{Partitions: partitions, Keys: keys, Location: time.UTC},
		},
	}
}

func (e *env) run(t *testing.T, p *pipeline.Pipeline) (*runs.Run, error) {
	t.Helper()
	runner := &pipeline.Runner{Recorder: e.recorder}
	return runner.Run(context.Background(), "run", p, e.state)
}

func TestLakehousePipeline_EndToEnd(t *testing.T) {
	e := newEnv(t, pipeline.KeysMonotonic, 2)

	run, err := e.run(t, pipeline.NewLakehousePipeline(nil))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if run.Status != runs.StatusSucceeded {
		t.Errorf("Status = %s, want succeeded", run.Status)
	}
	if diff := cmp.Diff([]string{"bronze", "silver", "gold"}, run.Steps); diff != "" {
		t.Errorf("Steps mismatch (-want +got):\n%s", diff)
	}

	wantCounts := map[string]int{
		lake.TableBronze:               4,
		lake.TableSilver:               3,
		lake.TableFactTransactionItems: 3,
		lake.TableDimProducts:          2,
		lake.TableDimStores:            2,
		lake.TableDimDate:              2,
	}
	for table, want := range wantCounts {
		if got := run.Counts[table]; got != want {
			t.Errorf("Counts[%s] = %d, want %d", table, got, want)
		}
	}

	recorded, err := e.recorder.Get(context.Background(), run.RunID)
	if err != nil {
		t.Fatalf("recorder.Get() error = %v", err)
	}
	if diff := cmp.Diff(run, recorded); diff != "" {
		t.Errorf("recorded run mismatch (-want +got):\n%s", diff)
	}

	silver, err := pipeline.ReadSilver(context.Background(), e.store, e.output)
	if err != nil {
		t.Fatalf("ReadSilver() error = %v", err)
	}
	for _, r := range silver.Rows {
		if r.TransactionID == "TX2" {
			t.Errorf("canceled TX2 present in silver: %+v", r)
		}
		if r.TransactionID == "TX1" && r.NetAmount != 90 {
			t.Errorf("TX1 net_amount = %v, want 90", r.NetAmount)
		}
	}
}

func TestLakehousePipeline_Rerun(t *testing.T) {
	e := newEnv(t, pipeline.KeysHash, 3)

	first, err := e.run(t, pipeline.NewLakehousePipeline(nil))
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	firstSilver, _ := pipeline.ReadSilver(context.Background(), e.store, e.output)
	firstGold, _ := pipeline.ReadGold(context.Background(), e.store, e.output)

	e.state.Now = time.Time{}
	second, err := e.run(t, pipeline.NewLakehousePipeline(nil))
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	secondSilver, _ := pipeline.ReadSilver(context.Background(), e.store, e.output)
	secondGold, _ := pipeline.ReadGold(context.Background(), e.store, e.output)

	if first.RunID == second.RunID {
		t.Error("reruns share a run ID")
	}
	if diff := cmp.Diff(first.Counts, second.Counts); diff != "" {
		t.Errorf("counts differ between runs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(firstSilver.Rows, secondSilver.Rows); diff != "" {
		t.Errorf("silver differs between runs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(firstGold, secondGold); diff != "" {
		t.Errorf("hash-keyed gold differs between runs (-first +second):\n%s", diff)
	}
}

func TestLakehousePipeline_FailureKeepsEarlierLayers(t *testing.T) {
	e := newEnv(t, "bogus", 1)

	run, err := e.run(t, pipeline.NewLakehousePipeline(nil))
	if err == nil {
		t.Fatal("Run() expected error for unknown key strategy")
	}
	if !strings.Contains(err.Error(), "pipeline step 3 (gold) failed") {
		t.Errorf("error = %q, want step 3 (gold) prefix", err)
	}
	if !errors.Is(err, pipeline.ErrTransform) {
		t.Errorf("error = %v, want ErrTransform", err)
	}

	if run.Status != runs.StatusFailed || run.Error == "" || run.FinishedAt == nil {
		t.Errorf("run = %+v, want failed with error and finish time", run)
	}
	if diff := cmp.Diff([]string{"bronze", "silver"}, run.Steps); diff != "" {
		t.Errorf("Steps mismatch (-want +got):\n%s", diff)
	}

	if _, err := pipeline.ReadBronze(context.Background(), e.store, e.output); err != nil {
		t.Errorf("bronze missing after gold failure: %v", err)
	}
	if _, err := pipeline.ReadSilver(context.Background(), e.store, e.output); err != nil {
		t.Errorf("silver missing after gold failure: %v", err)
	}
	if _, err := pipeline.ReadGold(context.Background(), e.store, e.output); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("ReadGold() error = %v, want ErrNotFound", err)
	}
}

func TestSingleLayerSteps(t *testing.T) {
	e := newEnv(t, pipeline.KeysMonotonic, 2)

	if _, err := e.run(t, pipeline.NewPipeline(&pipeline.SilverStep{})); !errors.Is(err, pipeline.ErrIngestion) {
		t.Fatalf("silver before bronze: error = %v, want ErrIngestion", err)
	}

	for _, step := range []pipeline.PipelineStep{&pipeline.BronzeStep{}, &pipeline.SilverStep{}, &pipeline.GoldStep{}} {
		if _, err := e.run(t, pipeline.NewPipeline(step)); err != nil {
			t.Fatalf("%s step error = %v", step.Name(), err)
		}
	}

	gold, err := pipeline.ReadGold(context.Background(), e.store, e.output)
	if err != nil {
		t.Fatalf("ReadGold() error = %v", err)
	}
	if len(gold.Facts) != 3 {
		t.Errorf("Facts = %d, want 3", len(gold.Facts))
	}
	if got := len(e.recorder.Runs()); got != 4 {
		t.Errorf("recorded runs = %d, want 4", got)
	}
}

func TestPublishStep(t *testing.T) {
	e := newEnv(t, pipeline.KeysMonotonic, 1)
	loader := &recordingLoader{}

	if _, err := e.run(t, pipeline.NewLakehousePipeline(loader)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var tables []string
	for _, c := range loader.calls {
		tables = append(tables, c.Table)
		if !c.Truncate {
			t.Errorf("%s: single part loaded without truncate", c.Table)
		}
		if c.Rows == 0 {
			t.Errorf("%s: empty payload", c.Table)
		}
	}
	want := []string{"fact_transaction_items", "dim_products", "dim_stores", "dim_date"}
	if diff := cmp.Diff(want, tables); diff != "" {
		t.Errorf("published tables mismatch (-want +got):\n%s", diff)
	}
}

func TestPublishStep_LoaderError(t *testing.T) {
	e := newEnv(t, pipeline.KeysMonotonic, 1)
	loader := &recordingLoader{err: errors.New("quota exceeded")}

	_, err := e.run(t, pipeline.NewLakehousePipeline(loader))
	if !errors.Is(err, pipeline.ErrWrite) {
		t.Errorf("Run() error = %v, want ErrWrite", err)
	}
	if !strings.Contains(err.Error(), "pipeline step 4 (publish) failed") {
		t.Errorf("error = %q, want step 4 (publish) prefix", err)
	}
}

func TestPipeline_CanceledContext(t *testing.T) {
	e := newEnv(t, pipeline.KeysMonotonic, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &pipeline.Runner{Recorder: e.recorder}
	run, err := runner.Run(ctx, "run", pipeline.NewLakehousePipeline(nil), e.state)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if run == nil || run.Status != runs.StatusFailed {
		t.Errorf("run = %+v, want failed", run)
	}
}
