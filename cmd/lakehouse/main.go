package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/dvloznov/pos-lakehouse/internal/config"
	"github.com/dvloznov/pos-lakehouse/internal/connector"
	infraBQ "github.com/dvloznov/pos-lakehouse/internal/infra/bigquery"
	"github.com/dvloznov/pos-lakehouse/internal/lake"
	"github.com/dvloznov/pos-lakehouse/internal/logger"
	"github.com/dvloznov/pos-lakehouse/internal/pipeline"
	"github.com/dvloznov/pos-lakehouse/internal/runs"
	"github.com/dvloznov/pos-lakehouse/internal/storage"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	log := logger.New()

	var err error
	switch cmd := os.Args[1]; cmd {
	case "run", "bronze", "silver", "gold", "publish":
		err = runPipeline(cmd, os.Args[2:])
	case "inspect":
		err = runInspect(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		withErrorKind(log.Fatal(), err).Msg("Command failed")
	}
}

// withErrorKind adds err and, for stage errors, its kind to ev.
func withErrorKind(ev *zerolog.Event, err error) *zerolog.Event {
	ev = ev.Err(err)
	if kind := pipeline.KindOf(err); kind != nil {
		ev = ev.Str("kind", kind.Error())
	}
	return ev
}

func printUsage() {
	fmt.Println("POS Lakehouse")
	fmt.Println("\nUsage:")
	fmt.Println("  lakehouse <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  run       Run bronze, silver and gold (and publish when BigQuery is enabled)")
	fmt.Println("  bronze    Ingest the source export into the bronze table")
	fmt.Println("  silver    Transform the bronze table into the silver table")
	fmt.Println("  gold      Build the gold star schema from the silver table")
	fmt.Println("  publish   Load the gold tables into BigQuery")
	fmt.Println("  inspect   Show row counts, a table sample or a run record")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'lakehouse <command> -h' for more information on a command.")
}

// commonFlags are accepted by every command. Empty or zero values keep the
// configured setting.
type commonFlags struct {
	configPath string
	input      string
	output     string
	partitions int
	keys       string
	timeout    time.Duration
}

func registerCommon(fs *flag.FlagSet) *commonFlags {
	f := &commonFlags{}
	fs.StringVar(&f.configPath, "config", "", "Path to a TOML config file")
	fs.StringVar(&f.input, "input", "", "Source export: local path, gs:// or s3:// URI")
	fs.StringVar(&f.output, "output", "", "Lake root: local path, gs:// or s3:// URI")
	fs.IntVar(&f.partitions, "partitions", 0, "Number of parallel partitions")
	fs.StringVar(&f.keys, "keys", "", "Surrogate key strategy: monotonic or hash")
	fs.DurationVar(&f.timeout, "timeout", 0, "Overall timeout, e.g. 10m")
	return f
}

// load reads the config and applies flag overrides.
func (f *commonFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.input != "" {
		cfg.Input.Location = f.input
	}
	if f.output != "" {
		cfg.Output.Location = f.output
	}
	if f.partitions != 0 {
		cfg.Pipeline.Partitions = f.partitions
	}
	if f.keys != "" {
		cfg.Pipeline.SurrogateKeys = f.keys
	}
	if f.timeout != 0 {
		cfg.Pipeline.Timeout = f.timeout
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// jobContext derives the run context: logger attached, bounded by the
// configured timeout and canceled on SIGINT/SIGTERM.
func jobContext(cfg *config.Config) (context.Context, zerolog.Logger, context.CancelFunc) {
	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	ctx := logger.WithContext(context.Background(), log)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	if cfg.Pipeline.Timeout <= 0 {
		return ctx, log, stop
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Pipeline.Timeout)
	return ctx, log, func() {
		cancel()
		stop()
	}
}

func runPipeline(cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	flags := registerCommon(fs)
	fs.Parse(args)

	cfg, err := flags.load()
	if err != nil {
		return err
	}

	ctx, log, cancel := jobContext(cfg)
	defer cancel()

	source, err := storage.ParseLocation(cfg.Input.Location)
	if err != nil {
		return err
	}
	output, err := storage.ParseLocation(cfg.Output.Location)
	if err != nil {
		return err
	}

	outputStore, err := connector.Open(ctx, cfg, output)
	if err != nil {
		return err
	}
	defer connector.Close(outputStore)

	sourceStore := outputStore
	if source.Scheme != output.Scheme || source.Bucket != output.Bucket {
		if sourceStore, err = connector.Open(ctx, cfg, source); err != nil {
			return err
		}
		defer connector.Close(sourceStore)
	}

	var loader pipeline.WarehouseLoader
	if cfg.BigQuery.Enabled || cmd == "publish" {
		publisher, err := openPublisher(ctx, cfg)
		if err != nil {
			return err
		}
		defer publisher.Close()
		loader = publisher
	}

	var p *pipeline.Pipeline
	switch cmd {
	case "run":
		p = pipeline.NewLakehousePipeline(loader)
	case "bronze":
		p = pipeline.NewPipeline(&pipeline.BronzeStep{})
	case "silver":
		p = pipeline.NewPipeline(&pipeline.SilverStep{})
	case "gold":
		p = pipeline.NewPipeline(&pipeline.GoldStep{})
	case "publish":
		p = pipeline.NewPipeline(&pipeline.PublishStep{Loader: loader})
	}

	state := &pipeline.PipelineState{
		Source:      source,
		SourceStore: sourceStore,
		Output:      output,
		OutputStore: outputStore,
		Options: pipeline.Options{
			Partitions: cfg.Pipeline.Partitions,
			Keys:       cfg.Pipeline.SurrogateKeys,
			Location:   cfg.TimeLocation(),
		},
	}

	runner := &pipeline.Runner{Recorder: runs.NewStoreRecorder(outputStore, output)}
	run, err := runner.Run(ctx, cmd, p, state)
	if err != nil {
		if run != nil {
			log.Error().Str("run_id", run.RunID).Msg("Run recorded as failed")
		}
		return err
	}

	fmt.Printf("Run %s %s.\n", run.RunID, run.Status)
	printCounts(run.Counts)
	return nil
}

func openPublisher(ctx context.Context, cfg *config.Config) (*infraBQ.Publisher, error) {
	if cfg.BigQuery.ProjectID == "" || cfg.BigQuery.Dataset == "" {
		return nil, errors.New("publish requires bigquery.project_id and bigquery.dataset")
	}

	var opts []option.ClientOption
	if cfg.BigQuery.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.BigQuery.CredentialsFile))
	}
	publisher, err := infraBQ.NewPublisher(ctx, cfg.BigQuery.ProjectID, cfg.BigQuery.Dataset, cfg.BigQuery.Location, opts...)
	if err != nil {
		return nil, err
	}
	if err := publisher.EnsureDataset(ctx); err != nil {
		publisher.Close()
		return nil, err
	}
	return publisher, nil
}

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	flags := registerCommon(fs)
	table := fs.String("table", "", "Table to sample, e.g. silver or gold/dim_products")
	limit := fs.Int("limit", 5, "Number of sample rows to print")
	runID := fs.String("run", "", "Run ID to show")
	fs.Parse(args)

	cfg, err := flags.load()
	if err != nil {
		return err
	}

	ctx, _, cancel := jobContext(cfg)
	defer cancel()

	output, err := storage.ParseLocation(cfg.Output.Location)
	if err != nil {
		return err
	}
	s, err := connector.Open(ctx, cfg, output)
	if err != nil {
		return err
	}
	defer connector.Close(s)

	if *runID != "" {
		run, err := runs.NewStoreRecorder(s, output).Get(ctx, *runID)
		if err != nil {
			return err
		}
		return printJSON(run)
	}

	if *table != "" {
		n, rows, err := readTable(ctx, s, output, *table, *limit)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d rows\n", *table, n)
		return printJSON(rows)
	}

	fmt.Printf("\n=== Tables under %s ===\n", output)
	for _, name := range append([]string{lake.TableBronze, lake.TableSilver}, lake.GoldTables...) {
		n, _, err := readTable(ctx, s, output, name, 0)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			fmt.Printf("%-30s (missing)\n", name)
		case err != nil:
			return err
		default:
			fmt.Printf("%-30s %d rows\n", name, n)
		}
	}
	fmt.Println()
	return nil
}

// readTable reads a table by name and returns its row count and at most
// limit rows.
func readTable(ctx context.Context, s storage.Store, root storage.Location, table string, limit int) (int, any, error) {
	switch table {
	case lake.TableBronze:
		return readRows[lake.BronzeRecord](ctx, s, root, table, limit)
	case lake.TableSilver:
		return readRows[lake.TransactionLineItem](ctx, s, root, table, limit)
	case lake.TableFactTransactionItems:
		return readRows[lake.FactTransactionItem](ctx, s, root, table, limit)
	case lake.TableDimProducts:
		return readRows[lake.DimProduct](ctx, s, root, table, limit)
	case lake.TableDimStores:
		return readRows[lake.DimStore](ctx, s, root, table, limit)
	case lake.TableDimDate:
		return readRows[lake.DimDate](ctx, s, root, table, limit)
	default:
		return 0, nil, fmt.Errorf("unknown table %q", table)
	}
}

func readRows[T any](ctx context.Context, s storage.Store, root storage.Location, table string, limit int) (int, any, error) {
	rows, err := lake.ReadTable[T](ctx, s, root, table)
	if err != nil {
		return 0, nil, err
	}
	n := len(rows)
	if limit >= 0 && limit < n {
		rows = rows[:limit]
	}
	return n, rows, nil
}

func printCounts(counts map[string]int) {
	for _, name := range append([]string{lake.TableBronze, lake.TableSilver}, lake.GoldTables...) {
		if n, ok := counts[name]; ok {
			fmt.Printf("  %-30s %d rows\n", name, n)
		}
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
