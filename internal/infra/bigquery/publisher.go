package bigquery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dvloznov/pos-lakehouse/internal/logger"
)

// Publisher loads gold parquet tables into one BigQuery dataset. It holds a
// shared BigQuery client for all loads.
type Publisher struct {
	client   *bigquery.Client
	dataset  string
	location string
}

// NewPublisher creates a Publisher for projectID.dataset. location is the
// dataset location used when the dataset has to be created.
func NewPublisher(ctx context.Context, projectID, dataset, location string, opts ...option.ClientOption) (*Publisher, error) {
	if projectID == "" || dataset == "" {
		return nil, fmt.Errorf("NewPublisher: project ID and dataset are required")
	}
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewPublisher: creating client: %w", err)
	}
	if location != "" {
		client.Location = location
	}
	return &Publisher{client: client, dataset: dataset, location: location}, nil
}

// Close closes the BigQuery client connection.
func (p *Publisher) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

// EnsureDataset creates the dataset if it does not exist.
func (p *Publisher) EnsureDataset(ctx context.Context) error {
	log := logger.FromContext(ctx)

	ds := p.client.Dataset(p.dataset)
	_, err := ds.Metadata(ctx)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("EnsureDataset: reading metadata of %s: %w", p.dataset, err)
	}

	if err := ds.Create(ctx, &bigquery.DatasetMetadata{Location: p.location}); err != nil {
		return fmt.Errorf("EnsureDataset: creating %s: %w", p.dataset, err)
	}
	log.Info().
		Str("dataset", p.dataset).
		Str("location", p.location).
		Msg("Created BigQuery dataset")
	return nil
}

// LoadParquet loads one parquet file into table, creating it when needed.
// truncate replaces the table contents; otherwise rows are appended.
func (p *Publisher) LoadParquet(ctx context.Context, table string, data []byte, truncate bool) error {
	log := logger.FromContext(ctx)

	src := bigquery.NewReaderSource(bytes.NewReader(data))
	src.SourceFormat = bigquery.Parquet

	loader := p.client.Dataset(p.dataset).Table(table).LoaderFrom(src)
	loader.CreateDisposition = bigquery.CreateIfNeeded
	loader.WriteDisposition = bigquery.WriteAppend
	if truncate {
		loader.WriteDisposition = bigquery.WriteTruncate
	}

	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("LoadParquet: starting load into %s: %w", table, err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("LoadParquet: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("LoadParquet: job error: %w", err)
	}

	log.Debug().
		Str("dataset", p.dataset).
		Str("table", table).
		Bool("truncate", truncate).
		Int("bytes", len(data)).
		Msg("Loaded parquet into BigQuery")
	return nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
