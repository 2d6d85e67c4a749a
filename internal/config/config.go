// Package config defines the lakehouse job configuration: input and output
// locations, pipeline tuning, storage credentials and warehouse publishing.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Default values used when neither the TOML file nor the environment sets a
// field. They reproduce a plain local run against the sample export.
const (
	DefaultInputLocation  = "data/assignment_data.json"
	DefaultOutputLocation = "output"
	DefaultPartitions     = 4
	DefaultSurrogateKeys  = "monotonic"
	DefaultTimezone       = "UTC"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
)

// Config is the root configuration. Fields are populated from a TOML file and
// then optionally overridden by POSETL_* environment variables.
type Config struct {
	Input    InputConfig    `toml:"input"`
	Output   OutputConfig   `toml:"output"`
	Pipeline PipelineConfig `toml:"pipeline"`
	GCS      GCSConfig      `toml:"gcs"`
	S3       S3Config       `toml:"s3"`
	BigQuery BigQueryConfig `toml:"bigquery"`
	LogLevel string         `toml:"log_level"`
	// LogFormat is "console" or "json".
	LogFormat string `toml:"log_format"`
}

type InputConfig struct {
	Location string `toml:"location"`
}

type OutputConfig struct {
	Location string `toml:"location"`
}

// PipelineConfig tunes the transformation.
type PipelineConfig struct {
	// Partitions is the number of parallel partitions the bronze records are split into.
	Partitions int `toml:"partitions"`
	// SurrogateKeys selects the gold key generator: "monotonic" or "hash".
	SurrogateKeys string `toml:"surrogate_keys"`
	// Timezone is the IANA zone used to derive transaction_date.
	Timezone string `toml:"timezone"`
	// Timeout bounds a whole job invocation. Zero disables the bound.
	Timeout time.Duration `toml:"timeout"`
}

// GCSConfig holds Google Cloud Storage client options. Both fields are
// optional; Application Default Credentials are used otherwise.
type GCSConfig struct {
	CredentialsFile string `toml:"credentials_file"`
	Endpoint        string `toml:"endpoint"`
}

// S3Config holds credentials for S3-compatible object stores.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// BigQueryConfig controls publishing of the gold tables.
type BigQueryConfig struct {
	Enabled         bool   `toml:"enabled"`
	ProjectID       string `toml:"project_id"`
	Dataset         string `toml:"dataset"`
	Location        string `toml:"location"`
	CredentialsFile string `toml:"credentials_file"`
}

// Defaults returns a Config populated with the built-in defaults.
func Defaults() Config {
	return Config{
		Input:  InputConfig{Location: DefaultInputLocation},
		Output: OutputConfig{Location: DefaultOutputLocation},
		Pipeline: PipelineConfig{
			Partitions:    DefaultPartitions,
			SurrogateKeys: DefaultSurrogateKeys,
			Timezone:      DefaultTimezone,
			Timeout:       30 * time.Minute,
		},
		S3: S3Config{
			Region: "us-east-1",
			UseSSL: true,
		},
		BigQuery: BigQueryConfig{
			Location: "EU",
		},
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
	}
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Input.Location) == "" {
		errs = append(errs, "input.location is required")
	}
	if strings.TrimSpace(c.Output.Location) == "" {
		errs = append(errs, "output.location is required")
	}
	if c.Pipeline.Partitions < 1 {
		errs = append(errs, fmt.Sprintf("pipeline.partitions must be >= 1, got %d", c.Pipeline.Partitions))
	}
	switch c.Pipeline.SurrogateKeys {
	case "monotonic", "hash":
	default:
		errs = append(errs, fmt.Sprintf("pipeline.surrogate_keys must be \"monotonic\" or \"hash\", got %q", c.Pipeline.SurrogateKeys))
	}
	if _, err := time.LoadLocation(c.Pipeline.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("pipeline.timezone %q: %v", c.Pipeline.Timezone, err))
	}
	if c.Pipeline.Timeout < 0 {
		errs = append(errs, "pipeline.timeout must not be negative")
	}
	if c.BigQuery.Enabled {
		if c.BigQuery.ProjectID == "" {
			errs = append(errs, "bigquery.project_id is required when bigquery is enabled")
		}
		if c.BigQuery.Dataset == "" {
			errs = append(errs, "bigquery.dataset is required when bigquery is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// TimeLocation returns the parsed pipeline time zone. Call after Validate.
func (c *Config) TimeLocation() *time.Location {
	loc, err := time.LoadLocation(c.Pipeline.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
