package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "POSETL_"

// Load reads a TOML configuration file at path (skipped when path is empty),
// merges it on top of the built-in defaults, loads a .env file if one exists
// and applies POSETL_* environment overrides. The returned Config has NOT been
// validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Missing .env is not an error.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Input.Location, "INPUT_LOCATION")
	setStr(&cfg.Output.Location, "OUTPUT_LOCATION")

	setInt(&cfg.Pipeline.Partitions, "PARTITIONS")
	setStr(&cfg.Pipeline.SurrogateKeys, "SURROGATE_KEYS")
	setStr(&cfg.Pipeline.Timezone, "TIMEZONE")
	setDuration(&cfg.Pipeline.Timeout, "TIMEOUT")

	setStr(&cfg.GCS.CredentialsFile, "GCS_CREDENTIALS_FILE")
	setStr(&cfg.GCS.Endpoint, "GCS_ENDPOINT")

	setStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setStr(&cfg.S3.Region, "S3_REGION")
	setStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")

	setBool(&cfg.BigQuery.Enabled, "BIGQUERY_ENABLED")
	setStr(&cfg.BigQuery.ProjectID, "BIGQUERY_PROJECT_ID")
	setStr(&cfg.BigQuery.Dataset, "BIGQUERY_DATASET")
	setStr(&cfg.BigQuery.Location, "BIGQUERY_LOCATION")
	setStr(&cfg.BigQuery.CredentialsFile, "BIGQUERY_CREDENTIALS_FILE")

	setStr(&cfg.LogLevel, "LOG_LEVEL")
	setStr(&cfg.LogFormat, "LOG_FORMAT")
}

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(EnvPrefix + key))
	return v, v != ""
}

func setStr(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := lookup(key); ok {
		switch strings.ToLower(v) {
		case "true", "1", "yes":
			*dst = true
		case "false", "0", "no":
			*dst = false
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
