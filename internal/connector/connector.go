// Package connector opens the storage backend a location lives on.
package connector

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/api/option"

	"github.com/dvloznov/pos-lakehouse/internal/config"
	"github.com/dvloznov/pos-lakehouse/internal/storage"
	"github.com/dvloznov/pos-lakehouse/internal/storage/gcs"
	s3store "github.com/dvloznov/pos-lakehouse/internal/storage/s3"
)

// Open returns a Store serving loc, configured from cfg. Release it with Close.
func Open(ctx context.Context, cfg *config.Config, loc storage.Location) (storage.Store, error) {
	switch {
	case loc.IsLocal():
		return storage.NewLocalStore(), nil

	case loc.Scheme == storage.SchemeGCS:
		var opts []option.ClientOption
		if cfg.GCS.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.GCS.CredentialsFile))
		}
		if cfg.GCS.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(cfg.GCS.Endpoint))
		}
		s, err := gcs.NewStore(ctx, loc.Bucket, opts...)
		if err != nil {
			return nil, fmt.Errorf("connector.Open %s: %w", loc, err)
		}
		return s, nil

	case loc.Scheme == storage.SchemeS3:
		s, err := s3store.New(ctx, s3store.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         loc.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("connector.Open %s: %w", loc, err)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("connector.Open: unsupported scheme %q", loc.Scheme)
	}
}

// Close releases s if its backend holds a client.
func Close(s storage.Store) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
