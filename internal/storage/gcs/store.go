// Package gcs implements storage.Store on Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	lakestorage "github.com/dvloznov/pos-lakehouse/internal/storage"
)

// Store reads and writes objects in one GCS bucket. It assumes Application
// Default Credentials unless a credentials file option is passed to NewStore.
type Store struct {
	client *storage.Client
	bucket string
}

// NewStore creates a storage client bound to bucket.
func NewStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs: bucket name is required")
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: create storage client: %w", err)
	}

	return &Store{client: client, bucket: bucket}, nil
}

// Close closes the underlying storage client.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Get downloads the object bytes.
func (s *Store) Get(ctx context.Context, objectPath string) ([]byte, error) {
	rc, err := s.client.Bucket(s.bucket).Object(objectPath).NewReader(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("gcs: get gs://%s/%s: %w", s.bucket, objectPath, lakestorage.ErrNotFound)
		}
		return nil, fmt.Errorf("gcs: open reader gs://%s/%s: %w", s.bucket, objectPath, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("gcs: read gs://%s/%s: %w", s.bucket, objectPath, err)
	}
	return data, nil
}

// Put uploads data, replacing any existing object.
func (s *Store) Put(ctx context.Context, objectPath string, data []byte) error {
	w := s.client.Bucket(s.bucket).Object(objectPath).NewWriter(ctx)
	w.ContentType = contentType(objectPath)

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs: write gs://%s/%s: %w", s.bucket, objectPath, err)
	}

	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs: finalize upload gs://%s/%s: %w", s.bucket, objectPath, err)
	}
	return nil
}

// List returns the objects under prefix, following pagination.
func (s *Store) List(ctx context.Context, prefix string) ([]lakestorage.ObjectInfo, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var infos []lakestorage.ObjectInfo
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs: list gs://%s/%s: %w", s.bucket, prefix, err)
		}
		infos = append(infos, lakestorage.ObjectInfo{
			Path:         attrs.Name,
			Size:         attrs.Size,
			LastModified: attrs.Updated,
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}

// Delete removes the object; a missing object is not an error.
func (s *Store) Delete(ctx context.Context, objectPath string) error {
	err := s.client.Bucket(s.bucket).Object(objectPath).Delete(ctx)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("gcs: delete gs://%s/%s: %w", s.bucket, objectPath, err)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist)
}

func contentType(objectPath string) string {
	switch path.Ext(objectPath) {
	case ".json":
		return "application/json"
	case ".jsonl", ".ndjson":
		return "application/x-ndjson"
	case ".parquet":
		return "application/vnd.apache.parquet"
	default:
		return "application/octet-stream"
	}
}
