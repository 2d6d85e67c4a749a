package lake

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/dvloznov/pos-lakehouse/internal/storage"
)

// PartFile is the name of the single part file each write produces.
const PartFile = "part-00000.parquet"

// Encode serializes rows as a parquet file.
func Encode[T any](rows []T) ([]byte, error) {
	var buf bytes.Buffer
	if err := parquet.Write(&buf, rows); err != nil {
		return nil, fmt.Errorf("encode parquet: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a parquet file into rows.
func Decode[T any](data []byte) ([]T, error) {
	rows, err := parquet.Read[T](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("decode parquet: %w", err)
	}
	return rows, nil
}

// WriteTable replaces the table under root with rows.
func WriteTable[T any](ctx context.Context, s storage.Store, root storage.Location, table string, rows []T) error {
	data, err := Encode(rows)
	if err != nil {
		return fmt.Errorf("WriteTable %s: %w", table, err)
	}
	if err := storage.Overwrite(ctx, s, root.Join(table), PartFile, data); err != nil {
		return fmt.Errorf("WriteTable %s: %w", table, err)
	}
	return nil
}

// ReadTable reads every parquet part of the table under root, in path order.
// A table with no parts returns an error wrapping storage.ErrNotFound.
func ReadTable[T any](ctx context.Context, s storage.Store, root storage.Location, table string) ([]T, error) {
	parts, err := TableParts(ctx, s, root, table)
	if err != nil {
		return nil, err
	}

	var rows []T
	for _, part := range parts {
		data, err := s.Get(ctx, part.Path)
		if err != nil {
			return nil, fmt.Errorf("ReadTable %s: %w", table, err)
		}
		partRows, err := Decode[T](data)
		if err != nil {
			return nil, fmt.Errorf("ReadTable %s: %s: %w", table, part, err)
		}
		rows = append(rows, partRows...)
	}
	return rows, nil
}

// TableParts lists the parquet part files of a table.
func TableParts(ctx context.Context, s storage.Store, root storage.Location, table string) ([]storage.Location, error) {
	dir := root.Join(table)
	objects, err := s.List(ctx, dir.Prefix())
	if err != nil {
		return nil, fmt.Errorf("TableParts %s: %w", table, err)
	}

	var parts []storage.Location
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Path, ".parquet") {
			continue
		}
		parts = append(parts, storage.Location{Scheme: dir.Scheme, Bucket: dir.Bucket, Path: obj.Path})
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("TableParts %s: no parquet parts at %s: %w", table, dir, storage.ErrNotFound)
	}
	return parts, nil
}
