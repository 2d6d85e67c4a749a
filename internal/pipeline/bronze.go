package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dvloznov/pos-lakehouse/internal/lake"
	"github.com/dvloznov/pos-lakehouse/internal/logger"
	"github.com/dvloznov/pos-lakehouse/internal/storage"
)

// BronzeSnapshot is the archived export: every document of every source file.
type BronzeSnapshot struct {
	Records []lake.BronzeRecord
	// Files lists the source files in ingestion order.
	Files []string
}

// Ingest reads every document under source and stamps it with now and its
// source file. Any unreadable source or unparsable document fails the whole
// ingestion.
func Ingest(ctx context.Context, s storage.Store, source storage.Location, now time.Time) (*BronzeSnapshot, error) {
	log := logger.FromContext(ctx)

	files, err := storage.ResolveFiles(ctx, s, source, sourceExtensions...)
	if err != nil {
		return nil, ingestionError("Ingest", err)
	}

	snap := &BronzeSnapshot{}
	for _, file := range files {
		data, err := s.Get(ctx, file.Path)
		if err != nil {
			return nil, ingestionError("Ingest", fmt.Errorf("reading %s: %w", file, err))
		}

		docs, err := SplitDocuments(data)
		if err != nil {
			return nil, ingestionError("Ingest", fmt.Errorf("parsing %s: %w", file, err))
		}

		for i, doc := range docs {
			snap.Records = append(snap.Records, lake.BronzeRecord{
				Document:           string(doc),
				IngestionTimestamp: now,
				SourceFile:         file.String(),
				RecordIndex:        int64(i),
			})
		}
		snap.Files = append(snap.Files, file.String())

		log.Debug().
			Str("source_file", file.String()).
			Int("documents", len(docs)).
			Msg("Parsed source file")
	}

	log.Info().
		Int("files", len(snap.Files)).
		Int("records", len(snap.Records)).
		Msg("Bronze ingestion complete")

	return snap, nil
}

// SplitDocuments parses one or more root-level JSON values. Values may span
// many lines; a root-level array contributes each of its elements. Every
// document must be a JSON object and is returned byte for byte as it appears
// in data, without surrounding whitespace.
func SplitDocuments(data []byte) ([]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	var docs []json.RawMessage
	for n := 0; ; n++ {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("root value %d: %w", n, err)
		}

		trimmed := bytes.TrimSpace(raw)
		switch {
		case len(trimmed) > 0 && trimmed[0] == '[':
			var elems []json.RawMessage
			if err := json.Unmarshal(trimmed, &elems); err != nil {
				return nil, fmt.Errorf("root value %d: %w", n, err)
			}
			for i, elem := range elems {
				doc, err := objectDocument(elem)
				if err != nil {
					return nil, fmt.Errorf("root value %d element %d: %w", n, i, err)
				}
				docs = append(docs, doc)
			}
		default:
			doc, err := objectDocument(trimmed)
			if err != nil {
				return nil, fmt.Errorf("root value %d: %w", n, err)
			}
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func objectDocument(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("document must be a JSON object, got %s", preview(trimmed))
	}
	return trimmed, nil
}

func preview(raw []byte) string {
	const maxLen = 32
	if len(raw) > maxLen {
		return string(raw[:maxLen]) + "..."
	}
	return string(raw)
}

// WriteBronze replaces the bronze table under root.
func WriteBronze(ctx context.Context, s storage.Store, root storage.Location, snap *BronzeSnapshot) error {
	if err := lake.WriteTable(ctx, s, root, lake.TableBronze, snap.Records); err != nil {
		return writeError("WriteBronze", err)
	}
	return nil
}

// ReadBronze loads the bronze table under root.
func ReadBronze(ctx context.Context, s storage.Store, root storage.Location) (*BronzeSnapshot, error) {
	records, err := lake.ReadTable[lake.BronzeRecord](ctx, s, root, lake.TableBronze)
	if err != nil {
		return nil, ingestionError("ReadBronze", err)
	}

	snap := &BronzeSnapshot{Records: records}
	seen := make(map[string]bool)
	for _, r := range records {
		if !seen[r.SourceFile] {
			seen[r.SourceFile] = true
			snap.Files = append(snap.Files, r.SourceFile)
		}
	}
	return snap, nil
}
