package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// Overwrite replaces everything under dir with a single object dir/name.
// Existing objects are deleted before the new one is written, so a reader
// never sees a mix of old and new parts.
func Overwrite(ctx context.Context, s Store, dir Location, name string, data []byte) error {
	existing, err := s.List(ctx, dir.Prefix())
	if err != nil {
		return fmt.Errorf("Overwrite: listing %s: %w", dir, err)
	}

	for _, obj := range existing {
		if err := s.Delete(ctx, obj.Path); err != nil {
			return fmt.Errorf("Overwrite: deleting %s: %w", obj.Path, err)
		}
	}

	target := dir.Join(name)
	if err := s.Put(ctx, target.Path, data); err != nil {
		return fmt.Errorf("Overwrite: writing %s: %w", target, err)
	}
	return nil
}

// ResolveFiles expands loc into the objects it names: the object itself when
// loc is a single object, otherwise every object under the loc prefix whose
// name ends with one of exts (all objects when exts is empty). It returns an
// error wrapping ErrNotFound when nothing matches.
func ResolveFiles(ctx context.Context, s Store, loc Location, exts ...string) ([]Location, error) {
	candidates, err := s.List(ctx, loc.Path)
	if err != nil {
		return nil, fmt.Errorf("ResolveFiles: listing %s: %w", loc, err)
	}
	for _, obj := range candidates {
		if obj.Path == loc.Path {
			return []Location{{Scheme: loc.Scheme, Bucket: loc.Bucket, Path: obj.Path}}, nil
		}
	}

	objects, err := s.List(ctx, loc.Prefix())
	if err != nil {
		return nil, fmt.Errorf("ResolveFiles: listing %s: %w", loc, err)
	}

	var files []Location
	for _, obj := range objects {
		if !hasExt(obj.Path, exts) {
			continue
		}
		files = append(files, Location{Scheme: loc.Scheme, Bucket: loc.Bucket, Path: obj.Path})
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("ResolveFiles: no objects at %s: %w", loc, ErrNotFound)
	}
	return files, nil
}

func hasExt(p string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(path.Ext(p))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}
