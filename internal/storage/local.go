package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStore implements Store on the local filesystem. Object paths are
// filesystem paths in slash form, relative to the working directory or absolute.
type LocalStore struct{}

// NewLocalStore creates a new LocalStore.
func NewLocalStore() *LocalStore {
	return &LocalStore{}
}

// Get reads the file at p. Directories are reported as ErrNotFound.
func (s *LocalStore) Get(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := filepath.FromSlash(p)
	info, err := os.Stat(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("local: get %s: %w", p, ErrNotFound)
		}
		return nil, fmt.Errorf("local: stat %s: %w", p, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("local: get %s: is a directory: %w", p, ErrNotFound)
	}

	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("local: read %s: %w", p, err)
	}
	return data, nil
}

// Put writes data to a temporary file next to p and renames it into place.
func (s *LocalStore) Put(ctx context.Context, p string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name := filepath.FromSlash(p)
	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("local: create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(name)+".tmp-*")
	if err != nil {
		return fmt.Errorf("local: create temp file for %s: %w", p, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("local: write %s: %w", p, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("local: close %s: %w", p, err)
	}
	if err := os.Rename(tmpName, name); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("local: rename into %s: %w", p, err)
	}
	return nil
}

// List walks the directory containing prefix and returns the regular files
// whose slash path starts with prefix. A missing directory yields no objects.
// Hidden files are skipped, and so are directories that cannot match.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	root := prefix
	if !strings.HasSuffix(prefix, "/") {
		root = path.Dir(prefix)
	}
	if root == "" {
		root = "."
	}
	trimDot := root == "." && !strings.HasPrefix(prefix, "./")

	var infos []ObjectInfo
	err := filepath.WalkDir(filepath.FromSlash(root), func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		p := filepath.ToSlash(name)
		if trimDot {
			p = strings.TrimPrefix(p, "./")
		}

		if d.IsDir() {
			if name == filepath.FromSlash(root) {
				return nil
			}
			dir := p + "/"
			if !strings.HasPrefix(dir, prefix) && !strings.HasPrefix(prefix, dir) {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !strings.HasPrefix(p, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		infos = append(infos, ObjectInfo{Path: p, Size: info.Size(), LastModified: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("local: list %s: %w", prefix, err)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}

// Delete removes the file at p.
func (s *LocalStore) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(filepath.FromSlash(p)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("local: delete %s: %w", p, err)
	}
	return nil
}
