package storage

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Supported location schemes.
const (
	SchemeFile = "file"
	SchemeGCS  = "gs"
	SchemeS3   = "s3"
)

// Location identifies a file, object or prefix on some backend, e.g.
// "output/silver", "gs://bucket/lake/silver" or "s3://bucket/raw/export.json".
type Location struct {
	Scheme string
	// Bucket is empty for local locations.
	Bucket string
	// Path is the object path inside the bucket, or the filesystem path.
	Path string
}

// ParseLocation parses a location identifier. Plain paths and file:// URIs
// are local; gs:// and s3:// URIs require a bucket.
func ParseLocation(uri string) (Location, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return Location{}, fmt.Errorf("ParseLocation: empty location")
	}

	scheme, rest, hasScheme := strings.Cut(uri, "://")
	if !hasScheme {
		return Location{Scheme: SchemeFile, Path: filepath.ToSlash(filepath.Clean(uri))}, nil
	}

	switch scheme {
	case SchemeFile:
		if rest == "" {
			return Location{}, fmt.Errorf("ParseLocation: file URI without path: %s", uri)
		}
		return Location{Scheme: SchemeFile, Path: path.Clean(rest)}, nil
	case SchemeGCS, SchemeS3:
		bucket, objectPath, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return Location{}, fmt.Errorf("ParseLocation: missing bucket in %s", uri)
		}
		return Location{Scheme: scheme, Bucket: bucket, Path: strings.Trim(objectPath, "/")}, nil
	default:
		return Location{}, fmt.Errorf("ParseLocation: unsupported scheme %q in %s", scheme, uri)
	}
}

// Join returns the location with elem appended to its path.
func (l Location) Join(elem ...string) Location {
	parts := append([]string{l.Path}, elem...)
	joined := path.Join(parts...)
	if l.Scheme != SchemeFile {
		joined = strings.TrimPrefix(joined, "/")
	}
	l.Path = joined
	return l
}

// Prefix returns the path with a trailing slash, suitable for List.
func (l Location) Prefix() string {
	if l.Path == "" || l.Path == "." {
		return ""
	}
	return strings.TrimSuffix(l.Path, "/") + "/"
}

// String renders the location as a URI. Local locations render as plain paths.
func (l Location) String() string {
	if l.Scheme == SchemeFile || l.Scheme == "" {
		return l.Path
	}
	if l.Path == "" {
		return l.Scheme + "://" + l.Bucket
	}
	return l.Scheme + "://" + l.Bucket + "/" + l.Path
}

// IsLocal reports whether the location is on the local filesystem.
func (l Location) IsLocal() bool {
	return l.Scheme == SchemeFile || l.Scheme == ""
}
