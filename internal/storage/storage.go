// Package storage provides model artifact access and temporary file staging.
// Artifacts are read from local disk or from an S3 bucket; temporary files
// back the ffmpeg decode fallback.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when an artifact key does not exist.
var ErrNotFound = errors.New("storage: artifact not found")

// ArtifactStore opens read-only model artifacts by key.
type ArtifactStore interface {
	// Open returns a reader for the artifact stored under key.
	// The caller is responsible for closing the returned ReadCloser.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// TempStore stages bytes on local disk for external tools.
type TempStore interface {
	// SaveTemp saves data to a temporary file and returns the file path.
	// The name parameter is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// LoadTemp reads a temporary file and returns a reader.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error
}

// Storage is the full storage port used by bootstrap.
type Storage interface {
	ArtifactStore
	TempStore
}

var (
	_ Storage = (*LocalStorage)(nil)
	_ Storage = (*S3Storage)(nil)
)
