// Package storage keeps downloaded video payloads on local disk and optionally
// publishes them to S3. It defines the Storage port and its local and S3 implementations.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for video payload storage.
// Payloads always land in a local temp file first; S3 publication is optional.
type Storage interface {
	// SaveTemp writes data to a new temporary file and returns its path.
	// The name parameter is used as a prefix for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// LoadTemp opens a temporary file for reading.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified temporary files.
	// Missing files are ignored and removal continues past individual failures.
	CleanupTemp(ctx context.Context, paths []string) error

	// UploadToS3 uploads data under key and returns its public URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	UploadToS3(ctx context.Context, key string, data io.Reader) (url string, err error)

	// DeleteFromS3 removes a previously uploaded object.
	// Returns ErrS3NotConfigured if S3 is not configured.
	DeleteFromS3(ctx context.Context, key string) error
}
