// Package playback owns the lifetime of generated video payloads.
//
// A Handle wraps a finished video stored on disk (and optionally published
// to S3). A Slot holds at most one current Handle and releases whatever it
// held whenever a new one replaces it.
package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/maauso/flowcredits/internal/storage"
)

// ErrReleased is returned when opening a handle whose payload has been freed.
var ErrReleased = errors.New("playback: handle released")

// Handle references one stored video payload.
type Handle struct {
	JobID string
	Path  string
	S3Key string
	URL   string

	store storage.Storage
	log   *slog.Logger

	mu       sync.Mutex
	released bool
}

// NewHandle creates a handle for a payload already saved at path.
// s3Key and url are empty when the payload was not published.
func NewHandle(store storage.Storage, jobID, path, s3Key, url string, logger *slog.Logger) *Handle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handle{
		JobID: jobID,
		Path:  path,
		S3Key: s3Key,
		URL:   url,
		store: store,
		log:   logger,
	}
}

// Open returns a reader over the payload.
func (h *Handle) Open(ctx context.Context) (io.ReadCloser, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil, ErrReleased
	}
	rc, err := h.store.LoadTemp(ctx, h.Path)
	if err != nil {
		return nil, fmt.Errorf("playback: open %s: %w", h.JobID, err)
	}
	return rc, nil
}

// Release frees the local file and the published object. Only the first
// call does any work; it reports whether this call performed the release.
func (h *Handle) Release(ctx context.Context) bool {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return false
	}
	h.released = true
	h.mu.Unlock()

	if err := h.store.CleanupTemp(ctx, []string{h.Path}); err != nil {
		h.log.Warn("failed to remove video file", "job_id", h.JobID, "path", h.Path, "error", err)
	}
	if h.S3Key != "" {
		if err := h.store.DeleteFromS3(ctx, h.S3Key); err != nil && !errors.Is(err, storage.ErrS3NotConfigured) {
			h.log.Warn("failed to delete published video", "job_id", h.JobID, "key", h.S3Key, "error", err)
		}
	}

	h.log.Debug("video released", "job_id", h.JobID)
	return true
}

// Released reports whether Release has been called.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}
