// Package generator provides the common interface the job runner uses to talk
// to a generative content provider. The Gemini adapter implements it.
package generator

import (
	"context"
	"fmt"
	"io"
)

// Status represents the status of a video generation operation.
type Status string

// Operation statuses across providers.
const (
	StatusRunning   Status = "RUNNING"   // Operation accepted and not finished
	StatusSucceeded Status = "SUCCEEDED" // Operation finished without error
	StatusFailed    Status = "FAILED"    // Operation finished with an error
)

// IsTerminal returns true if the status represents a final state.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// VideoOptions contains parameters for submitting a video job.
type VideoOptions struct {
	NumberOfVideos int // Videos to generate; the runner always asks for one
}

// Operation is a provider-neutral snapshot of a long-running video job.
// Name is opaque and re-submitted on each poll.
type Operation struct {
	Name     string
	Done     bool
	State    string // Provider-reported progress label, empty when omitted
	Failed   bool   // Set when the provider reported an error payload
	Error    string // Provider error message, may be empty even when Failed
	VideoURI string // Retrieval locator of the first generated video
}

// Status derives the operation status from the snapshot.
func (o Operation) Status() Status {
	switch {
	case !o.Done:
		return StatusRunning
	case o.Failed:
		return StatusFailed
	default:
		return StatusSucceeded
	}
}

// DownloadError reports a non-2xx response while fetching a generated video.
type DownloadError struct {
	StatusCode int
	Status     string // HTTP status text
	Err        error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download failed with status %d %s", e.StatusCode, e.Status)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Generator defines the interface for generative content providers.
type Generator interface {
	// GenerateText runs a synchronous text completion.
	GenerateText(ctx context.Context, model, prompt string) (string, error)

	// SubmitVideo starts an asynchronous video generation.
	SubmitVideo(ctx context.Context, model, prompt string, opts VideoOptions) (Operation, error)

	// PollVideo re-fetches the current state of op.
	PollVideo(ctx context.Context, op Operation) (Operation, error)

	// DownloadVideo fetches the binary payload at uri. The caller closes the body.
	DownloadVideo(ctx context.Context, uri string) (io.ReadCloser, error)
}
