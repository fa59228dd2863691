// Package job provides the generation Job aggregate and the Runner that drives
// text and video jobs against a generator while charging a credit ledger.
package job

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/maauso/flowcredits/internal/job/id"
	"github.com/maauso/flowcredits/internal/playback"
)

// Kind is the type of generation a job performs.
type Kind string

const (
	// KindText produces a text completion.
	KindText Kind = "text"
	// KindVideo produces a video through a long-running operation.
	KindVideo Kind = "video"
)

// IsValid returns true if the kind is known.
func (k Kind) IsValid() bool {
	return k == KindText || k == KindVideo
}

// Status represents the current state of a Job.
type Status string

const (
	// StatusIdle is the state of a freshly built job.
	StatusIdle Status = "idle"
	// StatusSubmitted indicates the generation request has been issued.
	StatusSubmitted Status = "submitted"
	// StatusPolling indicates a video operation is being polled.
	StatusPolling Status = "polling"
	// StatusDownloading indicates the finished video is being fetched.
	StatusDownloading Status = "downloading"
	// StatusDone indicates the job finished successfully.
	StatusDone Status = "done"
	// StatusFailed indicates the job ended with an error.
	StatusFailed Status = "failed"
)

// ErrorKind classifies why a job failed.
type ErrorKind string

const (
	ErrorKindNone                ErrorKind = ""
	ErrorKindQuotaExceeded       ErrorKind = "QUOTA_EXCEEDED"
	ErrorKindMissingDownloadLink ErrorKind = "MISSING_DOWNLOAD_LINK"
	ErrorKindDownloadFailed      ErrorKind = "DOWNLOAD_FAILED"
	ErrorKindOperation           ErrorKind = "OPERATION_ERROR"
	ErrorKindTimeout             ErrorKind = "TIMEOUT"
	ErrorKindCancelled           ErrorKind = "CANCELLED"
	ErrorKindUnknown             ErrorKind = "UNKNOWN_ERROR"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("job: invalid state transition")

var validTransitions = map[Status][]Status{
	StatusIdle:        {StatusSubmitted, StatusFailed},
	StatusSubmitted:   {StatusPolling, StatusDone, StatusFailed},
	StatusPolling:     {StatusDownloading, StatusFailed},
	StatusDownloading: {StatusDone, StatusFailed},
	StatusDone:        {},
	StatusFailed:      {},
}

func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job is a single text or video generation request.
type Job struct {
	mu sync.RWMutex

	ID     string
	Kind   Kind
	Prompt string
	Status Status
	// Progress is a human-readable description of the current step.
	Progress string
	// ResultText holds the generated text of a done text job.
	ResultText string
	// Video holds the playable payload of a done video job.
	Video     *playback.Handle
	ErrorKind ErrorKind
	Error     string
	// Cost is the price charged on success unless the ledger is unlimited.
	Cost    *big.Int
	Debited bool
	// OperationName identifies the remote video operation.
	OperationName string
	PollCount     int

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time
}

// New creates an idle job with a generated ID.
func New(kind Kind, prompt string, cost *big.Int) *Job {
	return NewWithID(id.Generate(), kind, prompt, cost)
}

// NewWithID creates an idle job with the given ID.
func NewWithID(jobID string, kind Kind, prompt string, cost *big.Int) *Job {
	now := time.Now()
	c := new(big.Int)
	if cost != nil {
		c.Set(cost)
	}
	return &Job{
		ID:        jobID,
		Kind:      kind,
		Prompt:    prompt,
		Status:    StatusIdle,
		Cost:      c,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}
	j.Status = status
	j.UpdatedAt = time.Now()
	if status == StatusDone || status == StatusFailed {
		j.CompletedAt = j.UpdatedAt
		j.Progress = ""
	}
	return nil
}

// TransitionTo changes the job status to one of the non-terminal states.
// Terminal states are reached through Complete, CompleteVideo and Fail.
func (j *Job) TransitionTo(status Status) error {
	if status == StatusDone || status == StatusFailed {
		return ErrInvalidTransition
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

// TransitionWithProgress changes the status and progress message together.
func (j *Job) TransitionWithProgress(status Status, progress string) error {
	if err := j.TransitionTo(status); err != nil {
		return err
	}
	j.SetProgress(progress)
	return nil
}

// Complete finishes a text job with its result.
func (j *Job) Complete(text string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusDone); err != nil {
		return err
	}
	j.ResultText = text
	return nil
}

// CompleteVideo finishes a video job with its payload.
func (j *Job) CompleteVideo(h *playback.Handle) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusDone); err != nil {
		return err
	}
	j.Video = h
	return nil
}

// Fail finishes the job with an error.
func (j *Job) Fail(kind ErrorKind, msg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.ErrorKind = kind
	j.Error = msg
	return nil
}

// SetProgress updates the progress message.
func (j *Job) SetProgress(msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress = msg
	j.UpdatedAt = time.Now()
}

// SetOperation records the remote operation name.
func (j *Job) SetOperation(name string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OperationName = name
	j.UpdatedAt = time.Now()
}

// RecordPoll counts one status fetch and updates the progress message.
func (j *Job) RecordPoll(progress string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.PollCount++
	j.Progress = progress
	j.UpdatedAt = time.Now()
}

// MarkDebited records that the job's cost was charged.
func (j *Job) MarkDebited() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Debited = true
	j.UpdatedAt = time.Now()
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal returns true if the job is done or failed.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusDone || j.Status == StatusFailed
}

// Clone creates a copy of the job for safe reads. The video handle is shared.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:            j.ID,
		Kind:          j.Kind,
		Prompt:        j.Prompt,
		Status:        j.Status,
		Progress:      j.Progress,
		ResultText:    j.ResultText,
		Video:         j.Video,
		ErrorKind:     j.ErrorKind,
		Error:         j.Error,
		Cost:          new(big.Int).Set(j.Cost),
		Debited:       j.Debited,
		OperationName: j.OperationName,
		PollCount:     j.PollCount,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
		CompletedAt:   j.CompletedAt,
	}
}
