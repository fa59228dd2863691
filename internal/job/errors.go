package job

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Precondition errors, returned synchronously by Submit and Run.
var (
	ErrInvalidKind         = errors.New("job: invalid kind")
	ErrEmptyPrompt         = errors.New("job: prompt is empty")
	ErrInsufficientCredits = errors.New("job: insufficient credits")
	ErrJobInProgress       = errors.New("job: a job of this kind is already running")
	ErrRunnerClosed        = errors.New("job: runner is closed")
)

// Lookup errors.
var (
	ErrJobNotActive     = errors.New("job: not active")
	ErrVideoUnavailable = errors.New("job: video unavailable")
)

// Failure causes recorded on failed jobs.
var (
	ErrQuotaExceeded       = errors.New("job: quota exceeded")
	ErrMissingDownloadLink = errors.New("job: missing download link")
	ErrDownloadFailed      = errors.New("job: download failed")
	ErrOperationFailed     = errors.New("job: operation failed")
	ErrTimeout             = errors.New("job: timed out")
	ErrCancelled           = errors.New("job: cancelled")
	ErrUnknown             = errors.New("job: unknown error")
)

// User-facing messages.
const (
	MsgQuotaExceeded       = "API quota has been exceeded. Please check your Google AI/Labs account or try again later."
	MsgOperationFailed     = "Video generation failed in operation."
	MsgMissingDownloadLink = "Could not retrieve video download link."
	MsgUnknown             = "An unknown error occurred."
	MsgCancelled           = "Generation was cancelled."
	MsgTimeout             = "Generation timed out."

	textFailurePrefix  = "Failed to generate content: "
	videoFailurePrefix = "Failed to generate video: "
)

var failureKinds = map[error]ErrorKind{
	ErrQuotaExceeded:       ErrorKindQuotaExceeded,
	ErrMissingDownloadLink: ErrorKindMissingDownloadLink,
	ErrDownloadFailed:      ErrorKindDownloadFailed,
	ErrOperationFailed:     ErrorKindOperation,
	ErrTimeout:             ErrorKindTimeout,
	ErrCancelled:           ErrorKindCancelled,
	ErrUnknown:             ErrorKindUnknown,
}

// failure carries a classified cause together with its user-facing message.
type failure struct {
	kind error
	msg  string
	err  error
}

func (f *failure) Error() string {
	if f.err != nil {
		return fmt.Sprintf("%v: %s: %v", f.kind, f.msg, f.err)
	}
	return fmt.Sprintf("%v: %s", f.kind, f.msg)
}

func (f *failure) Unwrap() []error {
	if f.err != nil {
		return []error{f.kind, f.err}
	}
	return []error{f.kind}
}

func fail(kind error, msg string, cause error) error {
	return &failure{kind: kind, msg: msg, err: cause}
}

// isQuotaMessage reports whether msg looks like a rate limit or quota rejection.
func isQuotaMessage(msg string) bool {
	return strings.Contains(msg, "429") || strings.Contains(strings.ToLower(msg), "quota exceeded")
}

// classify maps an execution error to its kind and user-facing message.
// ctx is the job context; its cancellation wins over whatever the
// interrupted call returned.
func classify(ctx context.Context, err error) (ErrorKind, string) {
	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled) {
		return ErrorKindCancelled, MsgCancelled
	}

	var f *failure
	if errors.As(err, &f) {
		if isQuotaMessage(f.msg) {
			return ErrorKindQuotaExceeded, MsgQuotaExceeded
		}
		if kind, ok := failureKinds[f.kind]; ok {
			return kind, f.msg
		}
		return ErrorKindOperation, f.msg
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout, MsgTimeout
	}

	msg := err.Error()
	if isQuotaMessage(msg) {
		return ErrorKindQuotaExceeded, MsgQuotaExceeded
	}
	return ErrorKindOperation, msg
}

func failurePrefix(kind Kind) string {
	if kind == KindVideo {
		return videoFailurePrefix
	}
	return textFailurePrefix
}

// precondition wraps a sentinel with the message shown to the user.
func precondition(sentinel error, msg string) error {
	return fmt.Errorf("%w: %s", sentinel, msg)
}

// UserMessage returns the human-readable part of a precondition error,
// or the error text itself for anything else.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	for _, sentinel := range []error{ErrInvalidKind, ErrEmptyPrompt, ErrInsufficientCredits, ErrJobInProgress, ErrRunnerClosed} {
		if errors.Is(err, sentinel) {
			if msg, ok := strings.CutPrefix(err.Error(), sentinel.Error()+": "); ok {
				return msg
			}
		}
	}
	return err.Error()
}

func emptyPromptMessage(kind Kind) string {
	if kind == KindVideo {
		return "Video prompt cannot be empty."
	}
	return "Prompt cannot be empty."
}

func insufficientCreditsMessage(kind Kind) string {
	if kind == KindVideo {
		return "Not enough credits for video generation. Add more credits or activate the Ultra Plan."
	}
	return "Not enough credits to generate. Add more credits or activate the Ultra Plan."
}
