package generator

import (
	"context"
	"errors"
	"io"

	"github.com/maauso/flowcredits/internal/gemini"
)

// GeminiAdapter adapts the Gemini client to the Generator interface.
type GeminiAdapter struct {
	client gemini.Client
}

// NewGeminiAdapter creates a new Gemini generator adapter.
func NewGeminiAdapter(client gemini.Client) *GeminiAdapter {
	return &GeminiAdapter{client: client}
}

// GenerateText runs a text completion through Gemini.
// Client errors are returned unwrapped so their text reaches the user as-is.
func (a *GeminiAdapter) GenerateText(ctx context.Context, model, prompt string) (string, error) {
	return a.client.GenerateContent(ctx, model, prompt)
}

// SubmitVideo starts a Gemini video generation.
func (a *GeminiAdapter) SubmitVideo(ctx context.Context, model, prompt string, opts VideoOptions) (Operation, error) {
	op, err := a.client.GenerateVideos(ctx, model, prompt, gemini.VideoConfig{
		NumberOfVideos: opts.NumberOfVideos,
	})
	if err != nil {
		return Operation{}, err
	}
	return fromGemini(op), nil
}

// PollVideo fetches the latest state of a Gemini operation.
func (a *GeminiAdapter) PollVideo(ctx context.Context, op Operation) (Operation, error) {
	latest, err := a.client.GetOperation(ctx, op.Name)
	if err != nil {
		return Operation{}, err
	}
	return fromGemini(latest), nil
}

// DownloadVideo downloads the generated video payload.
// HTTP rejections are reported as *DownloadError.
func (a *GeminiAdapter) DownloadVideo(ctx context.Context, uri string) (io.ReadCloser, error) {
	body, err := a.client.Download(ctx, uri)
	if err != nil {
		var apiErr *gemini.APIError
		if errors.As(err, &apiErr) {
			return nil, &DownloadError{StatusCode: apiErr.StatusCode, Status: apiErr.Status, Err: err}
		}
		return nil, err
	}
	return body, nil
}

// fromGemini maps a Gemini operation to the common snapshot.
func fromGemini(op *gemini.Operation) Operation {
	out := Operation{
		Name:     op.Name,
		Done:     op.Done,
		State:    op.State(),
		VideoURI: op.FirstVideoURI(),
	}
	if op.Error != nil {
		out.Failed = true
		out.Error = op.Error.Message
	}
	return out
}

// Compile-time check that GeminiAdapter implements Generator.
var _ Generator = (*GeminiAdapter)(nil)
