// Package gemini provides an HTTP client for the Gemini generative content REST API.
package gemini

import (
	"fmt"
	"strings"
)

// VideoConfig contains optional parameters for a video generation request.
type VideoConfig struct {
	NumberOfVideos int // Number of videos to generate (default: 1)
}

// Operation is the long-running operation returned by a video generation request.
// The Name is re-submitted on each poll.
type Operation struct {
	Name     string
	Done     bool
	Metadata map[string]any
	Error    *Status
	Response *VideoResponse
}

// State returns the metadata "state" value, or "" when the service omits it.
func (o *Operation) State() string {
	if o == nil || o.Metadata == nil {
		return ""
	}
	if s, ok := o.Metadata["state"].(string); ok {
		return s
	}
	return ""
}

// FirstVideoURI returns the retrieval URI of the first generated video, or "".
func (o *Operation) FirstVideoURI() string {
	if o == nil || o.Response == nil || len(o.Response.GeneratedVideos) == 0 {
		return ""
	}
	return o.Response.GeneratedVideos[0].URI
}

// Status is an error payload reported by the API.
type Status struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
}

// VideoResponse is the payload of a finished video operation.
type VideoResponse struct {
	GeneratedVideos []GeneratedVideo
}

// GeneratedVideo references one generated video.
type GeneratedVideo struct {
	URI      string
	MIMEType string
}

// APIError is returned when the API answers with a non-2xx status code.
type APIError struct {
	StatusCode int
	Status     string // Reason phrase, e.g. "Not Found"
	Message    string // Message from the error payload, if any
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gemini: request failed with status %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("gemini: request failed with status %d %s", e.StatusCode, e.Status)
}

// generateContentRequest is the body of a models/{model}:generateContent call.
type generateContentRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text,omitempty"`
}

// generateContentResponse is the response of a generateContent call.
type generateContentResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
}

// text concatenates the text parts of the first candidate.
func (r *generateContentResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// predictRequest is the body of a models/{model}:predictLongRunning call.
type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParameters `json:"parameters"`
}

type predictInstance struct {
	Prompt string `json:"prompt"`
}

type predictParameters struct {
	SampleCount int `json:"sampleCount"`
}

// operationResponse is the wire form of a long-running operation.
type operationResponse struct {
	Name     string         `json:"name"`
	Done     bool           `json:"done,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Error    *Status        `json:"error,omitempty"`
	Response *struct {
		GenerateVideoResponse *struct {
			GeneratedSamples []struct {
				Video *struct {
					URI      string `json:"uri"`
					MIMEType string `json:"mimeType,omitempty"`
				} `json:"video,omitempty"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse,omitempty"`
	} `json:"response,omitempty"`
}

// toOperation flattens the wire payload.
func (r *operationResponse) toOperation() *Operation {
	op := &Operation{
		Name:     r.Name,
		Done:     r.Done,
		Metadata: r.Metadata,
		Error:    r.Error,
	}
	if r.Response != nil && r.Response.GenerateVideoResponse != nil {
		resp := &VideoResponse{}
		// Samples keep their index; one without a video yields an empty entry.
		for _, s := range r.Response.GenerateVideoResponse.GeneratedSamples {
			var v GeneratedVideo
			if s.Video != nil {
				v = GeneratedVideo{URI: s.Video.URI, MIMEType: s.Video.MIMEType}
			}
			resp.GeneratedVideos = append(resp.GeneratedVideos, v)
		}
		op.Response = resp
	}
	return op
}

// errorEnvelope is the standard Google API error body.
type errorEnvelope struct {
	Error *Status `json:"error"`
}
