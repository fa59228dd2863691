// Package server provides the HTTP API for the credit ledger and generation jobs.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"bytes"
	"encoding/json"
	"time"
)

// AmountInput accepts a deposit amount sent either as a JSON string or a JSON number.
// Arbitrarily large integers are preserved verbatim.
type AmountInput string

// UnmarshalJSON implements json.Unmarshaler.
func (a *AmountInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = AmountInput(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*a = AmountInput(n)
	return nil
}

// DepositRequest is the HTTP request body for adding credits.
type DepositRequest struct {
	// Amount is a positive base-10 integer.
	Amount AmountInput `json:"amount"`
}

// PresetRequest is the HTTP request body for adding a preset amount of credits.
type PresetRequest struct {
	Preset string `json:"preset" validate:"required,oneof=thousand million billion trillion"`
}

// PromptRequest is the HTTP request body for starting a generation job.
type PromptRequest struct {
	Prompt string `json:"prompt" validate:"max=32000"`
}

// BalanceResponse describes the ledger state.
type BalanceResponse struct {
	// Balance is the exact balance in base 10.
	Balance string `json:"balance"`
	// Display is the balance as shown to users, "∞" when unlimited.
	Display   string `json:"display"`
	Unlimited bool   `json:"unlimited"`
	TextCost  string `json:"text_cost"`
	VideoCost string `json:"video_cost"`
}

// DepositResponse is returned after credits are added.
type DepositResponse struct {
	Deposited string          `json:"deposited"`
	Balance   BalanceResponse `json:"balance"`
}

// PresetResponse describes one quick-deposit preset.
type PresetResponse struct {
	Name   string `json:"name"`
	Label  string `json:"label"`
	Amount string `json:"amount"`
}

// PresetsResponse lists the quick-deposit presets.
type PresetsResponse struct {
	Presets []PresetResponse `json:"presets"`
}

// UnlimitedResponse is returned by the unlimited plan activation.
type UnlimitedResponse struct {
	// Activated is false when the plan was already active.
	Activated bool            `json:"activated"`
	Balance   BalanceResponse `json:"balance"`
}

// CreateJobResponse is the HTTP response after submitting a job.
type CreateJobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Prompt   string `json:"prompt"`
	Status   string `json:"status"`
	Progress string `json:"progress,omitempty"`
	// Result is the generated text of a done text job.
	Result    string `json:"result,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
	Cost      string `json:"cost"`
	Debited   bool   `json:"debited"`
	// OperationName identifies the remote video operation.
	OperationName string `json:"operation_name,omitempty"`
	PollCount     int    `json:"poll_count,omitempty"`
	// VideoAvailable is true while the video can be fetched from /jobs/{id}/video.
	VideoAvailable bool `json:"video_available"`
	// VideoURL is the S3 URL of the published video.
	VideoURL    string     `json:"video_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ListJobsResponse lists jobs oldest first.
type ListJobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}
