package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/flowcredits/internal/job"
	"github.com/maauso/flowcredits/internal/ledger"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// JobService is the job runner as seen by the HTTP layer.
type JobService interface {
	Submit(ctx context.Context, kind job.Kind, prompt string) (*job.Job, error)
	Get(ctx context.Context, jobID string) (*job.Job, error)
	List(ctx context.Context) ([]*job.Job, error)
	Cancel(ctx context.Context, jobID string) error
	OpenVideo(ctx context.Context, jobID string) (io.ReadCloser, error)
	Cost(kind job.Kind) *big.Int
}

// CreditLedger is the credit ledger as seen by the HTTP layer.
type CreditLedger interface {
	Snapshot() ledger.Snapshot
	DepositString(s string) (*big.Int, error)
	DepositPreset(name string) (*big.Int, error)
	ActivateUnlimited() bool
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	jobs      JobService
	ledger    CreditLedger
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(jobs JobService, l CreditLedger, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		jobs:      jobs,
		ledger:    l,
		validator: validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Balance handles GET /balance requests.
func (h *Handlers) Balance(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.balance())
}

// Deposit handles POST /credits requests.
func (h *Handlers) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if !h.decode(w, r, &req) {
		return
	}

	amount, err := h.ledger.DepositString(string(req.Amount))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	h.logger.Info("credits deposited", slog.String("amount", amount.String()))
	writeJSON(w, http.StatusOK, DepositResponse{Deposited: amount.String(), Balance: h.balance()})
}

// DepositPreset handles POST /credits/preset requests.
func (h *Handlers) DepositPreset(w http.ResponseWriter, r *http.Request) {
	var req PresetRequest
	if !h.decode(w, r, &req) {
		return
	}

	amount, err := h.ledger.DepositPreset(req.Preset)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	h.logger.Info("preset credits deposited",
		slog.String("preset", req.Preset),
		slog.String("amount", amount.String()),
	)
	writeJSON(w, http.StatusOK, DepositResponse{Deposited: amount.String(), Balance: h.balance()})
}

// Presets handles GET /credits/presets requests.
func (h *Handlers) Presets(w http.ResponseWriter, _ *http.Request) {
	presets := ledger.Presets()
	resp := PresetsResponse{Presets: make([]PresetResponse, 0, len(presets))}
	for _, p := range presets {
		resp.Presets = append(resp.Presets, PresetResponse{Name: p.Name, Label: p.Label, Amount: p.Amount.String()})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ActivateUnlimited handles POST /plan/unlimited requests.
func (h *Handlers) ActivateUnlimited(w http.ResponseWriter, _ *http.Request) {
	activated := h.ledger.ActivateUnlimited()
	if activated {
		h.logger.Info("unlimited plan activated")
	}
	writeJSON(w, http.StatusOK, UnlimitedResponse{Activated: activated, Balance: h.balance()})
}

// CreateTextJob handles POST /jobs/text requests.
func (h *Handlers) CreateTextJob(w http.ResponseWriter, r *http.Request) {
	h.createJob(w, r, job.KindText)
}

// CreateVideoJob handles POST /jobs/video requests.
func (h *Handlers) CreateVideoJob(w http.ResponseWriter, r *http.Request) {
	h.createJob(w, r, job.KindVideo)
}

func (h *Handlers) createJob(w http.ResponseWriter, r *http.Request, kind job.Kind) {
	var req PromptRequest
	if !h.decode(w, r, &req) {
		return
	}

	// The job outlives the request.
	submitted, err := h.jobs.Submit(context.WithoutCancel(r.Context()), kind, req.Prompt)
	if err != nil {
		h.writeJobError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     submitted.ID,
		Status: string(submitted.Status),
	})
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_FETCH_FAILED")
		return
	}

	resp := ListJobsResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	found, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		h.writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(found))
}

// CancelJob handles DELETE /jobs/{id} requests.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	if err := h.jobs.Cancel(r.Context(), jobID); err != nil {
		h.writeJobError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// GetJobVideo handles GET /jobs/{id}/video requests and streams the payload.
func (h *Handlers) GetJobVideo(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	rc, err := h.jobs.OpenVideo(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrVideoUnavailable) {
			h.writeVideoUnavailable(w, r, jobID)
			return
		}
		h.writeJobError(w, err)
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", "video/mp4")
	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, jobID+".mp4", time.Time{}, rs)
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("failed to stream video",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// writeVideoUnavailable answers 410 for a done video job whose payload was
// released and 404 for jobs that never had one.
func (h *Handlers) writeVideoUnavailable(w http.ResponseWriter, r *http.Request, jobID string) {
	j, err := h.jobs.Get(r.Context(), jobID)
	if err == nil && j.Kind == job.KindVideo && j.Status == job.StatusDone {
		writeError(w, http.StatusGone, "video has been released", "VIDEO_RELEASED")
		return
	}
	writeError(w, http.StatusNotFound, "job has no video", "VIDEO_UNAVAILABLE")
}

func (h *Handlers) balance() BalanceResponse {
	snap := h.ledger.Snapshot()
	return BalanceResponse{
		Balance:   snap.Balance.String(),
		Display:   snap.Display(),
		Unlimited: snap.Unlimited,
		TextCost:  h.jobs.Cost(job.KindText).String(),
		VideoCost: h.jobs.Cost(job.KindVideo).String(),
	}
}

// decode reads and validates a JSON body, writing the error response itself.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

func (h *Handlers) writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, ledger.UserMessage(err), "INVALID_AMOUNT")
	case errors.Is(err, ledger.ErrUnknownPreset):
		writeError(w, http.StatusBadRequest, ledger.UserMessage(err), "UNKNOWN_PRESET")
	default:
		h.logger.Error("ledger operation failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "ledger operation failed", "INTERNAL_ERROR")
	}
}

func (h *Handlers) writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, job.ErrEmptyPrompt):
		writeError(w, http.StatusBadRequest, job.UserMessage(err), "EMPTY_PROMPT")
	case errors.Is(err, job.ErrInvalidKind):
		writeError(w, http.StatusBadRequest, job.UserMessage(err), "INVALID_KIND")
	case errors.Is(err, job.ErrInsufficientCredits):
		writeError(w, http.StatusPaymentRequired, job.UserMessage(err), "INSUFFICIENT_CREDITS")
	case errors.Is(err, job.ErrJobInProgress):
		writeError(w, http.StatusConflict, job.UserMessage(err), "JOB_IN_PROGRESS")
	case errors.Is(err, job.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
	case errors.Is(err, job.ErrJobNotActive):
		writeError(w, http.StatusConflict, "job is not running", "JOB_NOT_ACTIVE")
	case errors.Is(err, job.ErrRunnerClosed):
		writeError(w, http.StatusServiceUnavailable, "service is shutting down", "SHUTTING_DOWN")
	default:
		h.logger.Error("job operation failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "job operation failed", "INTERNAL_ERROR")
	}
}

func toJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:            j.ID,
		Kind:          string(j.Kind),
		Prompt:        j.Prompt,
		Status:        string(j.Status),
		Progress:      j.Progress,
		Result:        j.ResultText,
		ErrorKind:     string(j.ErrorKind),
		Error:         j.Error,
		Cost:          j.Cost.String(),
		Debited:       j.Debited,
		OperationName: j.OperationName,
		PollCount:     j.PollCount,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
	}
	if j.Video != nil && !j.Video.Released() {
		resp.VideoAvailable = true
		resp.VideoURL = j.Video.URL
	}
	if !j.CompletedAt.IsZero() {
		completed := j.CompletedAt
		resp.CompletedAt = &completed
	}
	return resp
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
