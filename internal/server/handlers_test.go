package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/flowcredits/internal/job"
	"github.com/maauso/flowcredits/internal/ledger"
	"github.com/maauso/flowcredits/internal/metrics"
	"github.com/maauso/flowcredits/internal/playback"
	"github.com/maauso/flowcredits/internal/storage"
)

// mockJobService implements JobService for testing.
type mockJobService struct {
	mock.Mock
}

func (m *mockJobService) Submit(ctx context.Context, kind job.Kind, prompt string) (*job.Job, error) {
	args := m.Called(ctx, kind, prompt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}

func (m *mockJobService) Get(ctx context.Context, jobID string) (*job.Job, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}

func (m *mockJobService) List(ctx context.Context) ([]*job.Job, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*job.Job), args.Error(1)
}

func (m *mockJobService) Cancel(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *mockJobService) OpenVideo(ctx context.Context, jobID string) (io.ReadCloser, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *mockJobService) Cost(kind job.Kind) *big.Int {
	if kind == job.KindVideo {
		return big.NewInt(job.DefaultVideoCost)
	}
	return big.NewInt(job.DefaultTextCost)
}

type nopSeekCloser struct {
	*strings.Reader
}

func (nopSeekCloser) Close() error { return nil }

func newTestHandlers(t *testing.T) (*Handlers, *mockJobService, *ledger.Ledger) {
	t.Helper()
	jobs := &mockJobService{}
	l := ledger.New(big.NewInt(20000))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewHandlers(jobs, l, logger), jobs, l
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ok", decodeBody[HealthResponse](t, rec).Status)
}

func TestBalance(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.Balance(rec, httptest.NewRequest(http.MethodGet, "/balance", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[BalanceResponse](t, rec)
	assert.Equal(t, "20000", resp.Balance)
	assert.Equal(t, "20,000", resp.Display)
	assert.False(t, resp.Unlimited)
	assert.Equal(t, "100", resp.TextCost)
	assert.Equal(t, "10000", resp.VideoCost)
}

func TestDeposit(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		status    int
		code      string
		message   string
		balance   string
		deposited string
	}{
		{name: "string amount", body: `{"amount":"5000"}`, status: http.StatusOK, balance: "25000", deposited: "5000"},
		{name: "number amount", body: `{"amount":250}`, status: http.StatusOK, balance: "20250", deposited: "250"},
		{
			name:      "beyond int64",
			body:      `{"amount":"1000000000000000000000000"}`,
			status:    http.StatusOK,
			balance:   "1000000000000000000020000",
			deposited: "1000000000000000000000000",
		},
		{name: "empty", body: `{"amount":""}`, status: http.StatusBadRequest, code: "INVALID_AMOUNT", message: "Please enter an amount."},
		{name: "missing", body: `{}`, status: http.StatusBadRequest, code: "INVALID_AMOUNT", message: "Please enter an amount."},
		{name: "not a number", body: `{"amount":"12abc"}`, status: http.StatusBadRequest, code: "INVALID_AMOUNT", message: "Invalid number format. Please enter a valid integer."},
		{name: "negative", body: `{"amount":"-5"}`, status: http.StatusBadRequest, code: "INVALID_AMOUNT", message: "Amount must be a positive number."},
		{name: "zero", body: `{"amount":0}`, status: http.StatusBadRequest, code: "INVALID_AMOUNT", message: "Amount must be a positive number."},
		{name: "invalid json", body: `{amount}`, status: http.StatusBadRequest, code: "INVALID_JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, l := newTestHandlers(t)

			req := httptest.NewRequest(http.MethodPost, "/credits", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			h.Deposit(rec, req)

			require.Equal(t, tt.status, rec.Code)
			if tt.code != "" {
				resp := decodeBody[ErrorResponse](t, rec)
				assert.Equal(t, tt.code, resp.Code)
				if tt.message != "" {
					assert.Equal(t, tt.message, resp.Error)
				}
				assert.Equal(t, "20000", l.Balance().String())
				return
			}
			resp := decodeBody[DepositResponse](t, rec)
			assert.Equal(t, tt.deposited, resp.Deposited)
			assert.Equal(t, tt.balance, resp.Balance.Balance)
		})
	}
}

func TestDepositPreset(t *testing.T) {
	h, _, l := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/credits/preset", strings.NewReader(`{"preset":"trillion"}`))
	rec := httptest.NewRecorder()
	h.DepositPreset(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[DepositResponse](t, rec)
	assert.Equal(t, "1000000000000", resp.Deposited)
	assert.Equal(t, "1000000020000", l.Balance().String())
	assert.Equal(t, "1,000,000,020,000", resp.Balance.Display)
}

func TestDepositPreset_ValidationError(t *testing.T) {
	h, _, l := newTestHandlers(t)

	for _, body := range []string{`{}`, `{"preset":"gazillion"}`} {
		rec := httptest.NewRecorder()
		h.DepositPreset(rec, httptest.NewRequest(http.MethodPost, "/credits/preset", strings.NewReader(body)))

		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "VALIDATION_ERROR", decodeBody[ErrorResponse](t, rec).Code)
	}
	assert.Equal(t, "20000", l.Balance().String())
}

func TestPresets(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.Presets(rec, httptest.NewRequest(http.MethodGet, "/credits/presets", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[PresetsResponse](t, rec)
	require.Len(t, resp.Presets, 4)
	assert.Equal(t, PresetResponse{Name: "thousand", Label: "+1 Thousand", Amount: "1000"}, resp.Presets[0])
	assert.Equal(t, "trillion", resp.Presets[3].Name)
}

func TestActivateUnlimited(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.ActivateUnlimited(rec, httptest.NewRequest(http.MethodPost, "/plan/unlimited", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[UnlimitedResponse](t, rec)
	assert.True(t, resp.Activated)
	assert.True(t, resp.Balance.Unlimited)
	assert.Equal(t, ledger.UnlimitedSymbol, resp.Balance.Display)

	// A second activation is a no-op.
	rec = httptest.NewRecorder()
	h.ActivateUnlimited(rec, httptest.NewRequest(http.MethodPost, "/plan/unlimited", nil))
	assert.False(t, decodeBody[UnlimitedResponse](t, rec).Activated)
}

func TestCreateJob_Success(t *testing.T) {
	h, jobs, _ := newTestHandlers(t)

	submitted := job.NewWithID("job-1", job.KindVideo, "a cat surfing", big.NewInt(10000))
	require.NoError(t, submitted.TransitionTo(job.StatusSubmitted))
	jobs.On("Submit", mock.Anything, job.KindVideo, "a cat surfing").Return(submitted, nil)

	req := httptest.NewRequest(http.MethodPost, "/jobs/video", strings.NewReader(`{"prompt":"a cat surfing"}`))
	rec := httptest.NewRecorder()
	h.CreateVideoJob(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decodeBody[CreateJobResponse](t, rec)
	assert.Equal(t, "job-1", resp.ID)
	assert.Equal(t, "submitted", resp.Status)
	jobs.AssertExpectations(t)
}

func TestCreateJob_SubmitOutlivesRequest(t *testing.T) {
	h, jobs, _ := newTestHandlers(t)

	submitted := job.NewWithID("job-1", job.KindText, "hi", big.NewInt(100))
	jobs.On("Submit", mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil }), job.KindText, "hi").
		Return(submitted, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequestWithContext(ctx, http.MethodPost, "/jobs/text", strings.NewReader(`{"prompt":"hi"}`))
	rec := httptest.NewRecorder()
	h.CreateTextJob(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	jobs.AssertExpectations(t)
}

func TestCreateJob_PreconditionErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		msg    string
	}{
		{
			name:   "empty prompt",
			err:    fmt.Errorf("%w: Prompt cannot be empty.", job.ErrEmptyPrompt),
			status: http.StatusBadRequest,
			code:   "EMPTY_PROMPT",
			msg:    "Prompt cannot be empty.",
		},
		{
			name:   "insufficient credits",
			err:    fmt.Errorf("%w: Not enough credits to generate. Add more credits or activate the Ultra Plan.", job.ErrInsufficientCredits),
			status: http.StatusPaymentRequired,
			code:   "INSUFFICIENT_CREDITS",
			msg:    "Not enough credits to generate. Add more credits or activate the Ultra Plan.",
		},
		{
			name:   "in progress",
			err:    job.ErrJobInProgress,
			status: http.StatusConflict,
			code:   "JOB_IN_PROGRESS",
		},
		{
			name:   "shutting down",
			err:    job.ErrRunnerClosed,
			status: http.StatusServiceUnavailable,
			code:   "SHUTTING_DOWN",
		},
		{
			name:   "unexpected",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			code:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, jobs, _ := newTestHandlers(t)
			jobs.On("Submit", mock.Anything, job.KindText, "   ").Return(nil, tt.err)

			rec := httptest.NewRecorder()
			h.CreateTextJob(rec, httptest.NewRequest(http.MethodPost, "/jobs/text", strings.NewReader(`{"prompt":"   "}`)))

			require.Equal(t, tt.status, rec.Code)
			resp := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, tt.code, resp.Code)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, resp.Error)
			}
		})
	}
}

func TestCreateJob_InvalidJSON(t *testing.T) {
	h, jobs, _ := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.CreateTextJob(rec, httptest.NewRequest(http.MethodPost, "/jobs/text", bytes.NewBufferString("invalid json")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_JSON", decodeBody[ErrorResponse](t, rec).Code)
	jobs.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetJob_Success(t *testing.T) {
	h, jobs, _ := newTestHandlers(t)

	j := job.NewWithID("job-1", job.KindText, "write a haiku", big.NewInt(100))
	require.NoError(t, j.TransitionTo(job.StatusSubmitted))
	require.NoError(t, j.Complete("an old silent pond"))
	j.MarkDebited()
	jobs.On("Get", mock.Anything, "job-1").Return(j, nil)

	req := httptest.NewRequest(http.MethodGet, "/jobs/job-1", nil)
	req.SetPathValue("id", "job-1")
	rec := httptest.NewRecorder()
	h.GetJob(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[JobResponse](t, rec)
	assert.Equal(t, "job-1", resp.ID)
	assert.Equal(t, "text", resp.Kind)
	assert.Equal(t, "done", resp.Status)
	assert.Equal(t, "an old silent pond", resp.Result)
	assert.Equal(t, "100", resp.Cost)
	assert.True(t, resp.Debited)
	assert.False(t, resp.VideoAvailable)
	require.NotNil(t, resp.CompletedAt)
}

func TestGetJob_Failed(t *testing.T) {
	h, jobs, _ := newTestHandlers(t)

	j := job.NewWithID("job-2", job.KindVideo, "a cat", big.NewInt(10000))
	require.NoError(t, j.TransitionTo(job.StatusSubmitted))
	require.NoError(t, j.Fail(job.ErrorKindQuotaExceeded, "Failed to generate video: "+job.MsgQuotaExceeded))
	jobs.On("Get", mock.Anything, "job-2").Return(j, nil)

	req := httptest.NewRequest(http.MethodGet, "/jobs/job-2", nil)
	req.SetPathValue("id", "job-2")
	rec := httptest.NewRecorder()
	h.GetJob(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[JobResponse](t, rec)
	assert.Equal(t, "failed", resp.Status)
	assert.Equal(t, "QUOTA_EXCEEDED", resp.ErrorKind)
	assert.Equal(t, "Failed to generate video: "+job.MsgQuotaExceeded, resp.Error)
	assert.False(t, resp.Debited)
}

func TestGetJob_NotFound(t *testing.T) {
	h, jobs, _ := newTestHandlers(t)
	jobs.On("Get", mock.Anything, "missing").Return(nil, job.ErrJobNotFound)

	req := httptest.NewRequest(http.MethodGet, "/jobs/missing", nil)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()
	h.GetJob(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "JOB_NOT_FOUND", decodeBody[ErrorResponse](t, rec).Code)
}

func TestGetJob_MissingID(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.GetJob(rec, httptest.NewRequest(http.MethodGet, "/jobs/", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_JOB_ID", decodeBody[ErrorResponse](t, rec).Code)
}

func TestListJobs(t *testing.T) {
	h, jobs, _ := newTestHandlers(t)
	jobs.On("List", mock.Anything).Return([]*job.Job{
		job.NewWithID("job-1", job.KindText, "a", big.NewInt(100)),
		job.NewWithID("job-2", job.KindVideo, "b", big.NewInt(10000)),
	}, nil)

	rec := httptest.NewRecorder()
	h.ListJobs(rec, httptest.NewRequest(http.MethodGet, "/jobs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[ListJobsResponse](t, rec)
	require.Len(t, resp.Jobs, 2)
	assert.Equal(t, "job-1", resp.Jobs[0].ID)
	assert.Equal(t, "video", resp.Jobs[1].Kind)
}

func TestCancelJob(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "active", status: http.StatusAccepted},
		{name: "terminal", err: job.ErrJobNotActive, status: http.StatusConflict},
		{name: "unknown", err: job.ErrJobNotFound, status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, jobs, _ := newTestHandlers(t)
			jobs.On("Cancel", mock.Anything, "job-1").Return(tt.err)

			req := httptest.NewRequest(http.MethodDelete, "/jobs/job-1", nil)
			req.SetPathValue("id", "job-1")
			rec := httptest.NewRecorder()
			h.CancelJob(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			jobs.AssertExpectations(t)
		})
	}
}

func TestGetJobVideo_Streams(t *testing.T) {
	h, jobs, _ := newTestHandlers(t)
	jobs.On("OpenVideo", mock.Anything, "job-1").Return(nopSeekCloser{strings.NewReader("0123456789")}, nil)

	req := httptest.NewRequest(http.MethodGet, "/jobs/job-1/video", nil)
	req.SetPathValue("id", "job-1")
	req.Header.Set("Range", "bytes=2-5")
	rec := httptest.NewRecorder()
	h.GetJobVideo(rec, req)

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, "2345", rec.Body.String())
}

func TestGetJobVideo_Unavailable(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	path, err := store.SaveTemp(context.Background(), "video_job-1", strings.NewReader("frames"))
	require.NoError(t, err)

	released := job.NewWithID("job-1", job.KindVideo, "a cat", big.NewInt(10000))
	require.NoError(t, released.TransitionTo(job.StatusSubmitted))
	handle := playback.NewHandle(store, "job-1", path, "", "", nil)
	require.NoError(t, released.CompleteVideo(handle))
	handle.Release(context.Background())

	text := job.NewWithID("job-2", job.KindText, "hi", big.NewInt(100))

	tests := []struct {
		name   string
		id     string
		found  *job.Job
		status int
		code   string
	}{
		{name: "superseded video", id: "job-1", found: released, status: http.StatusGone, code: "VIDEO_RELEASED"},
		{name: "text job", id: "job-2", found: text, status: http.StatusNotFound, code: "VIDEO_UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, jobs, _ := newTestHandlers(t)
			jobs.On("OpenVideo", mock.Anything, tt.id).Return(nil, job.ErrVideoUnavailable)
			jobs.On("Get", mock.Anything, tt.id).Return(tt.found, nil)

			req := httptest.NewRequest(http.MethodGet, "/jobs/"+tt.id+"/video", nil)
			req.SetPathValue("id", tt.id)
			rec := httptest.NewRecorder()
			h.GetJobVideo(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeBody[ErrorResponse](t, rec).Code)
		})
	}
}

func TestToJobResponse_LiveVideo(t *testing.T) {
	j := job.NewWithID("job-1", job.KindVideo, "a cat", big.NewInt(10000))
	require.NoError(t, j.TransitionTo(job.StatusSubmitted))
	require.NoError(t, j.CompleteVideo(playback.NewHandle(nil, "job-1", "/tmp/v.mp4", "videos/job-1.mp4", "https://bucket/videos/job-1.mp4", nil)))

	resp := toJobResponse(j)
	assert.True(t, resp.VideoAvailable)
	assert.Equal(t, "https://bucket/videos/job-1.mp4", resp.VideoURL)
}

func TestRouter_Integration(t *testing.T) {
	h, jobs, _ := newTestHandlers(t)
	m := metrics.New(prometheus.NewRegistry())
	cfg := DefaultConfig()
	cfg.Metrics = m
	router := NewRouter(h, slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)

	jobs.On("Get", mock.Anything, "job-1").Return(job.NewWithID("job-1", job.KindText, "hi", big.NewInt(100)), nil)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/balance", http.StatusOK},
		{http.MethodGet, "/credits/presets", http.StatusOK},
		{http.MethodGet, "/jobs/job-1", http.StatusOK},
		{http.MethodPost, "/health", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, tt.status, rec.Code, "%s %s", tt.method, tt.path)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "GET /jobs/{id}", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "flowcredits_http_requests_total")
}

func TestRouter_NoMetricsRoute(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	router := NewRouter(h, slog.New(slog.NewTextHandler(io.Discard, nil)), DefaultConfig())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSMiddleware(t *testing.T) {
	handler := CORSMiddleware([]string{"https://app.example"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/jobs/text", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := RecoveryMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("test panic")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeBody[ErrorResponse](t, rec).Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}

func TestMetricsMiddleware_Nil(t *testing.T) {
	called := false
	handler := MetricsMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestAmountInput(t *testing.T) {
	tests := []struct {
		in   string
		want AmountInput
	}{
		{`{"amount":"42"}`, "42"},
		{`{"amount":42}`, "42"},
		{`{"amount":null}`, ""},
		{`{"amount":123456789012345678901234567890}`, "123456789012345678901234567890"},
	}
	for _, tt := range tests {
		var req DepositRequest
		require.NoError(t, json.Unmarshal([]byte(tt.in), &req), tt.in)
		assert.Equal(t, tt.want, req.Amount, tt.in)
	}

	var req DepositRequest
	assert.Error(t, json.Unmarshal([]byte(`{"amount":true}`), &req))
}

func TestGetJob_TimestampFormat(t *testing.T) {
	h, jobs, _ := newTestHandlers(t)
	j := job.NewWithID("job-1", job.KindText, "hi", big.NewInt(100))
	j.CreatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	jobs.On("Get", mock.Anything, "job-1").Return(j, nil)

	req := httptest.NewRequest(http.MethodGet, "/jobs/job-1", nil)
	req.SetPathValue("id", "job-1")
	rec := httptest.NewRecorder()
	h.GetJob(rec, req)

	assert.Contains(t, rec.Body.String(), `"created_at":"2026-01-02T03:04:05Z"`)
	assert.NotContains(t, rec.Body.String(), `"completed_at"`)
}
