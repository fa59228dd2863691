package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/maauso/flowcredits/internal/generator"
	"github.com/maauso/flowcredits/internal/metrics"
	"github.com/maauso/flowcredits/internal/playback"
	"github.com/maauso/flowcredits/internal/storage"
)

// Defaults applied by NewRunner.
const (
	DefaultTextModel       = "gemini-2.5-flash"
	DefaultVideoModel      = "veo-2.0-generate-001"
	DefaultTextCost        = 100
	DefaultVideoCost       = 10000
	DefaultPollInterval    = 10 * time.Second
	DefaultMaxPollDuration = 15 * time.Minute
)

// Video progress messages.
const (
	ProgressInitializing = "Initializing video generation... This may take a few minutes."
	ProgressPolling      = "Video generation is in progress. Polling for results..."
	ProgressDownloading  = "Generation complete! Downloading video..."
	progressChecking     = "Checking progress... Status: %s"
	defaultPollState     = "processing"
)

// Ledger is the part of the credit ledger the Runner charges against.
type Ledger interface {
	CanAfford(cost *big.Int) bool
	Debit(cost *big.Int) error
	Unlimited() bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithPollInterval sets the wait between video status fetches.
func WithPollInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithMaxPollDuration bounds how long a video operation is polled. Zero disables the bound.
func WithMaxPollDuration(d time.Duration) Option {
	return func(r *Runner) {
		if d >= 0 {
			r.maxPollDuration = d
		}
	}
}

// WithModels overrides the text and video model identifiers. Empty values keep the default.
func WithModels(text, video string) Option {
	return func(r *Runner) {
		if text != "" {
			r.textModel = text
		}
		if video != "" {
			r.videoModel = video
		}
	}
}

// WithCosts overrides the per-job prices. Nil or negative values keep the default.
func WithCosts(text, video *big.Int) Option {
	return func(r *Runner) {
		if text != nil && text.Sign() >= 0 {
			r.textCost = new(big.Int).Set(text)
		}
		if video != nil && video.Sign() >= 0 {
			r.videoCost = new(big.Int).Set(video)
		}
	}
}

// WithMetrics records job outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithRepository replaces the default in-memory repository.
func WithRepository(repo Repository) Option {
	return func(r *Runner) {
		if repo != nil {
			r.repo = repo
		}
	}
}

// WithS3Publishing uploads finished videos through the storage S3 backend.
func WithS3Publishing(enabled bool) Option {
	return func(r *Runner) {
		r.publish = enabled
	}
}

type run struct {
	job    *Job
	cancel context.CancelFunc
}

// Runner executes generation jobs. At most one job per kind is in flight.
// The cost of a job is debited only after it reaches done.
type Runner struct {
	ledger  Ledger
	gen     generator.Generator
	store   storage.Storage
	repo    Repository
	slot    *playback.Slot
	metrics *metrics.Metrics
	log     *slog.Logger

	textModel       string
	videoModel      string
	textCost        *big.Int
	videoCost       *big.Int
	pollInterval    time.Duration
	maxPollDuration time.Duration
	publish         bool

	root       context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup

	mu     sync.Mutex
	active map[Kind]*run
	closed bool
}

// NewRunner creates a Runner charging l and generating through gen.
// Video payloads are kept in store.
func NewRunner(l Ledger, gen generator.Generator, store storage.Storage, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	root, cancel := context.WithCancel(context.Background())

	r := &Runner{
		ledger:          l,
		gen:             gen,
		store:           store,
		repo:            NewMemoryRepository(),
		slot:            playback.NewSlot(),
		log:             logger,
		textModel:       DefaultTextModel,
		videoModel:      DefaultVideoModel,
		textCost:        big.NewInt(DefaultTextCost),
		videoCost:       big.NewInt(DefaultVideoCost),
		pollInterval:    DefaultPollInterval,
		maxPollDuration: DefaultMaxPollDuration,
		root:            root,
		rootCancel:      cancel,
		active:          make(map[Kind]*run),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cost returns the price of a job of the given kind.
func (r *Runner) Cost(kind Kind) *big.Int {
	if kind == KindVideo {
		return new(big.Int).Set(r.videoCost)
	}
	return new(big.Int).Set(r.textCost)
}

// Submit validates the request, records the job and runs it in the background.
// It returns a snapshot of the submitted job.
func (r *Runner) Submit(ctx context.Context, kind Kind, prompt string) (*Job, error) {
	rn, jobCtx, err := r.start(ctx, kind, prompt, false)
	if err != nil {
		return nil, err
	}
	snapshot := rn.job.Clone()

	go r.execute(jobCtx, rn)
	return snapshot, nil
}

// Run validates the request and executes the job on the calling goroutine.
// It returns the terminal snapshot; execution failures are recorded on the
// job rather than returned.
func (r *Runner) Run(ctx context.Context, kind Kind, prompt string) (*Job, error) {
	rn, jobCtx, err := r.start(ctx, kind, prompt, true)
	if err != nil {
		return nil, err
	}

	r.execute(jobCtx, rn)
	return rn.job.Clone(), nil
}

// Get returns a snapshot of the job with the given ID.
func (r *Runner) Get(ctx context.Context, jobID string) (*Job, error) {
	return r.repo.FindByID(ctx, jobID)
}

// List returns snapshots of all jobs, oldest first.
func (r *Runner) List(ctx context.Context) ([]*Job, error) {
	return r.repo.List(ctx)
}

// Cancel stops an in-flight job. The job ends failed with ErrorKindCancelled.
func (r *Runner) Cancel(ctx context.Context, jobID string) error {
	r.mu.Lock()
	for _, rn := range r.active {
		if rn.job.ID == jobID && !rn.job.IsTerminal() {
			rn.cancel()
			r.mu.Unlock()
			r.log.Info("job cancellation requested", slog.String("job_id", jobID))
			return nil
		}
	}
	r.mu.Unlock()

	if _, err := r.repo.FindByID(ctx, jobID); err != nil {
		return err
	}
	return ErrJobNotActive
}

// OpenVideo opens the payload of a done video job.
// Returns ErrVideoUnavailable when the job has no live video.
func (r *Runner) OpenVideo(ctx context.Context, jobID string) (io.ReadCloser, error) {
	j, err := r.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.Video == nil {
		return nil, ErrVideoUnavailable
	}

	rc, err := j.Video.Open(ctx)
	if errors.Is(err, playback.ErrReleased) {
		return nil, ErrVideoUnavailable
	}
	return rc, err
}

// Close cancels in-flight jobs, waits for them to stop and releases the
// current video. Submissions after Close fail with ErrRunnerClosed.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.rootCancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("job: close: %w", ctx.Err())
	}

	r.slot.Close(context.WithoutCancel(ctx))
	return err
}

// start checks the preconditions and registers the job as in flight.
// Inline jobs inherit the caller's context; background jobs only the runner's.
func (r *Runner) start(ctx context.Context, kind Kind, prompt string, inline bool) (*run, context.Context, error) {
	if !kind.IsValid() {
		return nil, nil, precondition(ErrInvalidKind, fmt.Sprintf("Unknown job kind %q.", kind))
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, nil, precondition(ErrEmptyPrompt, emptyPromptMessage(kind))
	}
	cost := r.Cost(kind)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, nil, ErrRunnerClosed
	}
	if !r.ledger.CanAfford(cost) {
		r.mu.Unlock()
		return nil, nil, precondition(ErrInsufficientCredits, insufficientCreditsMessage(kind))
	}
	if rn, busy := r.active[kind]; busy && !rn.job.IsTerminal() {
		r.mu.Unlock()
		return nil, nil, precondition(ErrJobInProgress, fmt.Sprintf("A %s generation is already in progress.", kind))
	}

	j := New(kind, prompt, cost)
	if err := j.TransitionTo(StatusSubmitted); err != nil {
		r.mu.Unlock()
		return nil, nil, err
	}
	if kind == KindVideo {
		j.SetProgress(ProgressInitializing)
	}
	if err := r.repo.Save(ctx, j); err != nil {
		r.mu.Unlock()
		return nil, nil, fmt.Errorf("job: save: %w", err)
	}

	base := r.root
	if inline {
		base = ctx
	}
	jobCtx, cancel := context.WithCancel(base)
	if inline {
		stop := context.AfterFunc(r.root, cancel)
		cancelJob := cancel
		cancel = func() {
			stop()
			cancelJob()
		}
	}
	rn := &run{job: j, cancel: cancel}
	r.active[kind] = rn
	r.wg.Add(1)
	r.mu.Unlock()

	r.log.Info("job submitted",
		slog.String("job_id", j.ID),
		slog.String("kind", string(kind)),
		slog.String("cost", cost.String()),
	)

	if kind == KindVideo {
		// A new video supersedes whatever is currently playable.
		r.slot.Replace(context.WithoutCancel(ctx), nil)
	}
	return rn, jobCtx, nil
}

// execute drives the job to a terminal state.
func (r *Runner) execute(ctx context.Context, rn *run) {
	defer r.wg.Done()
	defer r.finish(rn)

	j := rn.job
	if err := r.safeRun(ctx, j); err != nil {
		kind, msg := classify(ctx, err)
		if ferr := j.Fail(kind, failurePrefix(j.Kind)+msg); ferr != nil {
			r.log.Error("failed to record job failure",
				slog.String("job_id", j.ID),
				slog.String("error", ferr.Error()),
			)
		}
		r.save(ctx, j)
		r.log.Warn("job failed",
			slog.String("job_id", j.ID),
			slog.String("kind", string(j.Kind)),
			slog.String("error_kind", string(kind)),
			slog.String("error", err.Error()),
		)
		return
	}

	r.charge(ctx, j)
	r.log.Info("job completed",
		slog.String("job_id", j.ID),
		slog.String("kind", string(j.Kind)),
	)
}

func (r *Runner) safeRun(ctx context.Context, j *Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("job panicked", slog.String("job_id", j.ID), slog.Any("panic", rec))
			err = fail(ErrUnknown, MsgUnknown, fmt.Errorf("panic: %v", rec))
		}
	}()

	if j.Kind == KindVideo {
		return r.runVideo(ctx, j)
	}
	return r.runText(ctx, j)
}

func (r *Runner) runText(ctx context.Context, j *Job) error {
	text, err := r.gen.GenerateText(ctx, r.textModel, j.Prompt)
	if err != nil {
		return err
	}
	if err := j.Complete(text); err != nil {
		return err
	}
	r.save(ctx, j)
	return nil
}

func (r *Runner) runVideo(ctx context.Context, j *Job) error {
	op, err := r.gen.SubmitVideo(ctx, r.videoModel, j.Prompt, generator.VideoOptions{NumberOfVideos: 1})
	if err != nil {
		return err
	}
	j.SetOperation(op.Name)
	if err := j.TransitionWithProgress(StatusPolling, ProgressPolling); err != nil {
		return err
	}
	r.save(ctx, j)

	op, err = r.poll(ctx, j, op)
	if err != nil {
		return err
	}
	if op.Status() == generator.StatusFailed {
		msg := op.Error
		if msg == "" {
			msg = MsgOperationFailed
		}
		return fail(ErrOperationFailed, msg, nil)
	}

	if err := j.TransitionWithProgress(StatusDownloading, ProgressDownloading); err != nil {
		return err
	}
	r.save(ctx, j)
	if op.VideoURI == "" {
		return fail(ErrMissingDownloadLink, MsgMissingDownloadLink, nil)
	}

	h, err := r.fetchVideo(ctx, j, op.VideoURI)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		h.Release(context.WithoutCancel(ctx))
		return err
	}
	r.slot.Replace(context.WithoutCancel(ctx), h)
	if err := j.CompleteVideo(h); err != nil {
		return err
	}
	r.save(ctx, j)
	return nil
}

// poll re-fetches op until it is done, the poll bound elapses or ctx ends.
func (r *Runner) poll(ctx context.Context, j *Job, op generator.Operation) (generator.Operation, error) {
	pollCtx := ctx
	if r.maxPollDuration > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, r.maxPollDuration)
		defer cancel()
	}
	timedOut := func() error {
		return fail(ErrTimeout, fmt.Sprintf("Video generation did not finish within %s.", r.maxPollDuration), pollCtx.Err())
	}

	for !op.Done {
		wait := time.NewTimer(r.pollInterval)
		select {
		case <-pollCtx.Done():
			wait.Stop()
			if err := ctx.Err(); err != nil {
				return op, err
			}
			return op, timedOut()
		case <-wait.C:
		}

		next, err := r.gen.PollVideo(pollCtx, op)
		if err != nil {
			if ctx.Err() == nil && pollCtx.Err() != nil {
				return op, timedOut()
			}
			return op, err
		}
		op = next

		state := op.State
		if state == "" {
			state = defaultPollState
		}
		r.metrics.RecordPoll()
		j.RecordPoll(fmt.Sprintf(progressChecking, state))
		r.save(ctx, j)
		r.log.Debug("video operation polled",
			slog.String("job_id", j.ID),
			slog.String("operation", op.Name),
			slog.String("state", state),
			slog.Bool("done", op.Done),
		)
	}
	return op, nil
}

// fetchVideo downloads the payload into temp storage and wraps it in a handle.
func (r *Runner) fetchVideo(ctx context.Context, j *Job, uri string) (*playback.Handle, error) {
	body, err := r.gen.DownloadVideo(ctx, uri)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var dlErr *generator.DownloadError
		if errors.As(err, &dlErr) {
			return nil, fail(ErrDownloadFailed, "Failed to download video: "+dlErr.Status, err)
		}
		return nil, fail(ErrDownloadFailed, "Failed to download video: "+err.Error(), err)
	}
	defer func() { _ = body.Close() }()

	path, err := r.store.SaveTemp(ctx, "video_"+j.ID, body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fail(ErrDownloadFailed, "Failed to download video: "+err.Error(), err)
	}

	key, url := r.publishVideo(ctx, j, path)
	return playback.NewHandle(r.store, j.ID, path, key, url, r.log), nil
}

// publishVideo uploads the saved payload to S3 when publishing is enabled.
// Upload failures leave the video local-only.
func (r *Runner) publishVideo(ctx context.Context, j *Job, path string) (key, url string) {
	if !r.publish {
		return "", ""
	}

	f, err := r.store.LoadTemp(ctx, path)
	if err != nil {
		r.log.Warn("failed to open video for upload", slog.String("job_id", j.ID), slog.String("error", err.Error()))
		return "", ""
	}
	defer func() { _ = f.Close() }()

	key = "videos/" + j.ID + ".mp4"
	url, err = r.store.UploadToS3(ctx, key, f)
	if err != nil {
		if !errors.Is(err, storage.ErrS3NotConfigured) {
			r.log.Warn("failed to publish video", slog.String("job_id", j.ID), slog.String("error", err.Error()))
		}
		return "", ""
	}
	r.log.Info("video published", slog.String("job_id", j.ID), slog.String("url", url))
	return key, url
}

// charge debits the cost of a done job unless the ledger is unlimited.
func (r *Runner) charge(ctx context.Context, j *Job) {
	if r.ledger.Unlimited() {
		return
	}
	if err := r.ledger.Debit(j.Cost); err != nil {
		r.log.Error("failed to debit completed job",
			slog.String("job_id", j.ID),
			slog.String("cost", j.Cost.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	j.MarkDebited()
	r.metrics.RecordDebit(string(j.Kind), j.Cost)
	r.save(ctx, j)
}

// finish frees the kind slot and records the outcome.
func (r *Runner) finish(rn *run) {
	rn.cancel()
	j := rn.job

	r.mu.Lock()
	if r.active[j.Kind] == rn {
		delete(r.active, j.Kind)
	}
	r.mu.Unlock()

	snapshot := j.Clone()
	outcome := metrics.OutcomeDone
	if snapshot.Status == StatusFailed {
		outcome = metrics.OutcomeFailed
	}
	r.metrics.RecordJob(string(snapshot.Kind), outcome, time.Since(snapshot.CreatedAt))
}

func (r *Runner) save(ctx context.Context, j *Job) {
	if err := r.repo.Save(context.WithoutCancel(ctx), j); err != nil {
		r.log.Error("failed to save job",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	}
}
