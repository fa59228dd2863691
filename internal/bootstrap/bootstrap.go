// Package bootstrap wires the ledger, generator, storage and job runner together.
package bootstrap

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/maauso/flowcredits/internal/config"
	"github.com/maauso/flowcredits/internal/gemini"
	"github.com/maauso/flowcredits/internal/generator"
	"github.com/maauso/flowcredits/internal/job"
	"github.com/maauso/flowcredits/internal/ledger"
	"github.com/maauso/flowcredits/internal/metrics"
	"github.com/maauso/flowcredits/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Ledger  *ledger.Ledger
	Runner  *job.Runner
	Metrics *metrics.Metrics
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	client, err := gemini.NewClient(cfg.GeminiAPIKey,
		gemini.WithBaseURL(cfg.GeminiBaseURL),
		gemini.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		gemini.WithBreaker(cfg.BreakerMaxFailures, cfg.BreakerOpenTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	l := ledger.New(cfg.InitialBalance.Int())

	runner := job.NewRunner(l, generator.NewGeminiAdapter(client), store, logger,
		job.WithModels(cfg.TextModel, cfg.VideoModel),
		job.WithCosts(cfg.TextCost.Int(), cfg.VideoCost.Int()),
		job.WithPollInterval(cfg.PollInterval),
		job.WithMaxPollDuration(cfg.MaxPollDuration),
		job.WithMetrics(m),
		job.WithS3Publishing(cfg.S3Enabled()),
	)

	logger.Info("job runner configured",
		slog.String("text_model", cfg.TextModel),
		slog.String("video_model", cfg.VideoModel),
		slog.String("text_cost", cfg.TextCost.String()),
		slog.String("video_cost", cfg.VideoCost.String()),
		slog.String("initial_balance", cfg.InitialBalance.String()),
		slog.Duration("poll_interval", cfg.PollInterval),
		slog.Duration("max_poll_duration", cfg.MaxPollDuration),
	)

	return &Dependencies{
		Ledger:  l,
		Runner:  runner,
		Metrics: m,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Store, err := storage.NewS3Storage(cfg.TempDir, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}
