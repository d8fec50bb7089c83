package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/avolkov/fakelens/internal/config"
	"github.com/avolkov/fakelens/internal/core/ports"
	"github.com/avolkov/fakelens/internal/core/usecase"
	"github.com/avolkov/fakelens/internal/infrastructure/detector"
	"github.com/avolkov/fakelens/internal/infrastructure/queue/nats"
	"github.com/avolkov/fakelens/internal/infrastructure/repository/postgres"
	"github.com/avolkov/fakelens/internal/infrastructure/resilience"
	settingsfs "github.com/avolkov/fakelens/internal/infrastructure/settings/localfs"
	storagefs "github.com/avolkov/fakelens/internal/infrastructure/storage/localfs"
)

type App struct {
	Config config.Config

	Queue       ports.MessageQueue
	Repo        ports.AnalysisRepository
	Backend     ports.DetectionBackend
	Formats     ports.FormatSource
	Calibration ports.CalibrationService
	SubmitUC    ports.AnalysisSubmitter
	ProcessUC   ports.AnalysisRunner

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewAnalysisRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := storagefs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}
	settings, err := settingsfs.New(cfg.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("init settings store: %w", err)
	}

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	resilienceCfg := resilience.DefaultConfig()
	if cfg.DetectorRetryMaxAttempts > 0 {
		resilienceCfg.RetryMaxAttempts = cfg.DetectorRetryMaxAttempts
	}
	if cfg.DetectorRetryInitialBackoffMs > 0 {
		resilienceCfg.RetryInitialBackoff = time.Duration(cfg.DetectorRetryInitialBackoffMs) * time.Millisecond
	}

	backend := detector.New(cfg.DetectorURL, detector.Options{
		RequestTimeout: time.Duration(cfg.DetectorTimeoutSeconds) * time.Second,
		Resilience:     resilienceCfg,
	})

	formats := usecase.NewFormatCatalog(backend)
	calibration := usecase.NewCalibrationStore(ctx, settings)

	submitUC := usecase.NewSubmitAnalysisUseCase(repo, storage, queue, formats)
	processUC := usecase.NewProcessAnalysisUseCase(repo, storage, backend, formats, calibration)

	return &App{
		Config: cfg,

		Queue:       queue,
		Repo:        repo,
		Backend:     backend,
		Formats:     formats,
		Calibration: calibration,
		SubmitUC:    submitUC,
		ProcessUC:   processUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
