package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avolkov/fakelens/internal/bootstrap"
	"github.com/avolkov/fakelens/internal/config"
	"github.com/avolkov/fakelens/internal/observability/logging"
	"github.com/avolkov/fakelens/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		slog.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker_metrics_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeAnalysisSubmitted(ctx, func(handlerCtx context.Context, analysisID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		workerMetrics.StartAnalysis()
		if analysis, err := app.Repo.GetByID(processCtx, analysisID); err == nil {
			workerMetrics.ObserveQueueLag("worker", time.Since(analysis.CreatedAt))
		}

		start := time.Now()
		runErr := app.ProcessUC.RunByID(processCtx, analysisID)
		workerMetrics.FinishAnalysis("worker", time.Since(start), runErr)

		if runErr == nil {
			if analysis, err := app.Repo.GetByID(processCtx, analysisID); err == nil && analysis.Result != nil {
				workerMetrics.RecordDetection("worker", string(analysis.Result.DetectionResult))
			}
		}
		return runErr
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
