package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dealtrace/dealtrace/internal/bootstrap"
	"github.com/dealtrace/dealtrace/internal/config"
	"github.com/dealtrace/dealtrace/internal/core/domain"
	"github.com/dealtrace/dealtrace/internal/observability/metrics"
)

const service = "worker"

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, service)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(service)
	app.PipelineUC.SetStageObserver(func(stage string, duration time.Duration) {
		workerMetrics.ObservePipelineStage(service, stage, duration)
	})

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", workerMetrics.Handler())
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: metricsMux,
	}
	go func() {
		app.Logger.Info("worker metrics listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	// The downstream pipeline runs on a schedule, not per filing: facts
	// accumulate from many filings before clustering pays off.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.PipelineSchedule, func() {
		report, err := app.Pipeline.RunPass(ctx)
		if err != nil {
			if domain.IsKind(err, domain.ErrConflict) {
				app.Logger.Warn("pipeline pass skipped, another pass is running")
				return
			}
			app.Logger.Error("scheduled pipeline pass failed", "error", err)
			return
		}
		app.Logger.Info("scheduled pipeline pass done",
			"deals_created", report.DealsCreated,
			"financings_linked", report.FinancingsLinked,
		)
	}); err != nil {
		log.Fatalf("invalid pipeline schedule %q: %v", cfg.PipelineSchedule, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	app.Logger.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeFilingIngested(ctx, func(handlerCtx context.Context, filingID string) error {
		workerMetrics.StartFiling()
		start := time.Now()
		processErr := app.ProcessUC.ProcessByID(handlerCtx, filingID)
		workerMetrics.FinishFiling(service, time.Since(start), processErr)
		return processErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
