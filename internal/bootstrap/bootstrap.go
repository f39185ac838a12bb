package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dealtrace/dealtrace/internal/attribution"
	"github.com/dealtrace/dealtrace/internal/classify"
	"github.com/dealtrace/dealtrace/internal/cluster"
	"github.com/dealtrace/dealtrace/internal/config"
	"github.com/dealtrace/dealtrace/internal/core/domain"
	"github.com/dealtrace/dealtrace/internal/core/ports"
	"github.com/dealtrace/dealtrace/internal/core/usecase"
	"github.com/dealtrace/dealtrace/internal/extract"
	"github.com/dealtrace/dealtrace/internal/infrastructure/extractor/pdftext"
	"github.com/dealtrace/dealtrace/internal/infrastructure/queue/nats"
	"github.com/dealtrace/dealtrace/internal/infrastructure/repository/postgres"
	"github.com/dealtrace/dealtrace/internal/infrastructure/resilience"
	"github.com/dealtrace/dealtrace/internal/infrastructure/source/edgar"
	"github.com/dealtrace/dealtrace/internal/observability/logging"
	"github.com/dealtrace/dealtrace/internal/reconcile"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue   ports.MessageQueue
	Filings ports.FilingRepository
	Facts   ports.FactRepository
	Deals   ports.DealRepository
	Alerts  ports.AlertRepository

	IngestUC  ports.FilingIngestor
	ProcessUC ports.FilingProcessor
	ResolveUC ports.AlertResolver
	DealsUC   ports.DealReader

	// Pipeline is the gated runner; concurrent passes are skipped via a
	// session advisory lock. PipelineUC is the underlying use case, kept
	// for stage-observer wiring in the worker.
	Pipeline   ports.PipelineRunner
	PipelineUC *usecase.PipelineUseCase

	closeFn func()
}

type gatedPipeline struct {
	gate  *postgres.PipelineGate
	inner ports.PipelineRunner
}

func (p *gatedPipeline) RunPass(ctx context.Context) (*domain.PipelineReport, error) {
	var report *domain.PipelineReport
	err := p.gate.Run(ctx, func(ctx context.Context) error {
		var runErr error
		report, runErr = p.inner.RunPass(ctx)
		return runErr
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	slog.SetDefault(logger)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	filings := postgres.NewFilingRepository(db)
	facts := postgres.NewFactRepository(db)
	deals := postgres.NewDealRepository(db)
	financings := postgres.NewFinancingRepository(db)
	alerts := postgres.NewAlertRepository(db)

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	source := edgar.NewClient(cfg.EdgarBaseURL, cfg.EdgarUserAgent, edgar.Options{
		RatePerSecond:      cfg.EdgarRatePerSecond,
		CacheTTL:           time.Duration(cfg.EdgarCacheTTLMins) * time.Minute,
		ResilienceExecutor: executor,
	})

	seeds, err := extract.LoadSponsorSeeds(cfg.SponsorSeedPath)
	if err != nil {
		return nil, fmt.Errorf("load sponsor seeds: %w", err)
	}
	sponsorDetector := extract.NewSponsorDetector(seeds, cfg.SponsorContextRadius)
	factExtractor := extract.NewFactExtractor(sponsorDetector, cfg.PreambleWindowChars)

	rateTable, err := attribution.LoadRateTable(cfg.AttributionRatePath)
	if err != nil {
		return nil, fmt.Errorf("load attribution rates: %w", err)
	}

	clusterSvc := cluster.NewService(facts, deals, financings, alerts, logger, cfg.PromotionMinConfidence)
	reconciler := reconcile.NewReconciler(facts, deals, financings, alerts, logger, cfg.ReconcileMinConfidence, cfg.ReconcileAmbiguityBand)
	classifier := classify.NewClassifier(deals, financings, facts, logger)
	attributor := attribution.NewEngine(rateTable, deals, financings, logger)

	ingestUC := usecase.NewIngestFilingUseCase(filings, source, queue, logger)
	processUC := usecase.NewProcessFilingUseCase(
		filings, facts, alerts, source, pdftext.NewExtractor(), factExtractor, logger,
		time.Duration(cfg.DocumentTimeoutSecs)*time.Second,
	)
	pipelineUC := usecase.NewPipelineUseCase(clusterSvc, reconciler, classifier, attributor, logger)
	resolveUC := usecase.NewResolveAlertUseCase(alerts, facts, logger)
	dealsUC := usecase.NewDealQueryUseCase(deals, financings, facts)

	return &App{
		Config: cfg,
		Logger: logger,

		Queue:   queue,
		Filings: filings,
		Facts:   facts,
		Deals:   deals,
		Alerts:  alerts,

		IngestUC:  ingestUC,
		ProcessUC: processUC,
		ResolveUC: resolveUC,
		DealsUC:   dealsUC,

		Pipeline:   &gatedPipeline{gate: postgres.NewPipelineGate(db), inner: pipelineUC},
		PipelineUC: pipelineUC,

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
