package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dealtrace/dealtrace/internal/attribution"
	"github.com/dealtrace/dealtrace/internal/classify"
	"github.com/dealtrace/dealtrace/internal/cluster"
	"github.com/dealtrace/dealtrace/internal/core/domain"
	"github.com/dealtrace/dealtrace/internal/reconcile"
)

// PipelineUseCase runs the downstream stages over accumulated facts in
// dependency order: cluster, merge, reconcile, classify, attribute. Each
// stage is idempotent, so a pass that fails midway can simply be re-run.
type PipelineUseCase struct {
	cluster    *cluster.Service
	reconciler *reconcile.Reconciler
	classifier *classify.Classifier
	attributor *attribution.Engine
	logger     *slog.Logger
	observe    func(stage string, duration time.Duration)
}

func NewPipelineUseCase(
	clusterSvc *cluster.Service,
	reconciler *reconcile.Reconciler,
	classifier *classify.Classifier,
	attributor *attribution.Engine,
	logger *slog.Logger,
) *PipelineUseCase {
	return &PipelineUseCase{
		cluster:    clusterSvc,
		reconciler: reconciler,
		classifier: classifier,
		attributor: attributor,
		logger:     logger,
	}
}

// SetStageObserver installs a per-stage duration callback, used by the
// worker to feed pipeline metrics.
func (uc *PipelineUseCase) SetStageObserver(observe func(stage string, duration time.Duration)) {
	uc.observe = observe
}

func (uc *PipelineUseCase) RunPass(ctx context.Context) (*domain.PipelineReport, error) {
	report := &domain.PipelineReport{StartedAt: time.Now().UTC()}

	clusterStats, err := uc.runClusterStage(ctx)
	if err != nil {
		return nil, fmt.Errorf("cluster stage: %w", err)
	}
	report.FactsConsidered = clusterStats.FactsProcessed
	report.FactsAttached = clusterStats.FactsAttached
	report.DealsCreated = clusterStats.DealsCreated
	report.DealsPromoted = clusterStats.DealsPromoted
	report.DealsFlagged = clusterStats.DealsFlagged
	report.AlertsRaised = clusterStats.AlertsCreated

	merged, err := uc.runMergeStage(ctx)
	if err != nil {
		return nil, fmt.Errorf("merge stage: %w", err)
	}
	report.DealsMerged = merged

	reconcileStats, err := uc.runReconcileStage(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile stage: %w", err)
	}
	report.FinancingsLinked = reconcileStats.EventsCreated
	report.AlertsRaised += reconcileStats.AmbiguousSkipped

	classifyStats, err := uc.runClassifyStage(ctx)
	if err != nil {
		return nil, fmt.Errorf("classify stage: %w", err)
	}
	report.DealsClassified = classifyStats.DealsClassified

	attrStats, err := uc.runAttributionStage(ctx)
	if err != nil {
		return nil, fmt.Errorf("attribution stage: %w", err)
	}
	report.FeesEstimated = attrStats.EventsProcessed

	report.FinishedAt = time.Now().UTC()
	uc.logger.Info("pipeline pass finished",
		"duration", report.FinishedAt.Sub(report.StartedAt).String(),
		"facts_considered", report.FactsConsidered,
		"deals_created", report.DealsCreated,
		"deals_merged", report.DealsMerged,
		"financings_linked", report.FinancingsLinked,
		"deals_classified", report.DealsClassified,
		"fees_estimated", report.FeesEstimated,
		"alerts_raised", report.AlertsRaised,
	)
	return report, nil
}

func (uc *PipelineUseCase) runClusterStage(ctx context.Context) (cluster.Stats, error) {
	defer uc.timeStage("cluster")()
	return uc.cluster.ClusterPass(ctx)
}

// runMergeStage auto-merges deal pairs whose identities resolve to the
// same transaction. Candidates are re-derived each pass, so a merge that
// invalidates another candidate is harmless: the stale pair simply fails
// its lookup next pass.
func (uc *PipelineUseCase) runMergeStage(ctx context.Context) (int, error) {
	defer uc.timeStage("merge")()

	candidates, err := uc.cluster.FindMergeCandidates(ctx)
	if err != nil {
		return 0, err
	}

	merged := 0
	seen := make(map[string]bool)
	for _, candidate := range candidates {
		if seen[candidate.SourceDealID] || seen[candidate.TargetDealID] {
			continue
		}
		reason := fmt.Sprintf("target similarity %.2f", candidate.Similarity)
		if err := uc.cluster.MergeDeals(ctx, candidate.SourceDealID, candidate.TargetDealID, reason); err != nil {
			uc.logger.Warn("deal merge failed",
				"source_deal_id", candidate.SourceDealID,
				"target_deal_id", candidate.TargetDealID,
				"error", err,
			)
			continue
		}
		seen[candidate.SourceDealID] = true
		seen[candidate.TargetDealID] = true
		merged++
	}
	return merged, nil
}

func (uc *PipelineUseCase) runReconcileStage(ctx context.Context) (reconcile.Stats, error) {
	defer uc.timeStage("reconcile")()
	return uc.reconciler.ReconcilePass(ctx)
}

func (uc *PipelineUseCase) runClassifyStage(ctx context.Context) (classify.Stats, error) {
	defer uc.timeStage("classify")()
	return uc.classifier.ClassifyPass(ctx)
}

func (uc *PipelineUseCase) runAttributionStage(ctx context.Context) (attribution.Stats, error) {
	defer uc.timeStage("attribution")()
	return uc.attributor.AttributePass(ctx)
}

func (uc *PipelineUseCase) timeStage(stage string) func() {
	start := time.Now()
	return func() {
		if uc.observe != nil {
			uc.observe(stage, time.Since(start))
		}
	}
}
