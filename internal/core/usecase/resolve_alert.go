package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dealtrace/dealtrace/internal/core/domain"
	"github.com/dealtrace/dealtrace/internal/core/ports"
)

// ResolveAlertUseCase closes a processing alert, persisting any facts the
// reviewer entered while resolving it. Manual facts carry full provenance
// and override extracted facts downstream via their confidence of 1.0.
type ResolveAlertUseCase struct {
	alerts ports.AlertRepository
	facts  ports.FactRepository
	logger *slog.Logger
}

func NewResolveAlertUseCase(
	alerts ports.AlertRepository,
	facts ports.FactRepository,
	logger *slog.Logger,
) *ResolveAlertUseCase {
	return &ResolveAlertUseCase{
		alerts: alerts,
		facts:  facts,
		logger: logger,
	}
}

func (uc *ResolveAlertUseCase) Resolve(ctx context.Context, alertID, resolvedBy, notes string, facts []domain.AtomicFact) (*domain.ProcessingAlert, error) {
	if resolvedBy == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "resolve alert",
			errors.New("resolved_by is required"))
	}

	alert, err := uc.alerts.GetByID(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("fetch alert: %w", err)
	}
	if alert.Resolved {
		return nil, domain.WrapError(domain.ErrConflict, "resolve alert",
			fmt.Errorf("alert %s is already resolved", alertID))
	}

	now := time.Now().UTC()
	for i := range facts {
		fact := &facts[i]
		if fact.ID == "" {
			fact.ID = uuid.NewString()
		}
		// Facts entered through an alert inherit its document scope unless
		// the reviewer pinned them elsewhere.
		if fact.FilingID == "" {
			fact.FilingID = alert.FilingID
		}
		if fact.ExhibitID == "" {
			fact.ExhibitID = alert.ExhibitID
		}
		if fact.DealID == "" {
			fact.DealID = alert.DealID
		}
		fact.ExtractionMethod = domain.ExtractionManual
		if fact.Confidence == 0 {
			fact.Confidence = 1.0
		}
		fact.EnteredBy = resolvedBy
		fact.EnteredAt = now
		if fact.CreatedAt.IsZero() {
			fact.CreatedAt = now
		}

		if err := uc.facts.Create(ctx, fact); err != nil {
			return nil, fmt.Errorf("create manual fact: %w", err)
		}
	}

	if err := uc.alerts.MarkResolved(ctx, alertID, resolvedBy, notes); err != nil {
		return nil, fmt.Errorf("mark alert resolved: %w", err)
	}

	resolved, err := uc.alerts.GetByID(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("reload alert: %w", err)
	}

	uc.logger.Info("alert resolved",
		"alert_id", alertID,
		"kind", resolved.Kind,
		"resolved_by", resolvedBy,
		"manual_facts", len(facts),
	)
	return resolved, nil
}
