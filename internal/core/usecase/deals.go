package usecase

import (
	"context"
	"fmt"

	"github.com/dealtrace/dealtrace/internal/core/domain"
	"github.com/dealtrace/dealtrace/internal/core/ports"
)

// DealQueryUseCase is the read model over clustered deals, their financing
// events and the facts behind them.
type DealQueryUseCase struct {
	deals      ports.DealRepository
	financings ports.FinancingRepository
	facts      ports.FactRepository
}

func NewDealQueryUseCase(
	deals ports.DealRepository,
	financings ports.FinancingRepository,
	facts ports.FactRepository,
) *DealQueryUseCase {
	return &DealQueryUseCase{
		deals:      deals,
		financings: financings,
		facts:      facts,
	}
}

func (uc *DealQueryUseCase) GetByID(ctx context.Context, id string) (*domain.Deal, error) {
	deal, err := uc.deals.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch deal: %w", err)
	}
	return deal, nil
}

func (uc *DealQueryUseCase) List(ctx context.Context, filter domain.DealFilter) ([]domain.Deal, error) {
	deals, err := uc.deals.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	return deals, nil
}

func (uc *DealQueryUseCase) ListFinancings(ctx context.Context, dealID string) ([]domain.FinancingEvent, error) {
	// Look the deal up first so a bogus id yields not-found rather than an
	// empty list.
	if _, err := uc.deals.GetByID(ctx, dealID); err != nil {
		return nil, fmt.Errorf("fetch deal: %w", err)
	}
	events, err := uc.financings.ListByDeal(ctx, dealID)
	if err != nil {
		return nil, fmt.Errorf("list financing events: %w", err)
	}
	return events, nil
}

func (uc *DealQueryUseCase) ListFacts(ctx context.Context, filter domain.FactFilter) ([]domain.AtomicFact, error) {
	facts, err := uc.facts.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	return facts, nil
}
