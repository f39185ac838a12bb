// Package attribution models advisory and underwriting fees from an
// externally supplied basis-point rate table. Rates are never hardcoded;
// the fee math is a pure mapping from classification and deal size to
// estimates.
package attribution

import (
	"context"
	"log/slog"
	"sort"

	"github.com/dealtrace/dealtrace/internal/core/domain"
	"github.com/dealtrace/dealtrace/internal/core/ports"
)

// Stats summarizes one attribution pass.
type Stats struct {
	DealsProcessed       int
	EventsProcessed      int
	TotalAdvisoryUSD     float64
	TotalUnderwritingUSD float64
}

type Engine struct {
	table      *RateTable
	deals      ports.DealRepository
	financings ports.FinancingRepository
	logger     *slog.Logger
}

func NewEngine(table *RateTable, deals ports.DealRepository, financings ports.FinancingRepository, logger *slog.Logger) *Engine {
	return &Engine{table: table, deals: deals, financings: financings, logger: logger}
}

// AdvisoryFee models the M&A advisory fee on the deal value.
func AdvisoryFee(table *RateTable, dealValueUSD float64) float64 {
	if dealValueUSD <= 0 {
		return 0
	}
	return dealValueUSD * table.AdvisoryBps(dealValueUSD) / 10_000
}

// EventFee models the underwriting fee for one financing event and
// splits it across participants by role weight. Unknown roles fall back
// to the table's "other" weight; a zero total weight splits equally.
// The event and its participants are updated in place.
func EventFee(table *RateTable, event *domain.FinancingEvent) float64 {
	if event.AmountUSD <= 0 {
		event.EstimatedFeeUSD = 0
		return 0
	}

	fee := event.AmountUSD * table.UnderwritingBps(event.MarketTag) / 10_000
	event.EstimatedFeeUSD = fee

	if len(event.Participants) == 0 {
		return fee
	}

	family := event.InstrumentFamily
	if family == "" {
		family = domain.FamilyLoan
	}

	totalWeight := 0.0
	for i := range event.Participants {
		p := &event.Participants[i]
		p.RoleWeight = table.roleWeight(family, p.RoleNormalized)
		totalWeight += p.RoleWeight
	}

	for i := range event.Participants {
		p := &event.Participants[i]
		if totalWeight > 0 {
			p.EstimatedFeeUSD = fee * p.RoleWeight / totalWeight
		} else {
			p.EstimatedFeeUSD = fee / float64(len(event.Participants))
		}
	}
	return fee
}

// AttributePass estimates fees for every live deal and its financing
// events, persisting the estimates.
func (e *Engine) AttributePass(ctx context.Context) (Stats, error) {
	var stats Stats

	deals, err := e.deals.List(ctx, domain.DealFilter{})
	if err != nil {
		return stats, domain.WrapError(domain.ErrTemporary, "attribution: list deals", err)
	}
	sort.Slice(deals, func(i, j int) bool { return deals[i].ID < deals[j].ID })

	for i := range deals {
		deal := &deals[i]
		if deal.MergedInto != "" {
			continue
		}
		if err := e.attributeDeal(ctx, deal, &stats); err != nil {
			return stats, err
		}
		stats.DealsProcessed++
	}

	e.logger.Info("attribution pass finished",
		"deals_processed", stats.DealsProcessed,
		"events_processed", stats.EventsProcessed,
		"total_advisory_usd", stats.TotalAdvisoryUSD,
		"total_underwriting_usd", stats.TotalUnderwritingUSD,
	)
	return stats, nil
}

func (e *Engine) attributeDeal(ctx context.Context, deal *domain.Deal, stats *Stats) error {
	changed := false

	if advisory := AdvisoryFee(e.table, deal.DealValueUSD); advisory > 0 && advisory != deal.AdvisoryFeeUSD {
		deal.AdvisoryFeeUSD = advisory
		changed = true
	}
	stats.TotalAdvisoryUSD += deal.AdvisoryFeeUSD

	events, err := e.financings.ListByDeal(ctx, deal.ID)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "attribution: list events", err)
	}

	totalUnderwriting := 0.0
	for i := range events {
		event := &events[i]
		before := event.EstimatedFeeUSD
		fee := EventFee(e.table, event)
		totalUnderwriting += fee
		stats.EventsProcessed++

		if fee != before {
			if err := e.financings.Update(ctx, event); err != nil {
				return domain.WrapError(domain.ErrTemporary, "attribution: update event", err)
			}
			if len(event.Participants) > 0 {
				if err := e.financings.ReplaceParticipants(ctx, event.ID, event.Participants); err != nil {
					return domain.WrapError(domain.ErrTemporary, "attribution: update participants", err)
				}
			}
		}
	}

	if totalUnderwriting != deal.UnderwritingFeeUSD {
		deal.UnderwritingFeeUSD = totalUnderwriting
		changed = true
	}
	stats.TotalUnderwritingUSD += totalUnderwriting

	if !changed {
		return nil
	}
	if err := e.deals.Update(ctx, deal); err != nil {
		return domain.WrapError(domain.ErrTemporary, "attribution: update deal", err)
	}
	return nil
}
