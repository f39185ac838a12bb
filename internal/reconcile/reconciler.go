// Package reconcile links financing-mention facts to deals and turns
// them into financing events. Clustered facts link directly; unlinked
// facts are scored against live deals with layered signals, where the
// target name is strong and the sponsor name is only ever supporting.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dealtrace/dealtrace/internal/core/domain"
	"github.com/dealtrace/dealtrace/internal/core/ports"
	"github.com/dealtrace/dealtrace/internal/extract"
)

// Signal weights. Sponsor alone can never reach the confidence floor.
const (
	weightTargetExact   = 0.5
	weightTargetFuzzy   = 0.4
	weightAcquirerExact = 0.3
	weightAcquirerFuzzy = 0.2
	weightSponsorExact  = 0.2
	weightSponsorFuzzy  = 0.1

	fuzzyStrongMin  = 0.85
	fuzzySponsorMin = 0.80
)

// Stats summarizes one reconciliation pass.
type Stats struct {
	FactsProcessed       int
	EventsCreated        int
	MatchesFound         int
	LowConfidenceSkipped int
	AmbiguousSkipped     int
}

// Match is a scored candidate link between a financing fact and a deal.
type Match struct {
	DealID      string
	Confidence  float64
	Explanation string
}

type Reconciler struct {
	facts      ports.FactRepository
	deals      ports.DealRepository
	financings ports.FinancingRepository
	alerts     ports.AlertRepository
	logger     *slog.Logger

	minConfidence float64
	ambiguityBand float64
	now           func() time.Time
}

func NewReconciler(
	facts ports.FactRepository,
	deals ports.DealRepository,
	financings ports.FinancingRepository,
	alerts ports.AlertRepository,
	logger *slog.Logger,
	minConfidence, ambiguityBand float64,
) *Reconciler {
	return &Reconciler{
		facts:         facts,
		deals:         deals,
		financings:    financings,
		alerts:        alerts,
		logger:        logger,
		minConfidence: minConfidence,
		ambiguityBand: ambiguityBand,
		now:           time.Now,
	}
}

// ReconcilePass processes every financing-mention fact once: clustered
// facts become events at full confidence, unlinked facts are matched by
// signal scoring, and ambiguous candidates are surfaced for review.
func (r *Reconciler) ReconcilePass(ctx context.Context) (Stats, error) {
	var stats Stats

	financingFacts, err := r.facts.List(ctx, domain.FactFilter{Kind: string(domain.FactFinancingMention)})
	if err != nil {
		return stats, domain.WrapError(domain.ErrTemporary, "reconcile: list financing facts", err)
	}
	sort.Slice(financingFacts, func(i, j int) bool { return financingFacts[i].ID < financingFacts[j].ID })

	var unlinked []domain.AtomicFact
	for i := range financingFacts {
		fact := &financingFacts[i]
		if fact.DealID == "" {
			unlinked = append(unlinked, *fact)
			continue
		}
		stats.FactsProcessed++

		done, err := r.alreadyReconciled(ctx, fact)
		if err != nil {
			return stats, err
		}
		if done {
			continue
		}
		if err := r.createEvent(ctx, fact, fact.DealID, 1.0, "Direct link via clustering"); err != nil {
			return stats, err
		}
		stats.EventsCreated++
	}

	if len(unlinked) > 0 {
		live, err := r.liveDeals(ctx)
		if err != nil {
			return stats, err
		}
		for i := range unlinked {
			fact := &unlinked[i]
			stats.FactsProcessed++
			if err := r.reconcileUnlinked(ctx, fact, live, &stats); err != nil {
				return stats, err
			}
		}
	}

	r.logger.Info("reconciliation pass finished",
		"facts_processed", stats.FactsProcessed,
		"events_created", stats.EventsCreated,
		"matches_found", stats.MatchesFound,
		"low_confidence_skipped", stats.LowConfidenceSkipped,
		"ambiguous_skipped", stats.AmbiguousSkipped,
	)
	return stats, nil
}

func (r *Reconciler) reconcileUnlinked(ctx context.Context, fact *domain.AtomicFact, deals []domain.Deal, stats *Stats) error {
	best, second := bestMatches(fact, deals)
	if best == nil || best.Confidence < r.minConfidence {
		stats.LowConfidenceSkipped++
		return nil
	}

	if second != nil && second.Confidence >= r.minConfidence &&
		best.Confidence-second.Confidence < r.ambiguityBand {
		stats.AmbiguousSkipped++
		return r.raiseAmbiguityAlert(ctx, fact, best, second)
	}

	if err := r.facts.AttachToDeal(ctx, fact.ID, best.DealID); err != nil {
		return domain.WrapError(domain.ErrTemporary, "reconcile: attach fact", err)
	}
	fact.DealID = best.DealID
	stats.MatchesFound++

	if err := r.createEvent(ctx, fact, best.DealID, best.Confidence, best.Explanation); err != nil {
		return err
	}
	stats.EventsCreated++
	return nil
}

func (r *Reconciler) liveDeals(ctx context.Context) ([]domain.Deal, error) {
	var live []domain.Deal
	for _, state := range []domain.DealState{domain.DealCandidate, domain.DealOpen} {
		deals, err := r.deals.List(ctx, domain.DealFilter{State: string(state)})
		if err != nil {
			return nil, domain.WrapError(domain.ErrTemporary, "reconcile: list deals", err)
		}
		live = append(live, deals...)
	}
	sort.Slice(live, func(i, j int) bool { return live[i].ID < live[j].ID })
	return live, nil
}

func (r *Reconciler) alreadyReconciled(ctx context.Context, fact *domain.AtomicFact) (bool, error) {
	events, err := r.financings.ListByDeal(ctx, fact.DealID)
	if err != nil {
		return false, domain.WrapError(domain.ErrTemporary, "reconcile: list events", err)
	}
	for _, event := range events {
		for _, id := range event.SourceFactIDs {
			if id == fact.ID {
				return true, nil
			}
		}
	}
	return false, nil
}

func bestMatches(fact *domain.AtomicFact, deals []domain.Deal) (best, second *Match) {
	evidence := strings.ToLower(fact.Evidence.Snippet)
	for i := range deals {
		m := ScoreDealMatch(&deals[i], evidence)
		switch {
		case best == nil || m.Confidence > best.Confidence:
			second = best
			best = &m
		case second == nil || m.Confidence > second.Confidence:
			second = &m
		}
	}
	return best, second
}

// ScoreDealMatch scores one deal against the lowercased evidence text of
// a financing fact. Target name is the strong signal, acquirer moderate,
// sponsor weak; the total is capped at 1.
func ScoreDealMatch(deal *domain.Deal, evidenceLower string) Match {
	var confidence float64
	var explanations []string

	if name := deal.Target.Normalized; name != "" {
		if strings.Contains(evidenceLower, name) {
			confidence += weightTargetExact
			explanations = append(explanations, fmt.Sprintf("Target name %q found in evidence", displayOrNormalized(deal.Target)))
		} else if score := partialSimilarity(name, evidenceLower); score > fuzzyStrongMin {
			confidence += weightTargetFuzzy * score
			explanations = append(explanations, fmt.Sprintf("Target name fuzzy match: %.0f%%", score*100))
		}
	}

	if name := deal.SponsorNameNormalized; name != "" {
		if strings.Contains(evidenceLower, name) {
			confidence += weightSponsorExact
			explanations = append(explanations, fmt.Sprintf("Sponsor %q found in evidence", name))
		} else if score := partialSimilarity(name, evidenceLower); score > fuzzySponsorMin {
			confidence += weightSponsorFuzzy * score
			explanations = append(explanations, fmt.Sprintf("Sponsor fuzzy match: %.0f%%", score*100))
		}
	}

	if name := deal.Acquirer.Normalized; name != "" {
		if strings.Contains(evidenceLower, name) {
			confidence += weightAcquirerExact
			explanations = append(explanations, fmt.Sprintf("Acquirer %q found in evidence", displayOrNormalized(deal.Acquirer)))
		} else if score := partialSimilarity(name, evidenceLower); score > fuzzyStrongMin {
			confidence += weightAcquirerFuzzy * score
			explanations = append(explanations, fmt.Sprintf("Acquirer fuzzy match: %.0f%%", score*100))
		}
	}

	if confidence > 1 {
		confidence = 1
	}
	explanation := "No strong signals"
	if len(explanations) > 0 {
		explanation = strings.Join(explanations, "; ")
	}
	return Match{DealID: deal.ID, Confidence: confidence, Explanation: explanation}
}

func displayOrNormalized(p domain.PartyIdentity) string {
	if p.NameDisplay != "" {
		return p.NameDisplay
	}
	return p.Normalized
}

func (r *Reconciler) createEvent(ctx context.Context, fact *domain.AtomicFact, dealID string, confidence float64, explanation string) error {
	now := r.now()
	instrumentType := fact.Payload.InstrumentType
	currency := fact.Payload.Currency
	if currency == "" {
		currency = "USD"
	}

	event := &domain.FinancingEvent{
		ID:     uuid.NewString(),
		DealID: dealID,

		InstrumentFamily: InstrumentFamily(instrumentType),
		InstrumentType:   instrumentType,

		AmountUSD: fact.Payload.AmountUSD,
		AmountRaw: fact.Payload.AmountRaw,
		Currency:  currency,

		MaturityYear: fact.Payload.MaturityYear,
		InterestRate: fact.Payload.InterestRate,
		Purpose:      fact.Payload.Purpose,

		ReconciliationConfidence:  confidence,
		ReconciliationExplanation: explanation,

		SourceExhibitID: fact.ExhibitID,
		SourceFactIDs:   []string{fact.ID},

		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, p := range fact.Payload.Participants {
		event.Participants = append(event.Participants, domain.FinancingParticipant{
			ID:                 uuid.NewString(),
			FinancingEventID:   event.ID,
			BankNameRaw:        p.BankNameRaw,
			BankNameNormalized: NormalizeBankName(p.BankNameRaw),
			Role:               p.Role,
			RoleNormalized:     NormalizeRole(p.Role),
			EvidenceSnippet:    p.Evidence,
			CreatedAt:          now,
		})
	}

	if err := r.financings.Create(ctx, event); err != nil {
		return domain.WrapError(domain.ErrTemporary, "reconcile: create event", err)
	}
	r.logger.Debug("financing event created",
		"event_id", event.ID, "deal_id", dealID, "confidence", confidence)
	return nil
}

func (r *Reconciler) raiseAmbiguityAlert(ctx context.Context, fact *domain.AtomicFact, best, second *Match) error {
	now := r.now()
	alert := &domain.ProcessingAlert{
		ID:        uuid.NewString(),
		Kind:      domain.AlertAmbiguousReconciliation,
		FilingID:  fact.FilingID,
		ExhibitID: fact.ExhibitID,
		Title:     "Financing fact matches multiple deals",
		Description: fmt.Sprintf("Fact %s matches deal %s (%.2f) and deal %s (%.2f) with comparable strength",
			fact.ID, best.DealID, best.Confidence, second.DealID, second.Confidence),
		FieldsNeeded:  []string{"deal_id"},
		SourcePreview: fact.Evidence.Snippet,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.alerts.Create(ctx, alert); err != nil {
		return domain.WrapError(domain.ErrTemporary, "reconcile: create alert", err)
	}
	return nil
}

// InstrumentFamily collapses a normalized instrument type into the
// bond/loan/bridge taxonomy used by classification and attribution.
func InstrumentFamily(instrumentType string) string {
	switch {
	case instrumentType == "":
		return "unknown"
	case instrumentType == "bond" || instrumentType == "convertible_bond":
		return domain.FamilyBond
	case strings.Contains(instrumentType, "bridge"):
		return domain.FamilyBridge
	default:
		return domain.FamilyLoan
	}
}

var bankSuffixes = []string{", n.a.", " n.a.", ", na", ", inc.", ", inc", " inc.", " inc", " llc", " l.l.c.", ", ltd.", " ltd.", " ltd", " limited", " & co."}

// NormalizeBankName lowercases a bank name and strips legal suffixes so
// the same institution matches across filings.
func NormalizeBankName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, suffix := range bankSuffixes {
		name = strings.ReplaceAll(name, suffix, "")
	}
	return strings.Join(strings.Fields(name), " ")
}

// NormalizeRole maps a free-text syndicate role to its canonical form.
// Unrecognized roles pass through lowercased.
func NormalizeRole(role string) string {
	role = strings.ToLower(strings.TrimSpace(role))

	switch {
	case strings.Contains(role, "bookrunner"):
		if strings.Contains(role, "joint") {
			return "joint_bookrunner"
		}
		return "bookrunner"
	case strings.Contains(role, "co-manager") || strings.Contains(role, "co manager"):
		return "co_manager"
	case strings.Contains(role, "underwriter"):
		if strings.Contains(role, "lead") || strings.Contains(role, "senior") {
			return "lead_underwriter"
		}
		return "underwriter"
	case strings.Contains(role, "arranger"):
		if strings.Contains(role, "joint") && strings.Contains(role, "lead") {
			return "joint_lead_arranger"
		}
		if strings.Contains(role, "lead") || strings.Contains(role, "mandated") {
			return "lead_arranger"
		}
		return "arranger"
	case strings.Contains(role, "admin") && strings.Contains(role, "agent"):
		return "admin_agent"
	case strings.Contains(role, "syndication"):
		return "syndication_agent"
	case strings.Contains(role, "agent"):
		return "agent"
	}
	return role
}

// partialSimilarity approximates a partial-ratio match: the needle is
// slid across the haystack and the best window similarity wins.
func partialSimilarity(needle, haystack string) float64 {
	n, h := []rune(needle), []rune(haystack)
	if len(n) == 0 || len(h) == 0 {
		return 0
	}
	if len(h) <= len(n) {
		return extract.SimilarityRatio(needle, haystack)
	}

	best := 0.0
	for i := 0; i+len(n) <= len(h); i++ {
		score := extract.SimilarityRatio(needle, string(h[i:i+len(n)]))
		if score > best {
			best = score
			if best == 1 {
				break
			}
		}
	}
	return best
}
