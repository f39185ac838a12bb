// Package cluster groups unattached atomic facts into deals and manages
// the deal lifecycle. Clustering is idempotent and incremental: a pass
// attaches what it can, leaves the rest for later passes, and never
// duplicates deals for the same key.
package cluster

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

const defaultBatchSize = 500

// mergeSimilarityMin is the target-name similarity above which two deals
// with different keys are reported as merge candidates.
const mergeSimilarityMin = 0.85

var (
	targetLabels   = map[string]bool{"company": true, "target": true, "seller": true}
	acquirerLabels = map[string]bool{"parent": true, "buyer": true, "purchaser": true, "acquirer": true, "acquiror": true}
)

// Stats summarizes one clustering pass.
type Stats struct {
	FactsProcessed int
	FactsAttached  int
	DealsCreated   int
	DealsPromoted  int
	DealsFlagged   int
	AlertsCreated  int
}

// MergeCandidate pairs two deals whose target names are close enough that
// they likely describe the same transaction.
type MergeCandidate struct {
	SourceDealID string
	TargetDealID string
	Similarity   float64
}

type Service struct {
	facts      ports.FactRepository
	deals      ports.DealRepository
	financings ports.FinancingRepository
	alerts     ports.AlertRepository
	logger     *slog.Logger

	promotionMinConfidence float64
	batchSize              int
	now                    func() time.Time
}

func NewService(
	facts ports.FactRepository,
	deals ports.DealRepository,
	financings ports.FinancingRepository,
	alerts ports.AlertRepository,
	logger *slog.Logger,
	promotionMinConfidence float64,
) *Service {
	return &Service{
		facts:                  facts,
		deals:                  deals,
		financings:             financings,
		alerts:                 alerts,
		logger:                 logger,
		promotionMinConfidence: promotionMinConfidence,
		batchSize:              defaultBatchSize,
		now:                    time.Now,
	}
}

// ClusterPass runs one full pass over the unattached facts. Party facts
// drive deal creation; sponsor, date, value, financing and table facts
// attach afterwards through their filing's clustered party facts.
func (s *Service) ClusterPass(ctx context.Context) (Stats, error) {
	var stats Stats

	unattached, err := s.facts.ListUnattached(ctx, s.batchSize)
	if err != nil {
		return stats, domain.WrapError(domain.ErrTemporary, "cluster: list unattached facts", err)
	}

	// Stable order so repeated passes over the same fact set make the
	// same assignments regardless of arrival order.
	sort.Slice(unattached, func(i, j int) bool {
		if !unattached[i].CreatedAt.Equal(unattached[j].CreatedAt) {
			return unattached[i].CreatedAt.After(unattached[j].CreatedAt)
		}
		return unattached[i].ID < unattached[j].ID
	})

	attached := make(map[string]string)
	flagged := make(map[string]bool)

	for i := range unattached {
		fact := &unattached[i]
		if !isPartyFact(fact) {
			continue
		}
		stats.FactsProcessed++
		if _, done := attached[fact.ID]; done {
			continue
		}
		switch partyRole(fact) {
		case extract.RoleTarget:
			if err := s.clusterTargetFact(ctx, fact, attached, flagged, &stats); err != nil {
				return stats, err
			}
		case extract.RoleAcquirer:
			if err := s.clusterAcquirerFact(ctx, fact, attached, flagged, &stats); err != nil {
				return stats, err
			}
		}
	}

	for i := range unattached {
		fact := &unattached[i]
		if isPartyFact(fact) || !isSecondaryFact(fact) {
			continue
		}
		stats.FactsProcessed++
		if err := s.attachSecondaryFact(ctx, fact, &stats); err != nil {
			return stats, err
		}
	}

	s.logger.Info("clustering pass finished",
		"facts_processed", stats.FactsProcessed,
		"facts_attached", stats.FactsAttached,
		"deals_created", stats.DealsCreated,
		"deals_promoted", stats.DealsPromoted,
		"alerts_created", stats.AlertsCreated,
	)
	return stats, nil
}

// clusterTargetFact is the only path that creates deals. A target fact
// alone cannot form a key; it waits for an acquirer fact from the same
// exhibit or filing.
func (s *Service) clusterTargetFact(ctx context.Context, fact *domain.AtomicFact, attached map[string]string, flagged map[string]bool, stats *Stats) error {
	if fact.Payload.PartyNameNormalized == "" {
		return nil
	}

	acquirerFacts, err := s.relatedPartyFacts(ctx, fact, extract.RoleAcquirer)
	if err != nil {
		return err
	}
	if len(acquirerFacts) == 0 {
		return nil
	}

	target := identityFromFact(fact)
	acquirer := identityFromFact(&acquirerFacts[0])

	key, nameOnly := domain.ComputeDealKey(acquirer, target)
	if key == "" {
		return nil
	}

	existing, err := s.lookupDeal(ctx, acquirer, target)
	switch {
	case err == nil:
		if existing.State.Terminal() || flagged[existing.ID] {
			flagged[existing.ID] = true
			return s.flagTerminalConflict(ctx, existing, fact, stats)
		}
		if err := s.attach(ctx, fact, existing.ID, attached, stats); err != nil {
			return err
		}
		for i := range acquirerFacts {
			af := &acquirerFacts[i]
			if af.DealID == "" {
				if err := s.attach(ctx, af, existing.ID, attached, stats); err != nil {
					return err
				}
			}
		}
		if err := s.enrichDealIdentity(ctx, existing, acquirer, target, stats); err != nil {
			return err
		}
		return s.evaluatePromotion(ctx, existing, stats)
	case domain.IsKind(err, domain.ErrDealNotFound):
		// fall through to create
	default:
		return domain.WrapError(domain.ErrTemporary, "cluster: lookup deal by key", err)
	}

	now := s.now()
	deal := &domain.Deal{
		ID:        uuid.NewString(),
		State:     domain.DealCandidate,
		Acquirer:  acquirer,
		Target:    target,
		DealKey:   key,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if nameOnly {
		deal.State = domain.DealNeedsReview
	}
	if err := s.deals.Create(ctx, deal); err != nil {
		return domain.WrapError(domain.ErrTemporary, "cluster: create deal", err)
	}
	stats.DealsCreated++
	s.logger.Debug("deal created", "deal_id", deal.ID, "deal_key", deal.DealKey, "state", deal.State)

	if err := s.attach(ctx, fact, deal.ID, attached, stats); err != nil {
		return err
	}
	for i := range acquirerFacts {
		af := &acquirerFacts[i]
		if af.DealID == "" {
			if err := s.attach(ctx, af, deal.ID, attached, stats); err != nil {
				return err
			}
		}
	}
	return s.evaluatePromotion(ctx, deal, stats)
}

// clusterAcquirerFact attaches to an existing deal when a matching target
// fact is in reach. It never creates deals: creation waits for the target
// side so that the key is anchored on the company being acquired.
func (s *Service) clusterAcquirerFact(ctx context.Context, fact *domain.AtomicFact, attached map[string]string, flagged map[string]bool, stats *Stats) error {
	if fact.Payload.PartyNameNormalized == "" {
		return nil
	}

	targetFacts, err := s.relatedPartyFacts(ctx, fact, extract.RoleTarget)
	if err != nil {
		return err
	}
	if len(targetFacts) == 0 {
		return nil
	}

	acquirer := identityFromFact(fact)
	target := identityFromFact(&targetFacts[0])

	if key, _ := domain.ComputeDealKey(acquirer, target); key == "" {
		return nil
	}

	existing, err := s.lookupDeal(ctx, acquirer, target)
	switch {
	case err == nil:
	case domain.IsKind(err, domain.ErrDealNotFound):
		return nil
	default:
		return domain.WrapError(domain.ErrTemporary, "cluster: lookup deal by key", err)
	}

	if existing.State.Terminal() || flagged[existing.ID] {
		flagged[existing.ID] = true
		return s.flagTerminalConflict(ctx, existing, fact, stats)
	}

	if err := s.attach(ctx, fact, existing.ID, attached, stats); err != nil {
		return err
	}
	for i := range targetFacts {
		tf := &targetFacts[i]
		if tf.DealID == "" {
			if err := s.attach(ctx, tf, existing.ID, attached, stats); err != nil {
				return err
			}
		}
	}
	return s.evaluatePromotion(ctx, existing, stats)
}

// attachSecondaryFact hangs sponsor, date, value, financing, advisor and
// table facts off the deal their filing's party facts clustered to.
func (s *Service) attachSecondaryFact(ctx context.Context, fact *domain.AtomicFact, stats *Stats) error {
	dealID, err := s.findDealForFact(ctx, fact)
	if err != nil {
		return err
	}
	if dealID == "" {
		return nil
	}

	deal, err := s.deals.GetByID(ctx, dealID)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "cluster: load deal", err)
	}
	if deal.State.Terminal() {
		return nil
	}

	if err := s.facts.AttachToDeal(ctx, fact.ID, dealID); err != nil {
		return domain.WrapError(domain.ErrTemporary, "cluster: attach fact", err)
	}
	fact.DealID = dealID
	stats.FactsAttached++

	switch fact.Kind {
	case domain.FactSponsorMention:
		return s.rollUpSponsor(ctx, dealID, fact)
	case domain.FactDealDate:
		return s.rollUpDate(ctx, dealID, fact)
	case domain.FactDealValue:
		return s.rollUpValue(ctx, dealID, fact)
	}
	return nil
}

// lookupDeal tries every key the identity pair can form, strongest
// first, so a deal created under a name-only key is still found once
// canonical identifiers become known. Returns domain.ErrDealNotFound
// when no key matches.
func (s *Service) lookupDeal(ctx context.Context, acquirer, target domain.PartyIdentity) (*domain.Deal, error) {
	for _, key := range candidateKeys(acquirer, target) {
		deal, err := s.deals.GetByDealKey(ctx, key)
		switch {
		case err == nil:
			return deal, nil
		case domain.IsKind(err, domain.ErrDealNotFound):
			continue
		default:
			return nil, err
		}
	}
	return nil, domain.ErrDealNotFound
}

// candidateKeys enumerates the computable clustering keys in priority
// order: identifier pair, identifier plus name, name pair.
func candidateKeys(acquirer, target domain.PartyIdentity) []string {
	var keys []string
	if acquirer.CIK != "" && target.CIK != "" {
		keys = append(keys, fmt.Sprintf("cik:%s:cik:%s", acquirer.CIK, target.CIK))
	}
	if acquirer.CIK != "" && target.Normalized != "" {
		keys = append(keys, fmt.Sprintf("cik:%s:name:%s", acquirer.CIK, target.Normalized))
	}
	if acquirer.Normalized != "" && target.Normalized != "" {
		keys = append(keys, fmt.Sprintf("name:%s:name:%s", acquirer.Normalized, target.Normalized))
	}
	return keys
}

func (s *Service) relatedPartyFacts(ctx context.Context, fact *domain.AtomicFact, role string) ([]domain.AtomicFact, error) {
	filter := domain.FactFilter{}
	switch {
	case fact.ExhibitID != "":
		filter.ExhibitID = fact.ExhibitID
	case fact.FilingID != "":
		filter.FilingID = fact.FilingID
	default:
		return nil, nil
	}

	candidates, err := s.facts.List(ctx, filter)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "cluster: list related facts", err)
	}

	var matching []domain.AtomicFact
	for _, c := range candidates {
		if c.ID == fact.ID || !isPartyFact(&c) {
			continue
		}
		if partyRole(&c) == role {
			matching = append(matching, c)
		}
	}
	sort.Slice(matching, func(i, j int) bool { return matching[i].ID < matching[j].ID })
	return matching, nil
}

// findDealForFact resolves the deal a secondary fact belongs to via the
// clustered party facts of the same exhibit, falling back to the filing.
func (s *Service) findDealForFact(ctx context.Context, fact *domain.AtomicFact) (string, error) {
	filter := domain.FactFilter{}
	switch {
	case fact.ExhibitID != "":
		filter.ExhibitID = fact.ExhibitID
	case fact.FilingID != "":
		filter.FilingID = fact.FilingID
	default:
		return "", nil
	}

	candidates, err := s.facts.List(ctx, filter)
	if err != nil {
		return "", domain.WrapError(domain.ErrTemporary, "cluster: list filing facts", err)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	for _, c := range candidates {
		if isPartyFact(&c) && c.DealID != "" {
			return c.DealID, nil
		}
	}
	// No clustered party fact on the exhibit; a filing-level party fact
	// still identifies the deal.
	if fact.ExhibitID != "" && fact.FilingID != "" {
		candidates, err = s.facts.List(ctx, domain.FactFilter{FilingID: fact.FilingID})
		if err != nil {
			return "", domain.WrapError(domain.ErrTemporary, "cluster: list filing facts", err)
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
		for _, c := range candidates {
			if isPartyFact(&c) && c.DealID != "" {
				return c.DealID, nil
			}
		}
	}
	return "", nil
}

func (s *Service) attach(ctx context.Context, fact *domain.AtomicFact, dealID string, attached map[string]string, stats *Stats) error {
	if err := s.facts.AttachToDeal(ctx, fact.ID, dealID); err != nil {
		return domain.WrapError(domain.ErrTemporary, "cluster: attach fact", err)
	}
	fact.DealID = dealID
	attached[fact.ID] = dealID
	stats.FactsAttached++
	return nil
}

// flagTerminalConflict handles a fact keying to a CLOSED or LOCKED deal:
// the fact is not attached, the deal moves to NEEDS_REVIEW, and an alert
// records the conflicting evidence.
func (s *Service) flagTerminalConflict(ctx context.Context, deal *domain.Deal, fact *domain.AtomicFact, stats *Stats) error {
	if err := s.deals.UpdateState(ctx, deal.ID, domain.DealNeedsReview); err != nil {
		return domain.WrapError(domain.ErrTemporary, "cluster: flag deal", err)
	}
	stats.DealsFlagged++

	now := s.now()
	alert := &domain.ProcessingAlert{
		ID:            uuid.NewString(),
		Kind:          domain.AlertLowConfidenceMatch,
		DealID:        deal.ID,
		FilingID:      fact.FilingID,
		ExhibitID:     fact.ExhibitID,
		Title:         fmt.Sprintf("New fact for %s deal: %s", strings.ToLower(string(deal.State)), deal.Target.Normalized),
		Description:   fmt.Sprintf("Deal %s is %s but fact %s keyed to it", deal.DealKey, deal.State, fact.ID),
		SourcePreview: fact.Evidence.Snippet,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.alerts.Create(ctx, alert); err != nil {
		return domain.WrapError(domain.ErrTemporary, "cluster: create alert", err)
	}
	stats.AlertsCreated++
	return nil
}

// enrichDealIdentity fills identity fields the deal was missing and
// recomputes the deal key. A recomputed key that collides with a
// different deal raises a merge-candidate alert instead of silently
// combining the two.
func (s *Service) enrichDealIdentity(ctx context.Context, deal *domain.Deal, acquirer, target domain.PartyIdentity, stats *Stats) error {
	changed := false
	if deal.Acquirer.CIK == "" && acquirer.CIK != "" {
		deal.Acquirer.CIK = acquirer.CIK
		changed = true
	}
	if deal.Target.CIK == "" && target.CIK != "" {
		deal.Target.CIK = target.CIK
		changed = true
	}
	if !changed {
		return nil
	}

	newKey, nameOnly := domain.ComputeDealKey(deal.Acquirer, deal.Target)
	if newKey != "" && newKey != deal.DealKey {
		other, err := s.deals.GetByDealKey(ctx, newKey)
		switch {
		case err == nil && other.ID != deal.ID:
			now := s.now()
			alert := &domain.ProcessingAlert{
				ID:          uuid.NewString(),
				Kind:        domain.AlertDealMergeCandidate,
				DealID:      deal.ID,
				Title:       fmt.Sprintf("Key collision: %s", deal.Target.Normalized),
				Description: fmt.Sprintf("Recomputed key %s collides with deal %s (current key %s)", newKey, other.ID, deal.DealKey),
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := s.alerts.Create(ctx, alert); err != nil {
				return domain.WrapError(domain.ErrTemporary, "cluster: create alert", err)
			}
			stats.AlertsCreated++
			return nil
		case err != nil && !domain.IsKind(err, domain.ErrDealNotFound):
			return domain.WrapError(domain.ErrTemporary, "cluster: lookup deal by key", err)
		}
		deal.DealKey = newKey
		if deal.State == domain.DealNeedsReview && !nameOnly {
			deal.State = domain.DealCandidate
		}
	}

	deal.UpdatedAt = s.now()
	if err := s.deals.Update(ctx, deal); err != nil {
		return domain.WrapError(domain.ErrTemporary, "cluster: update deal", err)
	}
	return nil
}

// evaluatePromotion promotes CANDIDATE to OPEN once both sides of the
// deal carry an identity fact at or above the confidence floor.
func (s *Service) evaluatePromotion(ctx context.Context, deal *domain.Deal, stats *Stats) error {
	if deal.State != domain.DealCandidate {
		return nil
	}

	attached, err := s.facts.List(ctx, domain.FactFilter{DealID: deal.ID})
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "cluster: list deal facts", err)
	}

	var targetOK, acquirerOK bool
	for i := range attached {
		f := &attached[i]
		if !isPartyFact(f) || f.Confidence < s.promotionMinConfidence {
			continue
		}
		switch partyRole(f) {
		case extract.RoleTarget:
			targetOK = true
		case extract.RoleAcquirer:
			acquirerOK = true
		}
	}
	if !targetOK || !acquirerOK {
		return nil
	}

	if err := s.deals.UpdateState(ctx, deal.ID, domain.DealOpen); err != nil {
		return domain.WrapError(domain.ErrTemporary, "cluster: promote deal", err)
	}
	deal.State = domain.DealOpen
	stats.DealsPromoted++
	s.logger.Debug("deal promoted", "deal_id", deal.ID, "deal_key", deal.DealKey)
	return nil
}

func (s *Service) rollUpSponsor(ctx context.Context, dealID string, fact *domain.AtomicFact) error {
	deal, err := s.deals.GetByID(ctx, dealID)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "cluster: load deal", err)
	}

	// Higher-confidence evidence wins; manual facts always win.
	if deal.SponsorNameNormalized != "" && deal.SponsorConfidence >= fact.Confidence && !fact.IsManual() {
		return nil
	}

	backed := true
	deal.SponsorBacked = &backed
	deal.SponsorNameRaw = fact.Payload.SponsorNameRaw
	deal.SponsorNameNormalized = fact.Payload.SponsorNameNormalized
	deal.SponsorConfidence = fact.Confidence
	deal.UnresolvedSponsor = fact.Payload.UnresolvedSponsor
	deal.UpdatedAt = s.now()

	if err := s.deals.Update(ctx, deal); err != nil {
		return domain.WrapError(domain.ErrTemporary, "cluster: update deal", err)
	}
	return nil
}

func (s *Service) rollUpDate(ctx context.Context, dealID string, fact *domain.AtomicFact) error {
	if fact.Payload.DateValue == "" {
		return nil
	}
	parsed, err := time.Parse("2006-01-02", fact.Payload.DateValue)
	if err != nil {
		return nil
	}

	deal, err := s.deals.GetByID(ctx, dealID)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "cluster: load deal", err)
	}

	manual := fact.IsManual()
	changed := false
	switch fact.Payload.DateType {
	case "agreement_date":
		if deal.AgreementDate == nil || manual {
			deal.AgreementDate = &parsed
			changed = true
		}
	case "announcement_date":
		if deal.AnnouncementDate == nil || manual {
			deal.AnnouncementDate = &parsed
			changed = true
		}
	case "expected_close":
		if deal.ExpectedCloseDate == nil || manual {
			deal.ExpectedCloseDate = &parsed
			changed = true
		}
	}
	if !changed {
		return nil
	}

	deal.UpdatedAt = s.now()
	if err := s.deals.Update(ctx, deal); err != nil {
		return domain.WrapError(domain.ErrTemporary, "cluster: update deal", err)
	}
	return nil
}

func (s *Service) rollUpValue(ctx context.Context, dealID string, fact *domain.AtomicFact) error {
	if fact.Payload.AmountUSD <= 0 {
		return nil
	}

	deal, err := s.deals.GetByID(ctx, dealID)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "cluster: load deal", err)
	}
	if deal.DealValueUSD != 0 && !fact.IsManual() {
		return nil
	}

	deal.DealValueUSD = fact.Payload.AmountUSD
	deal.UpdatedAt = s.now()
	if err := s.deals.Update(ctx, deal); err != nil {
		return domain.WrapError(domain.ErrTemporary, "cluster: update deal", err)
	}
	return nil
}

// MergeDeals reassigns all facts and financing events from the source
// deal to the surviving deal, locks the source with a pointer to its
// survivor, and records a resolved audit alert. Nothing is deleted.
func (s *Service) MergeDeals(ctx context.Context, sourceID, targetID, reason string) error {
	if sourceID == targetID {
		return domain.WrapError(domain.ErrInvalidInput, "cluster: merge deals", fmt.Errorf("source and target are the same deal %s", sourceID))
	}

	source, err := s.deals.GetByID(ctx, sourceID)
	if err != nil {
		return domain.WrapError(domain.ErrDealNotFound, "cluster: merge deals", err)
	}
	target, err := s.deals.GetByID(ctx, targetID)
	if err != nil {
		return domain.WrapError(domain.ErrDealNotFound, "cluster: merge deals", err)
	}

	if err := s.facts.ReassignDeal(ctx, source.ID, target.ID); err != nil {
		return domain.WrapError(domain.ErrTemporary, "cluster: reassign facts", err)
	}

	events, err := s.financings.ListByDeal(ctx, source.ID)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "cluster: list financings", err)
	}
	for i := range events {
		events[i].DealID = target.ID
		if err := s.financings.Update(ctx, &events[i]); err != nil {
			return domain.WrapError(domain.ErrTemporary, "cluster: reassign financing", err)
		}
	}

	now := s.now()
	sourceName := source.Target.NameDisplay
	if sourceName == "" {
		sourceName = source.ID
	}
	alert := &domain.ProcessingAlert{
		ID:              uuid.NewString(),
		Kind:            domain.AlertDealMergeCandidate,
		DealID:          target.ID,
		Title:           fmt.Sprintf("Deal merged: %s", sourceName),
		Description:     fmt.Sprintf("Merged into deal %s. Reason: %s", target.ID, reason),
		Resolved:        true,
		ResolvedAt:      &now,
		ResolutionNotes: fmt.Sprintf("Auto-merged. Superseded deal key: %s", source.DealKey),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.alerts.Create(ctx, alert); err != nil {
		return domain.WrapError(domain.ErrTemporary, "cluster: create merge alert", err)
	}

	source.MergedInto = target.ID
	source.State = domain.DealLocked
	source.UpdatedAt = now
	if err := s.deals.Update(ctx, source); err != nil {
		return domain.WrapError(domain.ErrTemporary, "cluster: lock merged deal", err)
	}

	s.logger.Info("deals merged", "source_deal_id", source.ID, "target_deal_id", target.ID, "reason", reason)
	return nil
}

// FindMergeCandidates reports pairs of live deals whose normalized target
// names are near-identical under different keys. Pairs are reported, not
// merged: merging stays an explicit, audited operation.
func (s *Service) FindMergeCandidates(ctx context.Context) ([]MergeCandidate, error) {
	var live []domain.Deal
	for _, state := range []domain.DealState{domain.DealCandidate, domain.DealOpen} {
		deals, err := s.deals.List(ctx, domain.DealFilter{State: string(state)})
		if err != nil {
			return nil, domain.WrapError(domain.ErrTemporary, "cluster: list deals", err)
		}
		live = append(live, deals...)
	}
	sort.Slice(live, func(i, j int) bool { return live[i].ID < live[j].ID })

	var candidates []MergeCandidate
	for i := range live {
		for j := i + 1; j < len(live); j++ {
			d1, d2 := &live[i], &live[j]
			if d1.DealKey == d2.DealKey || d1.MergedInto != "" || d2.MergedInto != "" {
				continue
			}
			if d1.Target.Normalized == "" || d2.Target.Normalized == "" {
				continue
			}
			similarity := extract.SimilarityRatio(d1.Target.Normalized, d2.Target.Normalized)
			if similarity > mergeSimilarityMin {
				candidates = append(candidates, MergeCandidate{
					SourceDealID: d1.ID,
					TargetDealID: d2.ID,
					Similarity:   similarity,
				})
			}
		}
	}
	return candidates, nil
}

func isPartyFact(f *domain.AtomicFact) bool {
	return f.Kind == domain.FactPartyDefinition || f.Kind == domain.FactPartyMention
}

func isSecondaryFact(f *domain.AtomicFact) bool {
	switch f.Kind {
	case domain.FactSponsorMention, domain.FactDealDate, domain.FactDealValue,
		domain.FactFinancingMention, domain.FactAdvisorMention, domain.FactTableRole:
		return true
	}
	return false
}

// partyRole resolves which side of the deal a party fact describes,
// preferring the canonical role set at extraction time over the raw
// defined-term label.
func partyRole(f *domain.AtomicFact) string {
	switch f.Payload.CanonicalRole {
	case extract.RoleTarget, extract.RoleAcquirer:
		return f.Payload.CanonicalRole
	}
	label := strings.ToLower(strings.TrimSpace(f.Payload.RoleLabel))
	switch {
	case targetLabels[label]:
		return extract.RoleTarget
	case acquirerLabels[label]:
		return extract.RoleAcquirer
	}
	return ""
}

func identityFromFact(f *domain.AtomicFact) domain.PartyIdentity {
	return domain.PartyIdentity{
		CIK:         f.Payload.CIK,
		NameRaw:     f.Payload.PartyNameRaw,
		NameDisplay: f.Payload.PartyNameDisplay,
		Normalized:  f.Payload.PartyNameNormalized,
		Confidence:  f.Confidence,
	}
}
