package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dealtrace/dealtrace/internal/core/domain"
)

type factStore struct {
	facts []*domain.AtomicFact
}

func (s *factStore) Create(_ context.Context, f *domain.AtomicFact) error {
	s.facts = append(s.facts, f)
	return nil
}

func (s *factStore) GetByID(_ context.Context, id string) (*domain.AtomicFact, error) {
	for _, f := range s.facts {
		if f.ID == id {
			return f, nil
		}
	}
	return nil, domain.ErrInvalidInput
}

func (s *factStore) List(_ context.Context, filter domain.FactFilter) ([]domain.AtomicFact, error) {
	var out []domain.AtomicFact
	for _, f := range s.facts {
		if filter.FilingID != "" && f.FilingID != filter.FilingID {
			continue
		}
		if filter.ExhibitID != "" && f.ExhibitID != filter.ExhibitID {
			continue
		}
		if filter.DealID != "" && f.DealID != filter.DealID {
			continue
		}
		out = append(out, *f)
	}
	return out, nil
}

func (s *factStore) ListUnattached(_ context.Context, limit int) ([]domain.AtomicFact, error) {
	var out []domain.AtomicFact
	for _, f := range s.facts {
		if f.DealID == "" {
			out = append(out, *f)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *factStore) AttachToDeal(_ context.Context, factID, dealID string) error {
	for _, f := range s.facts {
		if f.ID == factID {
			f.DealID = dealID
			return nil
		}
	}
	return domain.ErrInvalidInput
}

func (s *factStore) ReassignDeal(_ context.Context, fromDealID, toDealID string) error {
	for _, f := range s.facts {
		if f.DealID == fromDealID {
			f.DealID = toDealID
		}
	}
	return nil
}

type dealStore struct {
	deals []*domain.Deal
}

func (s *dealStore) Create(_ context.Context, d *domain.Deal) error {
	s.deals = append(s.deals, d)
	return nil
}

func (s *dealStore) GetByID(_ context.Context, id string) (*domain.Deal, error) {
	for _, d := range s.deals {
		if d.ID == id {
			copied := *d
			return &copied, nil
		}
	}
	return nil, domain.ErrDealNotFound
}

func (s *dealStore) GetByDealKey(_ context.Context, key string) (*domain.Deal, error) {
	for _, d := range s.deals {
		if d.DealKey == key {
			copied := *d
			return &copied, nil
		}
	}
	return nil, domain.ErrDealNotFound
}

func (s *dealStore) List(_ context.Context, filter domain.DealFilter) ([]domain.Deal, error) {
	var out []domain.Deal
	for _, d := range s.deals {
		if filter.State != "" && string(d.State) != filter.State {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

func (s *dealStore) Update(_ context.Context, deal *domain.Deal) error {
	for i, d := range s.deals {
		if d.ID == deal.ID {
			copied := *deal
			s.deals[i] = &copied
			return nil
		}
	}
	return domain.ErrDealNotFound
}

func (s *dealStore) UpdateState(_ context.Context, id string, state domain.DealState) error {
	for _, d := range s.deals {
		if d.ID == id {
			d.State = state
			return nil
		}
	}
	return domain.ErrDealNotFound
}

type financingStore struct {
	events []*domain.FinancingEvent
}

func (s *financingStore) Create(_ context.Context, e *domain.FinancingEvent) error {
	s.events = append(s.events, e)
	return nil
}

func (s *financingStore) Update(_ context.Context, e *domain.FinancingEvent) error {
	for i, existing := range s.events {
		if existing.ID == e.ID {
			copied := *e
			s.events[i] = &copied
			return nil
		}
	}
	return domain.ErrInvalidInput
}

func (s *financingStore) GetByID(_ context.Context, id string) (*domain.FinancingEvent, error) {
	for _, e := range s.events {
		if e.ID == id {
			copied := *e
			return &copied, nil
		}
	}
	return nil, domain.ErrInvalidInput
}

func (s *financingStore) ListByDeal(_ context.Context, dealID string) ([]domain.FinancingEvent, error) {
	var out []domain.FinancingEvent
	for _, e := range s.events {
		if e.DealID == dealID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *financingStore) ReplaceParticipants(_ context.Context, eventID string, participants []domain.FinancingParticipant) error {
	for _, e := range s.events {
		if e.ID == eventID {
			e.Participants = participants
			return nil
		}
	}
	return domain.ErrInvalidInput
}

type alertStore struct {
	alerts []*domain.ProcessingAlert
}

func (s *alertStore) Create(_ context.Context, a *domain.ProcessingAlert) error {
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *alertStore) GetByID(_ context.Context, id string) (*domain.ProcessingAlert, error) {
	for _, a := range s.alerts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, domain.ErrAlertNotFound
}

func (s *alertStore) List(_ context.Context, filter domain.AlertFilter) ([]domain.ProcessingAlert, error) {
	var out []domain.ProcessingAlert
	for _, a := range s.alerts {
		if filter.Kind != "" && string(a.Kind) != filter.Kind {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (s *alertStore) MarkResolved(_ context.Context, id, resolvedBy, notes string) error {
	for _, a := range s.alerts {
		if a.ID == id {
			a.Resolved = true
			a.ResolvedBy = resolvedBy
			a.ResolutionNotes = notes
			return nil
		}
	}
	return domain.ErrAlertNotFound
}

type harness struct {
	svc        *Service
	facts      *factStore
	deals      *dealStore
	financings *financingStore
	alerts     *alertStore
}

func newHarness() *harness {
	h := &harness{
		facts:      &factStore{},
		deals:      &dealStore{},
		financings: &financingStore{},
		alerts:     &alertStore{},
	}
	h.svc = NewService(h.facts, h.deals, h.financings, h.alerts, slog.New(slog.DiscardHandler), 0.6)
	return h
}

var factSeq int

func partyFact(filingID, exhibitID, role, name, cik string, confidence float64) *domain.AtomicFact {
	factSeq++
	return &domain.AtomicFact{
		ID:               fmt.Sprintf("fact-%03d", factSeq),
		Kind:             domain.FactPartyDefinition,
		FilingID:         filingID,
		ExhibitID:        exhibitID,
		Confidence:       confidence,
		ExtractionMethod: domain.ExtractionPattern,
		Evidence:         domain.Evidence{Snippet: name},
		Payload: domain.FactPayload{
			PartyNameRaw:        name,
			PartyNameDisplay:    name,
			PartyNameNormalized: name,
			CanonicalRole:       role,
			CIK:                 cik,
		},
		CreatedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestClusterPassCreatesNameOnlyDealNeedsReview(t *testing.T) {
	h := newHarness()
	h.facts.Create(context.Background(), partyFact("fil-1", "ex-1", "target", "gamma corp", "", 0.9))
	h.facts.Create(context.Background(), partyFact("fil-1", "ex-1", "acquirer", "alpha holdings", "", 0.9))

	stats, err := h.svc.ClusterPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.DealsCreated != 1 {
		t.Fatalf("expected 1 deal, got %d", stats.DealsCreated)
	}
	if stats.FactsAttached != 2 {
		t.Fatalf("expected both facts attached, got %d", stats.FactsAttached)
	}

	deal := h.deals.deals[0]
	if deal.DealKey != "name:alpha holdings:name:gamma corp" {
		t.Fatalf("unexpected deal key: %q", deal.DealKey)
	}
	if deal.State != domain.DealNeedsReview {
		t.Fatalf("name-only key must flag review, got %q", deal.State)
	}
}

func TestClusterPassPromotesWithIdentifiers(t *testing.T) {
	h := newHarness()
	h.facts.Create(context.Background(), partyFact("fil-1", "ex-1", "target", "gamma corp", "0000123456", 0.9))
	h.facts.Create(context.Background(), partyFact("fil-1", "ex-1", "acquirer", "alpha holdings", "0000654321", 0.9))

	stats, err := h.svc.ClusterPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.DealsCreated != 1 || stats.DealsPromoted != 1 {
		t.Fatalf("expected created+promoted, got %+v", stats)
	}

	deal := h.deals.deals[0]
	if deal.DealKey != "cik:0000654321:cik:0000123456" {
		t.Fatalf("unexpected deal key: %q", deal.DealKey)
	}
	if deal.State != domain.DealOpen {
		t.Fatalf("expected OPEN after promotion, got %q", deal.State)
	}
}

func TestClusterPassIsIdempotent(t *testing.T) {
	h := newHarness()
	h.facts.Create(context.Background(), partyFact("fil-1", "ex-1", "target", "gamma corp", "0000123456", 0.9))
	h.facts.Create(context.Background(), partyFact("fil-1", "ex-1", "acquirer", "alpha holdings", "0000654321", 0.9))

	if _, err := h.svc.ClusterPass(context.Background()); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	stats, err := h.svc.ClusterPass(context.Background())
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if stats.DealsCreated != 0 || stats.FactsAttached != 0 {
		t.Fatalf("second pass must be a no-op, got %+v", stats)
	}
	if len(h.deals.deals) != 1 {
		t.Fatalf("expected exactly 1 deal, got %d", len(h.deals.deals))
	}
}

func TestClusterPassTwoFilingsSameKeyOneDeal(t *testing.T) {
	h := newHarness()
	// Two filings reference the same acquirer identifier and target name;
	// processed in either order they must resolve to one deal.
	h.facts.Create(context.Background(), partyFact("fil-1", "ex-1", "target", "beta corp", "", 0.9))
	h.facts.Create(context.Background(), partyFact("fil-1", "ex-1", "acquirer", "acme holdings", "0000999999", 0.9))
	h.facts.Create(context.Background(), partyFact("fil-2", "ex-2", "target", "beta corp", "", 0.9))
	h.facts.Create(context.Background(), partyFact("fil-2", "ex-2", "acquirer", "acme holdings", "0000999999", 0.9))

	if _, err := h.svc.ClusterPass(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.deals.deals) != 1 {
		t.Fatalf("same key must cluster to one deal, got %d", len(h.deals.deals))
	}
	for _, f := range h.facts.facts {
		if f.DealID != h.deals.deals[0].ID {
			t.Fatalf("fact %s not attached to the deal", f.ID)
		}
	}
}

func TestClusterPassUpgradesNameOnlyKeyWhenIdentifierArrives(t *testing.T) {
	h := newHarness()
	h.facts.Create(context.Background(), partyFact("fil-1", "ex-1", "target", "gamma corp", "", 0.9))
	h.facts.Create(context.Background(), partyFact("fil-1", "ex-1", "acquirer", "alpha holdings", "", 0.9))
	if _, err := h.svc.ClusterPass(context.Background()); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	// A later filing carries canonical identifiers for the same parties.
	h.facts.Create(context.Background(), partyFact("fil-2", "ex-2", "target", "gamma corp", "0000123456", 0.9))
	h.facts.Create(context.Background(), partyFact("fil-2", "ex-2", "acquirer", "alpha holdings", "0000654321", 0.9))
	if _, err := h.svc.ClusterPass(context.Background()); err != nil {
		t.Fatalf("second pass: %v", err)
	}

	if len(h.deals.deals) != 1 {
		t.Fatalf("identifier arrival must not fork the deal, got %d deals", len(h.deals.deals))
	}
	deal := h.deals.deals[0]
	if deal.DealKey != "cik:0000654321:cik:0000123456" {
		t.Fatalf("key must recompute to identifier form, got %q", deal.DealKey)
	}
	for _, f := range h.facts.facts {
		if f.DealID != deal.ID {
			t.Fatalf("previously attached fact %s lost during key upgrade", f.ID)
		}
	}
}

func TestClusterPassTerminalDealRaisesAlert(t *testing.T) {
	h := newHarness()
	h.deals.Create(context.Background(), &domain.Deal{
		ID:      "deal-locked",
		State:   domain.DealLocked,
		DealKey: "name:alpha holdings:name:gamma corp",
		Target:  domain.PartyIdentity{Normalized: "gamma corp"},
	})
	h.facts.Create(context.Background(), partyFact("fil-1", "ex-1", "target", "gamma corp", "", 0.9))
	h.facts.Create(context.Background(), partyFact("fil-1", "ex-1", "acquirer", "alpha holdings", "", 0.9))

	stats, err := h.svc.ClusterPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.FactsAttached != 0 {
		t.Fatalf("locked deal must not receive facts, got %d attached", stats.FactsAttached)
	}
	if stats.AlertsCreated == 0 {
		t.Fatal("expected a conflict alert")
	}
	if h.alerts.alerts[0].Kind != domain.AlertLowConfidenceMatch {
		t.Fatalf("unexpected alert kind: %q", h.alerts.alerts[0].Kind)
	}

	deal, _ := h.deals.GetByID(context.Background(), "deal-locked")
	if deal.State != domain.DealNeedsReview {
		t.Fatalf("terminal conflict must flag review, got %q", deal.State)
	}
}

func TestClusterPassAttachesSecondaryFactsAndRollsUp(t *testing.T) {
	h := newHarness()
	h.facts.Create(context.Background(), partyFact("fil-1", "ex-1", "target", "gamma corp", "0000123456", 0.9))
	h.facts.Create(context.Background(), partyFact("fil-1", "ex-1", "acquirer", "alpha holdings", "0000654321", 0.9))

	factSeq++
	sponsor := &domain.AtomicFact{
		ID:         fmt.Sprintf("fact-%03d", factSeq),
		Kind:       domain.FactSponsorMention,
		FilingID:   "fil-1",
		ExhibitID:  "ex-1",
		Confidence: 0.95,
		Payload: domain.FactPayload{
			SponsorNameRaw:        "Thoma Bravo",
			SponsorNameNormalized: "thoma bravo",
		},
	}
	h.facts.Create(context.Background(), sponsor)

	factSeq++
	date := &domain.AtomicFact{
		ID:         fmt.Sprintf("fact-%03d", factSeq),
		Kind:       domain.FactDealDate,
		FilingID:   "fil-1",
		ExhibitID:  "ex-1",
		Confidence: 0.95,
		Payload: domain.FactPayload{
			DateType:  "agreement_date",
			DateValue: "2024-01-15",
		},
	}
	h.facts.Create(context.Background(), date)

	if _, err := h.svc.ClusterPass(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deal := h.deals.deals[0]
	if sponsor.DealID == "" || date.DealID == "" {
		t.Fatal("secondary facts must attach via the filing's party facts")
	}
	if deal.SponsorBacked == nil || !*deal.SponsorBacked {
		t.Fatal("sponsor fact must mark the deal sponsor backed")
	}
	if deal.SponsorNameNormalized != "thoma bravo" {
		t.Fatalf("unexpected sponsor roll-up: %q", deal.SponsorNameNormalized)
	}
	if deal.AgreementDate == nil || deal.AgreementDate.Format("2006-01-02") != "2024-01-15" {
		t.Fatalf("unexpected agreement date roll-up: %v", deal.AgreementDate)
	}
}

func TestClusterPassLowerConfidenceSponsorDoesNotOverwrite(t *testing.T) {
	h := newHarness()
	h.facts.Create(context.Background(), partyFact("fil-1", "ex-1", "target", "gamma corp", "0000123456", 0.9))
	h.facts.Create(context.Background(), partyFact("fil-1", "ex-1", "acquirer", "alpha holdings", "0000654321", 0.9))
	if _, err := h.svc.ClusterPass(context.Background()); err != nil {
		t.Fatalf("setup pass: %v", err)
	}

	deal := h.deals.deals[0]
	deal.SponsorNameNormalized = "thoma bravo"
	deal.SponsorConfidence = 0.95

	factSeq++
	weak := &domain.AtomicFact{
		ID:         fmt.Sprintf("fact-%03d", factSeq),
		Kind:       domain.FactSponsorMention,
		FilingID:   "fil-1",
		ExhibitID:  "ex-1",
		Confidence: 0.85,
		Payload: domain.FactPayload{
			SponsorNameRaw:        "Other Capital",
			SponsorNameNormalized: "other capital",
		},
	}
	h.facts.Create(context.Background(), weak)

	if _, err := h.svc.ClusterPass(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.deals.deals[0].SponsorNameNormalized != "thoma bravo" {
		t.Fatalf("weaker sponsor evidence must not overwrite, got %q", h.deals.deals[0].SponsorNameNormalized)
	}
}

func TestMergeDealsMovesFactsAndLocksSource(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.deals.Create(ctx, &domain.Deal{
		ID:      "deal-a",
		State:   domain.DealCandidate,
		DealKey: "name:alpha holdings:name:gamma corp",
		Target:  domain.PartyIdentity{Normalized: "gamma corp", NameDisplay: "Gamma Corp"},
	})
	h.deals.Create(ctx, &domain.Deal{
		ID:      "deal-b",
		State:   domain.DealOpen,
		DealKey: "cik:0000654321:cik:0000123456",
		Target:  domain.PartyIdentity{Normalized: "gamma corp"},
	})

	factSeq++
	fact := &domain.AtomicFact{ID: fmt.Sprintf("fact-%03d", factSeq), Kind: domain.FactPartyDefinition, DealID: "deal-a"}
	h.facts.Create(ctx, fact)
	h.financings.Create(ctx, &domain.FinancingEvent{ID: "fin-1", DealID: "deal-a"})

	if err := h.svc.MergeDeals(ctx, "deal-a", "deal-b", "same target, identifier key arrived"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fact.DealID != "deal-b" {
		t.Fatalf("fact not reassigned: %q", fact.DealID)
	}
	if h.financings.events[0].DealID != "deal-b" {
		t.Fatalf("financing not reassigned: %q", h.financings.events[0].DealID)
	}

	source, _ := h.deals.GetByID(ctx, "deal-a")
	if source.MergedInto != "deal-b" || source.State != domain.DealLocked {
		t.Fatalf("source must be locked with survivor pointer, got %+v", source)
	}

	if len(h.alerts.alerts) != 1 {
		t.Fatalf("expected 1 audit alert, got %d", len(h.alerts.alerts))
	}
	audit := h.alerts.alerts[0]
	if audit.Kind != domain.AlertDealMergeCandidate || !audit.Resolved {
		t.Fatalf("audit alert must be a resolved merge record, got %+v", audit)
	}
}

func TestMergeDealsRejectsSelfMerge(t *testing.T) {
	h := newHarness()
	if err := h.svc.MergeDeals(context.Background(), "deal-a", "deal-a", "oops"); err == nil {
		t.Fatal("self merge must fail")
	}
}

func TestFindMergeCandidates(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.deals.Create(ctx, &domain.Deal{
		ID:      "deal-a",
		State:   domain.DealCandidate,
		DealKey: "name:alpha holdings:name:gamma corp",
		Target:  domain.PartyIdentity{Normalized: "gamma corp"},
	})
	h.deals.Create(ctx, &domain.Deal{
		ID:      "deal-b",
		State:   domain.DealOpen,
		DealKey: "cik:0000654321:name:gamma corp.",
		Target:  domain.PartyIdentity{Normalized: "gamma corp."},
	})
	h.deals.Create(ctx, &domain.Deal{
		ID:      "deal-c",
		State:   domain.DealOpen,
		DealKey: "name:x:name:omega industries",
		Target:  domain.PartyIdentity{Normalized: "omega industries"},
	})

	candidates, err := h.svc.FindMergeCandidates(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate pair, got %d: %+v", len(candidates), candidates)
	}
	if candidates[0].SourceDealID != "deal-a" || candidates[0].TargetDealID != "deal-b" {
		t.Fatalf("unexpected pair: %+v", candidates[0])
	}
}
