package attribution

import (
	"context"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/dealtrace/dealtrace/internal/core/domain"
)

func testTable() *RateTable {
	return &RateTable{
		AdvisoryFeeBps: map[string]float64{
			"default":           50,
			"deal_size_over_1B": 30,
			"deal_size_over_5B": 20,
		},
		UnderwritingFeeBps: map[string]float64{
			domain.TagHYBond:    150,
			domain.TagIGBond:    45,
			domain.TagTermLoanB: 200,
			domain.TagBridge:    100,
			domain.TagOtherLoan: 75,
			domain.TagUnknown:   100,
		},
		RoleSplits: map[string]map[string]float64{
			domain.FamilyBond: {
				"joint_bookrunner": 1.5,
				"bookrunner":       1.2,
				"co_manager":       0.5,
				"other":            0.1,
			},
			domain.FamilyLoan: {
				"lead_arranger": 1.5,
				"arranger":      1.0,
				"agent":         0.5,
				"other":         0.1,
			},
		},
		Thresholds: map[string]float64{"min_amount_usd": 1_000_000},
	}
}

func approx(got, want float64) bool {
	return math.Abs(got-want) < 1e-6
}

func TestAdvisoryFeeBrackets(t *testing.T) {
	table := testTable()
	cases := []struct {
		value float64
		want  float64
	}{
		{500_000_000, 500_000_000 * 50 / 10_000},
		{2_000_000_000, 2_000_000_000 * 30 / 10_000},
		{6_000_000_000, 6_000_000_000 * 20 / 10_000},
		{0, 0},
	}
	for _, tc := range cases {
		if got := AdvisoryFee(table, tc.value); !approx(got, tc.want) {
			t.Fatalf("AdvisoryFee(%v) = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestEventFeeSplitsByRoleWeight(t *testing.T) {
	table := testTable()
	event := &domain.FinancingEvent{
		ID:               "fin-1",
		InstrumentFamily: domain.FamilyBond,
		MarketTag:        domain.TagHYBond,
		AmountUSD:        500_000_000,
		Participants: []domain.FinancingParticipant{
			{ID: "p-1", RoleNormalized: "joint_bookrunner"},
			{ID: "p-2", RoleNormalized: "co_manager"},
		},
	}

	fee := EventFee(table, event)
	wantFee := 500_000_000.0 * 150 / 10_000 // 7.5M
	if !approx(fee, wantFee) {
		t.Fatalf("unexpected event fee: %v, want %v", fee, wantFee)
	}
	if !approx(event.EstimatedFeeUSD, wantFee) {
		t.Fatalf("fee not recorded on event: %v", event.EstimatedFeeUSD)
	}

	// Weights 1.5 and 0.5 split the fee 3:1.
	if !approx(event.Participants[0].EstimatedFeeUSD, wantFee*0.75) {
		t.Fatalf("unexpected bookrunner share: %v", event.Participants[0].EstimatedFeeUSD)
	}
	if !approx(event.Participants[1].EstimatedFeeUSD, wantFee*0.25) {
		t.Fatalf("unexpected co-manager share: %v", event.Participants[1].EstimatedFeeUSD)
	}
}

func TestEventFeeUnknownRoleFallsBack(t *testing.T) {
	table := testTable()
	event := &domain.FinancingEvent{
		InstrumentFamily: domain.FamilyBond,
		MarketTag:        domain.TagIGBond,
		AmountUSD:        100_000_000,
		Participants: []domain.FinancingParticipant{
			{ID: "p-1", RoleNormalized: "stabilization specialist"},
		},
	}
	EventFee(table, event)
	if !approx(event.Participants[0].RoleWeight, 0.1) {
		t.Fatalf("unknown role must take the other weight, got %v", event.Participants[0].RoleWeight)
	}
}

func TestEventFeeZeroAmount(t *testing.T) {
	if fee := EventFee(testTable(), &domain.FinancingEvent{MarketTag: domain.TagHYBond}); fee != 0 {
		t.Fatalf("no amount means no fee, got %v", fee)
	}
}

func TestUnderwritingBpsFallback(t *testing.T) {
	table := testTable()
	if got := table.UnderwritingBps(""); got != 100 {
		t.Fatalf("empty tag must use Unknown, got %v", got)
	}
	if got := table.UnderwritingBps("Exotic_Tag"); got != 100 {
		t.Fatalf("unmapped tag must use Unknown, got %v", got)
	}
}

func TestLoadRateTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "attribution.yaml")
	content := `advisory_fee_bps:
  default: 50
  deal_size_over_1B: 30
  deal_size_over_5B: 20
underwriting_fee_bps:
  HY_Bond: 150
  IG_Bond: 45
  Unknown: 100
role_splits:
  bond:
    joint_bookrunner: 1.5
    other: 0.1
  loan:
    lead_arranger: 1.5
    other: 0.1
thresholds:
  min_amount_usd: 1000000
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	table, err := LoadRateTable(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.AdvisoryBps(2_000_000_000) != 30 {
		t.Fatalf("unexpected bracket rate: %v", table.AdvisoryBps(2_000_000_000))
	}
}

func TestLoadRateTableFailsFast(t *testing.T) {
	dir := t.TempDir()

	missing := filepath.Join(dir, "nope.yaml")
	if _, err := LoadRateTable(missing); err == nil || !domain.IsKind(err, domain.ErrConfig) {
		t.Fatalf("missing table must be a config error, got %v", err)
	}

	noDefault := filepath.Join(dir, "nodefault.yaml")
	content := `advisory_fee_bps:
  deal_size_over_1B: 30
underwriting_fee_bps:
  Unknown: 100
role_splits:
  loan:
    other: 0.1
`
	if err := os.WriteFile(noDefault, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRateTable(noDefault); err == nil || !domain.IsKind(err, domain.ErrConfig) {
		t.Fatalf("missing default bracket must be a config error, got %v", err)
	}

	negative := filepath.Join(dir, "negative.yaml")
	content = `advisory_fee_bps:
  default: -5
underwriting_fee_bps:
  Unknown: 100
role_splits:
  loan:
    other: 0.1
`
	if err := os.WriteFile(negative, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRateTable(negative); err == nil || !domain.IsKind(err, domain.ErrConfig) {
		t.Fatalf("negative rate must be a config error, got %v", err)
	}
}

type dealStore struct{ deals []*domain.Deal }

func (s *dealStore) Create(_ context.Context, d *domain.Deal) error {
	s.deals = append(s.deals, d)
	return nil
}

func (s *dealStore) GetByID(_ context.Context, id string) (*domain.Deal, error) {
	return nil, domain.ErrDealNotFound
}

func (s *dealStore) GetByDealKey(_ context.Context, key string) (*domain.Deal, error) {
	return nil, domain.ErrDealNotFound
}

func (s *dealStore) List(_ context.Context, _ domain.DealFilter) ([]domain.Deal, error) {
	var out []domain.Deal
	for _, d := range s.deals {
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

func (s *dealStore) UpdateState(_ context.Context, _ string, _ domain.DealState) error { return nil }

type financingStore struct{ events []*domain.FinancingEvent }

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

func (s *financingStore) GetByID(_ context.Context, _ string) (*domain.FinancingEvent, error) {
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

func TestAttributePass(t *testing.T) {
	deals := &dealStore{}
	financings := &financingStore{}

	deals.Create(context.Background(), &domain.Deal{
		ID:           "deal-1",
		State:        domain.DealOpen,
		DealValueUSD: 2_000_000_000,
	})
	financings.Create(context.Background(), &domain.FinancingEvent{
		ID:               "fin-1",
		DealID:           "deal-1",
		InstrumentFamily: domain.FamilyBond,
		MarketTag:        domain.TagHYBond,
		AmountUSD:        500_000_000,
		Participants: []domain.FinancingParticipant{
			{ID: "p-1", RoleNormalized: "joint_bookrunner"},
		},
	})

	engine := NewEngine(testTable(), deals, financings, slog.New(slog.DiscardHandler))
	stats, err := engine.AttributePass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.DealsProcessed != 1 || stats.EventsProcessed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	deal := deals.deals[0]
	if !approx(deal.AdvisoryFeeUSD, 2_000_000_000*30/10_000) {
		t.Fatalf("unexpected advisory fee: %v", deal.AdvisoryFeeUSD)
	}
	if !approx(deal.UnderwritingFeeUSD, 500_000_000*150/10_000) {
		t.Fatalf("unexpected underwriting fee: %v", deal.UnderwritingFeeUSD)
	}
	if !approx(financings.events[0].EstimatedFeeUSD, 7_500_000) {
		t.Fatalf("event fee not persisted: %v", financings.events[0].EstimatedFeeUSD)
	}
}
