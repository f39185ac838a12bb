package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dealtrace/dealtrace/internal/core/domain"
)

func dealRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "state",
		"acquirer_cik", "acquirer_name_raw", "acquirer_name_display", "acquirer_name_normalized", "acquirer_confidence",
		"target_cik", "target_name_raw", "target_name_display", "target_name_normalized", "target_confidence",
		"deal_key", "agreement_date", "announcement_date", "expected_close_date", "deal_value_usd",
		"sponsor_backed", "sponsor_name_raw", "sponsor_name_normalized", "sponsor_confidence", "unresolved_sponsor",
		"market_tag", "advisory_fee_usd", "underwriting_fee_usd", "merged_into", "created_at", "updated_at",
	})
}

func TestDealRepositoryGetByDealKeyNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewDealRepository(db)
	mock.ExpectQuery("FROM deals").
		WithArgs("cik:1:cik:2").
		WillReturnRows(dealRows())

	_, err = repo.GetByDealKey(context.Background(), "cik:1:cik:2")
	if !domain.IsKind(err, domain.ErrDealNotFound) {
		t.Fatalf("expected deal not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDealRepositoryGetByIDDecodesNullables(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewDealRepository(db)
	agreed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := dealRows().
		AddRow("deal-1", string(domain.DealOpen),
			"0000123456", "Alpha Inc.", "Alpha", "alpha", 0.9,
			"0000654321", "Gamma Corp.", "Gamma Corp", "gamma corp", 0.85,
			"cik:0000123456:cik:0000654321", agreed, nil, nil, 1_000_000_000.0,
			true, "Thoma Bravo", "thoma bravo", 0.95, false,
			domain.TagHYBond, 0.0, 0.0, "", time.Now(), time.Now())

	mock.ExpectQuery("FROM deals").
		WithArgs("deal-1").
		WillReturnRows(rows)

	deal, err := repo.GetByID(context.Background(), "deal-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if deal.AgreementDate == nil || !deal.AgreementDate.Equal(agreed) {
		t.Fatalf("agreement date not decoded: %v", deal.AgreementDate)
	}
	if deal.AnnouncementDate != nil {
		t.Fatalf("null announcement date must stay nil")
	}
	if deal.SponsorBacked == nil || !*deal.SponsorBacked {
		t.Fatalf("sponsor flag not decoded: %v", deal.SponsorBacked)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDealRepositoryUpdateStateReturnsErrorWhenMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewDealRepository(db)
	mock.ExpectExec("UPDATE deals").
		WithArgs("missing", string(domain.DealOpen), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.UpdateState(context.Background(), "missing", domain.DealOpen)
	if !domain.IsKind(err, domain.ErrDealNotFound) {
		t.Fatalf("expected deal not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDealRepositoryListFiltersByState(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewDealRepository(db)
	mock.ExpectQuery("FROM deals").
		WithArgs(string(domain.DealCandidate)).
		WillReturnRows(dealRows())

	if _, err := repo.List(context.Background(), domain.DealFilter{State: string(domain.DealCandidate)}); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
