package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dealtrace/dealtrace/internal/core/domain"
)

func factRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "kind", "filing_id", "exhibit_id", "deal_id", "evidence", "extraction_method",
		"extraction_pattern", "confidence", "payload", "entered_by", "entered_at", "note", "created_at",
	})
}

func TestFactRepositoryListUnattached(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewFactRepository(db)
	rows := factRows().
		AddRow("f-1", string(domain.FactPartyDefinition), "fil-1", "ex-1", "", []byte(`{"snippet":"by and among"}`),
			domain.ExtractionPattern, "preamble_party_list", 0.9, []byte(`{"party_name_raw":"Alpha Inc."}`),
			"", nil, "", time.Now())

	mock.ExpectQuery("FROM atomic_facts").
		WithArgs(100).
		WillReturnRows(rows)

	facts, err := repo.ListUnattached(context.Background(), 100)
	if err != nil {
		t.Fatalf("ListUnattached() error = %v", err)
	}
	if len(facts) != 1 {
		t.Fatalf("expected 1 fact, got %d", len(facts))
	}
	if facts[0].Payload.PartyNameRaw != "Alpha Inc." {
		t.Fatalf("payload not decoded: %+v", facts[0].Payload)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFactRepositoryListFiltersByKind(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewFactRepository(db)
	mock.ExpectQuery("FROM atomic_facts").
		WithArgs(string(domain.FactFinancingMention)).
		WillReturnRows(factRows())

	if _, err := repo.List(context.Background(), domain.FactFilter{Kind: string(domain.FactFinancingMention)}); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFactRepositoryAttachToDealReturnsErrorWhenMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewFactRepository(db)
	mock.ExpectExec("UPDATE atomic_facts").
		WithArgs("missing", "deal-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.AttachToDeal(context.Background(), "missing", "deal-1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
