package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dealtrace/dealtrace/internal/core/domain"
)

func TestAlertRepositoryListFiltersUnresolved(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewAlertRepository(db)
	rows := sqlmock.NewRows([]string{
		"id", "kind", "filing_id", "exhibit_id", "deal_id", "title", "description",
		"fields_needed", "source_preview", "resolved", "resolved_at", "resolved_by", "resolution_notes",
		"created_at", "updated_at",
	}).AddRow("a-1", string(domain.AlertUnparsedMaterialExhibit), "fil-1", "ex-1", "",
		"Material exhibit failed extraction", "", []byte(`["facility_type","amount"]`), "", false,
		nil, "", "", time.Now(), time.Now())

	unresolved := false
	mock.ExpectQuery("FROM processing_alerts").
		WithArgs(unresolved).
		WillReturnRows(rows)

	alerts, err := repo.List(context.Background(), domain.AlertFilter{Resolved: &unresolved})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if len(alerts[0].FieldsNeeded) != 2 {
		t.Fatalf("fields needed not decoded: %+v", alerts[0].FieldsNeeded)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAlertRepositoryMarkResolvedReturnsErrorWhenMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewAlertRepository(db)
	mock.ExpectExec("UPDATE processing_alerts").
		WithArgs("missing", sqlmock.AnyArg(), "analyst", "done").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.MarkResolved(context.Background(), "missing", "analyst", "done")
	if !domain.IsKind(err, domain.ErrAlertNotFound) {
		t.Fatalf("expected alert not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
