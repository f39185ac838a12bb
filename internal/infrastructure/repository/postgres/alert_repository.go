package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dealtrace/dealtrace/internal/core/domain"
)

type AlertRepository struct {
	db *sql.DB
}

func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

const alertColumns = `id, kind, filing_id, exhibit_id, deal_id, title, description,
	fields_needed, source_preview, resolved, resolved_at, resolved_by, resolution_notes,
	created_at, updated_at`

func (r *AlertRepository) Create(ctx context.Context, alert *domain.ProcessingAlert) error {
	fieldsJSON, err := json.Marshal(alert.FieldsNeeded)
	if err != nil {
		return fmt.Errorf("marshal fields needed: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO processing_alerts (
	`+alertColumns+`
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`,
		alert.ID, string(alert.Kind), alert.FilingID, alert.ExhibitID, alert.DealID,
		alert.Title, alert.Description, fieldsJSON, alert.SourcePreview, alert.Resolved,
		alert.ResolvedAt, alert.ResolvedBy, alert.ResolutionNotes, alert.CreatedAt, alert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (r *AlertRepository) GetByID(ctx context.Context, id string) (*domain.ProcessingAlert, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+alertColumns+`
FROM processing_alerts
WHERE id = $1
`, id)

	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrAlertNotFound, id)
		}
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return alert, nil
}

func (r *AlertRepository) List(ctx context.Context, filter domain.AlertFilter) ([]domain.ProcessingAlert, error) {
	query := `
SELECT ` + alertColumns + `
FROM processing_alerts
WHERE 1=1
`
	args := make([]any, 0, 5)
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		query += fmt.Sprintf("AND kind = $%d\n", len(args))
	}
	if filter.Resolved != nil {
		args = append(args, *filter.Resolved)
		query += fmt.Sprintf("AND resolved = $%d\n", len(args))
	}
	if filter.FilingID != "" {
		args = append(args, filter.FilingID)
		query += fmt.Sprintf("AND filing_id = $%d\n", len(args))
	}
	if filter.DealID != "" {
		args = append(args, filter.DealID)
		query += fmt.Sprintf("AND deal_id = $%d\n", len(args))
	}
	query += "ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf("\nLIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf("\nOFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ProcessingAlert, 0)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, *alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return out, nil
}

func (r *AlertRepository) MarkResolved(ctx context.Context, id, resolvedBy, notes string) error {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
UPDATE processing_alerts
SET resolved = TRUE, resolved_at = $2, resolved_by = $3, resolution_notes = $4, updated_at = $2
WHERE id = $1
`, id, now, resolvedBy, notes)
	if err != nil {
		return fmt.Errorf("resolve alert: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve alert rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", domain.ErrAlertNotFound, id)
	}
	return nil
}

type alertScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row alertScanner) (*domain.ProcessingAlert, error) {
	var alert domain.ProcessingAlert
	var kind string
	var fieldsRaw []byte
	var resolvedAt sql.NullTime

	err := row.Scan(
		&alert.ID, &kind, &alert.FilingID, &alert.ExhibitID, &alert.DealID,
		&alert.Title, &alert.Description, &fieldsRaw, &alert.SourcePreview, &alert.Resolved,
		&resolvedAt, &alert.ResolvedBy, &alert.ResolutionNotes, &alert.CreatedAt, &alert.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fieldsRaw, &alert.FieldsNeeded); err != nil {
		return nil, fmt.Errorf("unmarshal fields needed: %w", err)
	}
	alert.Kind = domain.AlertKind(kind)
	if resolvedAt.Valid {
		alert.ResolvedAt = &resolvedAt.Time
	}
	return &alert, nil
}
