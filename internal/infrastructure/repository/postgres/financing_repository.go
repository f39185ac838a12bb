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

type FinancingRepository struct {
	db *sql.DB
}

func NewFinancingRepository(db *sql.DB) *FinancingRepository {
	return &FinancingRepository{db: db}
}

const eventColumns = `id, deal_id, instrument_family, instrument_type, market_tag,
	amount_usd, amount_raw, currency, maturity_year, interest_rate, purpose,
	reconciliation_confidence, reconciliation_explanation, source_exhibit_id,
	source_fact_ids, estimated_fee_usd, created_at, updated_at`

func (r *FinancingRepository) Create(ctx context.Context, event *domain.FinancingEvent) error {
	factIDsJSON, err := json.Marshal(event.SourceFactIDs)
	if err != nil {
		return fmt.Errorf("marshal source fact ids: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin financing tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
INSERT INTO financing_events (
	`+eventColumns+`
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
`,
		event.ID, event.DealID, event.InstrumentFamily, event.InstrumentType, event.MarketTag,
		event.AmountUSD, event.AmountRaw, event.Currency, event.MaturityYear, event.InterestRate,
		event.Purpose, event.ReconciliationConfidence, event.ReconciliationExplanation,
		event.SourceExhibitID, factIDsJSON, event.EstimatedFeeUSD, event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert financing event: %w", err)
	}

	if err := insertParticipants(ctx, tx, event.ID, event.Participants); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit financing tx: %w", err)
	}
	return nil
}

func (r *FinancingRepository) Update(ctx context.Context, event *domain.FinancingEvent) error {
	factIDsJSON, err := json.Marshal(event.SourceFactIDs)
	if err != nil {
		return fmt.Errorf("marshal source fact ids: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
UPDATE financing_events
SET deal_id = $2, instrument_family = $3, instrument_type = $4, market_tag = $5,
	amount_usd = $6, amount_raw = $7, currency = $8, maturity_year = $9, interest_rate = $10,
	purpose = $11, reconciliation_confidence = $12, reconciliation_explanation = $13,
	source_fact_ids = $14, estimated_fee_usd = $15, updated_at = $16
WHERE id = $1
`,
		event.ID, event.DealID, event.InstrumentFamily, event.InstrumentType, event.MarketTag,
		event.AmountUSD, event.AmountRaw, event.Currency, event.MaturityYear, event.InterestRate,
		event.Purpose, event.ReconciliationConfidence, event.ReconciliationExplanation,
		factIDsJSON, event.EstimatedFeeUSD, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update financing event: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update financing event rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("financing event not found: %s: %w", event.ID, domain.ErrInvalidInput)
	}
	return nil
}

func (r *FinancingRepository) GetByID(ctx context.Context, id string) (*domain.FinancingEvent, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+eventColumns+`
FROM financing_events
WHERE id = $1
`, id)

	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("financing event not found: %s: %w", id, domain.ErrInvalidInput)
		}
		return nil, fmt.Errorf("get financing event: %w", err)
	}

	participants, err := r.listParticipants(ctx, id)
	if err != nil {
		return nil, err
	}
	event.Participants = participants
	return event, nil
}

func (r *FinancingRepository) ListByDeal(ctx context.Context, dealID string) ([]domain.FinancingEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+eventColumns+`
FROM financing_events
WHERE deal_id = $1
ORDER BY created_at, id
`, dealID)
	if err != nil {
		return nil, fmt.Errorf("list financing events: %w", err)
	}
	defer rows.Close()

	out := make([]domain.FinancingEvent, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan financing event: %w", err)
		}
		out = append(out, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate financing events: %w", err)
	}

	for i := range out {
		participants, err := r.listParticipants(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Participants = participants
	}
	return out, nil
}

func (r *FinancingRepository) ReplaceParticipants(ctx context.Context, eventID string, participants []domain.FinancingParticipant) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin participants tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM financing_participants WHERE financing_event_id = $1`, eventID); err != nil {
		return fmt.Errorf("delete participants: %w", err)
	}
	if err := insertParticipants(ctx, tx, eventID, participants); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit participants tx: %w", err)
	}
	return nil
}

func insertParticipants(ctx context.Context, tx *sql.Tx, eventID string, participants []domain.FinancingParticipant) error {
	for _, p := range participants {
		createdAt := p.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO financing_participants (
	id, financing_event_id, bank_name_raw, bank_name_normalized, role, role_normalized,
	evidence_snippet, evidence_source, role_weight, estimated_fee_usd, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
			p.ID, eventID, p.BankNameRaw, p.BankNameNormalized, p.Role, p.RoleNormalized,
			p.EvidenceSnippet, p.EvidenceSource, p.RoleWeight, p.EstimatedFeeUSD, createdAt,
		)
		if err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}
	return nil
}

func (r *FinancingRepository) listParticipants(ctx context.Context, eventID string) ([]domain.FinancingParticipant, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, financing_event_id, bank_name_raw, bank_name_normalized, role, role_normalized,
	evidence_snippet, evidence_source, role_weight, estimated_fee_usd, created_at
FROM financing_participants
WHERE financing_event_id = $1
ORDER BY created_at, id
`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	out := make([]domain.FinancingParticipant, 0)
	for rows.Next() {
		var p domain.FinancingParticipant
		err := rows.Scan(
			&p.ID, &p.FinancingEventID, &p.BankNameRaw, &p.BankNameNormalized, &p.Role,
			&p.RoleNormalized, &p.EvidenceSnippet, &p.EvidenceSource, &p.RoleWeight,
			&p.EstimatedFeeUSD, &p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return out, nil
}

type eventScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row eventScanner) (*domain.FinancingEvent, error) {
	var event domain.FinancingEvent
	var factIDsRaw []byte

	err := row.Scan(
		&event.ID, &event.DealID, &event.InstrumentFamily, &event.InstrumentType, &event.MarketTag,
		&event.AmountUSD, &event.AmountRaw, &event.Currency, &event.MaturityYear, &event.InterestRate,
		&event.Purpose, &event.ReconciliationConfidence, &event.ReconciliationExplanation,
		&event.SourceExhibitID, &factIDsRaw, &event.EstimatedFeeUSD, &event.CreatedAt, &event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(factIDsRaw, &event.SourceFactIDs); err != nil {
		return nil, fmt.Errorf("unmarshal source fact ids: %w", err)
	}
	return &event, nil
}
