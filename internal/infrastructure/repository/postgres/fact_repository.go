package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dealtrace/dealtrace/internal/core/domain"
)

type FactRepository struct {
	db *sql.DB
}

func NewFactRepository(db *sql.DB) *FactRepository {
	return &FactRepository{db: db}
}

func (r *FactRepository) Create(ctx context.Context, fact *domain.AtomicFact) error {
	evidenceJSON, err := json.Marshal(fact.Evidence)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}
	payloadJSON, err := json.Marshal(fact.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var enteredAt any
	if !fact.EnteredAt.IsZero() {
		enteredAt = fact.EnteredAt
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO atomic_facts (
	id, kind, filing_id, exhibit_id, deal_id, evidence, extraction_method,
	extraction_pattern, confidence, payload, entered_by, entered_at, note, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`,
		fact.ID, string(fact.Kind), fact.FilingID, fact.ExhibitID, fact.DealID, evidenceJSON,
		fact.ExtractionMethod, fact.ExtractionPattern, fact.Confidence, payloadJSON,
		fact.EnteredBy, enteredAt, fact.Note, fact.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert fact: %w", err)
	}
	return nil
}

const factColumns = `id, kind, filing_id, exhibit_id, deal_id, evidence, extraction_method,
	extraction_pattern, confidence, payload, entered_by, entered_at, note, created_at`

func (r *FactRepository) GetByID(ctx context.Context, id string) (*domain.AtomicFact, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+factColumns+`
FROM atomic_facts
WHERE id = $1
`, id)

	fact, err := scanFact(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("fact not found: %s: %w", id, domain.ErrInvalidInput)
		}
		return nil, fmt.Errorf("get fact: %w", err)
	}
	return fact, nil
}

func (r *FactRepository) List(ctx context.Context, filter domain.FactFilter) ([]domain.AtomicFact, error) {
	query := `
SELECT ` + factColumns + `
FROM atomic_facts
WHERE 1=1
`
	args := make([]any, 0, 6)
	if filter.FilingID != "" {
		args = append(args, filter.FilingID)
		query += fmt.Sprintf("AND filing_id = $%d\n", len(args))
	}
	if filter.ExhibitID != "" {
		args = append(args, filter.ExhibitID)
		query += fmt.Sprintf("AND exhibit_id = $%d\n", len(args))
	}
	if filter.DealID != "" {
		args = append(args, filter.DealID)
		query += fmt.Sprintf("AND deal_id = $%d\n", len(args))
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		query += fmt.Sprintf("AND kind = $%d\n", len(args))
	}
	if filter.Method != "" {
		args = append(args, filter.Method)
		query += fmt.Sprintf("AND extraction_method = $%d\n", len(args))
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

	return r.queryFacts(ctx, query, args...)
}

func (r *FactRepository) ListUnattached(ctx context.Context, limit int) ([]domain.AtomicFact, error) {
	query := `
SELECT ` + factColumns + `
FROM atomic_facts
WHERE deal_id = ''
ORDER BY created_at DESC, id
`
	if limit > 0 {
		return r.queryFacts(ctx, query+"LIMIT $1", limit)
	}
	return r.queryFacts(ctx, query)
}

func (r *FactRepository) AttachToDeal(ctx context.Context, factID, dealID string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE atomic_facts
SET deal_id = $2
WHERE id = $1
`, factID, dealID)
	if err != nil {
		return fmt.Errorf("attach fact: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach fact rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("fact not found: %s: %w", factID, domain.ErrInvalidInput)
	}
	return nil
}

func (r *FactRepository) ReassignDeal(ctx context.Context, fromDealID, toDealID string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE atomic_facts
SET deal_id = $2
WHERE deal_id = $1
`, fromDealID, toDealID)
	if err != nil {
		return fmt.Errorf("reassign facts: %w", err)
	}
	return nil
}

func (r *FactRepository) queryFacts(ctx context.Context, query string, args ...any) ([]domain.AtomicFact, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	defer rows.Close()

	out := make([]domain.AtomicFact, 0)
	for rows.Next() {
		fact, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		out = append(out, *fact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facts: %w", err)
	}
	return out, nil
}

type factScanner interface {
	Scan(dest ...any) error
}

func scanFact(row factScanner) (*domain.AtomicFact, error) {
	var fact domain.AtomicFact
	var kind string
	var evidenceRaw, payloadRaw []byte
	var enteredAt sql.NullTime

	err := row.Scan(
		&fact.ID, &kind, &fact.FilingID, &fact.ExhibitID, &fact.DealID, &evidenceRaw,
		&fact.ExtractionMethod, &fact.ExtractionPattern, &fact.Confidence, &payloadRaw,
		&fact.EnteredBy, &enteredAt, &fact.Note, &fact.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(evidenceRaw, &fact.Evidence); err != nil {
		return nil, fmt.Errorf("unmarshal evidence: %w", err)
	}
	if err := json.Unmarshal(payloadRaw, &fact.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	fact.Kind = domain.FactKind(kind)
	if enteredAt.Valid {
		fact.EnteredAt = enteredAt.Time
	}
	return &fact, nil
}
