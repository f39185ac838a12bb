package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dealtrace/dealtrace/internal/core/domain"
)

type DealRepository struct {
	db *sql.DB
}

func NewDealRepository(db *sql.DB) *DealRepository {
	return &DealRepository{db: db}
}

const dealColumns = `id, state,
	acquirer_cik, acquirer_name_raw, acquirer_name_display, acquirer_name_normalized, acquirer_confidence,
	target_cik, target_name_raw, target_name_display, target_name_normalized, target_confidence,
	deal_key, agreement_date, announcement_date, expected_close_date, deal_value_usd,
	sponsor_backed, sponsor_name_raw, sponsor_name_normalized, sponsor_confidence, unresolved_sponsor,
	market_tag, advisory_fee_usd, underwriting_fee_usd, merged_into, created_at, updated_at`

func (r *DealRepository) Create(ctx context.Context, deal *domain.Deal) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO deals (
	`+dealColumns+`
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28)
`, dealArgs(deal)...)
	if err != nil {
		return fmt.Errorf("insert deal: %w", err)
	}
	return nil
}

func (r *DealRepository) GetByID(ctx context.Context, id string) (*domain.Deal, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+dealColumns+`
FROM deals
WHERE id = $1
`, id)
	return scanDealRow(row, id)
}

func (r *DealRepository) GetByDealKey(ctx context.Context, dealKey string) (*domain.Deal, error) {
	// Merged deals keep their historical key; lookups must only see live ones.
	row := r.db.QueryRowContext(ctx, `
SELECT `+dealColumns+`
FROM deals
WHERE deal_key = $1 AND merged_into = ''
`, dealKey)
	return scanDealRow(row, dealKey)
}

func (r *DealRepository) List(ctx context.Context, filter domain.DealFilter) ([]domain.Deal, error) {
	query := `
SELECT ` + dealColumns + `
FROM deals
WHERE 1=1
`
	args := make([]any, 0, 5)
	if filter.State != "" {
		args = append(args, filter.State)
		query += fmt.Sprintf("AND state = $%d\n", len(args))
	}
	if filter.MarketTag != "" {
		args = append(args, filter.MarketTag)
		query += fmt.Sprintf("AND market_tag = $%d\n", len(args))
	}
	if filter.SponsorBacked != nil {
		args = append(args, *filter.SponsorBacked)
		query += fmt.Sprintf("AND sponsor_backed = $%d\n", len(args))
	}
	if filter.Query != "" {
		args = append(args, "%"+filter.Query+"%")
		n := len(args)
		query += fmt.Sprintf("AND (acquirer_name_display ILIKE $%d OR target_name_display ILIKE $%d)\n", n, n)
	}
	query += "ORDER BY updated_at DESC, id"
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
		return nil, fmt.Errorf("list deals: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Deal, 0)
	for rows.Next() {
		deal, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		out = append(out, *deal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deals: %w", err)
	}
	return out, nil
}

func (r *DealRepository) Update(ctx context.Context, deal *domain.Deal) error {
	deal.UpdatedAt = time.Now().UTC()
	args := dealArgs(deal)
	result, err := r.db.ExecContext(ctx, `
UPDATE deals
SET state = $2,
	acquirer_cik = $3, acquirer_name_raw = $4, acquirer_name_display = $5, acquirer_name_normalized = $6, acquirer_confidence = $7,
	target_cik = $8, target_name_raw = $9, target_name_display = $10, target_name_normalized = $11, target_confidence = $12,
	deal_key = $13, agreement_date = $14, announcement_date = $15, expected_close_date = $16, deal_value_usd = $17,
	sponsor_backed = $18, sponsor_name_raw = $19, sponsor_name_normalized = $20, sponsor_confidence = $21, unresolved_sponsor = $22,
	market_tag = $23, advisory_fee_usd = $24, underwriting_fee_usd = $25, merged_into = $26, created_at = $27, updated_at = $28
WHERE id = $1
`, args...)
	if err != nil {
		return fmt.Errorf("update deal: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update deal rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", domain.ErrDealNotFound, deal.ID)
	}
	return nil
}

func (r *DealRepository) UpdateState(ctx context.Context, id string, state domain.DealState) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE deals
SET state = $2, updated_at = $3
WHERE id = $1
`, id, string(state), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update deal state: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update deal state rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", domain.ErrDealNotFound, id)
	}
	return nil
}

func dealArgs(deal *domain.Deal) []any {
	var sponsorBacked any
	if deal.SponsorBacked != nil {
		sponsorBacked = *deal.SponsorBacked
	}
	return []any{
		deal.ID, string(deal.State),
		deal.Acquirer.CIK, deal.Acquirer.NameRaw, deal.Acquirer.NameDisplay, deal.Acquirer.Normalized, deal.Acquirer.Confidence,
		deal.Target.CIK, deal.Target.NameRaw, deal.Target.NameDisplay, deal.Target.Normalized, deal.Target.Confidence,
		deal.DealKey, deal.AgreementDate, deal.AnnouncementDate, deal.ExpectedCloseDate, deal.DealValueUSD,
		sponsorBacked, deal.SponsorNameRaw, deal.SponsorNameNormalized, deal.SponsorConfidence, deal.UnresolvedSponsor,
		deal.MarketTag, deal.AdvisoryFeeUSD, deal.UnderwritingFeeUSD, deal.MergedInto, deal.CreatedAt, deal.UpdatedAt,
	}
}

func scanDealRow(row *sql.Row, ref string) (*domain.Deal, error) {
	deal, err := scanDeal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrDealNotFound, ref)
		}
		return nil, fmt.Errorf("get deal: %w", err)
	}
	return deal, nil
}

type dealScanner interface {
	Scan(dest ...any) error
}

func scanDeal(row dealScanner) (*domain.Deal, error) {
	var deal domain.Deal
	var state string
	var agreementDate, announcementDate, expectedClose sql.NullTime
	var sponsorBacked sql.NullBool

	err := row.Scan(
		&deal.ID, &state,
		&deal.Acquirer.CIK, &deal.Acquirer.NameRaw, &deal.Acquirer.NameDisplay, &deal.Acquirer.Normalized, &deal.Acquirer.Confidence,
		&deal.Target.CIK, &deal.Target.NameRaw, &deal.Target.NameDisplay, &deal.Target.Normalized, &deal.Target.Confidence,
		&deal.DealKey, &agreementDate, &announcementDate, &expectedClose, &deal.DealValueUSD,
		&sponsorBacked, &deal.SponsorNameRaw, &deal.SponsorNameNormalized, &deal.SponsorConfidence, &deal.UnresolvedSponsor,
		&deal.MarketTag, &deal.AdvisoryFeeUSD, &deal.UnderwritingFeeUSD, &deal.MergedInto, &deal.CreatedAt, &deal.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	deal.State = domain.DealState(state)
	if agreementDate.Valid {
		deal.AgreementDate = &agreementDate.Time
	}
	if announcementDate.Valid {
		deal.AnnouncementDate = &announcementDate.Time
	}
	if expectedClose.Valid {
		deal.ExpectedCloseDate = &expectedClose.Time
	}
	if sponsorBacked.Valid {
		deal.SponsorBacked = &sponsorBacked.Bool
	}
	return &deal, nil
}
