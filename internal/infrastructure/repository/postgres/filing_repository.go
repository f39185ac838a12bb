package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dealtrace/dealtrace/internal/core/domain"
)

type FilingRepository struct {
	db *sql.DB
}

func NewFilingRepository(db *sql.DB) *FilingRepository {
	return &FilingRepository{db: db}
}

func (r *FilingRepository) Create(ctx context.Context, filing *domain.Filing) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO filings (
	id, accession_number, cik, form_type, filing_date, company_name, filing_url,
	raw_html, visual_text, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
		filing.ID, filing.AccessionNumber, filing.CIK, string(filing.FormType), filing.FilingDate,
		filing.CompanyName, filing.FilingURL, filing.RawHTML, filing.VisualText,
		string(filing.Status), filing.Error, filing.CreatedAt, filing.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert filing: %w", err)
	}
	return nil
}

const filingColumns = `id, accession_number, cik, form_type, filing_date, company_name, filing_url,
	raw_html, visual_text, status, error_message, created_at, updated_at`

func (r *FilingRepository) GetByID(ctx context.Context, id string) (*domain.Filing, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+filingColumns+`
FROM filings
WHERE id = $1
`, id)
	return scanFiling(row, id)
}

func (r *FilingRepository) GetByAccession(ctx context.Context, cik, accessionNumber string) (*domain.Filing, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+filingColumns+`
FROM filings
WHERE cik = $1 AND accession_number = $2
`, cik, accessionNumber)
	return scanFiling(row, cik+"/"+accessionNumber)
}

func scanFiling(row *sql.Row, ref string) (*domain.Filing, error) {
	var filing domain.Filing
	var formType, status string
	err := row.Scan(
		&filing.ID, &filing.AccessionNumber, &filing.CIK, &formType, &filing.FilingDate,
		&filing.CompanyName, &filing.FilingURL, &filing.RawHTML, &filing.VisualText,
		&status, &filing.Error, &filing.CreatedAt, &filing.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrFilingNotFound, ref)
		}
		return nil, fmt.Errorf("scan filing: %w", err)
	}
	filing.FormType = domain.FormType(formType)
	filing.Status = domain.FilingStatus(status)
	return &filing, nil
}

func (r *FilingRepository) UpdateStatus(ctx context.Context, id string, status domain.FilingStatus, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE filings
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update filing status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update filing status rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", domain.ErrFilingNotFound, id)
	}
	return nil
}

func (r *FilingRepository) SaveVisualText(ctx context.Context, id, visualText string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE filings
SET visual_text = $2, updated_at = $3
WHERE id = $1
`, id, visualText, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save visual text: %w", err)
	}
	return nil
}

func (r *FilingRepository) CreateExhibit(ctx context.Context, exhibit *domain.Exhibit) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO exhibits (
	id, filing_id, exhibit_type, description, filename, url, is_pdf, is_material,
	extraction_quality, raw_content, visual_text, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
		exhibit.ID, exhibit.FilingID, exhibit.ExhibitType, exhibit.Description, exhibit.Filename,
		exhibit.URL, exhibit.IsPDF, exhibit.IsMaterial, string(exhibit.Quality),
		exhibit.RawContent, exhibit.VisualText, exhibit.CreatedAt, exhibit.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert exhibit: %w", err)
	}
	return nil
}

func (r *FilingRepository) UpdateExhibit(ctx context.Context, exhibit *domain.Exhibit) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE exhibits
SET extraction_quality = $2, raw_content = $3, visual_text = $4, is_material = $5, updated_at = $6
WHERE id = $1
`, exhibit.ID, string(exhibit.Quality), exhibit.RawContent, exhibit.VisualText, exhibit.IsMaterial, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update exhibit: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update exhibit rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("exhibit not found: %s: %w", exhibit.ID, domain.ErrInvalidInput)
	}
	return nil
}

func (r *FilingRepository) ListExhibits(ctx context.Context, filingID string) ([]domain.Exhibit, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, filing_id, exhibit_type, description, filename, url, is_pdf, is_material,
	extraction_quality, raw_content, visual_text, created_at, updated_at
FROM exhibits
WHERE filing_id = $1
ORDER BY exhibit_type, id
`, filingID)
	if err != nil {
		return nil, fmt.Errorf("list exhibits: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Exhibit, 0)
	for rows.Next() {
		var ex domain.Exhibit
		var quality string
		err := rows.Scan(
			&ex.ID, &ex.FilingID, &ex.ExhibitType, &ex.Description, &ex.Filename, &ex.URL,
			&ex.IsPDF, &ex.IsMaterial, &quality, &ex.RawContent, &ex.VisualText,
			&ex.CreatedAt, &ex.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan exhibit: %w", err)
		}
		ex.Quality = domain.ExtractionQuality(quality)
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exhibits: %w", err)
	}
	return out, nil
}
