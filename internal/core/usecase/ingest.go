package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dealtrace/dealtrace/internal/core/domain"
	"github.com/dealtrace/dealtrace/internal/core/ports"
)

// IngestFilingUseCase registers filings and queues them for asynchronous
// processing. Registration is idempotent on (CIK, accession number).
type IngestFilingUseCase struct {
	filings ports.FilingRepository
	source  ports.FilingSource
	queue   ports.MessageQueue
	logger  *slog.Logger
}

func NewIngestFilingUseCase(
	filings ports.FilingRepository,
	source ports.FilingSource,
	queue ports.MessageQueue,
	logger *slog.Logger,
) *IngestFilingUseCase {
	return &IngestFilingUseCase{
		filings: filings,
		source:  source,
		queue:   queue,
		logger:  logger,
	}
}

// Ingest registers a filing whose metadata the caller already has.
func (uc *IngestFilingUseCase) Ingest(ctx context.Context, filing *domain.Filing) (*domain.Filing, error) {
	if filing.CIK == "" || filing.AccessionNumber == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ingest filing",
			errors.New("cik and accession number are required"))
	}

	if existing, err := uc.filings.GetByAccession(ctx, filing.CIK, filing.AccessionNumber); err == nil {
		uc.logger.Info("filing already ingested", "filing_id", existing.ID, "accession", filing.AccessionNumber)
		return existing, nil
	} else if !domain.IsKind(err, domain.ErrFilingNotFound) {
		return nil, fmt.Errorf("check existing filing: %w", err)
	}

	now := time.Now().UTC()
	if filing.ID == "" {
		filing.ID = uuid.NewString()
	}
	filing.Status = domain.FilingPending
	filing.CreatedAt = now
	filing.UpdatedAt = now

	if err := uc.filings.Create(ctx, filing); err != nil {
		return nil, fmt.Errorf("create filing: %w", err)
	}
	if err := uc.queue.PublishFilingIngested(ctx, filing.ID); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}

	uc.logger.Info("filing ingested", "filing_id", filing.ID, "form_type", filing.FormType)
	return filing, nil
}

// IngestByAccession pulls the filing index from the registry and registers
// the filing together with its exhibit entries. Document bodies are
// fetched later by the processing worker.
func (uc *IngestFilingUseCase) IngestByAccession(ctx context.Context, cik, accessionNumber string) (*domain.Filing, error) {
	if cik == "" || accessionNumber == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ingest filing",
			errors.New("cik and accession number are required"))
	}

	if existing, err := uc.filings.GetByAccession(ctx, cik, accessionNumber); err == nil {
		uc.logger.Info("filing already ingested", "filing_id", existing.ID, "accession", accessionNumber)
		return existing, nil
	} else if !domain.IsKind(err, domain.ErrFilingNotFound) {
		return nil, fmt.Errorf("check existing filing: %w", err)
	}

	filing, exhibits, err := uc.source.FetchFilingIndex(ctx, cik, accessionNumber)
	if err != nil {
		return nil, fmt.Errorf("fetch filing index: %w", err)
	}

	if err := uc.filings.Create(ctx, filing); err != nil {
		return nil, fmt.Errorf("create filing: %w", err)
	}
	for i := range exhibits {
		if err := uc.filings.CreateExhibit(ctx, &exhibits[i]); err != nil {
			return nil, fmt.Errorf("create exhibit: %w", err)
		}
	}

	if err := uc.queue.PublishFilingIngested(ctx, filing.ID); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}

	uc.logger.Info("filing ingested from registry",
		"filing_id", filing.ID,
		"form_type", filing.FormType,
		"exhibits", len(exhibits),
	)
	return filing, nil
}
