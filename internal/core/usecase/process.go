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
	"github.com/dealtrace/dealtrace/internal/extract"
)

// ProcessFilingUseCase runs the per-filing half of the pipeline: fetch
// document bodies, derive visual text, extract atomic facts and raise
// extraction alerts. Clustering and everything downstream runs in the
// scheduled pipeline pass, not here.
type ProcessFilingUseCase struct {
	filings   ports.FilingRepository
	facts     ports.FactRepository
	alerts    ports.AlertRepository
	source    ports.FilingSource
	pdf       ports.TextExtractor
	extractor *extract.FactExtractor
	logger    *slog.Logger
	timeout   time.Duration
}

func NewProcessFilingUseCase(
	filings ports.FilingRepository,
	facts ports.FactRepository,
	alerts ports.AlertRepository,
	source ports.FilingSource,
	pdf ports.TextExtractor,
	extractor *extract.FactExtractor,
	logger *slog.Logger,
	timeout time.Duration,
) *ProcessFilingUseCase {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &ProcessFilingUseCase{
		filings:   filings,
		facts:     facts,
		alerts:    alerts,
		source:    source,
		pdf:       pdf,
		extractor: extractor,
		logger:    logger,
		timeout:   timeout,
	}
}

func (uc *ProcessFilingUseCase) ProcessByID(ctx context.Context, filingID string) error {
	if err := uc.filings.UpdateStatus(ctx, filingID, domain.FilingProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	// The per-filing budget bounds pathological documents; hitting it is
	// an alert, not a silent retry loop.
	procCtx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	err := uc.processFiling(procCtx, filingID)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		uc.raiseTimeoutAlert(ctx, filingID)
		if failErr := uc.filings.UpdateStatus(ctx, filingID, domain.FilingFailed, "processing timed out"); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}
	if err != nil {
		if failErr := uc.filings.UpdateStatus(ctx, filingID, domain.FilingFailed, err.Error()); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.filings.UpdateStatus(ctx, filingID, domain.FilingProcessed, ""); err != nil {
		return fmt.Errorf("set status=processed: %w", err)
	}
	return nil
}

func (uc *ProcessFilingUseCase) processFiling(ctx context.Context, filingID string) error {
	filing, err := uc.filings.GetByID(ctx, filingID)
	if err != nil {
		return fmt.Errorf("fetch filing by id: %w", err)
	}

	if err := uc.ensureFilingText(ctx, filing); err != nil {
		return err
	}

	exhibits, err := uc.filings.ListExhibits(ctx, filingID)
	if err != nil {
		return fmt.Errorf("list exhibits: %w", err)
	}
	for i := range exhibits {
		if err := uc.ensureExhibitText(ctx, &exhibits[i]); err != nil {
			return err
		}
	}

	result := uc.extractor.ExtractFromFiling(filing, exhibits)
	for i := range result.Facts {
		fact := &result.Facts[i]
		if err := uc.facts.Create(ctx, fact); err != nil {
			return fmt.Errorf("create fact: %w", err)
		}
	}
	for i := range result.Alerts {
		if err := uc.createAlert(ctx, &result.Alerts[i]); err != nil {
			return err
		}
	}

	uc.logger.Info("filing processed",
		"filing_id", filingID,
		"facts", len(result.Facts),
		"alerts", len(result.Alerts),
	)
	return nil
}

// ensureFilingText fetches the primary document and derives visual text,
// both cached on the filing record across retries.
func (uc *ProcessFilingUseCase) ensureFilingText(ctx context.Context, filing *domain.Filing) error {
	if filing.VisualText != "" {
		return nil
	}

	raw := filing.RawHTML
	if raw == "" && filing.FilingURL != "" {
		body, err := uc.source.FetchDocument(ctx, filing.FilingURL)
		if err != nil {
			return fmt.Errorf("fetch primary document: %w", err)
		}
		raw = string(body)
	}
	if raw == "" {
		return nil
	}

	text, err := extract.VisualText(raw)
	if err != nil {
		return fmt.Errorf("derive visual text: %w", err)
	}
	filing.RawHTML = raw
	filing.VisualText = text
	if err := uc.filings.SaveVisualText(ctx, filing.ID, text); err != nil {
		return fmt.Errorf("save visual text: %w", err)
	}
	return nil
}

func (uc *ProcessFilingUseCase) ensureExhibitText(ctx context.Context, exhibit *domain.Exhibit) error {
	if exhibit.VisualText != "" {
		return nil
	}

	if exhibit.RawContent == "" && exhibit.URL != "" {
		body, err := uc.source.FetchDocument(ctx, exhibit.URL)
		if err != nil {
			uc.logger.Warn("exhibit fetch failed", "exhibit_id", exhibit.ID, "error", err)
			exhibit.Quality = domain.QualityFailed
			return uc.finishExhibit(ctx, exhibit)
		}
		exhibit.RawContent = string(body)
	}
	if exhibit.RawContent == "" {
		return nil
	}

	if exhibit.IsPDF {
		text, quality, err := uc.pdf.Extract(ctx, exhibit)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			uc.logger.Warn("pdf extraction failed", "exhibit_id", exhibit.ID, "error", err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		exhibit.VisualText = extract.Normalize(text)
		exhibit.Quality = quality
	} else {
		text, err := extract.VisualText(exhibit.RawContent)
		if err != nil {
			exhibit.Quality = domain.QualityFailed
		} else {
			exhibit.VisualText = text
			exhibit.Quality = domain.QualityGood
		}
	}

	return uc.finishExhibit(ctx, exhibit)
}

// finishExhibit persists the exhibit outcome and raises the manual-review
// alert when a material exhibit yielded unusable text.
func (uc *ProcessFilingUseCase) finishExhibit(ctx context.Context, exhibit *domain.Exhibit) error {
	if err := uc.filings.UpdateExhibit(ctx, exhibit); err != nil {
		return fmt.Errorf("update exhibit: %w", err)
	}

	if exhibit.IsMaterial && exhibit.Quality != domain.QualityGood {
		alert := domain.ProcessingAlert{
			Kind:        domain.AlertUnparsedMaterialExhibit,
			FilingID:    exhibit.FilingID,
			ExhibitID:   exhibit.ID,
			Title:       fmt.Sprintf("Material exhibit requires manual review: %s", exhibit.ExhibitType),
			Description: fmt.Sprintf("Extraction quality: %s", exhibit.Quality),
			FieldsNeeded: []string{
				"facility_type",
				"amount",
				"participants",
				"roles",
				"purpose",
			},
		}
		if err := uc.createAlert(ctx, &alert); err != nil {
			return err
		}
	}
	return nil
}

func (uc *ProcessFilingUseCase) raiseTimeoutAlert(ctx context.Context, filingID string) {
	alert := domain.ProcessingAlert{
		Kind:        domain.AlertDocumentTimeout,
		FilingID:    filingID,
		Title:       "Filing processing timed out",
		Description: fmt.Sprintf("Processing exceeded the %s budget.", uc.timeout),
	}
	if err := uc.createAlert(ctx, &alert); err != nil {
		uc.logger.Error("failed to raise timeout alert", "filing_id", filingID, "error", err)
	}
}

func (uc *ProcessFilingUseCase) createAlert(ctx context.Context, alert *domain.ProcessingAlert) error {
	now := time.Now().UTC()
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = now
	}
	alert.UpdatedAt = now
	if err := uc.alerts.Create(ctx, alert); err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}
