package ports

import (
	"context"

	"github.com/dealtrace/dealtrace/internal/core/domain"
)

// FilingRepository persists filings and their exhibits.
type FilingRepository interface {
	Create(ctx context.Context, filing *domain.Filing) error
	GetByID(ctx context.Context, id string) (*domain.Filing, error)
	GetByAccession(ctx context.Context, cik, accessionNumber string) (*domain.Filing, error)
	UpdateStatus(ctx context.Context, id string, status domain.FilingStatus, errMessage string) error
	SaveVisualText(ctx context.Context, id, visualText string) error
	CreateExhibit(ctx context.Context, exhibit *domain.Exhibit) error
	UpdateExhibit(ctx context.Context, exhibit *domain.Exhibit) error
	ListExhibits(ctx context.Context, filingID string) ([]domain.Exhibit, error)
}

// FactRepository persists atomic facts. Facts are append-only; attachment
// to a deal is the only mutation.
type FactRepository interface {
	Create(ctx context.Context, fact *domain.AtomicFact) error
	GetByID(ctx context.Context, id string) (*domain.AtomicFact, error)
	List(ctx context.Context, filter domain.FactFilter) ([]domain.AtomicFact, error)
	ListUnattached(ctx context.Context, limit int) ([]domain.AtomicFact, error)
	AttachToDeal(ctx context.Context, factID, dealID string) error
	ReassignDeal(ctx context.Context, fromDealID, toDealID string) error
}

// DealRepository persists clustered deals.
type DealRepository interface {
	Create(ctx context.Context, deal *domain.Deal) error
	GetByID(ctx context.Context, id string) (*domain.Deal, error)
	GetByDealKey(ctx context.Context, dealKey string) (*domain.Deal, error)
	List(ctx context.Context, filter domain.DealFilter) ([]domain.Deal, error)
	Update(ctx context.Context, deal *domain.Deal) error
	UpdateState(ctx context.Context, id string, state domain.DealState) error
}

// FinancingRepository persists financing events and their participants.
type FinancingRepository interface {
	Create(ctx context.Context, event *domain.FinancingEvent) error
	Update(ctx context.Context, event *domain.FinancingEvent) error
	GetByID(ctx context.Context, id string) (*domain.FinancingEvent, error)
	ListByDeal(ctx context.Context, dealID string) ([]domain.FinancingEvent, error)
	ReplaceParticipants(ctx context.Context, eventID string, participants []domain.FinancingParticipant) error
}

// AlertRepository persists processing alerts.
type AlertRepository interface {
	Create(ctx context.Context, alert *domain.ProcessingAlert) error
	GetByID(ctx context.Context, id string) (*domain.ProcessingAlert, error)
	List(ctx context.Context, filter domain.AlertFilter) ([]domain.ProcessingAlert, error)
	MarkResolved(ctx context.Context, id, resolvedBy, notes string) error
}

// MessageQueue publishes/consumes filing ingestion events.
type MessageQueue interface {
	PublishFilingIngested(ctx context.Context, filingID string) error
	SubscribeFilingIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// FilingSource fetches filing documents from the upstream registry.
type FilingSource interface {
	FetchFilingIndex(ctx context.Context, cik, accessionNumber string) (*domain.Filing, []domain.Exhibit, error)
	FetchDocument(ctx context.Context, url string) ([]byte, error)
}

// TextExtractor derives visual text from a raw exhibit body.
type TextExtractor interface {
	Extract(ctx context.Context, exhibit *domain.Exhibit) (string, domain.ExtractionQuality, error)
}
