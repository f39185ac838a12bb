package ports

import (
	"context"

	"github.com/dealtrace/dealtrace/internal/core/domain"
)

// FilingIngestor is the inbound contract for registering a filing and
// queueing it for asynchronous processing.
type FilingIngestor interface {
	Ingest(ctx context.Context, filing *domain.Filing) (*domain.Filing, error)
	IngestByAccession(ctx context.Context, cik, accessionNumber string) (*domain.Filing, error)
}

// FilingProcessor is the inbound contract for asynchronous filing
// processing: normalize, extract facts, raise alerts.
type FilingProcessor interface {
	ProcessByID(ctx context.Context, filingID string) error
}

// PipelineRunner drives the downstream stages over accumulated facts:
// clustering, reconciliation, classification and fee attribution.
type PipelineRunner interface {
	RunPass(ctx context.Context) (*domain.PipelineReport, error)
}

// AlertResolver is the inbound contract for human review: resolving alerts
// and entering manual facts.
type AlertResolver interface {
	Resolve(ctx context.Context, alertID, resolvedBy, notes string, facts []domain.AtomicFact) (*domain.ProcessingAlert, error)
}

// DealReader is the inbound read model over clustered deals.
type DealReader interface {
	GetByID(ctx context.Context, id string) (*domain.Deal, error)
	List(ctx context.Context, filter domain.DealFilter) ([]domain.Deal, error)
	ListFinancings(ctx context.Context, dealID string) ([]domain.FinancingEvent, error)
	ListFacts(ctx context.Context, filter domain.FactFilter) ([]domain.AtomicFact, error)
}
