package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dealtrace/dealtrace/internal/core/domain"
	"github.com/dealtrace/dealtrace/internal/extract"
)

type factRepoFake struct {
	created    []domain.AtomicFact
	unattached []domain.AtomicFact
	reassigned [][2]string
	err        error
}

func (f *factRepoFake) Create(_ context.Context, fact *domain.AtomicFact) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, *fact)
	return nil
}

func (f *factRepoFake) GetByID(_ context.Context, id string) (*domain.AtomicFact, error) {
	for i := range f.created {
		if f.created[i].ID == id {
			fact := f.created[i]
			return &fact, nil
		}
	}
	return nil, fmt.Errorf("fact not found: %s: %w", id, domain.ErrInvalidInput)
}

func (f *factRepoFake) List(_ context.Context, filter domain.FactFilter) ([]domain.AtomicFact, error) {
	var out []domain.AtomicFact
	for _, fact := range f.created {
		if filter.Kind != "" && string(fact.Kind) != filter.Kind {
			continue
		}
		out = append(out, fact)
	}
	return out, nil
}

func (f *factRepoFake) ListUnattached(context.Context, int) ([]domain.AtomicFact, error) {
	return f.unattached, nil
}

func (f *factRepoFake) AttachToDeal(context.Context, string, string) error {
	return errors.New("not implemented")
}

func (f *factRepoFake) ReassignDeal(_ context.Context, fromDealID, toDealID string) error {
	f.reassigned = append(f.reassigned, [2]string{fromDealID, toDealID})
	return nil
}

type alertRepoFake struct {
	created  []domain.ProcessingAlert
	resolved []string
	err      error
}

func (f *alertRepoFake) Create(_ context.Context, alert *domain.ProcessingAlert) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, *alert)
	return nil
}

func (f *alertRepoFake) GetByID(_ context.Context, id string) (*domain.ProcessingAlert, error) {
	for i := range f.created {
		if f.created[i].ID == id {
			alert := f.created[i]
			for _, r := range f.resolved {
				if r == id {
					alert.Resolved = true
				}
			}
			return &alert, nil
		}
	}
	return nil, domain.ErrAlertNotFound
}

func (f *alertRepoFake) List(context.Context, domain.AlertFilter) ([]domain.ProcessingAlert, error) {
	return nil, errors.New("not implemented")
}

func (f *alertRepoFake) MarkResolved(_ context.Context, id, _, _ string) error {
	for i := range f.created {
		if f.created[i].ID == id {
			f.resolved = append(f.resolved, id)
			return nil
		}
	}
	return domain.ErrAlertNotFound
}

type pdfExtractorFake struct {
	text    string
	quality domain.ExtractionQuality
	err     error
}

func (f *pdfExtractorFake) Extract(context.Context, *domain.Exhibit) (string, domain.ExtractionQuality, error) {
	return f.text, f.quality, f.err
}

func testFactExtractor() *extract.FactExtractor {
	detector := extract.NewSponsorDetector(extract.SponsorSeeds{"blackstone": "Blackstone"}, 150)
	return extract.NewFactExtractor(detector, 5000)
}

func TestProcessByIDMarksProcessed(t *testing.T) {
	repo := newFilingRepoFake()
	repo.filings["filing-1"] = &domain.Filing{
		ID:         "filing-1",
		FormType:   domain.Form8K,
		VisualText: "Quarterly update. Nothing to see.",
		Status:     domain.FilingPending,
	}
	facts := &factRepoFake{}
	alerts := &alertRepoFake{}
	uc := NewProcessFilingUseCase(repo, facts, alerts, &sourceFake{}, &pdfExtractorFake{}, testFactExtractor(), testLogger(), time.Minute)

	if err := uc.ProcessByID(context.Background(), "filing-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}

	want := []domain.FilingStatus{domain.FilingProcessing, domain.FilingProcessed}
	if len(repo.statuses) != len(want) {
		t.Fatalf("unexpected status transitions: %v", repo.statuses)
	}
	for i, status := range want {
		if repo.statuses[i] != status {
			t.Fatalf("status %d = %s, want %s", i, repo.statuses[i], status)
		}
	}
}

func TestProcessByIDFetchesPrimaryDocument(t *testing.T) {
	repo := newFilingRepoFake()
	repo.filings["filing-1"] = &domain.Filing{
		ID:        "filing-1",
		FormType:  domain.Form8K,
		FilingURL: "https://archive.example/form8k.htm",
		Status:    domain.FilingPending,
	}
	source := &sourceFake{documents: map[string]string{
		"https://archive.example/form8k.htm": "<html><body><p>Completion of announced transaction.</p></body></html>",
	}}
	uc := NewProcessFilingUseCase(repo, &factRepoFake{}, &alertRepoFake{}, source, &pdfExtractorFake{}, testFactExtractor(), testLogger(), time.Minute)

	if err := uc.ProcessByID(context.Background(), "filing-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}

	saved := repo.visualText["filing-1"]
	if !strings.Contains(saved, "Completion of announced transaction.") {
		t.Fatalf("visual text not derived from primary document: %q", saved)
	}
}

func TestProcessByIDRaisesAlertForUnparsedMaterialPDF(t *testing.T) {
	repo := newFilingRepoFake()
	repo.filings["filing-1"] = &domain.Filing{
		ID:         "filing-1",
		FormType:   domain.Form8K,
		VisualText: "see exhibits",
		Status:     domain.FilingPending,
	}
	repo.exhibits = []domain.Exhibit{{
		ID:          "ex-1",
		FilingID:    "filing-1",
		ExhibitType: "EX-10.1",
		Description: "Credit Agreement",
		RawContent:  "%PDF-1.4 scanned",
		IsPDF:       true,
		IsMaterial:  true,
	}}
	alerts := &alertRepoFake{}
	pdf := &pdfExtractorFake{quality: domain.QualityFailed, err: errors.New("no text extracted")}
	uc := NewProcessFilingUseCase(repo, &factRepoFake{}, alerts, &sourceFake{}, pdf, testFactExtractor(), testLogger(), time.Minute)

	if err := uc.ProcessByID(context.Background(), "filing-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}

	if repo.exhibits[0].Quality != domain.QualityFailed {
		t.Fatalf("exhibit quality = %s, want failed", repo.exhibits[0].Quality)
	}
	if len(alerts.created) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts.created))
	}
	alert := alerts.created[0]
	if alert.Kind != domain.AlertUnparsedMaterialExhibit {
		t.Fatalf("alert kind = %s", alert.Kind)
	}
	if alert.ExhibitID != "ex-1" {
		t.Fatalf("alert exhibit id = %s", alert.ExhibitID)
	}
	found := false
	for _, field := range alert.FieldsNeeded {
		if field == "facility_type" {
			found = true
		}
	}
	if !found {
		t.Fatalf("fields needed missing facility_type: %v", alert.FieldsNeeded)
	}
}

func TestProcessByIDNoAlertForImmaterialPDF(t *testing.T) {
	repo := newFilingRepoFake()
	repo.filings["filing-1"] = &domain.Filing{
		ID:         "filing-1",
		FormType:   domain.Form8K,
		VisualText: "see exhibits",
		Status:     domain.FilingPending,
	}
	repo.exhibits = []domain.Exhibit{{
		ID:          "ex-1",
		FilingID:    "filing-1",
		ExhibitType: "EX-99.2",
		Description: "Investor Presentation",
		RawContent:  "%PDF-1.4 slides",
		IsPDF:       true,
	}}
	alerts := &alertRepoFake{}
	pdf := &pdfExtractorFake{quality: domain.QualityFailed, err: errors.New("no text extracted")}
	uc := NewProcessFilingUseCase(repo, &factRepoFake{}, alerts, &sourceFake{}, pdf, testFactExtractor(), testLogger(), time.Minute)

	if err := uc.ProcessByID(context.Background(), "filing-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if len(alerts.created) != 0 {
		t.Fatalf("expected no alerts, got %v", alerts.created)
	}
}

func TestProcessByIDMarksFailedOnFetchError(t *testing.T) {
	repo := newFilingRepoFake()
	repo.filings["filing-1"] = &domain.Filing{
		ID:        "filing-1",
		FormType:  domain.Form8K,
		FilingURL: "https://archive.example/form8k.htm",
		Status:    domain.FilingPending,
	}
	source := &sourceFake{fetchErr: errors.New("registry unavailable")}
	uc := NewProcessFilingUseCase(repo, &factRepoFake{}, &alertRepoFake{}, source, &pdfExtractorFake{}, testFactExtractor(), testLogger(), time.Minute)

	err := uc.ProcessByID(context.Background(), "filing-1")
	if err == nil {
		t.Fatal("expected error")
	}
	last := repo.statuses[len(repo.statuses)-1]
	if last != domain.FilingFailed {
		t.Fatalf("final status = %s, want failed", last)
	}
}
