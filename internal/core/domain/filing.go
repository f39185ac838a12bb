package domain

import "time"

type FilingStatus string

const (
	FilingPending    FilingStatus = "pending"
	FilingProcessing FilingStatus = "processing"
	FilingProcessed  FilingStatus = "processed"
	FilingFailed     FilingStatus = "failed"
)

// FormType identifies the kind of registry filing. Only the forms the
// extraction rules know about are enumerated; everything else is ingested
// but produces no facts.
type FormType string

const (
	Form8K      FormType = "8-K"
	Form8KA     FormType = "8-K/A"
	FormS4      FormType = "S-4"
	FormDEFM14A FormType = "DEFM14A"
	FormSC14D9  FormType = "SC 14D9"
	FormSCTOT   FormType = "SC TO-T"
)

// Filing is a single registry filing. The (CIK, accession number) pair is
// the stable source identifier. VisualText is derived from RawHTML by the
// normalizer and cached; it is immutable once written.
type Filing struct {
	ID              string       `json:"id"`
	AccessionNumber string       `json:"accession_number"`
	CIK             string       `json:"cik"`
	FormType        FormType     `json:"form_type"`
	FilingDate      time.Time    `json:"filing_date"`
	CompanyName     string       `json:"company_name,omitempty"`
	FilingURL       string       `json:"filing_url,omitempty"`
	RawHTML         string       `json:"-"`
	VisualText      string       `json:"-"`
	Status          FilingStatus `json:"status"`
	Error           string       `json:"error,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

type ExtractionQuality string

const (
	QualityGood   ExtractionQuality = "good"
	QualityPoor   ExtractionQuality = "poor"
	QualityFailed ExtractionQuality = "failed"
)

// Exhibit is a document attached to a filing (EX-2.1 merger agreement,
// EX-10.* credit agreement or commitment letter, EX-99.* press release).
type Exhibit struct {
	ID          string            `json:"id"`
	FilingID    string            `json:"filing_id"`
	ExhibitType string            `json:"exhibit_type"`
	Description string            `json:"description,omitempty"`
	Filename    string            `json:"filename,omitempty"`
	URL         string            `json:"url,omitempty"`
	IsPDF       bool              `json:"is_pdf"`
	IsMaterial  bool              `json:"is_material"`
	Quality     ExtractionQuality `json:"extraction_quality,omitempty"`
	RawContent  string            `json:"-"`
	VisualText  string            `json:"-"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// MaterialExhibitKeywords flag exhibits whose content is essential to
// financing extraction. An exhibit matching one of these that fails text
// extraction must raise an alert rather than be skipped silently.
var MaterialExhibitKeywords = []string{
	"credit agreement",
	"commitment letter",
	"bridge",
	"debt financing",
	"underwriting agreement",
	"indenture",
	"loan agreement",
	"term loan",
	"revolving",
}
