package domain

import "time"

type AlertKind string

const (
	AlertUnparsedMaterialExhibit AlertKind = "UNPARSED_MATERIAL_EXHIBIT"
	AlertFailedPartyExtraction   AlertKind = "FAILED_PARTY_EXTRACTION"
	AlertFailedSponsorExtraction AlertKind = "FAILED_SPONSOR_EXTRACTION"
	AlertLowConfidenceMatch      AlertKind = "LOW_CONFIDENCE_MATCH"
	AlertDealMergeCandidate      AlertKind = "DEAL_MERGE_CANDIDATE"
	AlertAmbiguousReconciliation AlertKind = "AMBIGUOUS_RECONCILIATION"
	AlertDocumentTimeout         AlertKind = "DOCUMENT_TIMEOUT"
)

// ProcessingAlert records an extraction failure or ambiguity that needs a
// human. Alerts are append-mostly: resolution adds resolver metadata, it
// never deletes or rewrites the alert itself.
type ProcessingAlert struct {
	ID   string    `json:"id"`
	Kind AlertKind `json:"kind"`

	FilingID  string `json:"filing_id,omitempty"`
	ExhibitID string `json:"exhibit_id,omitempty"`
	DealID    string `json:"deal_id,omitempty"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	// FieldsNeeded lists what a resolver must supply, e.g.
	// ["facility_type", "amount", "participants", "roles"].
	FieldsNeeded []string `json:"fields_needed,omitempty"`

	// Preview of the text region that failed extraction, for triage
	// without opening the source document.
	SourcePreview string `json:"source_preview,omitempty"`

	Resolved        bool       `json:"resolved"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy      string     `json:"resolved_by,omitempty"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
