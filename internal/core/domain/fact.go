package domain

import "time"

type FactKind string

const (
	FactPartyDefinition  FactKind = "PARTY_DEFINITION"
	FactPartyMention     FactKind = "PARTY_MENTION"
	FactSponsorMention   FactKind = "SPONSOR_MENTION"
	FactDealDate         FactKind = "DEAL_DATE"
	FactDealValue        FactKind = "DEAL_VALUE"
	FactFinancingMention FactKind = "FINANCING_MENTION"
	FactAdvisorMention   FactKind = "ADVISOR_MENTION"
	FactTableRole        FactKind = "TABLE_ROLE"
	FactManual           FactKind = "MANUAL"
)

const (
	ExtractionPattern = "pattern"
	ExtractionTable   = "table"
	ExtractionManual  = "manual"
)

// Evidence ties a fact back to the exact document span (or table cell) it
// was extracted from. Every fact must carry evidence; a fact without a
// traceable source span is a bug, not a fact.
type Evidence struct {
	Snippet     string `json:"snippet"`
	StartOffset int    `json:"start_offset,omitempty"`
	EndOffset   int    `json:"end_offset,omitempty"`
	TableRow    int    `json:"table_row,omitempty"`
	TableCol    int    `json:"table_col,omitempty"`
	Section     string `json:"section,omitempty"`
}

// AtomicFact is the immutable unit of extracted information. DealID is
// empty until the clustering service attaches the fact; corrections are new
// MANUAL facts, never edits to existing ones.
type AtomicFact struct {
	ID        string   `json:"id"`
	Kind      FactKind `json:"kind"`
	FilingID  string   `json:"filing_id,omitempty"`
	ExhibitID string   `json:"exhibit_id,omitempty"`
	DealID    string   `json:"deal_id,omitempty"`

	Evidence Evidence `json:"evidence"`

	ExtractionMethod  string  `json:"extraction_method"`
	ExtractionPattern string  `json:"extraction_pattern,omitempty"`
	Confidence        float64 `json:"confidence"`

	Payload FactPayload `json:"payload"`

	// Manual provenance, set only for MANUAL facts.
	EnteredBy string    `json:"entered_by,omitempty"`
	EnteredAt time.Time `json:"entered_at,omitempty"`
	Note      string    `json:"note,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// FactPayload is the kind-specific structured content of a fact. Exactly
// one group of fields is populated, matching the fact kind.
type FactPayload struct {
	// PARTY_DEFINITION / PARTY_MENTION
	PartyNameRaw        string `json:"party_name_raw,omitempty"`
	PartyNameDisplay    string `json:"party_name_display,omitempty"`
	PartyNameNormalized string `json:"party_name_normalized,omitempty"`
	RoleLabel           string `json:"role_label,omitempty"`
	CanonicalRole       string `json:"canonical_role,omitempty"`
	CIK                 string `json:"cik,omitempty"`

	// SPONSOR_MENTION
	SponsorNameRaw        string `json:"sponsor_name_raw,omitempty"`
	SponsorNameNormalized string `json:"sponsor_name_normalized,omitempty"`
	SponsorNameDisplay    string `json:"sponsor_name_display,omitempty"`
	SourcePattern         string `json:"source_pattern,omitempty"`
	UnresolvedSponsor     bool   `json:"unresolved_sponsor_entity,omitempty"`

	// DEAL_DATE
	DateType  string `json:"date_type,omitempty"`
	DateValue string `json:"date_value,omitempty"` // ISO 8601
	DateRaw   string `json:"date_raw,omitempty"`

	// DEAL_VALUE / FINANCING_MENTION amounts
	AmountUSD float64 `json:"amount_usd,omitempty"`
	AmountRaw string  `json:"amount_raw,omitempty"`
	Currency  string  `json:"currency,omitempty"`

	// FINANCING_MENTION
	InstrumentType    string        `json:"instrument_type,omitempty"`
	InstrumentSubtype string        `json:"instrument_subtype,omitempty"`
	Purpose           string        `json:"purpose,omitempty"`
	MaturityYear      string        `json:"maturity_year,omitempty"`
	InterestRate      string        `json:"interest_rate,omitempty"`
	Participants      []Participant `json:"participants,omitempty"`

	// ADVISOR_MENTION / TABLE_ROLE
	BankNameRaw        string `json:"bank_name_raw,omitempty"`
	BankNameNormalized string `json:"bank_name_normalized,omitempty"`
	Role               string `json:"role,omitempty"`
	ClientSide         string `json:"client_side,omitempty"`
}

// Participant is a bank/role pair embedded in a financing payload.
type Participant struct {
	BankNameRaw        string `json:"bank"`
	BankNameNormalized string `json:"bank_normalized,omitempty"`
	Role               string `json:"role"`
	Evidence           string `json:"evidence,omitempty"`
}

// IsManual reports whether the fact came from human review. Manual facts
// are treated as authoritative downstream and are never auto-superseded.
func (f *AtomicFact) IsManual() bool {
	return f.Kind == FactManual || f.ExtractionMethod == ExtractionManual
}
