package domain

import "time"

// Instrument families and the market-tag taxonomy assigned by the
// classifier. Tags drive the underwriting fee lookup in attribution.
const (
	FamilyBond   = "bond"
	FamilyLoan   = "loan"
	FamilyBridge = "bridge"

	TagIGBond    = "IG_Bond"
	TagHYBond    = "HY_Bond"
	TagTermLoanB = "Term_Loan_B"
	TagBridge    = "Bridge"
	TagOtherLoan = "Other_Loan"
	TagUnknown   = "Unknown"
)

// FinancingEvent is a debt instrument linked to a deal by the reconciler.
// Before reconciliation the underlying information exists only as
// FINANCING_MENTION facts.
type FinancingEvent struct {
	ID     string `json:"id"`
	DealID string `json:"deal_id"`

	InstrumentFamily string `json:"instrument_family"`
	InstrumentType   string `json:"instrument_type,omitempty"`
	MarketTag        string `json:"market_tag,omitempty"`

	AmountUSD float64 `json:"amount_usd,omitempty"`
	AmountRaw string  `json:"amount_raw,omitempty"`
	Currency  string  `json:"currency,omitempty"`

	MaturityYear string `json:"maturity_year,omitempty"`
	InterestRate string `json:"interest_rate,omitempty"`
	Purpose      string `json:"purpose,omitempty"`

	ReconciliationConfidence  float64 `json:"reconciliation_confidence"`
	ReconciliationExplanation string  `json:"reconciliation_explanation"`

	SourceExhibitID string   `json:"source_exhibit_id,omitempty"`
	SourceFactIDs   []string `json:"source_fact_ids"`

	EstimatedFeeUSD float64 `json:"estimated_fee_usd,omitempty"`

	Participants []FinancingParticipant `json:"participants,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FinancingParticipant is a bank's role in a financing event, with the
// role weight and fee share assigned by the attribution engine.
type FinancingParticipant struct {
	ID               string `json:"id"`
	FinancingEventID string `json:"financing_event_id"`

	BankNameRaw        string `json:"bank_name_raw"`
	BankNameNormalized string `json:"bank_name_normalized,omitempty"`

	Role           string `json:"role"`
	RoleNormalized string `json:"role_normalized,omitempty"`

	EvidenceSnippet string `json:"evidence_snippet,omitempty"`
	EvidenceSource  string `json:"evidence_source,omitempty"`

	RoleWeight      float64 `json:"role_weight,omitempty"`
	EstimatedFeeUSD float64 `json:"estimated_fee_usd,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
