package domain

import (
	"fmt"
	"time"
)

type DealState string

const (
	DealCandidate   DealState = "CANDIDATE"
	DealOpen        DealState = "OPEN"
	DealClosed      DealState = "CLOSED"
	DealLocked      DealState = "LOCKED"
	DealNeedsReview DealState = "NEEDS_REVIEW"
)

// Terminal reports whether the state refuses automatic fact attachment.
func (s DealState) Terminal() bool {
	return s == DealClosed || s == DealLocked
}

// PartyIdentity holds the three variants of a party name. Normalized is the
// matching key and is never shown to users; Display is the cleaned-up form.
type PartyIdentity struct {
	CIK         string  `json:"cik,omitempty"`
	NameRaw     string  `json:"name_raw,omitempty"`
	NameDisplay string  `json:"name_display,omitempty"`
	Normalized  string  `json:"name_normalized,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
}

// Deal is the clustered aggregate for one M&A transaction. It shares, not
// owns, its attached facts: a merge reassigns fact attachment rows and
// leaves the facts themselves untouched.
type Deal struct {
	ID    string    `json:"id"`
	State DealState `json:"state"`

	Acquirer PartyIdentity `json:"acquirer"`
	Target   PartyIdentity `json:"target"`

	DealKey string `json:"deal_key"`

	AgreementDate     *time.Time `json:"agreement_date,omitempty"`
	AnnouncementDate  *time.Time `json:"announcement_date,omitempty"`
	ExpectedCloseDate *time.Time `json:"expected_close_date,omitempty"`

	DealValueUSD float64 `json:"deal_value_usd,omitempty"`

	// Sponsor is contextual, never a signatory; kept apart from acquirer.
	SponsorBacked         *bool   `json:"is_sponsor_backed,omitempty"`
	SponsorNameRaw        string  `json:"sponsor_name_raw,omitempty"`
	SponsorNameNormalized string  `json:"sponsor_name_normalized,omitempty"`
	SponsorConfidence     float64 `json:"sponsor_confidence,omitempty"`
	UnresolvedSponsor     bool    `json:"unresolved_sponsor_entity,omitempty"`

	MarketTag string `json:"market_tag,omitempty"`

	AdvisoryFeeUSD     float64 `json:"advisory_fee_estimated,omitempty"`
	UnderwritingFeeUSD float64 `json:"underwriting_fee_estimated,omitempty"`

	// MergedInto records the surviving deal after a merge; the superseded
	// record is kept for audit, never deleted.
	MergedInto string `json:"merged_into,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ComputeDealKey derives the clustering key in priority order:
//
//  1. cik:<acquirer>:cik:<target> when both canonical identifiers are known
//  2. cik:<acquirer>:name:<target normalized> when only the target CIK is missing
//  3. name:<acquirer normalized>:name:<target normalized>, which also flags
//     the deal for review because name-only keys are the weakest form
//
// Returns the key and whether the name-only fallback was used. An empty key
// means the deal lacks the identity facts to be clustered at all.
func ComputeDealKey(acquirer, target PartyIdentity) (key string, nameOnly bool) {
	switch {
	case acquirer.CIK != "" && target.CIK != "":
		return fmt.Sprintf("cik:%s:cik:%s", acquirer.CIK, target.CIK), false
	case acquirer.CIK != "" && target.Normalized != "":
		return fmt.Sprintf("cik:%s:name:%s", acquirer.CIK, target.Normalized), false
	case acquirer.Normalized != "" && target.Normalized != "":
		return fmt.Sprintf("name:%s:name:%s", acquirer.Normalized, target.Normalized), true
	}
	return "", false
}
