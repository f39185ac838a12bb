package domain

// FactFilter narrows fact listings. Zero values mean "any". Kind and
// Method are plain strings so they can be fed straight from query params.
type FactFilter struct {
	FilingID  string
	ExhibitID string
	DealID    string
	Kind      string
	Method    string
	Limit     int
	Offset    int
}

// DealFilter narrows deal listings. Zero values mean "any".
type DealFilter struct {
	State         string
	MarketTag     string
	SponsorBacked *bool
	Query         string
	Limit         int
	Offset        int
}

// AlertFilter narrows alert listings. Zero values mean "any".
type AlertFilter struct {
	Kind     string
	Resolved *bool
	FilingID string
	DealID   string
	Limit    int
	Offset   int
}
