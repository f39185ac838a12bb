package domain

import "time"

// PipelineReport summarizes one pass of the downstream pipeline stages.
type PipelineReport struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	FactsConsidered   int `json:"facts_considered"`
	DealsCreated      int `json:"deals_created"`
	DealsPromoted     int `json:"deals_promoted"`
	DealsMerged       int `json:"deals_merged"`
	DealsFlagged      int `json:"deals_flagged"`
	FactsAttached     int `json:"facts_attached"`
	FinancingsLinked  int `json:"financings_linked"`
	DealsClassified   int `json:"deals_classified"`
	FeesEstimated     int `json:"fees_estimated"`
	AlertsRaised      int `json:"alerts_raised"`
}
