package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026052101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS filings (
	id TEXT PRIMARY KEY,
	accession_number TEXT NOT NULL,
	cik TEXT NOT NULL,
	form_type TEXT NOT NULL,
	filing_date TIMESTAMPTZ NOT NULL,
	company_name TEXT,
	filing_url TEXT,
	raw_html TEXT NOT NULL DEFAULT '',
	visual_text TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (cik, accession_number)
);

CREATE TABLE IF NOT EXISTS exhibits (
	id TEXT PRIMARY KEY,
	filing_id TEXT NOT NULL REFERENCES filings(id),
	exhibit_type TEXT NOT NULL,
	description TEXT,
	filename TEXT,
	url TEXT,
	is_pdf BOOLEAN NOT NULL DEFAULT FALSE,
	is_material BOOLEAN NOT NULL DEFAULT FALSE,
	extraction_quality TEXT,
	raw_content TEXT NOT NULL DEFAULT '',
	visual_text TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS atomic_facts (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	filing_id TEXT,
	exhibit_id TEXT,
	deal_id TEXT NOT NULL DEFAULT '',
	evidence JSONB NOT NULL DEFAULT '{}'::jsonb,
	extraction_method TEXT NOT NULL,
	extraction_pattern TEXT,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	payload JSONB NOT NULL DEFAULT '{}'::jsonb,
	entered_by TEXT,
	entered_at TIMESTAMPTZ,
	note TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS deals (
	id TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	acquirer_cik TEXT,
	acquirer_name_raw TEXT,
	acquirer_name_display TEXT,
	acquirer_name_normalized TEXT,
	acquirer_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	target_cik TEXT,
	target_name_raw TEXT,
	target_name_display TEXT,
	target_name_normalized TEXT,
	target_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	deal_key TEXT NOT NULL,
	agreement_date TIMESTAMPTZ,
	announcement_date TIMESTAMPTZ,
	expected_close_date TIMESTAMPTZ,
	deal_value_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	sponsor_backed BOOLEAN,
	sponsor_name_raw TEXT,
	sponsor_name_normalized TEXT,
	sponsor_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	unresolved_sponsor BOOLEAN NOT NULL DEFAULT FALSE,
	market_tag TEXT,
	advisory_fee_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	underwriting_fee_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	merged_into TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS financing_events (
	id TEXT PRIMARY KEY,
	deal_id TEXT NOT NULL,
	instrument_family TEXT NOT NULL,
	instrument_type TEXT,
	market_tag TEXT,
	amount_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	amount_raw TEXT,
	currency TEXT,
	maturity_year TEXT,
	interest_rate TEXT,
	purpose TEXT,
	reconciliation_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	reconciliation_explanation TEXT,
	source_exhibit_id TEXT,
	source_fact_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
	estimated_fee_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS financing_participants (
	id TEXT PRIMARY KEY,
	financing_event_id TEXT NOT NULL REFERENCES financing_events(id) ON DELETE CASCADE,
	bank_name_raw TEXT NOT NULL,
	bank_name_normalized TEXT,
	role TEXT NOT NULL,
	role_normalized TEXT,
	evidence_snippet TEXT,
	evidence_source TEXT,
	role_weight DOUBLE PRECISION NOT NULL DEFAULT 0,
	estimated_fee_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS processing_alerts (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	filing_id TEXT,
	exhibit_id TEXT,
	deal_id TEXT,
	title TEXT NOT NULL,
	description TEXT,
	fields_needed JSONB NOT NULL DEFAULT '[]'::jsonb,
	source_preview TEXT,
	resolved BOOLEAN NOT NULL DEFAULT FALSE,
	resolved_at TIMESTAMPTZ,
	resolved_by TEXT,
	resolution_notes TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_filings_status ON filings(status);
CREATE INDEX IF NOT EXISTS idx_exhibits_filing_id ON exhibits(filing_id);
CREATE INDEX IF NOT EXISTS idx_facts_deal_id ON atomic_facts(deal_id);
CREATE INDEX IF NOT EXISTS idx_facts_filing_id ON atomic_facts(filing_id);
CREATE INDEX IF NOT EXISTS idx_facts_kind ON atomic_facts(kind);
CREATE INDEX IF NOT EXISTS idx_deals_deal_key ON deals(deal_key);
CREATE INDEX IF NOT EXISTS idx_deals_state ON deals(state);
CREATE INDEX IF NOT EXISTS idx_financing_events_deal_id ON financing_events(deal_id);
CREATE INDEX IF NOT EXISTS idx_participants_event_id ON financing_participants(financing_event_id);
CREATE INDEX IF NOT EXISTS idx_alerts_resolved ON processing_alerts(resolved);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
