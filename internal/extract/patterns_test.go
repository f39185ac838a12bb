package extract

import "testing"

const samplePreamble = `AGREEMENT AND PLAN OF MERGER

This Agreement and Plan of Merger, dated as of January 15, 2024, is entered into by and among Alpha Holdings, Inc., a Delaware corporation ("Parent"), Beta Merger Sub, Inc. ("Merger Sub"), and Gamma Corp., a Delaware corporation (the "Company").`

func TestFindPartySpanAndSplit(t *testing.T) {
	span := FindPartySpan(samplePreamble)
	if span == "" {
		t.Fatal("expected party span in preamble")
	}

	parties := SplitPartySpan(span)
	if len(parties) != 3 {
		t.Fatalf("expected 3 parties, got %d: %v", len(parties), parties)
	}
	if parties[0] != `Alpha Holdings, Inc., a Delaware corporation ("Parent")` {
		t.Fatalf("unexpected first party: %q", parties[0])
	}
	if parties[1] != `Beta Merger Sub, Inc. ("Merger Sub")` {
		t.Fatalf("unexpected second party: %q", parties[1])
	}
	if parties[2] != `Gamma Corp., a Delaware corporation (the "Company")` {
		t.Fatalf("unexpected third party: %q", parties[2])
	}
}

func TestSplitPartySpanKeepsParenthesesIntact(t *testing.T) {
	span := `Alpha Inc. (a Delaware corporation, formed in 2001), and Beta Corp.`
	parties := SplitPartySpan(span)
	if len(parties) != 2 {
		t.Fatalf("expected 2 parties, got %d: %v", len(parties), parties)
	}
	if parties[0] != "Alpha Inc. (a Delaware corporation, formed in 2001)" {
		t.Fatalf("comma inside parentheses must not split: %q", parties[0])
	}
}

func TestMapRoleLabel(t *testing.T) {
	cases := map[string]string{
		"Company":    RoleTarget,
		"Parent":     RoleAcquirer,
		"Purchaser":  RoleAcquirer,
		"Acquiror":   RoleAcquirer,
		"Merger Sub": RoleMergerSub,
		"NewCo":      RoleMergerSub,
		"Holdings":   RoleAcquirer,
		"Escrow":     "",
	}
	for label, want := range cases {
		if got := MapRoleLabel(label); got != want {
			t.Fatalf("MapRoleLabel(%q) = %q, want %q", label, got, want)
		}
	}
}

func TestExtractPartiesWithRoles(t *testing.T) {
	text := `Acme Widgets Inc. (the "Company") and Bidder Corp ("Purchaser") entered into the agreement.`
	roles := ExtractPartiesWithRoles(text)
	if len(roles) != 2 {
		t.Fatalf("expected 2 role bindings, got %d", len(roles))
	}
	if roles[0].CanonicalRole != RoleTarget || roles[1].CanonicalRole != RoleAcquirer {
		t.Fatalf("unexpected canonical roles: %+v", roles)
	}
}

func TestParseCurrencyAmount(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"$500,000,000", 500_000_000},
		{"$1.5 billion", 1_500_000_000},
		{"$750 million", 750_000_000},
		{"$2.25bn", 2_250_000_000},
		{"$300mm", 300_000_000},
		{"$42", 42},
	}
	for _, tc := range cases {
		got, ok := ParseCurrencyAmount(tc.in)
		if !ok {
			t.Fatalf("ParseCurrencyAmount(%q) failed", tc.in)
		}
		if got.ValueUSD != tc.want {
			t.Fatalf("ParseCurrencyAmount(%q) = %v, want %v", tc.in, got.ValueUSD, tc.want)
		}
	}
}

func TestExtractAgreementDate(t *testing.T) {
	raw, iso, ok := ExtractAgreementDate("This Agreement, dated as of January 15, 2024, is entered into", 1000)
	if !ok {
		t.Fatal("expected agreement date")
	}
	if raw != "January 15, 2024" || iso != "2024-01-15" {
		t.Fatalf("unexpected date: raw=%q iso=%q", raw, iso)
	}
}

func TestExtractAgreementDateOrdinalForm(t *testing.T) {
	_, iso, ok := ExtractAgreementDate("dated as of the 3rd day of March, 2025", 1000)
	if !ok {
		t.Fatal("expected ordinal agreement date")
	}
	if iso != "2025-03-03" {
		t.Fatalf("unexpected iso date: %q", iso)
	}
}

func TestExtractAgreementDateISOForm(t *testing.T) {
	_, iso, ok := ExtractAgreementDate("dated as of 2024-06-30 by the parties", 1000)
	if !ok || iso != "2024-06-30" {
		t.Fatalf("expected ISO date passthrough, got %q ok=%v", iso, ok)
	}
}

func TestExtractAgreementDateRejectsInvalidDay(t *testing.T) {
	if _, _, ok := ExtractAgreementDate("dated as of February 30, 2024", 1000); ok {
		t.Fatal("February 30 must not parse")
	}
}

func TestFindItemSections(t *testing.T) {
	text := `Item 1.01 Entry into a Material Definitive Agreement

On January 15, 2024, the Company entered into an Agreement and Plan of Merger.

Item 9.01 Financial Statements and Exhibits`

	start, end, ok := FindItem101Section(text)
	if !ok {
		t.Fatal("expected Item 1.01 section")
	}
	if start != 0 || end >= len(text) {
		t.Fatalf("unexpected bounds: [%d, %d)", start, end)
	}
	if !HasDefinitiveAgreementMention(text[start:end]) {
		t.Fatal("expected definitive agreement mention inside section")
	}
}

func TestExtractDebtInstrumentsBond(t *testing.T) {
	text := `the Company agreed to sell $500 million aggregate principal amount of 6.25% Senior Notes due 2031 in a private offering`

	instruments := ExtractDebtInstruments(text, 200)
	if len(instruments) != 1 {
		t.Fatalf("expected 1 instrument, got %d", len(instruments))
	}
	inst := instruments[0]
	if inst.InstrumentType != "bond" {
		t.Fatalf("expected bond, got %q", inst.InstrumentType)
	}
	if inst.AmountUSD != 500_000_000 {
		t.Fatalf("unexpected amount: %v", inst.AmountUSD)
	}
	if inst.InterestRate != "6.25%" {
		t.Fatalf("unexpected rate: %q", inst.InterestRate)
	}
	if inst.MaturityYear != "2031" {
		t.Fatalf("unexpected maturity: %q", inst.MaturityYear)
	}
}

func TestExtractDebtInstrumentsCreditFacility(t *testing.T) {
	text := `borrowings under a $2.0 billion senior secured term loan will fund the acquisition`

	instruments := ExtractDebtInstruments(text, 200)
	if len(instruments) != 1 {
		t.Fatalf("expected 1 instrument, got %d: %+v", len(instruments), instruments)
	}
	if instruments[0].InstrumentType != "term_loan" {
		t.Fatalf("expected term_loan, got %q", instruments[0].InstrumentType)
	}
	if instruments[0].AmountUSD != 2_000_000_000 {
		t.Fatalf("unexpected amount: %v", instruments[0].AmountUSD)
	}
}

func TestExtractUnderwriters(t *testing.T) {
	text := `the Company entered into an underwriting agreement with J.P. Morgan Securities LLC and Goldman Sachs & Co. LLC, as representatives of the several underwriters`

	underwriters := ExtractUnderwriters(text, 150)
	if len(underwriters) != 2 {
		t.Fatalf("expected 2 underwriters, got %d: %+v", len(underwriters), underwriters)
	}
	if underwriters[0].NameRaw != "J.P. Morgan Securities LLC" {
		t.Fatalf("unexpected first underwriter: %q", underwriters[0].NameRaw)
	}
	if underwriters[1].NameRaw != "Goldman Sachs & Co. LLC" {
		t.Fatalf("unexpected second underwriter: %q", underwriters[1].NameRaw)
	}
}

func TestNormalizePartyName(t *testing.T) {
	cases := map[string]string{
		"Alpha Holdings, Inc.":                        "alpha holdings",
		"Acme Widgets, Inc., a Delaware corporation":  "acme widgets",
		"Gamma Corp.":                                 "gamma corp",
		"Beta, Corp.":                                 "beta",
		`Alpha Holdings, Inc. ("Parent")`:             "alpha holdings",
		"Omega Industries Limited":                    "omega industries",
	}
	for in, want := range cases {
		if got := NormalizePartyName(in); got != want {
			t.Fatalf("NormalizePartyName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDisplayPartyName(t *testing.T) {
	got := DisplayPartyName(`Alpha Holdings, Inc., a Delaware corporation ("Parent")`)
	if got != "Alpha Holdings, Inc" {
		t.Fatalf("unexpected display name: %q", got)
	}
}
