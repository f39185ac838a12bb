package extract

import (
	"os"
	"path/filepath"
	"testing"
)

func testSeeds() SponsorSeeds {
	return SponsorSeeds{
		"kkr":         "KKR",
		"thoma bravo": "Thoma Bravo",
		"blackstone":  "Blackstone",
		"silver lake": "Silver Lake",
	}
}

func TestSponsorDetectorSeedListMatch(t *testing.T) {
	d := NewSponsorDetector(testSeeds(), 150)

	matches := d.Detect("The acquisition is backed by funds affiliated with Thoma Bravo and its co-investors.")
	if len(matches) != 1 {
		t.Fatalf("expected 1 sponsor, got %d: %+v", len(matches), matches)
	}
	m := matches[0]
	if m.NameDisplay != "Thoma Bravo" {
		t.Fatalf("unexpected display name: %q", m.NameDisplay)
	}
	if m.SourcePattern != "seed_list" {
		t.Fatalf("unexpected source: %q", m.SourcePattern)
	}
	if m.Confidence != 0.95 {
		t.Fatalf("seed list matches carry 0.95 confidence, got %v", m.Confidence)
	}
}

func TestSponsorDetectorAffiliationPattern(t *testing.T) {
	d := NewSponsorDetector(testSeeds(), 150)

	matches := d.Detect("Parent is controlled by Meridian Capital Partners, a private investment firm.")
	if len(matches) != 1 {
		t.Fatalf("expected 1 sponsor, got %d: %+v", len(matches), matches)
	}
	m := matches[0]
	if m.SourcePattern != "affiliation_pattern" {
		t.Fatalf("unexpected source: %q", m.SourcePattern)
	}
	if m.Confidence != 0.85 {
		t.Fatalf("affiliation matches carry 0.85 confidence, got %v", m.Confidence)
	}
	if m.NameNormalized != "meridian capital partners" {
		t.Fatalf("unexpected normalized name: %q", m.NameNormalized)
	}
}

func TestSponsorDetectorNegationSuppresses(t *testing.T) {
	d := NewSponsorDetector(testSeeds(), 150)

	matches := d.Detect("Although KKR advised on prior deals, the issuer is not a sponsor-backed company.")
	if len(matches) != 0 {
		t.Fatalf("negated sponsor mention must be suppressed, got %+v", matches)
	}
}

func TestSponsorDetectorDeduplicatesTiers(t *testing.T) {
	d := NewSponsorDetector(testSeeds(), 150)

	// Seed substring and affiliation pattern both hit Blackstone; only one
	// fact should survive.
	matches := d.Detect("funds managed by Blackstone, together with co-investors, will provide the equity financing.")
	if len(matches) != 1 {
		t.Fatalf("expected deduplicated single match, got %d: %+v", len(matches), matches)
	}
	if matches[0].Confidence != 0.95 {
		t.Fatalf("seed tier should win dedupe, got confidence %v", matches[0].Confidence)
	}
}

func TestHasSponsorSignals(t *testing.T) {
	d := NewSponsorDetector(testSeeds(), 150)

	if !d.HasSponsorSignals("delivery of an equity commitment letter by the investor") {
		t.Fatal("equity commitment letter is a sponsor signal")
	}
	if d.HasSponsorSignals("the parties executed a supply agreement") {
		t.Fatal("plain commercial text carries no sponsor signal")
	}
}

func TestLoadSponsorSeeds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sponsors.yaml")
	content := `sponsors:
  - display: KKR
    aliases: ["kkr", "kohlberg kravis roberts"]
  - display: Thoma Bravo
    aliases: ["thoma bravo"]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	seeds, err := LoadSponsorSeeds(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seeds) != 3 {
		t.Fatalf("expected 3 aliases, got %d", len(seeds))
	}
	if seeds["kohlberg kravis roberts"] != "KKR" {
		t.Fatalf("alias not mapped: %+v", seeds)
	}
}

func TestLoadSponsorSeedsRejectsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sponsors.yaml")
	if err := os.WriteFile(path, []byte("sponsors: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadSponsorSeeds(path); err == nil {
		t.Fatal("empty seed list must be a configuration error")
	}
}
