package extract

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dealtrace/dealtrace/internal/core/domain"
)

var (
	sponsorAffiliationRE = regexp.MustCompile(
		`(?i)(?:affiliates?\s+of|funds?\s+managed\s+by|portfolio\s+compan(?:y|ies)\s+of|controlled\s+by)\s+(?P<sponsor>[A-Z][A-Za-z0-9\s,&.'-]{2,80}?)(?:\.|,|;|\s+and\b|\s+\)|$)`)

	sponsorNegativeRE = regexp.MustCompile(
		`(?i)\b(?:not\s+a\s+(?:financial\s+)?sponsor|independent\s+of\s+(?:any\s+)?sponsor|no\s+sponsor|without\s+(?:any\s+)?sponsor|non-sponsored)\b`)

	sponsorKeywordRE = regexp.MustCompile(
		`(?i)\b(?:financial\s+sponsor|private\s+equity|PE\s+firm|buyout\s+(?:firm|fund)|sponsor(?:ed)?(?:\s+transaction)?)\b`)

	equityCommitmentRE = regexp.MustCompile(
		`(?i)\b(?:equity\s+commitment\s+letter|equity\s+financing|sponsor\s+equity)\b`)

	sponsorNamePunctRE = regexp.MustCompile(`[,.\-']`)
)

const (
	sponsorSourceSeedList    = "seed_list"
	sponsorSourceAffiliation = "affiliation_pattern"

	sponsorSeedConfidence        = 0.95
	sponsorAffiliationConfidence = 0.85
)

// SponsorSeeds maps normalized sponsor aliases to display names. Ordered
// iteration is not needed; matches are dedup'd by normalized name.
type SponsorSeeds map[string]string

type sponsorSeedFile struct {
	Sponsors []struct {
		Display string   `yaml:"display"`
		Aliases []string `yaml:"aliases"`
	} `yaml:"sponsors"`
}

// LoadSponsorSeeds reads the sponsor seed list. The file is required: an
// empty seed list silently degrades sponsor detection, so a missing or
// malformed file is a startup error.
func LoadSponsorSeeds(path string) (SponsorSeeds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfig, "extract.LoadSponsorSeeds", err)
	}

	var file sponsorSeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, domain.WrapError(domain.ErrConfig, "extract.LoadSponsorSeeds", err)
	}
	if len(file.Sponsors) == 0 {
		return nil, domain.WrapError(domain.ErrConfig, "extract.LoadSponsorSeeds",
			fmt.Errorf("%s: no sponsors defined", path))
	}

	seeds := make(SponsorSeeds)
	for _, entry := range file.Sponsors {
		if entry.Display == "" {
			return nil, domain.WrapError(domain.ErrConfig, "extract.LoadSponsorSeeds",
				fmt.Errorf("%s: sponsor entry missing display name", path))
		}
		for _, alias := range entry.Aliases {
			alias = strings.ToLower(strings.TrimSpace(alias))
			if alias != "" {
				seeds[alias] = entry.Display
			}
		}
	}
	return seeds, nil
}

// SponsorMatch is one detected sponsor mention with its provenance tier.
type SponsorMatch struct {
	NameRaw        string
	NameNormalized string
	NameDisplay    string
	SourcePattern  string
	ContextSnippet string
	Confidence     float64
	Offset         int
}

// SponsorDetector finds private equity sponsor mentions using a two-tier
// strategy: exact seed-list aliases first, then affiliation phrases. A
// negation phrase inside the context window suppresses the match.
type SponsorDetector struct {
	seeds         SponsorSeeds
	contextRadius int
}

func NewSponsorDetector(seeds SponsorSeeds, contextRadius int) *SponsorDetector {
	if contextRadius <= 0 {
		contextRadius = 150
	}
	return &SponsorDetector{seeds: seeds, contextRadius: contextRadius}
}

// Detect returns sponsor mentions in the text, seed-list hits before
// affiliation-pattern hits.
func (d *SponsorDetector) Detect(text string) []SponsorMatch {
	var out []SponsorMatch
	lower := strings.ToLower(text)

	for alias, display := range d.seeds {
		pos := strings.Index(lower, alias)
		if pos < 0 {
			continue
		}
		context := contextAround(text, pos, pos+len(alias), d.contextRadius)
		if sponsorNegativeRE.MatchString(context) {
			continue
		}
		out = append(out, SponsorMatch{
			NameRaw:        text[pos : pos+len(alias)],
			NameNormalized: alias,
			NameDisplay:    display,
			SourcePattern:  sponsorSourceSeedList,
			ContextSnippet: context,
			Confidence:     sponsorSeedConfidence,
			Offset:         pos,
		})
	}

	for _, loc := range sponsorAffiliationRE.FindAllStringSubmatchIndex(text, -1) {
		raw := strings.TrimSpace(text[loc[2]:loc[3]])
		if raw == "" {
			continue
		}
		context := contextAround(text, loc[0], loc[1], d.contextRadius)
		if sponsorNegativeRE.MatchString(context) {
			continue
		}

		normalized := strings.ToLower(raw)
		normalized = sponsorNamePunctRE.ReplaceAllString(normalized, "")
		normalized = strings.Join(strings.Fields(normalized), " ")

		display := raw
		source := sponsorSourceAffiliation
		confidence := sponsorAffiliationConfidence
		if seedDisplay, ok := d.seeds[normalized]; ok {
			display = seedDisplay
			source = sponsorSourceSeedList
			confidence = sponsorSeedConfidence
		}

		out = append(out, SponsorMatch{
			NameRaw:        raw,
			NameNormalized: normalized,
			NameDisplay:    display,
			SourcePattern:  source,
			ContextSnippet: context,
			Confidence:     confidence,
			Offset:         loc[0],
		})
	}

	out = dedupeSponsors(out)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Offset != out[j].Offset {
			return out[i].Offset < out[j].Offset
		}
		return out[i].NameNormalized < out[j].NameNormalized
	})
	return out
}

// HasSponsorSignals reports whether the text carries sponsor-related
// language at all, used to raise extraction-failure alerts when signals
// exist but no sponsor entity could be resolved.
func (d *SponsorDetector) HasSponsorSignals(text string) bool {
	return sponsorKeywordRE.MatchString(text) || equityCommitmentRE.MatchString(text)
}

func dedupeSponsors(matches []SponsorMatch) []SponsorMatch {
	seen := make(map[string]bool, len(matches))
	out := matches[:0]
	for _, m := range matches {
		if seen[m.NameNormalized] {
			continue
		}
		seen[m.NameNormalized] = true
		out = append(out, m)
	}
	return out
}
