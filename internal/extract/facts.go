package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dealtrace/dealtrace/internal/core/domain"
)

const (
	sectionPreamble         = "preamble"
	sectionItem101          = "item_1.01"
	sectionItem801          = "item_8.01"
	sectionAnnouncement     = "announcement"
	sectionEquityCommitment = "equity_commitment"
	sectionPressRelease     = "press_release"
	sectionSyndicateTable   = "syndicate_table"

	snippetLimit = 500
)

// Deal value in press releases: "transaction valued at approximately $5.2 billion".
var dealValueRE = regexp.MustCompile(
	`(?i)(?:transaction|deal|acquisition|merger)\s+(?:is\s+)?valued\s+at\s+(?:approximately\s+|about\s+)?(?P<amount>\$\s?\d[\d,.]*(?:\s*(?:billion|million|bn|mm|b|m))?)`)

// Result carries the facts and alerts produced by one extraction run.
type Result struct {
	Facts  []domain.AtomicFact
	Alerts []domain.ProcessingAlert
}

func (r *Result) merge(other Result) {
	r.Facts = append(r.Facts, other.Facts...)
	r.Alerts = append(r.Alerts, other.Alerts...)
}

// FactExtractor turns filings and exhibits into atomic facts. It never
// creates or touches deals; clustering happens downstream.
type FactExtractor struct {
	sponsors       *SponsorDetector
	preambleWindow int
	now            func() time.Time
}

func NewFactExtractor(sponsors *SponsorDetector, preambleWindow int) *FactExtractor {
	if preambleWindow <= 0 {
		preambleWindow = 5000
	}
	return &FactExtractor{
		sponsors:       sponsors,
		preambleWindow: preambleWindow,
		now:            time.Now,
	}
}

// ExtractFromFiling extracts facts from the filing body and all exhibits.
func (e *FactExtractor) ExtractFromFiling(filing *domain.Filing, exhibits []domain.Exhibit) Result {
	var result Result

	if filing.FormType == domain.Form8K || filing.FormType == domain.Form8KA {
		result.merge(e.extractFrom8K(filing))
	}

	for i := range exhibits {
		result.merge(e.ExtractFromExhibit(&exhibits[i]))
	}

	return result
}

func (e *FactExtractor) extractFrom8K(filing *domain.Filing) Result {
	var result Result

	text := filing.VisualText
	if text == "" {
		return result
	}

	if _, _, ok := FindItem101Section(text); ok && HasDefinitiveAgreementMention(text) {
		result.merge(e.extractPartiesFromAnnouncement(text, filing.ID, ""))

		if raw, iso, ok := ExtractAgreementDate(text, 1000); ok {
			result.Facts = append(result.Facts, e.dateFact(filing.ID, "", sectionItem101, raw, iso, 0.9))
		}
	}

	if _, _, ok := FindItem801Section(text); ok {
		result.merge(e.extractFinancingFromText(filing.ID, text))
	} else if _, ok := FindPurchaseAgreementKind(text); ok {
		// Some filings announce underwriting agreements outside the
		// standard item numbering.
		result.merge(e.extractFinancingFromText(filing.ID, text))
	}

	return result
}

// ExtractFromExhibit routes an exhibit to the extractor for its type.
func (e *FactExtractor) ExtractFromExhibit(exhibit *domain.Exhibit) Result {
	exhibitType := strings.ToUpper(exhibit.ExhibitType)

	switch {
	case strings.HasPrefix(exhibitType, "EX-2"):
		return e.extractFromMergerAgreement(exhibit)
	case strings.HasPrefix(exhibitType, "EX-10"):
		return e.extractFromEX10(exhibit)
	case strings.HasPrefix(exhibitType, "EX-99"):
		return e.extractFromPressRelease(exhibit)
	}
	return Result{}
}

// extractFromMergerAgreement handles EX-2.* merger agreements, the primary
// source for private target identification.
func (e *FactExtractor) extractFromMergerAgreement(exhibit *domain.Exhibit) Result {
	var result Result

	if exhibit.VisualText == "" {
		return result
	}
	preamble := Preamble(exhibit.VisualText, e.preambleWindow)

	if !HasMergerAgreementHeader(preamble) {
		return result
	}

	span := FindPartySpan(preamble)
	if span == "" {
		result.Alerts = append(result.Alerts, e.partyExtractionAlert(exhibit, preamble))
	} else {
		parties := SplitPartySpan(span)
		roles := ExtractPartiesWithRoles(preamble)

		roleByName := make(map[string]PartyRole, len(roles))
		for _, r := range roles {
			roleByName[NormalizePartyName(r.PartyName)] = r
		}

		for i, partyRaw := range parties {
			normalized := NormalizePartyName(partyRaw)

			roleLabel, canonical := "", ""
			confidence := 0.6
			if r, ok := roleByName[normalized]; ok {
				roleLabel, canonical = r.RoleLabel, r.CanonicalRole
				confidence = 0.9
			} else {
				// Positional fallback: the first party is usually the
				// acquirer, the last party of a three-way list the target.
				switch {
				case len(parties) == 3 && i == 2:
					roleLabel, canonical = "Company", RoleTarget
				case len(parties) >= 2 && i == 0:
					roleLabel, canonical = "Parent", RoleAcquirer
				}
			}

			fact := e.newFact(domain.FactPartyDefinition, exhibit.FilingID, exhibit.ID, confidence)
			fact.Evidence = domain.Evidence{
				Snippet: truncate(span, snippetLimit),
				Section: sectionPreamble,
			}
			fact.ExtractionPattern = "PREAMBLE_PARTY_LIST"
			fact.Payload = domain.FactPayload{
				PartyNameRaw:        partyRaw,
				PartyNameNormalized: normalized,
				PartyNameDisplay:    DisplayPartyName(partyRaw),
				RoleLabel:           orUnknown(roleLabel),
				CanonicalRole:       canonical,
			}
			result.Facts = append(result.Facts, fact)
		}
	}

	if raw, iso, ok := ExtractAgreementDate(preamble, 1000); ok {
		result.Facts = append(result.Facts, e.dateFact(exhibit.FilingID, exhibit.ID, sectionPreamble, raw, iso, 0.95))
	}

	return result
}

// extractFromEX10 handles EX-10.* exhibits: commitment letters carry
// sponsor evidence, credit agreements carry financing facts and syndicate
// tables.
func (e *FactExtractor) extractFromEX10(exhibit *domain.Exhibit) Result {
	var result Result

	if exhibit.VisualText == "" {
		return result
	}
	text := exhibit.VisualText
	description := strings.ToLower(exhibit.Description)

	if strings.Contains(description, "commitment") || strings.Contains(description, "equity") {
		result.merge(e.extractSponsorFacts(exhibit, text, sectionEquityCommitment))
	}

	if strings.Contains(description, "credit") || strings.Contains(description, "loan") ||
		strings.Contains(description, "indenture") || strings.Contains(description, "financing") ||
		strings.Contains(description, "bridge") {
		result.merge(e.extractFinancingFromText(exhibit.FilingID, text))
		result.merge(e.extractTableRoles(exhibit))
	}

	return result
}

// extractFromPressRelease handles EX-99.* press releases: sponsor mentions
// and headline deal values.
func (e *FactExtractor) extractFromPressRelease(exhibit *domain.Exhibit) Result {
	var result Result

	if exhibit.VisualText == "" {
		return result
	}
	text := exhibit.VisualText

	result.merge(e.extractSponsorFacts(exhibit, text, sectionPressRelease))

	if loc := dealValueRE.FindStringSubmatchIndex(text); loc != nil {
		amountRaw := text[loc[2]:loc[3]]
		if amount, ok := ParseCurrencyAmount(amountRaw); ok {
			fact := e.newFact(domain.FactDealValue, exhibit.FilingID, exhibit.ID, 0.85)
			fact.Evidence = domain.Evidence{
				Snippet:     contextAround(text, loc[0], loc[1], 150),
				StartOffset: loc[0],
				EndOffset:   loc[1],
				Section:     sectionPressRelease,
			}
			fact.ExtractionPattern = "DEAL_VALUE_PATTERN"
			fact.Payload = domain.FactPayload{
				AmountUSD: amount.ValueUSD,
				AmountRaw: amount.RawText,
				Currency:  "USD",
			}
			result.Facts = append(result.Facts, fact)
		}
	}

	return result
}

func (e *FactExtractor) extractSponsorFacts(exhibit *domain.Exhibit, text, section string) Result {
	var result Result

	matches := e.sponsors.Detect(text)
	for _, m := range matches {
		fact := e.newFact(domain.FactSponsorMention, exhibit.FilingID, exhibit.ID, m.Confidence)
		fact.Evidence = domain.Evidence{
			Snippet: truncate(m.ContextSnippet, snippetLimit),
			Section: section,
		}
		fact.ExtractionPattern = m.SourcePattern
		fact.Payload = domain.FactPayload{
			SponsorNameRaw:        m.NameRaw,
			SponsorNameNormalized: m.NameNormalized,
			SponsorNameDisplay:    m.NameDisplay,
			SourcePattern:         m.SourcePattern,
			UnresolvedSponsor:     m.SourcePattern != sponsorSourceSeedList,
		}
		result.Facts = append(result.Facts, fact)
	}

	// Sponsor language with no resolvable entity needs a human.
	if len(matches) == 0 && e.sponsors.HasSponsorSignals(text) {
		now := e.now()
		result.Alerts = append(result.Alerts, domain.ProcessingAlert{
			ID:            uuid.NewString(),
			Kind:          domain.AlertFailedSponsorExtraction,
			FilingID:      exhibit.FilingID,
			ExhibitID:     exhibit.ID,
			Title:         "Sponsor language present but no sponsor entity resolved",
			Description:   fmt.Sprintf("Exhibit %s mentions sponsor-backed financing but no seed-list or affiliation match was found.", exhibit.ExhibitType),
			FieldsNeeded:  []string{"sponsor_name", "is_sponsor_backed"},
			SourcePreview: truncate(text, snippetLimit),
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	return result
}

func (e *FactExtractor) extractFinancingFromText(filingID, text string) Result {
	var result Result

	instruments := ExtractDebtInstruments(text, 200)
	underwriters := ExtractUnderwriters(text, 150)

	participants := make([]domain.Participant, 0, len(underwriters))
	for _, uw := range underwriters {
		participants = append(participants, domain.Participant{
			BankNameRaw:        uw.NameRaw,
			BankNameNormalized: uw.NameNormalized,
			Role:               uw.Role,
			Evidence:           truncate(uw.EvidenceSnippet, 200),
		})
	}

	for _, inst := range instruments {
		fact := e.newFact(domain.FactFinancingMention, filingID, "", inst.Confidence)
		fact.Evidence = domain.Evidence{
			Snippet:     truncate(inst.EvidenceSnippet, snippetLimit),
			StartOffset: inst.Offset,
			Section:     sectionItem801,
		}
		fact.ExtractionPattern = "DEBT_INSTRUMENT_PATTERN"
		fact.Payload = domain.FactPayload{
			InstrumentType:    inst.InstrumentType,
			InstrumentSubtype: inst.InstrumentRaw,
			AmountUSD:         inst.AmountUSD,
			AmountRaw:         inst.AmountRaw,
			Currency:          "USD",
			MaturityYear:      inst.MaturityYear,
			InterestRate:      inst.InterestRate,
			Participants:      participants,
		}
		result.Facts = append(result.Facts, fact)
	}

	// No instrument but named underwriters: record them as advisor facts so
	// attribution still sees the syndicate.
	if len(instruments) == 0 {
		for _, uw := range underwriters {
			fact := e.newFact(domain.FactAdvisorMention, filingID, "", uw.Confidence)
			fact.Evidence = domain.Evidence{
				Snippet: truncate(uw.EvidenceSnippet, snippetLimit),
				Section: sectionItem801,
			}
			fact.ExtractionPattern = "UNDERWRITER_PATTERN"
			fact.Payload = domain.FactPayload{
				BankNameRaw:        uw.NameRaw,
				BankNameNormalized: uw.NameNormalized,
				Role:               uw.Role,
				ClientSide:         "issuer",
			}
			result.Facts = append(result.Facts, fact)
		}
	}

	if raw, iso, ok := ExtractAgreementDate(text, 1000); ok {
		result.Facts = append(result.Facts, e.dateFact(filingID, "", sectionItem801, raw, iso, 0.9))
	}

	return result
}

// extractTableRoles parses syndicate tables in the exhibit's raw HTML and
// emits one TABLE_ROLE fact per bank/role pair.
func (e *FactExtractor) extractTableRoles(exhibit *domain.Exhibit) Result {
	var result Result

	if exhibit.RawContent == "" {
		return result
	}
	pairs, err := ExtractFinancingParticipants(exhibit.RawContent)
	if err != nil {
		return result
	}

	for _, pair := range pairs {
		fact := e.newFact(domain.FactTableRole, exhibit.FilingID, exhibit.ID, 0.85)
		fact.Evidence = domain.Evidence{
			Snippet:  truncate(pair.Evidence, snippetLimit),
			TableRow: pair.Row,
			TableCol: pair.Col,
			Section:  sectionSyndicateTable,
		}
		fact.ExtractionMethod = domain.ExtractionTable
		fact.ExtractionPattern = "SYNDICATE_TABLE"
		fact.Payload = domain.FactPayload{
			BankNameRaw:        pair.BankName,
			BankNameNormalized: NormalizePartyName(pair.BankName),
			Role:               pair.Role,
		}
		result.Facts = append(result.Facts, fact)
	}

	return result
}

func (e *FactExtractor) extractPartiesFromAnnouncement(text, filingID, exhibitID string) Result {
	var result Result

	window := Preamble(text, e.preambleWindow)
	span := FindPartySpan(window)
	if span == "" {
		return result
	}

	for _, partyRaw := range SplitPartySpan(span) {
		fact := e.newFact(domain.FactPartyMention, filingID, exhibitID, 0.7)
		fact.Evidence = domain.Evidence{
			Snippet: truncate(span, snippetLimit),
			Section: sectionAnnouncement,
		}
		fact.ExtractionPattern = "PREAMBLE_PARTY_LIST"
		fact.Payload = domain.FactPayload{
			PartyNameRaw:        partyRaw,
			PartyNameNormalized: NormalizePartyName(partyRaw),
			PartyNameDisplay:    DisplayPartyName(partyRaw),
			RoleLabel:           "Unknown",
		}
		result.Facts = append(result.Facts, fact)
	}

	return result
}

func (e *FactExtractor) newFact(kind domain.FactKind, filingID, exhibitID string, confidence float64) domain.AtomicFact {
	return domain.AtomicFact{
		ID:               uuid.NewString(),
		Kind:             kind,
		FilingID:         filingID,
		ExhibitID:        exhibitID,
		ExtractionMethod: domain.ExtractionPattern,
		Confidence:       confidence,
		CreatedAt:        e.now(),
	}
}

func (e *FactExtractor) dateFact(filingID, exhibitID, section, raw, iso string, confidence float64) domain.AtomicFact {
	fact := e.newFact(domain.FactDealDate, filingID, exhibitID, confidence)
	fact.Evidence = domain.Evidence{
		Snippet: "dated " + raw,
		Section: section,
	}
	fact.Payload = domain.FactPayload{
		DateType:  "agreement_date",
		DateValue: iso,
		DateRaw:   raw,
	}
	return fact
}

func (e *FactExtractor) partyExtractionAlert(exhibit *domain.Exhibit, preamble string) domain.ProcessingAlert {
	sum := sha256.Sum256([]byte(preamble))
	now := e.now()
	return domain.ProcessingAlert{
		ID:            uuid.NewString(),
		Kind:          domain.AlertFailedPartyExtraction,
		FilingID:      exhibit.FilingID,
		ExhibitID:     exhibit.ID,
		Title:         "Failed to extract parties from merger agreement preamble",
		Description:   fmt.Sprintf("Could not find a 'by and among/between' party list (preamble sha256 %s).", hex.EncodeToString(sum[:8])),
		FieldsNeeded:  []string{"acquirer", "target", "merger_sub"},
		SourcePreview: truncate(preamble, snippetLimit),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
