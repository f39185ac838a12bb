package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// All patterns assume the text has been through Normalize: smart quotes and
// dashes are already ASCII, whitespace runs are collapsed.

var (
	// Party list in agreement preambles: "by and among A, B and C."
	preamblePartyListRE = regexp.MustCompile(
		`(?is)\bby\s+and\s+(?:among|between)\b\s+(?P<span>.+?["')]\s*)\.`)
	preamblePartyListGreedyRE = regexp.MustCompile(
		`(?ism)\bby\s+and\s+(?:among|between)\b\s+(?P<span>.+)\.\s*$`)
	preamblePartiesAltRE = regexp.MustCompile(
		`(?ism)(?:entered\s+into|made)\s+(?:by\s+and\s+)?(?:among|between)\s+(?P<span>.+)\.\s*$`)

	mergerAgreementHeaderRE = regexp.MustCompile(
		`(?i)(?:AGREEMENT\s+AND\s+PLAN\s+OF\s+MERGER|PLAN\s+OF\s+MERGER|MERGER\s+AGREEMENT)`)

	// Defined-term role labels: (the "Company"), ("Purchaser"), etc.
	definedTermRoleRE = regexp.MustCompile(
		`(?i)\(\s*(?:the\s+|hereinafter\s+(?:the\s+)?|hereinafter\s+referred\s+to\s+as\s+(?:the\s+)?|referred\s+to\s+as\s+(?:the\s+)?)?["'](?P<label>[A-Za-z0-9][A-Za-z0-9\s\-]{0,40}?)["']\s*\)`)

	// Money amounts: "$500,000,000", "$1.5 billion", "$750 million".
	currencyAmountRE = regexp.MustCompile(
		`(?i)\$\s?(?P<num>\d{1,3}(?:,\d{3})*(?:\.\d+)?)\s*(?P<scale>billion|million|bn|mm|mil|b|m)?`)

	item101RE = regexp.MustCompile(
		`(?i)Item\s+1\.01[.\s]+Entry\s+into\s+a\s+Material\s+Definitive\s+Agreement`)
	item801RE = regexp.MustCompile(
		`(?i)Item\s+8\.01[.\s]+Other\s+Events`)
	nextItemRE = regexp.MustCompile(`(?i)Item\s+\d+\.\d+`)

	definitiveAgreementRE = regexp.MustCompile(
		`(?i)entered\s+into\s+(?:a|an)\s+(?:Agreement\s+and\s+Plan\s+of\s+Merger|Merger\s+Agreement|definitive\s+agreement)`)

	purchaseAgreementRE = regexp.MustCompile(
		`(?i)entered\s+into\s+(?:a\s+)?(?P<kind>purchase\s+agreement|underwriting\s+agreement)`)

	// Bonds and notes, with optional coupon and maturity.
	debtInstrumentRE = regexp.MustCompile(
		`(?i)(?P<amount>\$[\d,]+(?:\.\d+)?(?:\s*(?:billion|million|bn|mm|b|m))?)\s+` +
			`(?:aggregate\s+)?(?:principal\s+)?(?:amount\s+)?(?:of\s+)?(?:its\s+)?` +
			`(?P<rate>[\d.]+%\s+)?` +
			`(?P<instrument>Senior\s+Secured\s+Notes?|Senior\s+Notes?|Subordinated\s+Notes?|Convertible\s+Notes?|Notes?|Bonds?|Debentures?)` +
			`(?:\s+due\s+(?P<maturity>\d{4}))?`)

	// Credit facilities, term loans, bridges, revolvers.
	creditFacilityRE = regexp.MustCompile(
		`(?i)(?P<amount>\$[\d,]+(?:\.\d+)?(?:\s*(?:billion|million|bn|mm|b|m))?)\s+` +
			`(?:aggregate\s+)?(?:principal\s+)?(?:amount\s+)?` +
			`(?P<instrument>(?:senior\s+)?(?:secured\s+)?(?:unsecured\s+)?(?:revolving\s+)?(?:credit\s+)?(?:facility|term\s+loan|bridge\s+loan|rcf|revolver))`)

	underwriterRE = regexp.MustCompile(
		`(?i)(?:with|among)\s+(?P<names>[\w\s,&.]+?(?:LLC|Inc\.?|L\.?P\.?|Securities|Capital|Bank)?` +
			`(?:\s+and\s+[\w\s,&.]+?(?:LLC|Inc\.?|L\.?P\.?|Securities|Capital|Bank))?)` +
			`(?:,?\s+as\s+(?:representatives?\s+of\s+(?:the\s+)?(?:several\s+)?underwriters?|underwriters?|lead\s+(?:book-?running\s+)?managers?|joint\s+(?:book-?running\s+)?managers?))`)

	underwriterSimpleRE = regexp.MustCompile(
		`(?i)(?:underwriters?\s+(?:named|identified|listed)\s+(?:in|on)\s+|(?:the\s+)?underwriters?\s+(?:are|include|were)\s+)` +
			`(?P<names>[A-Z][\w\s,&.]+?)(?:\.|,\s+(?:relating|whereby|pursuant))`)

	underwriterSplitRE = regexp.MustCompile(`(?i)\s+and\s+|,\s*`)
)

// roleLabelMapping maps defined-term labels to canonical deal roles.
var roleLabelMapping = map[string]string{
	"company": RoleTarget,
	"target":  RoleTarget,
	"seller":  RoleTarget,

	"parent":    RoleAcquirer,
	"buyer":     RoleAcquirer,
	"purchaser": RoleAcquirer,
	"acquirer":  RoleAcquirer,
	"acquiror":  RoleAcquirer,
	"holdco":    RoleAcquirer,
	"holdings":  RoleAcquirer,

	"merger sub":             RoleMergerSub,
	"merger subsidiary":      RoleMergerSub,
	"acquisition sub":        RoleMergerSub,
	"acquisition subsidiary": RoleMergerSub,
	"newco":                  RoleMergerSub,
}

const (
	RoleTarget    = "target"
	RoleAcquirer  = "acquirer"
	RoleMergerSub = "merger_sub"
)

// MapRoleLabel resolves a defined-term label to its canonical role, or ""
// when the label carries no role information.
func MapRoleLabel(label string) string {
	return roleLabelMapping[strings.ToLower(strings.TrimSpace(label))]
}

// FindPartySpan locates the party list in a preamble and returns the raw
// span text, or "" if no party list structure is present.
func FindPartySpan(preamble string) string {
	if m := preamblePartyListRE.FindStringSubmatch(preamble); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := preamblePartyListGreedyRE.FindStringSubmatch(preamble); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := preamblePartiesAltRE.FindStringSubmatch(preamble); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// HasMergerAgreementHeader reports whether the text looks like a merger
// agreement body rather than, say, a press release.
func HasMergerAgreementHeader(text string) bool {
	return mergerAgreementHeaderRE.MatchString(text)
}

var jurisdictionalLeadRE = regexp.MustCompile(
	`(?i)^,?\s*a\s+(?:Delaware|Nevada|California|New York|Texas|Florida|Maryland|[A-Z][a-z]+)\s+`)

var newPartyAfterCommaRE = regexp.MustCompile(
	`^,\s+[A-Z][a-z]+\s+(?:Inc|Corp|LLC|Ltd|Co|LP|Holdings|Group|Merger)`)

// SplitPartySpan splits a preamble party span into individual parties.
// Commas inside parentheses and commas introducing jurisdictional
// descriptors ("a Delaware corporation") are not separators.
func SplitPartySpan(span string) []string {
	span = strings.Join(strings.Fields(span), " ")

	var parties []string
	var current strings.Builder
	parenDepth := 0

	flush := func() {
		if p := strings.TrimSpace(current.String()); p != "" {
			parties = append(parties, p)
		}
		current.Reset()
	}

	for i := 0; i < len(span); {
		c := span[i]
		switch {
		case c == '(':
			parenDepth++
			current.WriteByte(c)
		case c == ')':
			if parenDepth > 0 {
				parenDepth--
			}
			current.WriteByte(c)
		case c == ',' && parenDepth == 0:
			rest := span[i:]
			lower := strings.ToLower(rest)
			switch {
			case jurisdictionalLeadRE.MatchString(rest):
				current.WriteByte(c)
			case strings.HasPrefix(lower, ", and "):
				flush()
				i += 5 // skip ", and"
			case newPartyAfterCommaRE.MatchString(rest):
				flush()
				i++
				for i < len(span) && (span[i] == ' ' || span[i] == '\t' || span[i] == '\n') {
					i++
				}
				continue
			default:
				current.WriteByte(c)
			}
		case parenDepth == 0 && i+5 <= len(span) && strings.EqualFold(span[i:i+5], " and "):
			before := strings.TrimSpace(current.String())
			if before != "" && (strings.HasSuffix(before, ")") || strings.HasSuffix(before, `"`) || strings.HasSuffix(before, "'")) {
				parties = append(parties, before)
				current.Reset()
				i += 5
				continue
			}
			current.WriteByte(c)
		default:
			current.WriteByte(c)
		}
		i++
	}
	flush()

	return parties
}

// PartyRole is one party with its defined-term role from a preamble.
type PartyRole struct {
	PartyName     string
	RoleLabel     string
	CanonicalRole string
	Offset        int
}

// ExtractPartiesWithRoles finds defined-term parentheticals and binds each
// to the party name immediately preceding it.
func ExtractPartiesWithRoles(text string) []PartyRole {
	var out []PartyRole
	for _, loc := range definedTermRoleRE.FindAllStringSubmatchIndex(text, -1) {
		label := text[loc[2]:loc[3]]
		canonical := MapRoleLabel(label)
		if canonical == "" {
			continue
		}

		before := strings.TrimSpace(text[:loc[0]])
		segments := strings.FieldsFunc(before, func(r rune) bool {
			return r == ',' || r == ';'
		})
		partyName := ""
		if len(segments) > 0 {
			partyName = strings.TrimSpace(segments[len(segments)-1])
		}
		if partyName == "" {
			continue
		}

		out = append(out, PartyRole{
			PartyName:     partyName,
			RoleLabel:     label,
			CanonicalRole: canonical,
			Offset:        loc[0],
		})
	}
	return out
}

// CurrencyAmount is a parsed money mention.
type CurrencyAmount struct {
	RawText      string
	NumericValue float64
	ScaleWord    string
	ValueUSD     float64
	Offset       int
}

var scaleMultipliers = map[string]float64{
	"million": 1e6, "mil": 1e6, "m": 1e6, "mm": 1e6,
	"billion": 1e9, "b": 1e9, "bn": 1e9,
}

// ParseCurrencyAmount parses a single money string like "$1.5 billion".
func ParseCurrencyAmount(raw string) (CurrencyAmount, bool) {
	loc := currencyAmountRE.FindStringSubmatchIndex(raw)
	if loc == nil {
		return CurrencyAmount{}, false
	}
	return currencyAmountAt(raw, loc), true
}

// ExtractCurrencyAmounts finds every money mention in the text.
func ExtractCurrencyAmounts(text string) []CurrencyAmount {
	var out []CurrencyAmount
	for _, loc := range currencyAmountRE.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, currencyAmountAt(text, loc))
	}
	return out
}

func currencyAmountAt(text string, loc []int) CurrencyAmount {
	raw := text[loc[0]:loc[1]]
	numStr := strings.ReplaceAll(text[loc[2]:loc[3]], ",", "")
	scale := ""
	if loc[4] >= 0 {
		scale = text[loc[4]:loc[5]]
	}

	numeric, _ := strconv.ParseFloat(numStr, 64)
	multiplier := 1.0
	if m, ok := scaleMultipliers[strings.ToLower(scale)]; ok {
		multiplier = m
	}

	return CurrencyAmount{
		RawText:      raw,
		NumericValue: numeric,
		ScaleWord:    scale,
		ValueUSD:     numeric * multiplier,
		Offset:       loc[0],
	}
}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)dated\s+(?:as\s+of\s+)?(?P<date>(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4})`),
	regexp.MustCompile(`(?i)entered\s+into\s+(?:on\s+)?(?P<date>(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4})`),
	regexp.MustCompile(`dated\s+(?:as\s+of\s+)?(?P<date>\d{4}-\d{2}-\d{2})`),
}

// "dated as of the 15th day of January, 2024"
var dateDayOfRE = regexp.MustCompile(
	`(?i)dated\s+(?:as\s+of\s+)?the\s+(?P<day>\d{1,2})(?:st|nd|rd|th)?\s+day\s+of\s+(?P<month>January|February|March|April|May|June|July|August|September|October|November|December),?\s+(?P<year>\d{4})`)

var monthDayYearRE = regexp.MustCompile(
	`(?i)^(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{1,2}),?\s+(\d{4})$`)

var isoDateRE = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

var monthNumbers = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

// ParseDateToISO converts "January 15, 2024" or "2024-01-15" to ISO 8601.
func ParseDateToISO(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)

	if isoDateRE.MatchString(raw) {
		if _, err := time.Parse("2006-01-02", raw); err != nil {
			return "", false
		}
		return raw, true
	}

	m := monthDayYearRE.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	month := monthNumbers[strings.ToLower(m[1])]
	day, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])

	dt := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if dt.Day() != day || dt.Month() != month {
		return "", false
	}
	return dt.Format("2006-01-02"), true
}

// ExtractAgreementDate searches the first maxChars of text for a dated-as-of
// clause and returns the raw and ISO forms.
func ExtractAgreementDate(text string, maxChars int) (raw, iso string, ok bool) {
	search := text
	if maxChars > 0 && len(search) > maxChars {
		search = search[:maxChars]
	}

	for _, re := range datePatterns {
		m := re.FindStringSubmatch(search)
		if m == nil {
			continue
		}
		raw = m[1]
		if iso, ok = ParseDateToISO(raw); ok {
			return raw, iso, true
		}
	}

	if m := dateDayOfRE.FindStringSubmatch(search); m != nil {
		raw = fmt.Sprintf("%s %s, %s", m[2], m[1], m[3])
		if iso, ok = ParseDateToISO(raw); ok {
			return raw, iso, true
		}
	}

	return "", "", false
}

// FindItem101Section returns the bounds of the Item 1.01 section of an 8-K
// body, or ok=false when the filing has none.
func FindItem101Section(text string) (start, end int, ok bool) {
	return findItemSection(text, item101RE)
}

// FindItem801Section returns the bounds of the Item 8.01 section, where
// standalone debt issuances are usually reported.
func FindItem801Section(text string) (start, end int, ok bool) {
	return findItemSection(text, item801RE)
}

func findItemSection(text string, re *regexp.Regexp) (int, int, bool) {
	loc := re.FindStringIndex(text)
	if loc == nil {
		return 0, 0, false
	}
	end := len(text)
	if next := nextItemRE.FindStringIndex(text[loc[1]:]); next != nil {
		end = loc[1] + next[0]
	}
	return loc[0], end, true
}

// HasDefinitiveAgreementMention reports whether the text announces entry
// into a merger agreement.
func HasDefinitiveAgreementMention(text string) bool {
	return definitiveAgreementRE.MatchString(text)
}

// FindPurchaseAgreementKind returns "purchase agreement" or "underwriting
// agreement" when the text announces one.
func FindPurchaseAgreementKind(text string) (string, bool) {
	m := purchaseAgreementRE.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.ToLower(strings.Join(strings.Fields(m[1]), " ")), true
}

// instrumentTypeMap maps raw instrument phrases to normalized types.
var instrumentTypeMap = []struct {
	key string
	typ string
}{
	{"senior secured notes", "bond"},
	{"senior notes", "bond"},
	{"subordinated notes", "bond"},
	{"convertible notes", "convertible_bond"},
	{"debentures", "bond"},
	{"bonds", "bond"},
	{"notes", "bond"},
	{"term loan", "term_loan"},
	{"bridge loan", "bridge_loan"},
	{"revolving credit facility", "rcf"},
	{"revolving facility", "rcf"},
	{"revolver", "rcf"},
	{"rcf", "rcf"},
	{"credit facility", "credit_facility"},
}

func mapInstrumentType(raw, fallback string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	for _, entry := range instrumentTypeMap {
		if strings.Contains(lower, entry.key) {
			return entry.typ
		}
	}
	return fallback
}

// DebtInstrument is a parsed debt instrument mention.
type DebtInstrument struct {
	InstrumentType  string
	InstrumentRaw   string
	AmountUSD       float64
	AmountRaw       string
	InterestRate    string
	MaturityYear    string
	EvidenceSnippet string
	Offset          int
	Confidence      float64
}

// ExtractDebtInstruments finds notes/bonds and credit facility mentions.
func ExtractDebtInstruments(text string, contextWindow int) []DebtInstrument {
	var out []DebtInstrument

	for _, loc := range debtInstrumentRE.FindAllStringSubmatchIndex(text, -1) {
		amountRaw := text[loc[2]:loc[3]]
		rate := ""
		if loc[4] >= 0 {
			rate = strings.TrimSpace(text[loc[4]:loc[5]])
		}
		instrumentRaw := text[loc[6]:loc[7]]
		maturity := ""
		if loc[8] >= 0 {
			maturity = text[loc[8]:loc[9]]
		}

		amountUSD := 0.0
		if amt, ok := ParseCurrencyAmount(amountRaw); ok {
			amountUSD = amt.ValueUSD
		}

		out = append(out, DebtInstrument{
			InstrumentType:  mapInstrumentType(instrumentRaw, "bond"),
			InstrumentRaw:   instrumentRaw,
			AmountUSD:       amountUSD,
			AmountRaw:       amountRaw,
			InterestRate:    rate,
			MaturityYear:    maturity,
			EvidenceSnippet: contextAround(text, loc[0], loc[1], contextWindow),
			Offset:          loc[0],
			Confidence:      0.9,
		})
	}

	for _, loc := range creditFacilityRE.FindAllStringSubmatchIndex(text, -1) {
		amountRaw := text[loc[2]:loc[3]]
		instrumentRaw := text[loc[4]:loc[5]]

		amountUSD := 0.0
		if amt, ok := ParseCurrencyAmount(amountRaw); ok {
			amountUSD = amt.ValueUSD
		}

		out = append(out, DebtInstrument{
			InstrumentType:  mapInstrumentType(instrumentRaw, "credit_facility"),
			InstrumentRaw:   instrumentRaw,
			AmountUSD:       amountUSD,
			AmountRaw:       amountRaw,
			EvidenceSnippet: contextAround(text, loc[0], loc[1], contextWindow),
			Offset:          loc[0],
			Confidence:      0.85,
		})
	}

	return out
}

// Underwriter is a parsed underwriter/manager mention.
type Underwriter struct {
	NameRaw         string
	NameNormalized  string
	Role            string
	EvidenceSnippet string
	Confidence      float64
}

// ExtractUnderwriters finds underwriters in purchase/underwriting agreement
// announcements.
func ExtractUnderwriters(text string, contextWindow int) []Underwriter {
	var out []Underwriter

	for _, re := range []*regexp.Regexp{underwriterRE, underwriterSimpleRE} {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			namesRaw := text[loc[2]:loc[3]]
			context := contextAround(text, loc[0], loc[1], contextWindow)
			contextLower := strings.ToLower(context)

			role := "underwriter"
			if strings.Contains(contextLower, "lead") || strings.Contains(contextLower, "book-running") {
				role = "lead_manager"
			} else if strings.Contains(contextLower, "representative") {
				role = "representative"
			}

			for _, name := range underwriterSplitRE.Split(namesRaw, -1) {
				name = strings.TrimSpace(name)
				if len(name) < 3 {
					continue
				}
				switch strings.ToLower(name) {
				case "the", "as", "of", "several", "representatives":
					continue
				}
				out = append(out, Underwriter{
					NameRaw:         name,
					NameNormalized:  strings.ToLower(name),
					Role:            role,
					EvidenceSnippet: context,
					Confidence:      0.85,
				})
			}
		}
	}

	return out
}

func contextAround(text string, start, end, window int) string {
	lo := start - window
	if lo < 0 {
		lo = 0
	}
	hi := end + window
	if hi > len(text) {
		hi = len(text)
	}
	return text[lo:hi]
}
