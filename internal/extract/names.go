package extract

import (
	"regexp"
	"strings"
)

var (
	parentheticalRE = regexp.MustCompile(`\([^)]*\)`)

	// Full-word suffixes stripped unconditionally.
	companySuffixRE = regexp.MustCompile(
		`(?i),?\s*(?:Inc\.?|Incorporated|Corporation|LLC|L\.?L\.?C\.?|Ltd\.?|Limited|Company|LP|L\.?P\.?|LLP|PLC|N\.?A\.?|S\.?A\.?|AG|GmbH|BV|NV)\.?$`)

	// "Corp." and "Co." are only stripped after a comma so names like
	// "Gamma Corp." survive normalization intact.
	companySuffixSecondaryRE = regexp.MustCompile(`(?i),\s*(?:Corp\.?|Co\.?)$`)

	jurisdictionalDescriptorRE = regexp.MustCompile(
		`(?i),?\s*a\s+(?:Delaware|Nevada|California|New York|Texas|Florida|Maryland|[A-Z][a-z]+)\s+(?:corporation|limited\s+liability\s+company|limited\s+partnership|company)$`)
)

// NormalizePartyName produces the lowercase matching key used for
// clustering and reconciliation. Display forms use DisplayPartyName.
func NormalizePartyName(name string) string {
	name = parentheticalRE.ReplaceAllString(name, "")
	name = strings.Join(strings.Fields(name), " ")
	name = jurisdictionalDescriptorRE.ReplaceAllString(name, "")
	name = companySuffixRE.ReplaceAllString(name, "")
	name = companySuffixSecondaryRE.ReplaceAllString(name, "")
	name = strings.Join(strings.Fields(name), " ")
	name = strings.Trim(name, " ,.-")
	return strings.ToLower(name)
}

// DisplayPartyName cleans a raw party name for display, keeping the
// original capitalization and legal suffix.
func DisplayPartyName(name string) string {
	name = parentheticalRE.ReplaceAllString(name, " ")
	name = strings.Join(strings.Fields(name), " ")
	name = jurisdictionalDescriptorRE.ReplaceAllString(name, "")
	return strings.Trim(name, " ,.-")
}
