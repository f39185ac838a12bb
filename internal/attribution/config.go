package attribution

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dealtrace/dealtrace/internal/core/domain"
)

// RateTable is the externally supplied fee model. It is loaded once at
// startup and validated; a missing or malformed table is fatal because
// wrong fee modeling is worse than none.
type RateTable struct {
	// AdvisoryFeeBps keys: default, deal_size_over_1B, deal_size_over_5B.
	AdvisoryFeeBps map[string]float64 `yaml:"advisory_fee_bps"`

	// UnderwritingFeeBps is keyed by market tag, with an Unknown fallback.
	UnderwritingFeeBps map[string]float64 `yaml:"underwriting_fee_bps"`

	// RoleSplits maps instrument family to normalized-role weights.
	RoleSplits map[string]map[string]float64 `yaml:"role_splits"`

	Thresholds map[string]float64 `yaml:"thresholds"`
}

const (
	bracketDefault = "default"
	bracketOver1B  = "deal_size_over_1B"
	bracketOver5B  = "deal_size_over_5B"

	fallbackRole            = "other"
	fallbackUnderwritingBps = 100.0
)

// LoadRateTable reads and validates the rate table. Every error wraps
// domain.ErrConfig so the caller can refuse to start.
func LoadRateTable(path string) (*RateTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfig, "attribution: read rate table", err)
	}

	var table RateTable
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, domain.WrapError(domain.ErrConfig, "attribution: parse rate table", err)
	}
	if err := table.validate(); err != nil {
		return nil, domain.WrapError(domain.ErrConfig, "attribution: validate rate table", err)
	}
	return &table, nil
}

func (t *RateTable) validate() error {
	if len(t.AdvisoryFeeBps) == 0 {
		return fmt.Errorf("advisory_fee_bps is required")
	}
	if _, ok := t.AdvisoryFeeBps[bracketDefault]; !ok {
		return fmt.Errorf("advisory_fee_bps must define %q", bracketDefault)
	}
	if len(t.UnderwritingFeeBps) == 0 {
		return fmt.Errorf("underwriting_fee_bps is required")
	}
	if len(t.RoleSplits) == 0 {
		return fmt.Errorf("role_splits is required")
	}

	for bracket, bps := range t.AdvisoryFeeBps {
		if bps < 0 {
			return fmt.Errorf("advisory_fee_bps[%s] is negative", bracket)
		}
	}
	for tag, bps := range t.UnderwritingFeeBps {
		if bps < 0 {
			return fmt.Errorf("underwriting_fee_bps[%s] is negative", tag)
		}
	}
	for family, splits := range t.RoleSplits {
		if len(splits) == 0 {
			return fmt.Errorf("role_splits[%s] is empty", family)
		}
		for role, weight := range splits {
			if weight <= 0 {
				return fmt.Errorf("role_splits[%s][%s] must be positive", family, role)
			}
		}
	}
	return nil
}

// AdvisoryBps selects the advisory rate for a deal-value bracket.
func (t *RateTable) AdvisoryBps(dealValueUSD float64) float64 {
	switch {
	case dealValueUSD >= 5_000_000_000:
		if bps, ok := t.AdvisoryFeeBps[bracketOver5B]; ok {
			return bps
		}
	case dealValueUSD >= 1_000_000_000:
		if bps, ok := t.AdvisoryFeeBps[bracketOver1B]; ok {
			return bps
		}
	}
	return t.AdvisoryFeeBps[bracketDefault]
}

// UnderwritingBps selects the underwriting rate for a market tag.
func (t *RateTable) UnderwritingBps(marketTag string) float64 {
	if marketTag == "" {
		marketTag = domain.TagUnknown
	}
	if bps, ok := t.UnderwritingFeeBps[marketTag]; ok {
		return bps
	}
	if bps, ok := t.UnderwritingFeeBps[domain.TagUnknown]; ok {
		return bps
	}
	return fallbackUnderwritingBps
}

// roleWeight looks up the split weight for a normalized role within an
// instrument family.
func (t *RateTable) roleWeight(family, roleNormalized string) float64 {
	splits, ok := t.RoleSplits[family]
	if !ok {
		splits = t.RoleSplits[domain.FamilyLoan]
	}
	if roleNormalized == "" {
		roleNormalized = fallbackRole
	}
	if weight, ok := splits[roleNormalized]; ok {
		return weight
	}
	if weight, ok := splits[fallbackRole]; ok {
		return weight
	}
	return 0.1
}
