// Package classify assigns the market-tag taxonomy to financing events
// and rolls the primary tag and sponsor status up onto deals. It is a
// deterministic mapping over already-extracted evidence; nothing here
// re-extracts from source text.
package classify

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/dealtrace/dealtrace/internal/core/domain"
	"github.com/dealtrace/dealtrace/internal/core/ports"
)

// Indicator vocabularies. Word indicators match case-insensitively;
// rating tokens match case-sensitively so "a" and "b" in prose do not
// fire, and bare single-letter ratings require an outlook sign.
var (
	igWordsRE  = regexp.MustCompile(`(?i)\binvestment\s+grade\b`)
	igRatingRE = regexp.MustCompile(`\b(?:AAA\b|AA[+-]|AA\b|A[+-]|BBB[+-]|BBB\b)`)
	hyWordsRE  = regexp.MustCompile(`(?i)\bhigh\s+yield\b|\bleveraged\b|\blevfin\b|\bjunk\b|\bsub[-\s]?investment\s+grade\b`)
	hyRatingRE = regexp.MustCompile(`\b(?:BB[+-]|BB\b|B[+-]|CCC[+-]|CCC\b)`)
	tlbRE      = regexp.MustCompile(`(?i)\bterm\s+loan\s+b\b|\bTLB\b|\bTL\s*B\b|\binstitutional\s+term\s+loan\b|\bterm\s+b\b`)
	bridgeRE   = regexp.MustCompile(`(?i)\bbridge\b|\binterim\s+financing\b|\btemporary\s+financing\b`)
	revolverRE = regexp.MustCompile(`(?i)\brevolving\b|\bRCF\b|\brevolver\b|\bABL\b|\basset[-\s]based\s+(?:lending|loan)\b`)
)

// Classification is the outcome for one event or deal.
type Classification struct {
	MarketTag        string
	InstrumentFamily string
	InstrumentType   string
	Confidence       float64
	Signals          []string
}

// ClassifyEvent maps a financing event and the evidence text of its
// source facts to a market tag. Unrated bonds default by sponsor status:
// sponsor-backed issuance is treated as high yield.
func ClassifyEvent(event *domain.FinancingEvent, evidence string, sponsorBacked bool) Classification {
	var signals []string

	isIG := igWordsRE.MatchString(evidence) || igRatingRE.MatchString(evidence)
	isHY := hyWordsRE.MatchString(evidence) || hyRatingRE.MatchString(evidence)
	isTLB := tlbRE.MatchString(evidence)
	isBridge := bridgeRE.MatchString(evidence)
	isRCF := revolverRE.MatchString(evidence)

	if isIG {
		signals = append(signals, "ig_indicator")
	}
	if isHY {
		signals = append(signals, "hy_indicator")
	}
	if isTLB {
		signals = append(signals, "tlb_indicator")
	}
	if isBridge {
		signals = append(signals, "bridge_indicator")
	}
	if isRCF {
		signals = append(signals, "rcf_indicator")
	}

	family := event.InstrumentFamily
	if family == "" {
		family = "unknown"
	}
	instrumentType := event.InstrumentType

	var tag string
	switch {
	case isBridge:
		tag = domain.TagBridge
		instrumentType = "bridge"
		family = domain.FamilyBridge
	case isTLB:
		tag = domain.TagTermLoanB
		instrumentType = "term_loan_b"
		family = domain.FamilyLoan
	case isRCF:
		tag = domain.TagOtherLoan
		instrumentType = "rcf"
		family = domain.FamilyLoan
	case family == domain.FamilyBond:
		switch {
		case isHY && !isIG:
			tag = domain.TagHYBond
		case isIG:
			tag = domain.TagIGBond
		case sponsorBacked:
			tag = domain.TagHYBond
		default:
			tag = domain.TagIGBond
		}
	case family == domain.FamilyLoan:
		if isHY {
			tag = domain.TagTermLoanB
			instrumentType = "term_loan_b"
		} else {
			tag = domain.TagOtherLoan
		}
	default:
		tag = domain.TagUnknown
	}

	confidence := 0.5
	if len(signals) > 0 {
		confidence = 0.8
	}
	return Classification{
		MarketTag:        tag,
		InstrumentFamily: family,
		InstrumentType:   instrumentType,
		Confidence:       confidence,
		Signals:          signals,
	}
}

// DealMarketTag picks the primary tag from a deal's financing events.
// Priority: Term_Loan_B > HY_Bond > Bridge > IG_Bond > anything else.
func DealMarketTag(events []domain.FinancingEvent) string {
	var tags []string
	for _, e := range events {
		if e.MarketTag != "" {
			tags = append(tags, e.MarketTag)
		}
	}
	if len(tags) == 0 {
		return ""
	}
	for _, want := range []string{domain.TagTermLoanB, domain.TagHYBond, domain.TagBridge, domain.TagIGBond} {
		for _, tag := range tags {
			if tag == want {
				return want
			}
		}
	}
	return tags[0]
}

// SponsorBacked derives the deal's tri-state sponsor flag. An already
// decided flag stands; sponsor evidence or leveraged financing implies
// true; no evidence at all stays unknown rather than false.
func SponsorBacked(deal *domain.Deal, events []domain.FinancingEvent) *bool {
	if deal.SponsorBacked != nil {
		return deal.SponsorBacked
	}
	if deal.SponsorNameNormalized != "" {
		backed := true
		return &backed
	}
	for _, e := range events {
		if e.MarketTag == domain.TagHYBond || e.MarketTag == domain.TagTermLoanB ||
			strings.Contains(strings.ToLower(e.InstrumentType), "term_loan_b") {
			backed := true
			return &backed
		}
	}
	return nil
}

// Stats summarizes one classification pass.
type Stats struct {
	EventsClassified int
	DealsClassified  int
}

// Classifier runs the pure classification over persisted deals and
// events, writing back tags.
type Classifier struct {
	deals      ports.DealRepository
	financings ports.FinancingRepository
	facts      ports.FactRepository
	logger     *slog.Logger
}

func NewClassifier(deals ports.DealRepository, financings ports.FinancingRepository, facts ports.FactRepository, logger *slog.Logger) *Classifier {
	return &Classifier{deals: deals, financings: financings, facts: facts, logger: logger}
}

// ClassifyPass tags every untagged financing event, then rolls primary
// tags and sponsor status up onto their deals.
func (c *Classifier) ClassifyPass(ctx context.Context) (Stats, error) {
	var stats Stats

	deals, err := c.deals.List(ctx, domain.DealFilter{})
	if err != nil {
		return stats, domain.WrapError(domain.ErrTemporary, "classify: list deals", err)
	}
	sort.Slice(deals, func(i, j int) bool { return deals[i].ID < deals[j].ID })

	for i := range deals {
		deal := &deals[i]
		if deal.MergedInto != "" {
			continue
		}
		changed, err := c.classifyDeal(ctx, deal, &stats)
		if err != nil {
			return stats, err
		}
		if changed {
			stats.DealsClassified++
		}
	}

	c.logger.Info("classification pass finished",
		"events_classified", stats.EventsClassified,
		"deals_classified", stats.DealsClassified,
	)
	return stats, nil
}

func (c *Classifier) classifyDeal(ctx context.Context, deal *domain.Deal, stats *Stats) (bool, error) {
	events, err := c.financings.ListByDeal(ctx, deal.ID)
	if err != nil {
		return false, domain.WrapError(domain.ErrTemporary, "classify: list events", err)
	}

	sponsorBacked := deal.SponsorBacked != nil && *deal.SponsorBacked || deal.SponsorNameNormalized != ""

	for i := range events {
		event := &events[i]
		if event.MarketTag != "" {
			continue
		}
		evidence, err := c.eventEvidence(ctx, event)
		if err != nil {
			return false, err
		}
		result := ClassifyEvent(event, evidence, sponsorBacked)
		event.MarketTag = result.MarketTag
		event.InstrumentFamily = result.InstrumentFamily
		event.InstrumentType = result.InstrumentType
		if err := c.financings.Update(ctx, event); err != nil {
			return false, domain.WrapError(domain.ErrTemporary, "classify: update event", err)
		}
		stats.EventsClassified++
	}

	tag := DealMarketTag(events)
	backed := SponsorBacked(deal, events)

	changed := false
	if tag != "" && deal.MarketTag != tag {
		deal.MarketTag = tag
		changed = true
	}
	if backed != nil && deal.SponsorBacked == nil {
		deal.SponsorBacked = backed
		changed = true
	}
	if !changed {
		return false, nil
	}
	if err := c.deals.Update(ctx, deal); err != nil {
		return false, domain.WrapError(domain.ErrTemporary, "classify: update deal", err)
	}
	return true, nil
}

// eventEvidence concatenates the evidence snippets of the event's source
// facts; tagging keys off what the filings actually said.
func (c *Classifier) eventEvidence(ctx context.Context, event *domain.FinancingEvent) (string, error) {
	var parts []string
	for _, factID := range event.SourceFactIDs {
		fact, err := c.facts.GetByID(ctx, factID)
		if err != nil {
			continue
		}
		if fact.Evidence.Snippet != "" {
			parts = append(parts, fact.Evidence.Snippet)
		}
	}
	return strings.Join(parts, " "), nil
}
