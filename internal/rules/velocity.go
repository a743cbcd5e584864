// Package rules holds the built-in fraud rule catalogue and the CEL
// engine for operator-defined rules. Built-in rules are pure functions
// over (transaction, profile); they never fail and always emit a
// result, even for the "normal" case.
package rules

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var smallAmountFraction = decimal.NewFromFloat(0.1)

// VelocityRule flags bursts of transactions within the session window.
func VelocityRule(tx *domain.Transaction, p *domain.VelocityProfile) domain.RuleResult {
	const name = "VELOCITY_RULE"
	count := p.TransactionCount

	switch {
	case count > 5:
		return velocityResult(name, 0.9, true, fmt.Sprintf("Too many transactions: %d", count))
	case count > 3:
		return velocityResult(name, 0.5, false, "Moderate transaction velocity")
	default:
		return velocityResult(name, 0.1, false, "Normal velocity")
	}
}

// CardTestingRule looks for the card testing signature: many small
// probing transactions spread across merchants before a larger charge.
func CardTestingRule(tx *domain.Transaction, p *domain.VelocityProfile) domain.RuleResult {
	const name = "CARD_TESTING_RULE"

	uniqueMerchants := len(p.UniqueMerchants)
	highVelocity := p.TransactionCount > 5
	manyMerchants := uniqueMerchants >= 3

	smallAverage := false
	if p.TransactionCount > 0 {
		average := p.TotalAmount.Div(decimal.NewFromInt(int64(p.TransactionCount)))
		smallAverage = average.LessThanOrEqual(tx.Amount.Mul(smallAmountFraction))
	}

	switch {
	case highVelocity && manyMerchants && smallAverage:
		return velocityResult(name, 0.9, true,
			fmt.Sprintf("Card testing detected: %d transactions across %d merchants", p.TransactionCount, uniqueMerchants))
	case manyMerchants && p.TransactionCount > 3:
		return velocityResult(name, 0.6, true,
			fmt.Sprintf("Potential card testing: %d transactions across %d merchants", p.TransactionCount, uniqueMerchants))
	default:
		return velocityResult(name, 0.1, false, "Normal merchant pattern")
	}
}

// RoboticPatternRule detects machine-like timing regularity combined
// with low merchant variety.
func RoboticPatternRule(tx *domain.Transaction, p *domain.VelocityProfile) domain.RuleResult {
	const name = "ROBOTIC_PATTERN_RULE"

	if p.TransactionCount < 3 {
		return velocityResult(name, 0.1, false, "Insufficient data for pattern analysis")
	}

	// Whole-minute truncation matters at the boundaries.
	veryConsistent := false
	if p.AverageTimeBetween != nil {
		minutes := int64(p.AverageTimeBetween.Minutes())
		veryConsistent = minutes > 0 && minutes < 5 && p.TransactionCount >= 4
	}

	varietyRatio := 1.0
	if p.TransactionCount > 0 {
		varietyRatio = float64(len(p.UniqueMerchants)) / float64(p.TransactionCount)
	}

	switch {
	case veryConsistent && varietyRatio < 0.3:
		return velocityResult(name, 0.8, true, "Highly regular timing pattern detected with repeated merchants")
	case veryConsistent:
		return velocityResult(name, 0.7, true, "Robotic pattern: highly regular timing")
	case p.TransactionCount > 5 && varietyRatio < 0.3:
		return velocityResult(name, 0.5, false, "Potential bot behavior: repeated merchants")
	default:
		return velocityResult(name, 0.1, false, "Human-like irregular pattern")
	}
}

func velocityResult(name string, score float64, triggered bool, reason string) domain.RuleResult {
	return domain.RuleResult{
		RuleName:  name,
		Domain:    domain.DomainVelocity,
		Score:     score,
		Triggered: triggered,
		Reason:    reason,
	}
}
