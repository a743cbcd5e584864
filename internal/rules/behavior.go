package rules

import (
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// UnusualTimeRule checks the transaction's UTC time of day against the
// user's recorded activity ranges.
func UnusualTimeRule(tx *domain.Transaction, p *domain.BehaviorProfile) domain.RuleResult {
	const name = "UNUSUAL_TIME_RULE"

	utc := tx.Timestamp.UTC()
	secondOfDay := utc.Hour()*3600 + utc.Minute()*60 + utc.Second()

	unusual := true
	for _, r := range p.TypicalTimes {
		if r.Contains(secondOfDay) {
			unusual = false
			break
		}
	}

	switch {
	case unusual && len(p.TypicalTimes) > 0:
		return behaviorResult(name, 0.7, true,
			fmt.Sprintf("Transaction at unusual time: %s (outside normal patterns)", localTime(utc.Hour(), utc.Minute(), utc.Second())))
	case len(p.TypicalTimes) == 0:
		return behaviorResult(name, 0.2, false, "No historical time pattern available")
	default:
		return behaviorResult(name, 0.1, false, "Transaction within normal time pattern")
	}
}

// UnusualAmountRule combines a z-score style deviation over the stored
// amount history with the ratio to the running average.
func UnusualAmountRule(tx *domain.Transaction, p *domain.BehaviorProfile) domain.RuleResult {
	const name = "UNUSUAL_AMOUNT_RULE"

	if p.AverageAmount.IsZero() || len(p.TypicalAmounts) == 0 {
		return behaviorResult(name, 0.2, false, "Insufficient transaction history for amount analysis")
	}

	deviation := amountDeviation(tx.Amount.InexactFloat64(), p.TypicalAmounts)
	ratio, _ := tx.Amount.DivRound(p.AverageAmount, 2).Float64()

	switch {
	case deviation > 5.0 && ratio > 10:
		return behaviorResult(name, 0.9, true,
			fmt.Sprintf("Extremely unusual amount: %s (%sx average)", tx.Amount, strconv.FormatFloat(ratio, 'f', -1, 64)))
	case deviation > 3.0 && ratio > 5:
		return behaviorResult(name, 0.6, true, fmt.Sprintf("Unusual amount detected: %s", tx.Amount))
	case ratio > 3:
		return behaviorResult(name, 0.4, false, "Higher than typical amount")
	default:
		return behaviorResult(name, 0.1, false, "Amount within normal range")
	}
}

// amountDeviation is |amount - mean| / stddev over the history. A zero
// stddev yields +Inf, which trips the top band; that is intentional.
func amountDeviation(amount float64, history []decimal.Decimal) float64 {
	mean := 0.0
	for _, a := range history {
		mean += a.InexactFloat64()
	}
	mean /= float64(len(history))

	variance := 0.0
	for _, a := range history {
		d := a.InexactFloat64() - mean
		variance += d * d
	}
	variance /= float64(len(history))

	return math.Abs(amount-mean) / math.Sqrt(variance)
}

// localTime renders a time of day the way the alert consumers expect,
// seconds omitted when zero.
func localTime(h, m, s int) string {
	if s == 0 {
		return fmt.Sprintf("%02d:%02d", h, m)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func behaviorResult(name string, score float64, triggered bool, reason string) domain.RuleResult {
	return domain.RuleResult{
		RuleName:  name,
		Domain:    domain.DomainBehavior,
		Score:     score,
		Triggered: triggered,
		Reason:    reason,
	}
}
