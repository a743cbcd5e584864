// Package combine merges per-domain rule verdicts into the final fraud
// decision for a transaction.
package combine

import (
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// FraudThreshold is the weighted score above which a transaction is
// fraudulent even when no individual rule triggered.
const FraudThreshold = 0.7

// Combine flattens the contributing domain results (nil entries are
// skipped domains) plus any custom rule results, in that order, and
// computes the weighted final score. Each rule result contributes
// score x its domain's weight; domains outside the weight table
// (custom rules) use the default weight.
//
// The ML probability rides along as MLRiskScore but does not enter the
// weighted sum; the decision stays a pure function of the rule results.
func Combine(tx *domain.Transaction, domainResults []*domain.DomainResult, customResults []domain.RuleResult, mlScore float64) *domain.ProcessedTransaction {
	var results []domain.RuleResult
	anyTriggered := false

	for _, dr := range domainResults {
		if dr == nil {
			continue
		}
		results = append(results, dr.RuleResults...)
		if dr.IsFraudulent {
			anyTriggered = true
		}
	}
	for _, r := range customResults {
		results = append(results, r)
		if r.Triggered {
			anyTriggered = true
		}
	}

	score := 0.0
	for _, r := range results {
		score += r.Score * weightFor(r.Domain)
	}

	ml := mlScore
	return &domain.ProcessedTransaction{
		Transaction:  tx,
		RiskScore:    score,
		IsFraudulent: anyTriggered || score > FraudThreshold,
		RuleResults:  results,
		ProcessedAt:  time.Now().UTC(),
		MLRiskScore:  &ml,
	}
}

func weightFor(d domain.RuleDomain) float64 {
	if w, ok := domain.DomainWeights[d]; ok {
		return w
	}
	return domain.DefaultDomainWeight
}
