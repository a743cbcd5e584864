package rules

import (
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Domain runners evaluate one domain's fixed rule list against a
// profile snapshot. A nil profile means the user has no history in
// that domain yet; the runner returns nil and the domain contributes
// nothing downstream. The domain risk score is the unweighted sum of
// rule scores; weighting happens in the combiner.

func EvaluateVelocity(tx *domain.Transaction, p *domain.VelocityProfile) *domain.DomainResult {
	if p == nil {
		return nil
	}
	return reduce(domain.DomainVelocity, []domain.RuleResult{
		VelocityRule(tx, p),
		CardTestingRule(tx, p),
		RoboticPatternRule(tx, p),
	})
}

func EvaluateGeo(tx *domain.Transaction, p *domain.GeoProfile) *domain.DomainResult {
	if p == nil {
		return nil
	}
	return reduce(domain.DomainGeo, []domain.RuleResult{
		ImpossibleTravelRule(tx, p),
		NewLocationRule(tx, p),
		HighRiskCountryRule(tx, p),
	})
}

func EvaluateBehavior(tx *domain.Transaction, p *domain.BehaviorProfile) *domain.DomainResult {
	if p == nil {
		return nil
	}
	return reduce(domain.DomainBehavior, []domain.RuleResult{
		UnusualTimeRule(tx, p),
		UnusualAmountRule(tx, p),
	})
}

func EvaluateDevice(tx *domain.Transaction, p *domain.DeviceProfile) *domain.DomainResult {
	if p == nil {
		return nil
	}
	return reduce(domain.DomainDevice, []domain.RuleResult{
		NewDeviceRule(tx, p),
		DeviceSwitchingRule(tx, p),
		SuspiciousDeviceRule(tx, p),
	})
}

func reduce(d domain.RuleDomain, results []domain.RuleResult) *domain.DomainResult {
	sum := 0.0
	fraudulent := false
	for _, r := range results {
		sum += r.Score
		if r.Triggered {
			fraudulent = true
		}
	}
	return &domain.DomainResult{
		Domain:       d,
		RiskScore:    sum,
		IsFraudulent: fraudulent,
		RuleResults:  results,
	}
}
