package domain

import "time"

// RuleDomain identifies which profile domain produced a rule result.
// The tag is attached when the result is created; the combiner never
// infers it from the rule name.
type RuleDomain string

const (
	DomainVelocity RuleDomain = "VELOCITY"
	DomainGeo      RuleDomain = "GEO"
	DomainBehavior RuleDomain = "BEHAVIOR"
	DomainDevice   RuleDomain = "DEVICE"
	DomainCustom   RuleDomain = "CUSTOM"
)

// RuleResult is the output of a single rule evaluation.
type RuleResult struct {
	RuleName  string     `json:"ruleName"`
	Domain    RuleDomain `json:"domain"`
	Score     float64    `json:"score"` // 0.0 to 1.0
	Triggered bool       `json:"triggered"`
	Reason    string     `json:"reason"`
}

// DomainResult aggregates the rule results for one profile domain.
type DomainResult struct {
	Domain       RuleDomain   `json:"domain"`
	RiskScore    float64      `json:"riskScore"` // unweighted sum of rule scores
	IsFraudulent bool         `json:"isFraudulent"`
	RuleResults  []RuleResult `json:"ruleResults"`
}

// Combiner weights per domain. Results from domains outside this table
// (custom rules) contribute with DefaultDomainWeight.
const DefaultDomainWeight = 0.10

var DomainWeights = map[RuleDomain]float64{
	DomainVelocity: 0.25,
	DomainGeo:      0.35,
	DomainBehavior: 0.25,
	DomainDevice:   0.15,
}

// CustomRule is an operator-defined CEL rule evaluated alongside the
// built-in catalogue. Its results carry DomainCustom.
type CustomRule struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Expression  string    `json:"expression"`
	Score       float64   `json:"score"` // emitted when the expression matches
	Reason      string    `json:"reason"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}
