package rules

// Each built-in rule declares a weight. The weight is metadata carried
// for reporting and tuning; the combiner scores with the per-domain
// weight table, not with these values.
var ruleWeights = map[string]float64{
	"VELOCITY_RULE":          0.3,
	"CARD_TESTING_RULE":      0.4,
	"ROBOTIC_PATTERN_RULE":   0.35,
	"IMPOSSIBLE_TRAVEL_RULE": 0.4,
	"NEW_LOCATION_RULE":      0.3,
	"HIGH_RISK_COUNTRY_RULE": 0.35,
	"UNUSUAL_TIME_RULE":      0.4,
	"UNUSUAL_AMOUNT_RULE":    0.35,
	"NEW_DEVICE_RULE":        0.4,
	"DEVICE_SWITCHING_RULE":  0.3,
	"SUSPICIOUS_DEVICE_RULE": 0.4,
}

// Weight returns the declared weight of a built-in rule, or 0 for an
// unknown name.
func Weight(ruleName string) float64 {
	return ruleWeights[ruleName]
}

// Catalogue lists the built-in rule names in evaluation order.
func Catalogue() []string {
	return []string{
		"VELOCITY_RULE",
		"CARD_TESTING_RULE",
		"ROBOTIC_PATTERN_RULE",
		"IMPOSSIBLE_TRAVEL_RULE",
		"NEW_LOCATION_RULE",
		"HIGH_RISK_COUNTRY_RULE",
		"UNUSUAL_TIME_RULE",
		"UNUSUAL_AMOUNT_RULE",
		"NEW_DEVICE_RULE",
		"DEVICE_SWITCHING_RULE",
		"SUSPICIOUS_DEVICE_RULE",
	}
}
