package domain

import "time"

// ProcessedTransaction is the scored outcome of running a transaction
// through the full pipeline.
type ProcessedTransaction struct {
	Transaction  *Transaction `json:"transaction"`
	RiskScore    float64      `json:"riskScore"`
	IsFraudulent bool         `json:"isFraudulent"`
	RuleResults  []RuleResult `json:"ruleResults"`
	ProcessedAt  time.Time    `json:"processedAt"`
	MLRiskScore  *float64     `json:"mlRiskScore,omitempty"`
}

// TriggeredRules returns the names of the rules that fired.
func (p *ProcessedTransaction) TriggeredRules() []string {
	var names []string
	for _, r := range p.RuleResults {
		if r.Triggered {
			names = append(names, r.RuleName)
		}
	}
	return names
}

// FraudAlert is the API representation of a fraudulent transaction.
type FraudAlert struct {
	TransactionID string    `json:"transactionId"`
	UserID        string    `json:"userId"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	MerchantID    string    `json:"merchantId"`
	Country       string    `json:"country"`
	RiskScore     float64   `json:"riskScore"`
	MLRiskScore   *float64  `json:"mlRiskScore,omitempty"`
	Reasons       []string  `json:"reasons"`
	ProcessedAt   time.Time `json:"processedAt"`
}

// ToAlert converts a processed transaction into its alert DTO.
func (p *ProcessedTransaction) ToAlert() *FraudAlert {
	reasons := make([]string, 0, len(p.RuleResults))
	for _, r := range p.RuleResults {
		if r.Triggered {
			reasons = append(reasons, r.Reason)
		}
	}
	return &FraudAlert{
		TransactionID: p.Transaction.ID,
		UserID:        p.Transaction.UserID,
		Amount:        p.Transaction.Amount.String(),
		Currency:      p.Transaction.Currency,
		MerchantID:    p.Transaction.MerchantID,
		Country:       p.Transaction.Location.Country,
		RiskScore:     p.RiskScore,
		MLRiskScore:   p.MLRiskScore,
		Reasons:       reasons,
		ProcessedAt:   p.ProcessedAt,
	}
}
