package profile

import (
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SessionGap is the idle period after which the velocity profile resets
// to a fresh single-transaction session.
const SessionGap = 10 * time.Minute

// UpdateVelocity folds a transaction into the velocity profile.
// Pure and total: a nil prior profile is the cold-start case.
func UpdateVelocity(p *domain.VelocityProfile, tx *domain.Transaction) *domain.VelocityProfile {
	cutoff := tx.Timestamp.Add(-SessionGap)

	if p == nil || (!p.LastTransactionTime.IsZero() && p.LastTransactionTime.Before(cutoff)) {
		return &domain.VelocityProfile{
			UserID:              tx.UserID,
			TransactionCount:    1,
			TotalAmount:         tx.Amount,
			LastTransactionTime: tx.Timestamp,
			UniqueMerchants:     map[string]bool{tx.MerchantID: true},
		}
	}

	merchants := make(map[string]bool, len(p.UniqueMerchants)+1)
	for m := range p.UniqueMerchants {
		merchants[m] = true
	}
	merchants[tx.MerchantID] = true

	return &domain.VelocityProfile{
		UserID:              tx.UserID,
		TransactionCount:    p.TransactionCount + 1,
		TotalAmount:         p.TotalAmount.Add(tx.Amount),
		LastTransactionTime: tx.Timestamp,
		UniqueMerchants:     merchants,
		AverageTimeBetween:  averageTimeBetween(p, tx),
	}
}

// averageTimeBetween folds the latest inter-arrival gap into the
// running average. Deliberately a two-point average of the previous
// average and the new gap, not a true mean; downstream thresholds are
// tuned to its recency bias.
func averageTimeBetween(p *domain.VelocityProfile, tx *domain.Transaction) *time.Duration {
	if p.LastTransactionTime.IsZero() {
		return nil
	}

	diff := tx.Timestamp.Sub(p.LastTransactionTime)
	if p.AverageTimeBetween == nil {
		return &diff
	}

	avgMillis := (p.AverageTimeBetween.Milliseconds() + diff.Milliseconds()) / 2
	avg := time.Duration(avgMillis) * time.Millisecond
	return &avg
}
