package profile

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// maxTypicalAmounts caps the stored amount history per user.
const maxTypicalAmounts = 100

var two = decimal.NewFromInt(2)

// UpdateBehavior folds a transaction into the behavior profile.
func UpdateBehavior(p *domain.BehaviorProfile, tx *domain.Transaction) *domain.BehaviorProfile {
	if p == nil {
		p = &domain.BehaviorProfile{
			UserID:             tx.UserID,
			DayOfWeekPattern:   map[int]int{},
			MerchantCategories: map[string]int{},
		}
	}

	utc := tx.Timestamp.UTC()
	secondOfDay := utc.Hour()*3600 + utc.Minute()*60 + utc.Second()

	times := updateTimeRanges(p.TypicalTimes, secondOfDay, utc.Hour())

	days := make(map[int]int, len(p.DayOfWeekPattern)+1)
	for d, n := range p.DayOfWeekPattern {
		days[d] = n
	}
	days[int(utc.Weekday())]++

	amounts := make([]decimal.Decimal, len(p.TypicalAmounts), len(p.TypicalAmounts)+1)
	copy(amounts, p.TypicalAmounts)
	amounts = append(amounts, tx.Amount)
	if len(amounts) > maxTypicalAmounts {
		amounts = amounts[len(amounts)-maxTypicalAmounts:]
	}

	categories := make(map[string]int, len(p.MerchantCategories)+1)
	for c, n := range p.MerchantCategories {
		categories[c] = n
	}
	categories[MerchantCategory(tx.MerchantID)]++

	// Two-point running average, same recency bias as velocity.
	average := tx.Amount
	if !p.AverageAmount.IsZero() {
		average = p.AverageAmount.Add(tx.Amount).Div(two)
	}

	return &domain.BehaviorProfile{
		UserID:             tx.UserID,
		TypicalTimes:       times,
		DayOfWeekPattern:   days,
		TypicalAmounts:     amounts,
		AverageAmount:      average,
		MerchantCategories: categories,
		LastUpdate:         tx.Timestamp,
	}
}

// updateTimeRanges adds the transaction's [hh:00:00, hh:59:59] bucket
// unless an existing range already contains the time of day.
func updateTimeRanges(ranges []domain.TimeRange, secondOfDay, hour int) []domain.TimeRange {
	bucket := domain.TimeRange{Start: hour * 3600, End: hour*3600 + 59*60 + 59}

	for _, r := range ranges {
		if r.Contains(secondOfDay) || r == bucket {
			return ranges
		}
	}

	out := make([]domain.TimeRange, len(ranges), len(ranges)+1)
	copy(out, ranges)
	return append(out, bucket)
}

// MerchantCategory classifies a merchant identifier by case-insensitive
// substring match.
func MerchantCategory(merchantID string) string {
	id := strings.ToLower(merchantID)
	switch {
	case strings.Contains(id, "grocery"):
		return "GROCERY"
	case strings.Contains(id, "gas"):
		return "GAS"
	case strings.Contains(id, "restaurant"):
		return "RESTAURANT"
	case strings.Contains(id, "retail"):
		return "RETAIL"
	default:
		return "OTHER"
	}
}
