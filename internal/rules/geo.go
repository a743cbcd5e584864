package rules

import (
	"fmt"
	"math"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// knownCountryWindow is how recently a known-location bucket must have
// been seen for the location to count as currently familiar.
const knownCountryWindow = 300000 * time.Millisecond

// highRiskCountries is the fixed ISO 3166-1 alpha-2 denylist.
var highRiskCountries = map[string]bool{
	"AF": true, "BD": true, "BF": true, "BI": true, "CF": true,
	"TD": true, "KM": true, "CD": true, "ER": true, "ET": true,
	"GN": true, "GW": true, "HT": true, "LR": true, "LY": true,
	"MG": true, "ML": true, "MR": true, "NE": true, "KP": true,
	"SO": true, "SS": true, "SD": true, "SY": true, "TJ": true,
	"UZ": true, "VE": true, "YE": true, "ZW": true,
}

// ImpossibleTravelRule compares the implied travel speed from the last
// known location against physically plausible bounds.
func ImpossibleTravelRule(tx *domain.Transaction, p *domain.GeoProfile) domain.RuleResult {
	const name = "IMPOSSIBLE_TRAVEL_RULE"

	last := p.LastLocation
	if last == nil {
		return geoResult(name, 0.1, false, "No previous location data")
	}
	if last.Latitude == nil || last.Longitude == nil || !tx.Location.HasCoordinates() {
		return geoResult(name, 0.2, false, "Missing GPS coordinates")
	}

	distance := haversineKm(*last.Latitude, *last.Longitude, *tx.Location.Latitude, *tx.Location.Longitude)

	// Whole-minute precision before converting to hours.
	minutes := int64(tx.Timestamp.Sub(last.LastSeen).Minutes())
	hours := float64(minutes) / 60.0
	if hours <= 0 {
		return geoResult(name, 0.1, false, "Invalid time sequence")
	}

	speed := distance / hours

	switch {
	case speed > 900:
		return geoResult(name, 0.95, true,
			fmt.Sprintf("Impossible travel: %dkm in %dh (%dkm/h)", int(distance), int(hours), int(speed)))
	case speed > 500:
		return geoResult(name, 0.7, true, fmt.Sprintf("Very high speed travel: %dkm/h", int(speed)))
	case speed > 200:
		return geoResult(name, 0.4, false, fmt.Sprintf("Fast travel detected: %dkm/h", int(speed)))
	default:
		return geoResult(name, 0.1, false, "Normal travel speed")
	}
}

// NewLocationRule scores how familiar the transaction's country is.
func NewLocationRule(tx *domain.Transaction, p *domain.GeoProfile) domain.RuleResult {
	const name = "NEW_LOCATION_RULE"

	country := tx.Location.Country
	frequent := p.TravelPattern

	if len(frequent) == 0 {
		return geoResult(name, 0.3, false, "First transaction - no location history")
	}
	if _, ok := frequent[country]; !ok {
		return geoResult(name, 0.6, true, fmt.Sprintf("Transaction from new country: %s", country))
	}

	seenInCountry := false
	seenRecently := false
	for _, loc := range p.KnownLocations {
		if loc.Country != country {
			continue
		}
		seenInCountry = true
		if loc.LastSeen.After(tx.Timestamp.Add(-knownCountryWindow)) {
			seenRecently = true
		}
	}
	if !seenInCountry || !seenRecently {
		return geoResult(name, 0.4, false, "Return to known country after absence")
	}

	return geoResult(name, 0.1, false, "Transaction from familiar location")
}

// HighRiskCountryRule checks the country against the fixed denylist.
func HighRiskCountryRule(tx *domain.Transaction, p *domain.GeoProfile) domain.RuleResult {
	const name = "HIGH_RISK_COUNTRY_RULE"

	country := tx.Location.Country
	isHighRisk := highRiskCountries[country]
	_, isFrequent := p.TravelPattern[country]

	switch {
	case isHighRisk && !isFrequent:
		return geoResult(name, 0.8, true, fmt.Sprintf("Transaction from high-risk country: %s (new for user)", country))
	case isHighRisk && isFrequent:
		return geoResult(name, 0.5, false, fmt.Sprintf("Transaction from high-risk country: %s (user's frequent country)", country))
	default:
		return geoResult(name, 0.1, false, fmt.Sprintf("Transaction from normal risk country: %s", country))
	}
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0

	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func geoResult(name string, score float64, triggered bool, reason string) domain.RuleResult {
	return domain.RuleResult{
		RuleName:  name,
		Domain:    domain.DomainGeo,
		Score:     score,
		Triggered: triggered,
		Reason:    reason,
	}
}
