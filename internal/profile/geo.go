package profile

import (
	"github.com/opensource-finance/kestrel/internal/domain"
)

// UpdateGeo folds a transaction into the geo profile: find-or-create
// the {country, city} bucket, bump its stats, and record the location
// as the most recent one. The home country is set on the first
// transaction ever and never changes afterwards.
func UpdateGeo(p *domain.GeoProfile, tx *domain.Transaction) *domain.GeoProfile {
	if p == nil {
		p = &domain.GeoProfile{UserID: tx.UserID, TravelPattern: map[string]int{}}
	}

	newLocation := domain.LocationInfo{
		Country:          tx.Location.Country,
		City:             tx.Location.City,
		Latitude:         tx.Location.Latitude,
		Longitude:        tx.Location.Longitude,
		FirstSeen:        tx.Timestamp,
		LastSeen:         tx.Timestamp,
		TransactionCount: 1,
	}

	locations := make([]domain.LocationInfo, 0, len(p.KnownLocations)+1)
	found := false
	for _, loc := range p.KnownLocations {
		if loc.Country == tx.Location.Country && loc.City == tx.Location.City {
			loc.LastSeen = tx.Timestamp
			loc.TransactionCount++
			found = true
		}
		locations = append(locations, loc)
	}
	if !found {
		locations = append(locations, newLocation)
	}

	homeCountry := p.HomeCountry
	if homeCountry == "" {
		homeCountry = tx.Location.Country
	}

	last := newLocation
	return &domain.GeoProfile{
		UserID:             tx.UserID,
		KnownLocations:     locations,
		LastLocation:       &last,
		LastLocationUpdate: tx.Timestamp,
		HomeCountry:        homeCountry,
		TravelPattern:      p.TravelPattern,
	}
}
