package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Profile retention horizons. A profile not updated within its horizon
// expires and the next transaction starts from a fresh one.
const (
	RetentionVelocity = 24 * time.Hour
	RetentionGeo      = 7 * 24 * time.Hour
	RetentionBehavior = 30 * 24 * time.Hour
	RetentionDevice   = 90 * 24 * time.Hour
)

// VelocityProfile tracks short-horizon transaction frequency for one user.
// Snapshots are immutable; updates produce a new value.
type VelocityProfile struct {
	UserID              string          `json:"userId"`
	TransactionCount    int             `json:"transactionCount"`
	TotalAmount         decimal.Decimal `json:"totalAmount"`
	LastTransactionTime time.Time       `json:"lastTransactionTime"`
	UniqueMerchants     map[string]bool `json:"uniqueMerchants"`
	AverageTimeBetween  *time.Duration  `json:"averageTimeBetween,omitempty"`
}

// LocationInfo is one known location bucket in a geo profile, keyed by
// the (country, city) pair.
type LocationInfo struct {
	Country          string    `json:"country"`
	City             string    `json:"city"`
	Latitude         *float64  `json:"latitude,omitempty"`
	Longitude        *float64  `json:"longitude,omitempty"`
	FirstSeen        time.Time `json:"firstSeen"`
	LastSeen         time.Time `json:"lastSeen"`
	TransactionCount int       `json:"transactionCount"`
}

// GeoProfile tracks where a user transacts.
type GeoProfile struct {
	UserID             string         `json:"userId"`
	KnownLocations     []LocationInfo `json:"knownLocations"`
	LastLocation       *LocationInfo  `json:"lastLocation,omitempty"`
	LastLocationUpdate time.Time      `json:"lastLocationUpdate"`
	HomeCountry        string         `json:"homeCountry,omitempty"`
	TravelPattern      map[string]int `json:"travelPattern"`
}

// TimeRange is an hour bucket of typical activity, as seconds from
// midnight. Contains is exclusive at both ends.
type TimeRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether the second-of-day falls strictly inside the range.
func (r TimeRange) Contains(secondOfDay int) bool {
	return secondOfDay > r.Start && secondOfDay < r.End
}

// BehaviorProfile tracks a user's spending habits.
type BehaviorProfile struct {
	UserID             string            `json:"userId"`
	TypicalTimes       []TimeRange       `json:"typicalTimes"`
	DayOfWeekPattern   map[int]int       `json:"dayOfWeekPattern"` // time.Weekday -> count
	TypicalAmounts     []decimal.Decimal `json:"typicalAmounts"`   // most recent 100
	AverageAmount      decimal.Decimal   `json:"averageAmount"`
	MerchantCategories map[string]int    `json:"merchantCategories"`
	LastUpdate         time.Time         `json:"lastUpdate"`
}

// DeviceUsage is one known device bucket in a device profile, keyed by
// the resolved device key (see Transaction.DeviceKey).
type DeviceUsage struct {
	DeviceKey       string     `json:"deviceKey"`
	UserAgent       string     `json:"userAgent,omitempty"`
	IPAddress       string     `json:"ipAddress,omitempty"`
	FirstSeen       time.Time  `json:"firstSeen"`
	LastSeen        time.Time  `json:"lastSeen"`
	UsageCount      int        `json:"usageCount"`
	DeviceType      DeviceType `json:"deviceType,omitempty"`
	OperatingSystem string     `json:"operatingSystem,omitempty"`
	IsMobile        bool       `json:"isMobile"`
}

// DeviceProfile tracks which devices a user transacts from.
// SuspiciousDevices is populated by external flagging, never by the
// aggregator itself.
type DeviceProfile struct {
	UserID               string                 `json:"userId"`
	KnownDevices         map[string]DeviceUsage `json:"knownDevices"`
	SuspiciousDevices    map[string]DeviceUsage `json:"suspiciousDevices,omitempty"`
	LastDeviceUsed       *DeviceUsage           `json:"lastDeviceUsed,omitempty"`
	DeviceSwitchCount    int                    `json:"deviceSwitchCount"`
	PreferredDeviceTypes map[DeviceType]int     `json:"preferredDeviceTypes"`
	LastUpdate           time.Time              `json:"lastUpdate"`
}
