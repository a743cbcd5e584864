package profile

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
)

func baseTime() time.Time {
	return time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC) // a Sunday
}

func sampleTx(userID string, ts time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:              "tx-" + ts.Format("150405"),
		UserID:          userID,
		Amount:          decimal.NewFromInt(100),
		Currency:        "USD",
		MerchantID:      "merchant-1",
		Location:        domain.Location{Country: "US", City: "New York"},
		Timestamp:       ts,
		CardNumber:      "4111111111111111",
		TransactionType: domain.TypePurchase,
	}
}

func TestUpdateVelocity(t *testing.T) {
	ts := baseTime()

	t.Run("ColdStart", func(t *testing.T) {
		p := UpdateVelocity(nil, sampleTx("u1", ts))
		if p.TransactionCount != 1 {
			t.Errorf("count = %d, want 1", p.TransactionCount)
		}
		if p.AverageTimeBetween != nil {
			t.Errorf("average should be unset on first transaction")
		}
		if !p.UniqueMerchants["merchant-1"] {
			t.Errorf("merchant not recorded")
		}
	})

	t.Run("Increment", func(t *testing.T) {
		p := UpdateVelocity(nil, sampleTx("u1", ts))
		tx2 := sampleTx("u1", ts.Add(2*time.Minute))
		tx2.MerchantID = "merchant-2"
		p = UpdateVelocity(p, tx2)

		if p.TransactionCount != 2 {
			t.Errorf("count = %d, want 2", p.TransactionCount)
		}
		if len(p.UniqueMerchants) != 2 {
			t.Errorf("merchants = %d, want 2", len(p.UniqueMerchants))
		}
		if p.AverageTimeBetween == nil || *p.AverageTimeBetween != 2*time.Minute {
			t.Errorf("average = %v, want 2m", p.AverageTimeBetween)
		}
		want := decimal.NewFromInt(200)
		if !p.TotalAmount.Equal(want) {
			t.Errorf("total = %s, want %s", p.TotalAmount, want)
		}
	})

	t.Run("SessionReset", func(t *testing.T) {
		p := UpdateVelocity(nil, sampleTx("u1", ts))
		p = UpdateVelocity(p, sampleTx("u1", ts.Add(1*time.Minute)))
		p = UpdateVelocity(p, sampleTx("u1", ts.Add(20*time.Minute)))

		if p.TransactionCount != 1 {
			t.Errorf("count after idle gap = %d, want 1", p.TransactionCount)
		}
		if p.AverageTimeBetween != nil {
			t.Errorf("average should reset with the session")
		}
	})

	t.Run("AverageRecencyBias", func(t *testing.T) {
		// Gaps of 100s then 300s give 100s then 200s, not 200s then 200s.
		p := UpdateVelocity(nil, sampleTx("u1", ts))
		p = UpdateVelocity(p, sampleTx("u1", ts.Add(100*time.Second)))
		if *p.AverageTimeBetween != 100*time.Second {
			t.Fatalf("first average = %v, want 100s", *p.AverageTimeBetween)
		}
		p = UpdateVelocity(p, sampleTx("u1", ts.Add(400*time.Second)))
		if *p.AverageTimeBetween != 200*time.Second {
			t.Errorf("second average = %v, want 200s", *p.AverageTimeBetween)
		}
	})

	t.Run("InputUnchanged", func(t *testing.T) {
		p1 := UpdateVelocity(nil, sampleTx("u1", ts))
		tx2 := sampleTx("u1", ts.Add(time.Minute))
		tx2.MerchantID = "merchant-2"
		UpdateVelocity(p1, tx2)

		if p1.TransactionCount != 1 || len(p1.UniqueMerchants) != 1 {
			t.Errorf("prior snapshot was mutated: %+v", p1)
		}
	})
}

func TestUpdateGeo(t *testing.T) {
	ts := baseTime()

	t.Run("FirstLocation", func(t *testing.T) {
		p := UpdateGeo(nil, sampleTx("u1", ts))
		if len(p.KnownLocations) != 1 {
			t.Fatalf("locations = %d, want 1", len(p.KnownLocations))
		}
		if p.HomeCountry != "US" {
			t.Errorf("home country = %q, want US", p.HomeCountry)
		}
		if p.LastLocation == nil || p.LastLocation.Country != "US" {
			t.Errorf("last location not set")
		}
	})

	t.Run("RepeatLocationBumpsBucket", func(t *testing.T) {
		p := UpdateGeo(nil, sampleTx("u1", ts))
		p = UpdateGeo(p, sampleTx("u1", ts.Add(time.Hour)))

		if len(p.KnownLocations) != 1 {
			t.Fatalf("locations = %d, want 1", len(p.KnownLocations))
		}
		if p.KnownLocations[0].TransactionCount != 2 {
			t.Errorf("bucket count = %d, want 2", p.KnownLocations[0].TransactionCount)
		}
	})

	t.Run("HomeCountrySticky", func(t *testing.T) {
		p := UpdateGeo(nil, sampleTx("u1", ts))
		tx2 := sampleTx("u1", ts.Add(time.Hour))
		tx2.Location = domain.Location{Country: "FR", City: "Paris"}
		p = UpdateGeo(p, tx2)

		if p.HomeCountry != "US" {
			t.Errorf("home country = %q, want US", p.HomeCountry)
		}
		if len(p.KnownLocations) != 2 {
			t.Errorf("locations = %d, want 2", len(p.KnownLocations))
		}
		if p.LastLocation.Country != "FR" {
			t.Errorf("last location = %q, want FR", p.LastLocation.Country)
		}
	})
}

func TestUpdateBehavior(t *testing.T) {
	ts := baseTime()

	t.Run("FirstTransaction", func(t *testing.T) {
		p := UpdateBehavior(nil, sampleTx("u1", ts))
		if len(p.TypicalTimes) != 1 {
			t.Fatalf("time ranges = %d, want 1", len(p.TypicalTimes))
		}
		want := domain.TimeRange{Start: 14 * 3600, End: 14*3600 + 59*60 + 59}
		if p.TypicalTimes[0] != want {
			t.Errorf("range = %+v, want %+v", p.TypicalTimes[0], want)
		}
		if !p.AverageAmount.Equal(decimal.NewFromInt(100)) {
			t.Errorf("average = %s, want 100", p.AverageAmount)
		}
		if p.DayOfWeekPattern[int(time.Sunday)] != 1 {
			t.Errorf("day pattern = %v", p.DayOfWeekPattern)
		}
	})

	t.Run("SameHourNotDuplicated", func(t *testing.T) {
		p := UpdateBehavior(nil, sampleTx("u1", ts))
		p = UpdateBehavior(p, sampleTx("u1", ts.Add(10*time.Minute)))
		if len(p.TypicalTimes) != 1 {
			t.Errorf("time ranges = %d, want 1", len(p.TypicalTimes))
		}
	})

	t.Run("AverageRecencyBias", func(t *testing.T) {
		p := UpdateBehavior(nil, sampleTx("u1", ts))
		tx2 := sampleTx("u1", ts.Add(time.Minute))
		tx2.Amount = decimal.NewFromInt(300)
		p = UpdateBehavior(p, tx2)
		if !p.AverageAmount.Equal(decimal.NewFromInt(200)) {
			t.Errorf("average = %s, want 200", p.AverageAmount)
		}
	})

	t.Run("AmountHistoryCapped", func(t *testing.T) {
		var p *domain.BehaviorProfile
		for i := 0; i < 150; i++ {
			tx := sampleTx("u1", ts.Add(time.Duration(i)*time.Minute))
			tx.Amount = decimal.NewFromInt(int64(i))
			p = UpdateBehavior(p, tx)
		}
		if len(p.TypicalAmounts) != 100 {
			t.Fatalf("amounts = %d, want 100", len(p.TypicalAmounts))
		}
		if !p.TypicalAmounts[0].Equal(decimal.NewFromInt(50)) {
			t.Errorf("oldest retained = %s, want 50", p.TypicalAmounts[0])
		}
	})

	t.Run("MerchantCategory", func(t *testing.T) {
		cases := map[string]string{
			"whole-foods-grocery": "GROCERY",
			"Shell-Gas-0042":      "GAS",
			"thai-restaurant":     "RESTAURANT",
			"MegaRetail":          "RETAIL",
			"acme-corp":           "OTHER",
		}
		for merchant, want := range cases {
			if got := MerchantCategory(merchant); got != want {
				t.Errorf("MerchantCategory(%q) = %q, want %q", merchant, got, want)
			}
		}
	})
}

func TestUpdateDevice(t *testing.T) {
	ts := baseTime()

	withDevice := func(userID, deviceID string, devType domain.DeviceType, at time.Time) *domain.Transaction {
		tx := sampleTx(userID, at)
		tx.DeviceInfo = &domain.DeviceInfo{DeviceID: deviceID, DeviceType: devType}
		return tx
	}

	t.Run("FirstDevice", func(t *testing.T) {
		p := UpdateDevice(nil, withDevice("u1", "dev-1", domain.DeviceMobile, ts))
		if len(p.KnownDevices) != 1 {
			t.Fatalf("devices = %d, want 1", len(p.KnownDevices))
		}
		if p.DeviceSwitchCount != 0 {
			t.Errorf("switch count = %d, want 0", p.DeviceSwitchCount)
		}
		if p.PreferredDeviceTypes[domain.DeviceMobile] != 1 {
			t.Errorf("preferred types = %v", p.PreferredDeviceTypes)
		}
	})

	t.Run("SwitchCounted", func(t *testing.T) {
		p := UpdateDevice(nil, withDevice("u1", "dev-1", domain.DeviceMobile, ts))
		p = UpdateDevice(p, withDevice("u1", "dev-2", domain.DeviceDesktop, ts.Add(time.Minute)))
		p = UpdateDevice(p, withDevice("u1", "dev-2", domain.DeviceDesktop, ts.Add(2*time.Minute)))

		if p.DeviceSwitchCount != 1 {
			t.Errorf("switch count = %d, want 1", p.DeviceSwitchCount)
		}
		if p.KnownDevices["dev-2"].UsageCount != 2 {
			t.Errorf("usage count = %d, want 2", p.KnownDevices["dev-2"].UsageCount)
		}
		if p.LastDeviceUsed.DeviceKey != "dev-2" {
			t.Errorf("last device = %q, want dev-2", p.LastDeviceUsed.DeviceKey)
		}
	})

	t.Run("FallbackKeyWithoutDeviceInfo", func(t *testing.T) {
		p := UpdateDevice(nil, sampleTx("u1", ts))
		if _, ok := p.KnownDevices["1111_US_fallback"]; !ok {
			t.Errorf("fallback key missing: %v", p.KnownDevices)
		}
		if len(p.PreferredDeviceTypes) != 0 {
			t.Errorf("preferred types should stay empty without device info")
		}
	})

	t.Run("SuspiciousDevicesCarried", func(t *testing.T) {
		prior := UpdateDevice(nil, withDevice("u1", "dev-1", domain.DeviceMobile, ts))
		prior.SuspiciousDevices = map[string]domain.DeviceUsage{"bad-dev": {DeviceKey: "bad-dev"}}
		p := UpdateDevice(prior, withDevice("u1", "dev-1", domain.DeviceMobile, ts.Add(time.Minute)))
		if _, ok := p.SuspiciousDevices["bad-dev"]; !ok {
			t.Errorf("suspicious devices lost on update")
		}
	})
}

func TestStoreRoundTrip(t *testing.T) {
	c, err := cache.New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	stores := NewStores(c)

	got, err := stores.Velocity.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil profile before first write, got %+v", got)
	}

	p := UpdateVelocity(nil, sampleTx("u1", baseTime()))
	if err := stores.Velocity.Put(ctx, "u1", p); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err = stores.Velocity.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.TransactionCount != 1 {
		t.Errorf("round trip lost data: %+v", got)
	}
	if !got.TotalAmount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("total = %s, want 100", got.TotalAmount)
	}
}
