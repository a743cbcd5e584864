package profile

import (
	"github.com/opensource-finance/kestrel/internal/domain"
)

// UpdateDevice folds a transaction into the device profile, keyed by
// the resolved device key (declared deviceId or card+country fallback).
func UpdateDevice(p *domain.DeviceProfile, tx *domain.Transaction) *domain.DeviceProfile {
	if p == nil {
		p = &domain.DeviceProfile{
			UserID:               tx.UserID,
			KnownDevices:         map[string]domain.DeviceUsage{},
			PreferredDeviceTypes: map[domain.DeviceType]int{},
		}
	}

	key := tx.DeviceKey()
	current := domain.DeviceUsage{
		DeviceKey:  key,
		UserAgent:  userAgent(tx),
		IPAddress:  tx.IPAddress,
		FirstSeen:  tx.Timestamp,
		LastSeen:   tx.Timestamp,
		UsageCount: 1,
	}
	if tx.DeviceInfo != nil {
		current.DeviceType = tx.DeviceInfo.DeviceType
		current.OperatingSystem = tx.DeviceInfo.OperatingSystem
		current.IsMobile = tx.DeviceInfo.IsMobile
	}

	devices := make(map[string]domain.DeviceUsage, len(p.KnownDevices)+1)
	for k, d := range p.KnownDevices {
		devices[k] = d
	}
	if existing, ok := devices[key]; ok {
		existing.LastSeen = tx.Timestamp
		existing.UsageCount++
		devices[key] = existing
	} else {
		devices[key] = current
	}

	switchCount := p.DeviceSwitchCount
	if p.LastDeviceUsed != nil && p.LastDeviceUsed.DeviceKey != key {
		switchCount++
	}

	preferred := make(map[domain.DeviceType]int, len(p.PreferredDeviceTypes)+1)
	for t, n := range p.PreferredDeviceTypes {
		preferred[t] = n
	}
	if tx.DeviceInfo != nil {
		preferred[tx.DeviceInfo.DeviceType]++
	}

	last := current
	return &domain.DeviceProfile{
		UserID:               tx.UserID,
		KnownDevices:         devices,
		SuspiciousDevices:    p.SuspiciousDevices,
		LastDeviceUsed:       &last,
		DeviceSwitchCount:    switchCount,
		PreferredDeviceTypes: preferred,
		LastUpdate:           tx.Timestamp,
	}
}

func userAgent(tx *domain.Transaction) string {
	if tx.UserAgent != "" {
		return tx.UserAgent
	}
	if tx.DeviceInfo != nil {
		return tx.DeviceInfo.BrowserInfo
	}
	return ""
}
