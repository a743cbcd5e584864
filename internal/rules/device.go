package rules

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// rapidSwitchWindow bounds back-to-back transactions from different
// devices before the switch is considered rapid.
const rapidSwitchWindow = 30

// NewDeviceRule scores how familiar the resolved device key is.
func NewDeviceRule(tx *domain.Transaction, p *domain.DeviceProfile) domain.RuleResult {
	const name = "NEW_DEVICE_RULE"

	key := tx.DeviceKey()
	_, known := p.KnownDevices[key]
	_, suspicious := p.SuspiciousDevices[key]

	switch {
	case suspicious:
		return deviceResult(name, 0.9, true, "Transaction from previously flagged suspicious device")
	case !known && len(p.KnownDevices) > 0:
		return deviceResult(name, 0.7, true, fmt.Sprintf("Transaction from new/unknown device: %s", key))
	case !known:
		return deviceResult(name, 0.3, false, "First device for user")
	default:
		return deviceResult(name, 0.1, false, "Transaction from known device")
	}
}

// DeviceSwitchingRule flags rapid or excessive hopping between devices.
func DeviceSwitchingRule(tx *domain.Transaction, p *domain.DeviceProfile) domain.RuleResult {
	const name = "DEVICE_SWITCHING_RULE"

	key := tx.DeviceKey()
	last := p.LastDeviceUsed

	switch {
	case last != nil && last.DeviceKey != key &&
		int64(tx.Timestamp.Sub(last.LastSeen).Minutes()) < rapidSwitchWindow:
		return deviceResult(name, 0.8, true,
			fmt.Sprintf("Rapid device switching: from %s to %s within 30 minutes", last.DeviceKey, key))
	case p.DeviceSwitchCount > 10 && int64(tx.Timestamp.Sub(p.LastUpdate).Hours()) < 24:
		return deviceResult(name, 0.6, true,
			fmt.Sprintf("Excessive device switching: %d switches in 24 hours", p.DeviceSwitchCount))
	case p.DeviceSwitchCount > 5:
		return deviceResult(name, 0.4, false, "Moderate device switching pattern")
	default:
		return deviceResult(name, 0.1, false, "Normal device usage pattern")
	}
}

// SuspiciousDeviceRule scores the declared device type against the
// user's historical preferences.
func SuspiciousDeviceRule(tx *domain.Transaction, p *domain.DeviceProfile) domain.RuleResult {
	const name = "SUSPICIOUS_DEVICE_RULE"

	info := tx.DeviceInfo

	switch {
	case info == nil:
		return deviceResult(name, 0.3, false, "No device information available")
	case info.DeviceType == domain.DeviceUnknown && len(p.KnownDevices) > 0:
		return deviceResult(name, 0.6, true, "Transaction from unknown device type")
	case isUnusualDeviceType(info.DeviceType, p.PreferredDeviceTypes):
		return deviceResult(name, 0.5, false, fmt.Sprintf("Transaction from unusual device type: %s", info.DeviceType))
	default:
		return deviceResult(name, 0.1, false, "Normal device usage")
	}
}

// isUnusualDeviceType reports whether the type accounts for less than
// 10% of the user's historical device usage.
func isUnusualDeviceType(t domain.DeviceType, preferences map[domain.DeviceType]int) bool {
	if len(preferences) == 0 {
		return false
	}

	total := 0
	for _, n := range preferences {
		total += n
	}

	return float64(preferences[t])/float64(total) < 0.1
}

func deviceResult(name string, score float64, triggered bool, reason string) domain.RuleResult {
	return domain.RuleResult{
		RuleName:  name,
		Domain:    domain.DomainDevice,
		Score:     score,
		Triggered: triggered,
		Reason:    reason,
	}
}
