package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType classifies how a transaction moves money.
type TransactionType string

const (
	TypePurchase   TransactionType = "PURCHASE"
	TypeWithdrawal TransactionType = "WITHDRAWAL"
	TypeTransfer   TransactionType = "TRANSFER"
	TypeRefund     TransactionType = "REFUND"
)

// ParseTransactionType validates a transaction type string.
// Unknown values are rejected at the boundary, never coerced.
func ParseTransactionType(s string) (TransactionType, error) {
	switch TransactionType(s) {
	case TypePurchase, TypeWithdrawal, TypeTransfer, TypeRefund:
		return TransactionType(s), nil
	}
	return "", fmt.Errorf("unknown transaction type %q", s)
}

// DeviceType classifies the device a transaction originated from.
type DeviceType string

const (
	DeviceMobile      DeviceType = "MOBILE"
	DeviceDesktop     DeviceType = "DESKTOP"
	DeviceTablet      DeviceType = "TABLET"
	DeviceATM         DeviceType = "ATM"
	DevicePOSTerminal DeviceType = "POS_TERMINAL"
	DeviceUnknown     DeviceType = "UNKNOWN"
)

// ParseDeviceType validates a device type string. Empty maps to UNKNOWN.
func ParseDeviceType(s string) (DeviceType, error) {
	if s == "" {
		return DeviceUnknown, nil
	}
	switch DeviceType(s) {
	case DeviceMobile, DeviceDesktop, DeviceTablet, DeviceATM, DevicePOSTerminal, DeviceUnknown:
		return DeviceType(s), nil
	}
	return "", fmt.Errorf("unknown device type %q", s)
}

// Location is where a transaction took place. Coordinates are optional;
// rules that need them degrade gracefully when they are absent.
type Location struct {
	Country   string   `json:"country"`
	City      string   `json:"city"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Timezone  string   `json:"timezone,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (l Location) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// DeviceInfo describes the device declared on a transaction.
type DeviceInfo struct {
	DeviceID         string     `json:"deviceId"`
	DeviceType       DeviceType `json:"deviceType"`
	OperatingSystem  string     `json:"operatingSystem,omitempty"`
	BrowserInfo      string     `json:"browserInfo,omitempty"`
	ScreenResolution string     `json:"screenResolution,omitempty"`
	IsMobile         bool       `json:"isMobile"`
}

// Transaction represents an incoming financial event. It is created once
// at ingestion and never mutated afterwards.
type Transaction struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	MerchantID      string          `json:"merchantId"`
	Location        Location        `json:"location"`
	Timestamp       time.Time       `json:"timestamp"`
	CardNumber      string          `json:"cardNumber"`
	TransactionType TransactionType `json:"transactionType"`
	DeviceInfo      *DeviceInfo     `json:"deviceInfo,omitempty"`
	IPAddress       string          `json:"ipAddress,omitempty"`
	UserAgent       string          `json:"userAgent,omitempty"`
	SessionID       string          `json:"sessionId,omitempty"`
}

// TransactionRequest is the API request payload for submitting a
// transaction. The server generates the id and timestamp.
type TransactionRequest struct {
	UserID     string          `json:"userId"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	MerchantID string          `json:"merchantId"`

	Country   string   `json:"country"`
	City      string   `json:"city"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Timezone  string   `json:"timezone,omitempty"`

	CardNumber      string `json:"cardNumber"`
	TransactionType string `json:"transactionType,omitempty"`

	DeviceID         string `json:"deviceId,omitempty"`
	DeviceType       string `json:"deviceType,omitempty"`
	OperatingSystem  string `json:"operatingSystem,omitempty"`
	BrowserInfo      string `json:"browserInfo,omitempty"`
	ScreenResolution string `json:"screenResolution,omitempty"`
	IsMobile         bool   `json:"isMobile,omitempty"`

	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// ToTransaction validates the request and builds the Transaction domain
// object with a fresh id and the server clock timestamp.
func (r *TransactionRequest) ToTransaction() (*Transaction, error) {
	if r.UserID == "" {
		return nil, fmt.Errorf("userId is required")
	}
	if r.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	if r.MerchantID == "" {
		return nil, fmt.Errorf("merchantId is required")
	}
	if r.Country == "" {
		return nil, fmt.Errorf("country is required")
	}
	if r.CardNumber == "" {
		return nil, fmt.Errorf("cardNumber is required")
	}

	txType := TypePurchase
	if r.TransactionType != "" {
		var err error
		txType, err = ParseTransactionType(r.TransactionType)
		if err != nil {
			return nil, err
		}
	}

	var device *DeviceInfo
	if r.DeviceID != "" {
		devType, err := ParseDeviceType(r.DeviceType)
		if err != nil {
			return nil, err
		}
		device = &DeviceInfo{
			DeviceID:         r.DeviceID,
			DeviceType:       devType,
			OperatingSystem:  r.OperatingSystem,
			BrowserInfo:      r.BrowserInfo,
			ScreenResolution: r.ScreenResolution,
			IsMobile:         r.IsMobile,
		}
	}

	return &Transaction{
		ID:         uuid.New().String(),
		UserID:     r.UserID,
		Amount:     r.Amount,
		Currency:   r.Currency,
		MerchantID: r.MerchantID,
		Location: Location{
			Country:   r.Country,
			City:      r.City,
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
			Timezone:  r.Timezone,
		},
		Timestamp:       time.Now().UTC(),
		CardNumber:      r.CardNumber,
		TransactionType: txType,
		DeviceInfo:      device,
		IPAddress:       r.IPAddress,
		UserAgent:       r.UserAgent,
		SessionID:       r.SessionID,
	}, nil
}

// DeviceKey resolves the device identity used by the device profile and
// rules: the declared deviceId when present, otherwise a fallback built
// from the last 4 card digits and the country.
func (t *Transaction) DeviceKey() string {
	if t.DeviceInfo != nil && t.DeviceInfo.DeviceID != "" {
		return t.DeviceInfo.DeviceID
	}
	card := t.CardNumber
	if len(card) > 4 {
		card = card[len(card)-4:]
	}
	return card + "_" + t.Location.Country + "_fallback"
}
