// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"errors"
)

// ErrNotFound is returned by repository reads when no row matches.
var ErrNotFound = errors.New("not found")

// Repository defines the interface for data persistence.
// Saves are idempotent upserts keyed by transaction id, so pipeline
// retries never produce duplicate rows.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)

	// Processed results
	SaveProcessed(ctx context.Context, p *ProcessedTransaction) error
	GetProcessed(ctx context.Context, txID string) (*ProcessedTransaction, error)

	// Custom rule operations
	SaveCustomRule(ctx context.Context, rule *CustomRule) error
	ListCustomRules(ctx context.Context) ([]*CustomRule, error)
	DeleteCustomRule(ctx context.Context, ruleID string) error

	// Analytics
	FraudSummary(ctx context.Context) (*FraudSummary, error)
	TopRiskiest(ctx context.Context, limit int) ([]*RiskiestTransaction, error)
	RuleDistribution(ctx context.Context) ([]*RuleCount, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// FraudSummary is the aggregate view served by the analytics API.
type FraudSummary struct {
	TotalProcessed int64          `json:"totalProcessed"`
	FraudCount     int64          `json:"fraudCount"`
	AvgRiskScore   float64        `json:"avgRiskScore"`
	TopCountries   []CountryCount `json:"topCountries"`
}

// CountryCount is one row of the per-country fraud breakdown.
type CountryCount struct {
	Country string `json:"country"`
	Count   int64  `json:"count"`
}

// RiskiestTransaction is one row of the top-risk listing.
type RiskiestTransaction struct {
	TransactionID string  `json:"transactionId"`
	UserID        string  `json:"userId"`
	Amount        string  `json:"amount"`
	Currency      string  `json:"currency"`
	Country       string  `json:"country"`
	RiskScore     float64 `json:"riskScore"`
	IsFraudulent  bool    `json:"isFraudulent"`
}

// RuleCount is one row of the triggered-rule distribution.
type RuleCount struct {
	RuleName string `json:"ruleName"`
	Count    int64  `json:"count"`
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns int
	MaxIdleConns int
}
