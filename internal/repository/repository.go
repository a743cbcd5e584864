// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores a raw transaction. Transactions are immutable,
// so a replayed id is a no-op rather than an error.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	var deviceInfo any
	if tx.DeviceInfo != nil {
		data, err := json.Marshal(tx.DeviceInfo)
		if err != nil {
			return fmt.Errorf("failed to marshal device info: %w", err)
		}
		deviceInfo = string(data)
	}

	query := `
		INSERT INTO transactions (
			id, user_id, amount, currency, merchant_id,
			country, city, latitude, longitude, timezone,
			timestamp, card_number, transaction_type,
			device_info, ip_address, user_agent, session_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.UserID, tx.Amount.String(), tx.Currency, tx.MerchantID,
		tx.Location.Country, tx.Location.City, tx.Location.Latitude, tx.Location.Longitude, tx.Location.Timezone,
		tx.Timestamp, tx.CardNumber, string(tx.TransactionType),
		deviceInfo, tx.IPAddress, tx.UserAgent, tx.SessionID,
	)
	return err
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `
		SELECT id, user_id, amount, currency, merchant_id,
			   country, city, latitude, longitude, timezone,
			   timestamp, card_number, transaction_type,
			   device_info, ip_address, user_agent, session_id
		FROM transactions
		WHERE id = ?
	`

	var tx domain.Transaction
	var amount, txType string
	var city, timezone, deviceInfo, ipAddr, userAgent, sessionID sql.NullString
	var lat, lon sql.NullFloat64

	err := r.db.QueryRowContext(ctx, r.rebind(query), txID).Scan(
		&tx.ID, &tx.UserID, &amount, &tx.Currency, &tx.MerchantID,
		&tx.Location.Country, &city, &lat, &lon, &timezone,
		&tx.Timestamp, &tx.CardNumber, &txType,
		&deviceInfo, &ipAddr, &userAgent, &sessionID,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	tx.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount for %s: %w", txID, err)
	}
	tx.TransactionType = domain.TransactionType(txType)
	tx.Location.City = city.String
	tx.Location.Timezone = timezone.String
	if lat.Valid {
		tx.Location.Latitude = &lat.Float64
	}
	if lon.Valid {
		tx.Location.Longitude = &lon.Float64
	}
	if deviceInfo.Valid && deviceInfo.String != "" {
		var di domain.DeviceInfo
		if err := json.Unmarshal([]byte(deviceInfo.String), &di); err != nil {
			return nil, fmt.Errorf("invalid stored device info for %s: %w", txID, err)
		}
		tx.DeviceInfo = &di
	}
	tx.IPAddress = ipAddr.String
	tx.UserAgent = userAgent.String
	tx.SessionID = sessionID.String

	return &tx, nil
}

// SaveProcessed stores a scored result. Upserts by transaction id so a
// reprocessed transaction overwrites its previous score.
func (r *SQLRepository) SaveProcessed(ctx context.Context, p *domain.ProcessedTransaction) error {
	ruleResults, err := json.Marshal(p.RuleResults)
	if err != nil {
		return fmt.Errorf("failed to marshal rule results: %w", err)
	}

	fraudulent := 0
	if p.IsFraudulent {
		fraudulent = 1
	}

	query := `
		INSERT INTO processed_transactions (
			tx_id, user_id, amount, currency, country,
			risk_score, is_fraudulent, ml_risk_score, rule_results, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tx_id) DO UPDATE SET
			risk_score = excluded.risk_score,
			is_fraudulent = excluded.is_fraudulent,
			ml_risk_score = excluded.ml_risk_score,
			rule_results = excluded.rule_results,
			processed_at = excluded.processed_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		p.Transaction.ID, p.Transaction.UserID, p.Transaction.Amount.String(),
		p.Transaction.Currency, p.Transaction.Location.Country,
		p.RiskScore, fraudulent, p.MLRiskScore, string(ruleResults), p.ProcessedAt,
	)
	if err != nil {
		return err
	}

	return r.saveTriggeredRules(ctx, p)
}

func (r *SQLRepository) saveTriggeredRules(ctx context.Context, p *domain.ProcessedTransaction) error {
	del := `DELETE FROM triggered_rules WHERE tx_id = ?`
	if _, err := r.db.ExecContext(ctx, r.rebind(del), p.Transaction.ID); err != nil {
		return err
	}

	ins := `INSERT INTO triggered_rules (tx_id, rule_name) VALUES (?, ?) ON CONFLICT(tx_id, rule_name) DO NOTHING`
	for _, rr := range p.RuleResults {
		if !rr.Triggered {
			continue
		}
		if _, err := r.db.ExecContext(ctx, r.rebind(ins), p.Transaction.ID, rr.RuleName); err != nil {
			return err
		}
	}
	return nil
}

// GetProcessed retrieves a scored result by transaction ID.
func (r *SQLRepository) GetProcessed(ctx context.Context, txID string) (*domain.ProcessedTransaction, error) {
	query := `
		SELECT tx_id, risk_score, is_fraudulent, ml_risk_score, rule_results, processed_at
		FROM processed_transactions
		WHERE tx_id = ?
	`

	var id string
	var p domain.ProcessedTransaction
	var fraudulent int
	var mlScore sql.NullFloat64
	var ruleResults string

	err := r.db.QueryRowContext(ctx, r.rebind(query), txID).Scan(
		&id, &p.RiskScore, &fraudulent, &mlScore, &ruleResults, &p.ProcessedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.IsFraudulent = fraudulent == 1
	if mlScore.Valid {
		p.MLRiskScore = &mlScore.Float64
	}
	if err := json.Unmarshal([]byte(ruleResults), &p.RuleResults); err != nil {
		return nil, fmt.Errorf("invalid stored rule results for %s: %w", txID, err)
	}

	tx, err := r.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Transaction = tx

	return &p, nil
}

// SaveCustomRule stores an operator-defined rule, upserting by id.
func (r *SQLRepository) SaveCustomRule(ctx context.Context, rule *domain.CustomRule) error {
	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	query := `
		INSERT INTO custom_rules (
			id, name, description, expression, score, reason, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			score = excluded.score,
			reason = excluded.reason,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Expression,
		rule.Score, rule.Reason, enabled, rule.CreatedAt, rule.UpdatedAt,
	)
	return err
}

// ListCustomRules retrieves all enabled custom rules.
func (r *SQLRepository) ListCustomRules(ctx context.Context) ([]*domain.CustomRule, error) {
	query := `
		SELECT id, name, description, expression, score, reason, enabled, created_at, updated_at
		FROM custom_rules
		WHERE enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.CustomRule
	for rows.Next() {
		var rule domain.CustomRule
		var description sql.NullString
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &description, &rule.Expression,
			&rule.Score, &rule.Reason, &enabled, &rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}

		rule.Description = description.String
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// DeleteCustomRule soft-deletes a custom rule by setting enabled = 0.
func (r *SQLRepository) DeleteCustomRule(ctx context.Context, ruleID string) error {
	query := `
		UPDATE custom_rules
		SET enabled = 0, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// FraudSummary returns the aggregate fraud view for the analytics API.
func (r *SQLRepository) FraudSummary(ctx context.Context) (*domain.FraudSummary, error) {
	summary := &domain.FraudSummary{}

	query := `
		SELECT COUNT(*),
			   COALESCE(SUM(is_fraudulent), 0),
			   COALESCE(AVG(risk_score), 0)
		FROM processed_transactions
	`
	err := r.db.QueryRowContext(ctx, query).Scan(
		&summary.TotalProcessed, &summary.FraudCount, &summary.AvgRiskScore,
	)
	if err != nil {
		return nil, err
	}

	countryQuery := `
		SELECT country, COUNT(*) AS cnt
		FROM processed_transactions
		WHERE is_fraudulent = 1
		GROUP BY country
		ORDER BY cnt DESC
		LIMIT 5
	`
	rows, err := r.db.QueryContext(ctx, countryQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var cc domain.CountryCount
		if err := rows.Scan(&cc.Country, &cc.Count); err != nil {
			return nil, err
		}
		summary.TopCountries = append(summary.TopCountries, cc)
	}

	return summary, rows.Err()
}

// TopRiskiest returns the highest-scoring processed transactions.
func (r *SQLRepository) TopRiskiest(ctx context.Context, limit int) ([]*domain.RiskiestTransaction, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT tx_id, user_id, amount, currency, country, risk_score, is_fraudulent
		FROM processed_transactions
		ORDER BY risk_score DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.RiskiestTransaction
	for rows.Next() {
		var rt domain.RiskiestTransaction
		var fraudulent int

		if err := rows.Scan(
			&rt.TransactionID, &rt.UserID, &rt.Amount, &rt.Currency,
			&rt.Country, &rt.RiskScore, &fraudulent,
		); err != nil {
			return nil, err
		}

		rt.IsFraudulent = fraudulent == 1
		results = append(results, &rt)
	}

	return results, rows.Err()
}

// RuleDistribution returns how often each rule has fired.
func (r *SQLRepository) RuleDistribution(ctx context.Context) ([]*domain.RuleCount, error) {
	query := `
		SELECT rule_name, COUNT(*) AS cnt
		FROM triggered_rules
		GROUP BY rule_name
		ORDER BY cnt DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.RuleCount
	for rows.Next() {
		var rc domain.RuleCount
		if err := rows.Scan(&rc.RuleName, &rc.Count); err != nil {
			return nil, err
		}
		results = append(results, &rc)
	}

	return results, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
