package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func sampleTransaction(id, userID string, amount string) *domain.Transaction {
	lat, lon := 40.7128, -74.0060
	return &domain.Transaction{
		ID:         id,
		UserID:     userID,
		Amount:     decimal.RequireFromString(amount),
		Currency:   "USD",
		MerchantID: "merchant-001",
		Location: domain.Location{
			Country:   "US",
			City:      "New York",
			Latitude:  &lat,
			Longitude: &lon,
		},
		Timestamp:       time.Now().UTC(),
		CardNumber:      "4111111111111111",
		TransactionType: domain.TypePurchase,
		DeviceInfo: &domain.DeviceInfo{
			DeviceID:   "device-001",
			DeviceType: domain.DeviceMobile,
			IsMobile:   true,
		},
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetTransaction", func(t *testing.T) {
		tx := sampleTransaction("tx-001", "user-001", "199.99")

		if err := repo.SaveTransaction(ctx, tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}

		retrieved, err := repo.GetTransaction(ctx, tx.ID)
		if err != nil {
			t.Fatalf("GetTransaction failed: %v", err)
		}

		if retrieved.ID != tx.ID {
			t.Errorf("expected ID %s, got %s", tx.ID, retrieved.ID)
		}
		if !retrieved.Amount.Equal(tx.Amount) {
			t.Errorf("expected Amount %s, got %s", tx.Amount, retrieved.Amount)
		}
		if retrieved.DeviceInfo == nil || retrieved.DeviceInfo.DeviceID != "device-001" {
			t.Errorf("device info not preserved: %+v", retrieved.DeviceInfo)
		}
		if !retrieved.Location.HasCoordinates() {
			t.Error("expected coordinates to be preserved")
		}
	})

	t.Run("SaveTransactionIdempotent", func(t *testing.T) {
		tx := sampleTransaction("tx-dup", "user-001", "50.00")

		if err := repo.SaveTransaction(ctx, tx); err != nil {
			t.Fatalf("first save failed: %v", err)
		}
		if err := repo.SaveTransaction(ctx, tx); err != nil {
			t.Fatalf("replayed save should be a no-op, got: %v", err)
		}
	})

	t.Run("SaveAndGetProcessed", func(t *testing.T) {
		tx := sampleTransaction("tx-002", "user-002", "950.00")
		if err := repo.SaveTransaction(ctx, tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}

		mlScore := 0.82
		p := &domain.ProcessedTransaction{
			Transaction:  tx,
			RiskScore:    0.91,
			IsFraudulent: true,
			RuleResults: []domain.RuleResult{
				{RuleName: "VELOCITY_RULE", Domain: domain.DomainVelocity, Score: 0.9, Triggered: true, Reason: "Too many transactions: 7"},
				{RuleName: "UNUSUAL_TIME_RULE", Domain: domain.DomainBehavior, Score: 0.1, Triggered: false, Reason: "Transaction during typical hours"},
			},
			ProcessedAt: time.Now().UTC(),
			MLRiskScore: &mlScore,
		}

		if err := repo.SaveProcessed(ctx, p); err != nil {
			t.Fatalf("SaveProcessed failed: %v", err)
		}

		retrieved, err := repo.GetProcessed(ctx, tx.ID)
		if err != nil {
			t.Fatalf("GetProcessed failed: %v", err)
		}

		if retrieved.RiskScore != p.RiskScore {
			t.Errorf("expected RiskScore %.2f, got %.2f", p.RiskScore, retrieved.RiskScore)
		}
		if !retrieved.IsFraudulent {
			t.Error("expected IsFraudulent true")
		}
		if retrieved.MLRiskScore == nil || *retrieved.MLRiskScore != mlScore {
			t.Errorf("ml score not preserved: %v", retrieved.MLRiskScore)
		}
		if len(retrieved.RuleResults) != 2 {
			t.Errorf("expected 2 rule results, got %d", len(retrieved.RuleResults))
		}
		if retrieved.RuleResults[0].Domain != domain.DomainVelocity {
			t.Errorf("expected VELOCITY domain tag, got %s", retrieved.RuleResults[0].Domain)
		}
	})

	t.Run("SaveProcessedUpsert", func(t *testing.T) {
		tx := sampleTransaction("tx-003", "user-003", "20.00")
		_ = repo.SaveTransaction(ctx, tx)

		p := &domain.ProcessedTransaction{
			Transaction: tx,
			RiskScore:   0.2,
			ProcessedAt: time.Now().UTC(),
			RuleResults: []domain.RuleResult{},
		}
		if err := repo.SaveProcessed(ctx, p); err != nil {
			t.Fatalf("SaveProcessed failed: %v", err)
		}

		p.RiskScore = 0.8
		p.IsFraudulent = true
		if err := repo.SaveProcessed(ctx, p); err != nil {
			t.Fatalf("SaveProcessed upsert failed: %v", err)
		}

		retrieved, err := repo.GetProcessed(ctx, tx.ID)
		if err != nil {
			t.Fatalf("GetProcessed failed: %v", err)
		}
		if retrieved.RiskScore != 0.8 {
			t.Errorf("expected upserted score 0.8, got %.2f", retrieved.RiskScore)
		}
	})

	t.Run("CustomRules", func(t *testing.T) {
		rule := &domain.CustomRule{
			ID:         "rule-high-amount",
			Name:       "High amount in foreign currency",
			Expression: `amount > 5000.0 && currency != "USD"`,
			Score:      0.7,
			Reason:     "Large foreign-currency transaction",
			Enabled:    true,
		}

		if err := repo.SaveCustomRule(ctx, rule); err != nil {
			t.Fatalf("SaveCustomRule failed: %v", err)
		}

		rules, err := repo.ListCustomRules(ctx)
		if err != nil {
			t.Fatalf("ListCustomRules failed: %v", err)
		}
		if len(rules) != 1 {
			t.Fatalf("expected 1 rule, got %d", len(rules))
		}
		if rules[0].Expression != rule.Expression {
			t.Errorf("expression not preserved: %s", rules[0].Expression)
		}

		if err := repo.DeleteCustomRule(ctx, rule.ID); err != nil {
			t.Fatalf("DeleteCustomRule failed: %v", err)
		}

		rules, _ = repo.ListCustomRules(ctx)
		if len(rules) != 0 {
			t.Errorf("expected 0 rules after delete, got %d", len(rules))
		}

		if err := repo.DeleteCustomRule(ctx, "nonexistent"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.GetTransaction(ctx, "nonexistent")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}

		_, err = repo.GetProcessed(ctx, "nonexistent")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestAnalytics(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	save := func(id, userID, country string, score float64, fraud bool, rules ...string) {
		t.Helper()
		tx := sampleTransaction(id, userID, "100.00")
		tx.Location.Country = country
		if err := repo.SaveTransaction(ctx, tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}

		var results []domain.RuleResult
		for _, name := range rules {
			results = append(results, domain.RuleResult{
				RuleName: name, Domain: domain.DomainVelocity, Score: 0.9, Triggered: true, Reason: "r",
			})
		}
		p := &domain.ProcessedTransaction{
			Transaction:  tx,
			RiskScore:    score,
			IsFraudulent: fraud,
			RuleResults:  results,
			ProcessedAt:  time.Now().UTC(),
		}
		if err := repo.SaveProcessed(ctx, p); err != nil {
			t.Fatalf("SaveProcessed failed: %v", err)
		}
	}

	save("tx-a", "u1", "US", 0.95, true, "VELOCITY_RULE", "CARD_TESTING_RULE")
	save("tx-b", "u2", "US", 0.80, true, "VELOCITY_RULE")
	save("tx-c", "u3", "GB", 0.30, false)
	save("tx-d", "u4", "NG", 0.85, true, "HIGH_RISK_COUNTRY_RULE")

	t.Run("FraudSummary", func(t *testing.T) {
		summary, err := repo.FraudSummary(ctx)
		if err != nil {
			t.Fatalf("FraudSummary failed: %v", err)
		}

		if summary.TotalProcessed != 4 {
			t.Errorf("expected 4 processed, got %d", summary.TotalProcessed)
		}
		if summary.FraudCount != 3 {
			t.Errorf("expected 3 fraudulent, got %d", summary.FraudCount)
		}
		if len(summary.TopCountries) == 0 || summary.TopCountries[0].Country != "US" {
			t.Errorf("expected US as top fraud country, got %+v", summary.TopCountries)
		}
	})

	t.Run("TopRiskiest", func(t *testing.T) {
		results, err := repo.TopRiskiest(ctx, 2)
		if err != nil {
			t.Fatalf("TopRiskiest failed: %v", err)
		}

		if len(results) != 2 {
			t.Fatalf("expected 2 results, got %d", len(results))
		}
		if results[0].TransactionID != "tx-a" {
			t.Errorf("expected tx-a first, got %s", results[0].TransactionID)
		}
		if results[1].TransactionID != "tx-d" {
			t.Errorf("expected tx-d second, got %s", results[1].TransactionID)
		}
	})

	t.Run("RuleDistribution", func(t *testing.T) {
		dist, err := repo.RuleDistribution(ctx)
		if err != nil {
			t.Fatalf("RuleDistribution failed: %v", err)
		}

		counts := make(map[string]int64)
		for _, rc := range dist {
			counts[rc.RuleName] = rc.Count
		}

		if counts["VELOCITY_RULE"] != 2 {
			t.Errorf("expected VELOCITY_RULE count 2, got %d", counts["VELOCITY_RULE"])
		}
		if counts["HIGH_RISK_COUNTRY_RULE"] != 1 {
			t.Errorf("expected HIGH_RISK_COUNTRY_RULE count 1, got %d", counts["HIGH_RISK_COUNTRY_RULE"])
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
