package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    amount TEXT NOT NULL,
    currency TEXT NOT NULL,
    merchant_id TEXT NOT NULL,
    country TEXT NOT NULL,
    city TEXT,
    latitude REAL,
    longitude REAL,
    timezone TEXT,
    timestamp TIMESTAMP NOT NULL,
    card_number TEXT NOT NULL,
    transaction_type TEXT NOT NULL,
    device_info TEXT,
    ip_address TEXT,
    user_agent TEXT,
    session_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp);
`

const schemaProcessed = `
CREATE TABLE IF NOT EXISTS processed_transactions (
    tx_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    amount TEXT NOT NULL,
    currency TEXT NOT NULL,
    country TEXT NOT NULL,
    risk_score REAL NOT NULL,
    is_fraudulent INTEGER NOT NULL,
    ml_risk_score REAL,
    rule_results TEXT NOT NULL,
    processed_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_processed_user ON processed_transactions(user_id);
CREATE INDEX IF NOT EXISTS idx_processed_fraud ON processed_transactions(is_fraudulent);
CREATE INDEX IF NOT EXISTS idx_processed_score ON processed_transactions(risk_score);
`

// triggered_rules is a flattened view of the rules that fired per
// transaction, kept relational so the distribution query stays in SQL.
const schemaTriggeredRules = `
CREATE TABLE IF NOT EXISTS triggered_rules (
    tx_id TEXT NOT NULL,
    rule_name TEXT NOT NULL,
    PRIMARY KEY (tx_id, rule_name)
);

CREATE INDEX IF NOT EXISTS idx_triggered_rules_name ON triggered_rules(rule_name);
`

const schemaCustomRules = `
CREATE TABLE IF NOT EXISTS custom_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    score REAL NOT NULL,
    reason TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaProcessed,
		schemaTriggeredRules,
		schemaCustomRules,
	}
}
