// Package ml is the boundary to the external fraud scoring model. The
// model is advisory: every failure degrades to a 0.0 score and the
// pipeline carries on.
package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Client calls the external model scorer over HTTP.
type Client struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// PredictionResponse is the scorer's wire format.
type PredictionResponse struct {
	Fraud     int      `json:"fraud"`
	Score     float64  `json:"score"`
	MLScore   float64  `json:"ml_score"`
	RuleScore float64  `json:"rule_score"`
	Reasons   []string `json:"reasons"`
}

// NewClient creates an ML scoring client. An empty URL disables
// scoring; Predict then always returns 0.0.
func NewClient(cfg domain.MLConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		url:    cfg.URL,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Predict returns the model's fraud probability for a transaction.
// Only a response with fraud == 1 yields its score; everything else,
// including transport and protocol errors, yields 0.0.
func (c *Client) Predict(ctx context.Context, tx *domain.Transaction) float64 {
	if c.url == "" {
		return 0.0
	}

	body, err := json.Marshal(payload(tx))
	if err != nil {
		c.logger.Error("failed to encode ml payload", "error", err, "tx_id", tx.ID)
		return 0.0
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		c.logger.Error("failed to build ml request", "error", err, "tx_id", tx.ID)
		return 0.0
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("ml scoring call failed", "error", err, "tx_id", tx.ID)
		return 0.0
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("ml scoring call failed", "error", fmt.Sprintf("status %d", resp.StatusCode), "tx_id", tx.ID)
		return 0.0
	}

	var pred PredictionResponse
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		c.logger.Error("failed to decode ml response", "error", err, "tx_id", tx.ID)
		return 0.0
	}

	if pred.Fraud != 1 {
		return 0.0
	}
	return pred.Score
}

// payload builds the scorer request. Every field is a string; the
// scorer side parses what it needs.
func payload(tx *domain.Transaction) map[string]any {
	lat, lon := 0.0, 0.0
	if tx.Location.Latitude != nil {
		lat = *tx.Location.Latitude
	}
	if tx.Location.Longitude != nil {
		lon = *tx.Location.Longitude
	}

	return map[string]any{
		"id":         tx.ID,
		"userId":     tx.UserID,
		"amount":     tx.Amount.String(),
		"currency":   tx.Currency,
		"merchantId": tx.MerchantID,
		"location": map[string]string{
			"country":   tx.Location.Country,
			"city":      tx.Location.City,
			"latitude":  strconv.FormatFloat(lat, 'f', -1, 64),
			"longitude": strconv.FormatFloat(lon, 'f', -1, 64),
			"timezone":  tx.Location.Timezone,
		},
		"timestamp":       tx.Timestamp.UTC().Format(time.RFC3339Nano),
		"cardNumber":      tx.CardNumber,
		"transactionType": string(tx.TransactionType),
		"ipAddress":       tx.IPAddress,
		"userAgent":       tx.UserAgent,
	}
}
