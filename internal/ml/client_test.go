package ml

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTx() *domain.Transaction {
	return &domain.Transaction{
		ID:              "tx-1",
		UserID:          "u1",
		Amount:          decimal.NewFromFloat(99.50),
		Currency:        "USD",
		MerchantID:      "m1",
		Location:        domain.Location{Country: "US", City: "New York"},
		Timestamp:       time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC),
		CardNumber:      "4111111111111111",
		TransactionType: domain.TypePurchase,
	}
}

func newTestClient(url string) *Client {
	return NewClient(domain.MLConfig{URL: url, Timeout: time.Second}, testLogger())
}

func TestPredict(t *testing.T) {
	t.Run("FraudDetected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var got map[string]any
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("bad payload: %v", err)
			}
			if got["amount"] != "99.5" {
				t.Errorf("amount = %v, want 99.5", got["amount"])
			}
			if got["transactionType"] != "PURCHASE" {
				t.Errorf("transactionType = %v", got["transactionType"])
			}
			json.NewEncoder(w).Encode(PredictionResponse{Fraud: 1, Score: 0.87})
		}))
		defer srv.Close()

		score := newTestClient(srv.URL).Predict(context.Background(), testTx())
		if score != 0.87 {
			t.Errorf("score = %v, want 0.87", score)
		}
	})

	t.Run("NotFraud", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(PredictionResponse{Fraud: 0, Score: 0.42})
		}))
		defer srv.Close()

		if score := newTestClient(srv.URL).Predict(context.Background(), testTx()); score != 0.0 {
			t.Errorf("score = %v, want 0.0 when fraud flag is unset", score)
		}
	})

	t.Run("ServerError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		if score := newTestClient(srv.URL).Predict(context.Background(), testTx()); score != 0.0 {
			t.Errorf("score = %v, want 0.0 on server error", score)
		}
	})

	t.Run("MalformedResponse", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}))
		defer srv.Close()

		if score := newTestClient(srv.URL).Predict(context.Background(), testTx()); score != 0.0 {
			t.Errorf("score = %v, want 0.0 on malformed response", score)
		}
	})

	t.Run("Unreachable", func(t *testing.T) {
		if score := newTestClient("http://127.0.0.1:1/predict").Predict(context.Background(), testTx()); score != 0.0 {
			t.Errorf("score = %v, want 0.0 on transport failure", score)
		}
	})

	t.Run("DisabledWithoutURL", func(t *testing.T) {
		if score := newTestClient("").Predict(context.Background(), testTx()); score != 0.0 {
			t.Errorf("score = %v, want 0.0 with no configured scorer", score)
		}
	})
}
