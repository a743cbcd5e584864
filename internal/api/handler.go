package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/alerts"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	engine  *rules.Engine
	ring    *alerts.Ring
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, ring *alerts.Ring, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		bus:     bus,
		engine:  engine,
		ring:    ring,
		version: version,
	}
}

// SubmitResponse is the response for POST /api/transactions.
type SubmitResponse struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

// SubmitTransaction handles POST /api/transactions. The transaction is
// validated at the boundary, acknowledged immediately, and scored
// asynchronously off the incoming topic.
func (h *Handler) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	tx, err := req.ToTransaction()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	payload, err := json.Marshal(tx)
	if err != nil {
		slog.Error("failed to encode transaction", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to encode transaction",
		})
		return
	}

	if err := h.bus.Publish(ctx, domain.TopicIncoming, tx.UserID, payload); err != nil {
		slog.Error("failed to publish transaction", "tx_id", tx.ID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "failed to enqueue transaction",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitResponse{
		TransactionID: tx.ID,
		Status:        "PROCESSING",
		Message:       "Transaction accepted for fraud analysis",
	})
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")

	tx, err := h.repo.GetTransaction(r.Context(), txID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "transaction not found",
			})
			return
		}
		slog.Error("failed to get transaction", "id", txID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get transaction",
		})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// GetProcessed retrieves a scored transaction by transaction ID.
func (h *Handler) GetProcessed(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")

	p, err := h.repo.GetProcessed(r.Context(), txID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "processed transaction not found",
			})
			return
		}
		slog.Error("failed to get processed transaction", "id", txID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get processed transaction",
		})
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// FraudAlerts returns the most recent fraud alerts, newest first.
func (h *Handler) FraudAlerts(w http.ResponseWriter, r *http.Request) {
	snapshot := h.ring.Snapshot()

	out := make([]*domain.FraudAlert, 0, len(snapshot))
	for _, p := range snapshot {
		out = append(out, p.ToAlert())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": out,
		"count":  len(out),
	})
}

// AnalyticsSummary returns the aggregate fraud statistics.
func (h *Handler) AnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.repo.FraudSummary(r.Context())
	if err != nil {
		slog.Error("failed to compute fraud summary", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute summary",
		})
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// AnalyticsRiskiest returns the highest scoring transactions.
func (h *Handler) AnalyticsRiskiest(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}

	rows, err := h.repo.TopRiskiest(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list riskiest transactions", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list riskiest transactions",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": rows,
		"count":        len(rows),
	})
}

// AnalyticsRuleDistribution returns how often each rule has triggered.
func (h *Handler) AnalyticsRuleDistribution(w http.ResponseWriter, r *http.Request) {
	rows, err := h.repo.RuleDistribution(r.Context())
	if err != nil {
		slog.Error("failed to compute rule distribution", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute rule distribution",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": rows,
		"count": len(rows),
	})
}

// ListRules returns the custom rules currently loaded in the engine
// plus the built-in catalogue with its declared weights.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.engine.Loaded()

	builtin := make([]map[string]any, 0, len(rules.Catalogue()))
	for _, name := range rules.Catalogue() {
		builtin = append(builtin, map[string]any{
			"name":   name,
			"weight": rules.Weight(name),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":   loaded,
		"count":   len(loaded),
		"source":  "database",
		"builtin": builtin,
	})
}

// CreateRuleRequest is the request body for creating a custom rule.
type CreateRuleRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Expression  string  `json:"expression"`
	Score       float64 `json:"score"`
	Reason      string  `json:"reason"`
	Enabled     bool    `json:"enabled"`
}

// CreateRule validates and persists a custom rule. The rule takes
// effect after POST /api/rules/reload.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name and expression are required",
		})
		return
	}
	if req.Score < 0 || req.Score > 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "score must be between 0 and 1",
		})
		return
	}

	now := time.Now().UTC()
	rule := &domain.CustomRule{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Score:       req.Score,
		Reason:      req.Reason,
		Enabled:     req.Enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if rule.Reason == "" {
		rule.Reason = "Custom rule matched: " + rule.Name
	}

	if err := h.engine.Validate(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveCustomRule(ctx, rule); err != nil {
		slog.Error("failed to save custom rule", "name", rule.Name, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	slog.Info("custom rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule created. Call POST /api/rules/reload to apply changes.",
	})
}

// ReloadRules reloads the custom rule set from the database into the
// engine without a restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ReloadFromRepository(r.Context(), h.repo); err != nil {
		slog.Error("failed to reload custom rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	count := h.engine.Count()
	slog.Info("custom rules reloaded", "count", count)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   count,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
