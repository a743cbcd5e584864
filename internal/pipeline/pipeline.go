// Package pipeline drives the scoring flow for one transaction: read
// the prior profile snapshots, evaluate the rule catalogue against
// them, fold the transaction into the profiles, and hand the verdict
// to the persistence and publish sinks.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/opensource-finance/kestrel/internal/alerts"
	"github.com/opensource-finance/kestrel/internal/combine"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/profile"
	"github.com/opensource-finance/kestrel/internal/rules"
)

const lockStripes = 64

// Scorer produces an advisory fraud probability for a transaction.
type Scorer interface {
	Predict(ctx context.Context, tx *domain.Transaction) float64
}

// Pipeline scores transactions. Transactions for the same user are
// serialized through striped locks so profile reads and writes stay
// ordered; different users proceed concurrently.
type Pipeline struct {
	repo   domain.Repository
	stores *profile.Stores
	engine *rules.Engine
	scorer Scorer
	bus    domain.EventBus
	ring   *alerts.Ring
	logger *slog.Logger

	locks [lockStripes]sync.Mutex
}

// New wires the pipeline. The custom rule engine and scorer are
// optional; nil disables their contribution.
func New(repo domain.Repository, stores *profile.Stores, engine *rules.Engine, scorer Scorer, bus domain.EventBus, ring *alerts.Ring, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		repo:   repo,
		stores: stores,
		engine: engine,
		scorer: scorer,
		bus:    bus,
		ring:   ring,
		logger: logger,
	}
}

// Process runs one transaction through the full scoring flow and
// returns the verdict. Rules see the profile state as of the previous
// transaction; the current transaction is folded in afterwards, so a
// user's first transaction scores against no history rather than
// against itself.
func (p *Pipeline) Process(ctx context.Context, tx *domain.Transaction) (*domain.ProcessedTransaction, error) {
	stripe := &p.locks[userStripe(tx.UserID)]
	stripe.Lock()
	defer stripe.Unlock()

	if err := p.repo.SaveTransaction(ctx, tx); err != nil {
		p.logger.Error("failed to save transaction", "error", err, "tx_id", tx.ID)
	}

	velocity := getProfile(ctx, p.stores.Velocity, tx.UserID, p.logger)
	geo := getProfile(ctx, p.stores.Geo, tx.UserID, p.logger)
	behavior := getProfile(ctx, p.stores.Behavior, tx.UserID, p.logger)
	device := getProfile(ctx, p.stores.Device, tx.UserID, p.logger)

	domainResults := []*domain.DomainResult{
		rules.EvaluateVelocity(tx, velocity),
		rules.EvaluateGeo(tx, geo),
		rules.EvaluateBehavior(tx, behavior),
		rules.EvaluateDevice(tx, device),
	}

	var customResults []domain.RuleResult
	if p.engine != nil {
		customResults = p.engine.Evaluate(tx)
	}

	mlScore := 0.0
	if p.scorer != nil {
		mlScore = p.scorer.Predict(ctx, tx)
	}

	processed := combine.Combine(tx, domainResults, customResults, mlScore)

	putProfile(ctx, p.stores.Velocity, tx.UserID, profile.UpdateVelocity(velocity, tx), p.logger)
	putProfile(ctx, p.stores.Geo, tx.UserID, profile.UpdateGeo(geo, tx), p.logger)
	putProfile(ctx, p.stores.Behavior, tx.UserID, profile.UpdateBehavior(behavior, tx), p.logger)
	putProfile(ctx, p.stores.Device, tx.UserID, profile.UpdateDevice(device, tx), p.logger)

	if err := p.repo.SaveProcessed(ctx, processed); err != nil {
		p.logger.Error("failed to save processed transaction", "error", err, "tx_id", tx.ID)
	}

	p.publish(ctx, processed)

	return processed, nil
}

func (p *Pipeline) publish(ctx context.Context, processed *domain.ProcessedTransaction) {
	tx := processed.Transaction

	if data, err := json.Marshal(processed); err != nil {
		p.logger.Error("failed to encode processed transaction", "error", err, "tx_id", tx.ID)
	} else if err := p.bus.Publish(ctx, domain.TopicProcessed, tx.UserID, data); err != nil {
		p.logger.Error("failed to publish processed transaction", "error", err, "tx_id", tx.ID)
	}

	if processed.IsFraudulent {
		if p.ring != nil {
			p.ring.Add(processed)
		}
		if data, err := json.Marshal(processed.ToAlert()); err != nil {
			p.logger.Error("failed to encode fraud alert", "error", err, "tx_id", tx.ID)
		} else if err := p.bus.Publish(ctx, domain.TopicAlerts, tx.UserID, data); err != nil {
			p.logger.Error("failed to publish fraud alert", "error", err, "tx_id", tx.ID)
		}
		p.logger.Warn("fraud detected",
			"tx_id", tx.ID,
			"user_id", tx.UserID,
			"risk_score", fmt.Sprintf("%.3f", processed.RiskScore),
			"triggered", processed.TriggeredRules())
	}

	if data, err := json.Marshal(tx); err != nil {
		p.logger.Error("failed to encode transaction history", "error", err, "tx_id", tx.ID)
	} else if err := p.bus.Publish(ctx, domain.TopicHistory, tx.UserID, data); err != nil {
		p.logger.Error("failed to publish transaction history", "error", err, "tx_id", tx.ID)
	}
}

// getProfile reads a snapshot, degrading a store failure to a cold
// start so the pipeline never stalls on the cache layer.
func getProfile[T any](ctx context.Context, s *profile.Store[T], userID string, logger *slog.Logger) *T {
	snapshot, err := s.Get(ctx, userID)
	if err != nil {
		logger.Error("failed to read profile", "error", err, "user_id", userID)
		return nil
	}
	return snapshot
}

func putProfile[T any](ctx context.Context, s *profile.Store[T], userID string, snapshot *T, logger *slog.Logger) {
	if err := s.Put(ctx, userID, snapshot); err != nil {
		logger.Error("failed to store profile", "error", err, "user_id", userID)
	}
}

func userStripe(userID string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return h.Sum32() % lockStripes
}
