// Package worker consumes incoming transactions from the event bus and
// feeds them through the scoring pipeline.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pipeline"
)

// Worker subscribes to the incoming-transactions topic and hands each
// decoded transaction to the pipeline. Malformed payloads are logged
// and dropped at this boundary; they never reach the core.
type Worker struct {
	bus      domain.EventBus
	pipeline *pipeline.Pipeline
	logger   *slog.Logger

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a transaction consumer.
func NewWorker(bus domain.EventBus, p *pipeline.Pipeline, logger *slog.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		pipeline: p,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// consumerGroup is the queue group shared by all pipeline consumers.
// Every member joins the same group so each incoming transaction is
// scored exactly once no matter how many consumers run.
const consumerGroup = "kestrel-pipeline"

// Start joins the given number of consumers to the pipeline queue
// group on the incoming topic. Members share deliveries; per-user
// ordering is preserved by the pipeline's striped locks.
func (w *Worker) Start(consumers int) error {
	if consumers <= 0 {
		consumers = 1
	}

	for i := 0; i < consumers; i++ {
		sub, err := w.bus.QueueSubscribe(w.ctx, domain.TopicIncoming, consumerGroup, w.handleMessage)
		if err != nil {
			return err
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	w.logger.Info("workers started", "consumers", consumers, "topic", domain.TopicIncoming)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var tx domain.Transaction
	if err := json.Unmarshal(msg.Payload, &tx); err != nil {
		w.logger.Error("dropping malformed transaction message", "message_id", msg.ID, "error", err)
		return nil
	}
	if tx.ID == "" || tx.UserID == "" {
		w.logger.Error("dropping transaction without identity", "message_id", msg.ID)
		return nil
	}

	processed, err := w.pipeline.Process(ctx, &tx)
	if err != nil {
		w.logger.Error("pipeline processing failed", "tx_id", tx.ID, "error", err)
		return err
	}

	w.logger.Info("transaction processed",
		"tx_id", tx.ID,
		"user_id", tx.UserID,
		"risk_score", processed.RiskScore,
		"is_fraudulent", processed.IsFraudulent,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop cancels the subscriptions and stops consuming.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe", "topic", sub.Topic(), "error", err)
		}
	}
	w.subscriptions = nil

	w.logger.Info("workers stopped")
	return nil
}
