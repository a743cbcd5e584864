package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/alerts"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/profile"
	"github.com/opensource-finance/kestrel/internal/repository"
)

func newTestWorker(t *testing.T) (*Worker, *bus.ChannelBus, domain.Repository, *profile.Stores) {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "worker.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	c, err := cache.New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	b := bus.NewChannelBus(100)
	t.Cleanup(func() { b.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stores := profile.NewStores(c)
	p := pipeline.New(repo, stores, nil, nil, b, alerts.NewRing(10), logger)

	w := NewWorker(b, p, logger)
	t.Cleanup(func() { w.Stop() })
	return w, b, repo, stores
}

func waitFor(t *testing.T, check func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if check() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("condition not reached in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestWorker(t *testing.T) {
	ctx := context.Background()

	t.Run("ProcessesIncomingTransactions", func(t *testing.T) {
		w, b, repo, _ := newTestWorker(t)
		if err := w.Start(1); err != nil {
			t.Fatalf("start: %v", err)
		}

		tx := &domain.Transaction{
			ID:              "tx-1",
			UserID:          "u1",
			Amount:          decimal.NewFromInt(50),
			Currency:        "USD",
			MerchantID:      "m1",
			Location:        domain.Location{Country: "US", City: "NYC"},
			Timestamp:       time.Now().UTC(),
			CardNumber:      "4111111111111111",
			TransactionType: domain.TypePurchase,
		}
		payload, _ := json.Marshal(tx)
		if err := b.Publish(ctx, domain.TopicIncoming, tx.UserID, payload); err != nil {
			t.Fatalf("publish: %v", err)
		}

		waitFor(t, func() bool {
			_, err := repo.GetProcessed(ctx, "tx-1")
			return err == nil
		})
	})

	t.Run("DropsMalformedPayload", func(t *testing.T) {
		w, b, repo, _ := newTestWorker(t)
		if err := w.Start(1); err != nil {
			t.Fatalf("start: %v", err)
		}

		if err := b.Publish(ctx, domain.TopicIncoming, "u1", []byte("not json")); err != nil {
			t.Fatalf("publish: %v", err)
		}
		if err := b.Publish(ctx, domain.TopicIncoming, "u1", []byte(`{"id":"","userId":""}`)); err != nil {
			t.Fatalf("publish: %v", err)
		}

		// A valid transaction behind the junk still gets through.
		tx := &domain.Transaction{
			ID: "tx-2", UserID: "u1",
			Amount: decimal.NewFromInt(10), Currency: "USD", MerchantID: "m1",
			Location: domain.Location{Country: "US"}, Timestamp: time.Now().UTC(),
			CardNumber: "4111111111111111", TransactionType: domain.TypePurchase,
		}
		payload, _ := json.Marshal(tx)
		if err := b.Publish(ctx, domain.TopicIncoming, tx.UserID, payload); err != nil {
			t.Fatalf("publish: %v", err)
		}

		waitFor(t, func() bool {
			_, err := repo.GetProcessed(ctx, "tx-2")
			return err == nil
		})
		if _, err := repo.GetTransaction(ctx, ""); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("malformed payload should not be persisted: %v", err)
		}
	})

	t.Run("SingleDeliveryAcrossConsumers", func(t *testing.T) {
		w, b, repo, stores := newTestWorker(t)
		if err := w.Start(4); err != nil {
			t.Fatalf("start: %v", err)
		}

		var processedCount atomic.Int32
		if _, err := b.Subscribe(ctx, domain.TopicProcessed, func(ctx context.Context, msg *domain.Message) error {
			processedCount.Add(1)
			return nil
		}); err != nil {
			t.Fatalf("subscribe: %v", err)
		}

		tx := &domain.Transaction{
			ID: "tx-once", UserID: "u-once",
			Amount: decimal.NewFromInt(25), Currency: "USD", MerchantID: "m1",
			Location: domain.Location{Country: "US", City: "NYC"}, Timestamp: time.Now().UTC(),
			CardNumber: "4111111111111111", TransactionType: domain.TypePurchase,
		}
		payload, _ := json.Marshal(tx)
		if err := b.Publish(ctx, domain.TopicIncoming, tx.UserID, payload); err != nil {
			t.Fatalf("publish: %v", err)
		}

		waitFor(t, func() bool {
			_, err := repo.GetProcessed(ctx, "tx-once")
			return err == nil
		})
		// Give any duplicate deliveries time to surface.
		time.Sleep(100 * time.Millisecond)

		vp, err := stores.Velocity.Get(ctx, "u-once")
		if err != nil {
			t.Fatalf("get velocity profile: %v", err)
		}
		if vp == nil {
			t.Fatal("velocity profile not created")
		}
		if vp.TransactionCount != 1 {
			t.Errorf("expected transaction folded into profile once, got count %d", vp.TransactionCount)
		}
		if got := processedCount.Load(); got != 1 {
			t.Errorf("expected 1 processed publication, got %d", got)
		}
	})

	t.Run("StopUnsubscribes", func(t *testing.T) {
		w, _, _, _ := newTestWorker(t)
		if err := w.Start(2); err != nil {
			t.Fatalf("start: %v", err)
		}
		if err := w.Stop(); err != nil {
			t.Fatalf("stop: %v", err)
		}
		if len(w.subscriptions) != 0 {
			t.Errorf("subscriptions not cleared")
		}
	})
}
