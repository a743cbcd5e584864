package alerts

import (
	"fmt"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func alert(id string) *domain.ProcessedTransaction {
	return &domain.ProcessedTransaction{
		Transaction:  &domain.Transaction{ID: id},
		IsFraudulent: true,
	}
}

func TestRing(t *testing.T) {
	t.Run("NewestFirst", func(t *testing.T) {
		r := NewRing(10)
		r.Add(alert("a"))
		r.Add(alert("b"))
		r.Add(alert("c"))

		snap := r.Snapshot()
		if len(snap) != 3 {
			t.Fatalf("len = %d, want 3", len(snap))
		}
		if snap[0].Transaction.ID != "c" || snap[2].Transaction.ID != "a" {
			t.Errorf("order wrong: %s %s %s",
				snap[0].Transaction.ID, snap[1].Transaction.ID, snap[2].Transaction.ID)
		}
	})

	t.Run("EvictsOldest", func(t *testing.T) {
		r := NewRing(100)
		for i := 0; i < 150; i++ {
			r.Add(alert(fmt.Sprintf("tx-%d", i)))
		}

		if r.Len() != 100 {
			t.Fatalf("len = %d, want 100", r.Len())
		}
		snap := r.Snapshot()
		if snap[0].Transaction.ID != "tx-149" {
			t.Errorf("newest = %s, want tx-149", snap[0].Transaction.ID)
		}
		if snap[99].Transaction.ID != "tx-50" {
			t.Errorf("oldest retained = %s, want tx-50", snap[99].Transaction.ID)
		}
	})

	t.Run("DefaultSize", func(t *testing.T) {
		r := NewRing(0)
		for i := 0; i < DefaultSize+1; i++ {
			r.Add(alert(fmt.Sprintf("tx-%d", i)))
		}
		if r.Len() != DefaultSize {
			t.Errorf("len = %d, want %d", r.Len(), DefaultSize)
		}
	})

	t.Run("EmptySnapshot", func(t *testing.T) {
		if snap := NewRing(5).Snapshot(); len(snap) != 0 {
			t.Errorf("expected empty snapshot, got %d", len(snap))
		}
	})
}
