// Package alerts keeps a bounded in-memory ring of the most recent
// fraud alerts for the API to serve without touching storage.
package alerts

import (
	"sync"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// DefaultSize is the ring capacity when none is configured.
const DefaultSize = 100

// Ring is a fixed-capacity buffer of fraudulent processed
// transactions. When full, adding evicts the oldest entry.
type Ring struct {
	mu      sync.Mutex
	entries []*domain.ProcessedTransaction
	start   int
	count   int
}

// NewRing creates a ring with the given capacity.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultSize
	}
	return &Ring{entries: make([]*domain.ProcessedTransaction, size)}
}

// Add appends an alert, evicting the oldest when full.
func (r *Ring) Add(p *domain.ProcessedTransaction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count < len(r.entries) {
		r.entries[(r.start+r.count)%len(r.entries)] = p
		r.count++
		return
	}

	r.entries[r.start] = p
	r.start = (r.start + 1) % len(r.entries)
}

// Len returns the number of alerts currently held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Snapshot returns the held alerts, newest first.
func (r *Ring) Snapshot() []*domain.ProcessedTransaction {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.ProcessedTransaction, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.entries[(r.start+r.count-1-i)%len(r.entries)]
	}
	return out
}
