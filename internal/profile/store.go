// Package profile maintains the per-user behavioral profiles that feed
// the rule evaluators. Profiles are immutable snapshots: an update
// builds a new value and replaces the stored one wholesale.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Store is a keyed snapshot store for one profile domain, built on the
// cache layer. The TTL carries the domain's retention horizon, so a
// profile that goes stale simply expires and the next transaction
// starts from scratch.
type Store[T any] struct {
	cache domain.Cache
	kind  string
	ttl   time.Duration
}

// NewStore creates a profile store for one domain.
func NewStore[T any](cache domain.Cache, kind string, ttl time.Duration) *Store[T] {
	return &Store[T]{cache: cache, kind: kind, ttl: ttl}
}

// Get returns the current profile snapshot for a user, or nil when no
// profile exists yet. Absence is a cold-start state, not an error.
func (s *Store[T]) Get(ctx context.Context, userID string) (*T, error) {
	data, err := s.cache.Get(ctx, s.key(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s profile: %w", s.kind, err)
	}
	if data == nil {
		return nil, nil
	}

	var p T
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode %s profile: %w", s.kind, err)
	}
	return &p, nil
}

// Put atomically replaces the stored snapshot and refreshes its
// retention window.
func (s *Store[T]) Put(ctx context.Context, userID string, p *T) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode %s profile: %w", s.kind, err)
	}
	if err := s.cache.Set(ctx, s.key(userID), data, s.ttl); err != nil {
		return fmt.Errorf("failed to write %s profile: %w", s.kind, err)
	}
	return nil
}

func (s *Store[T]) key(userID string) string {
	return "profile:" + s.kind + ":" + userID
}

// Stores bundles the four domain stores.
type Stores struct {
	Velocity *Store[domain.VelocityProfile]
	Geo      *Store[domain.GeoProfile]
	Behavior *Store[domain.BehaviorProfile]
	Device   *Store[domain.DeviceProfile]
}

// NewStores creates the four profile stores over a shared cache, each
// with its own retention horizon.
func NewStores(cache domain.Cache) *Stores {
	return &Stores{
		Velocity: NewStore[domain.VelocityProfile](cache, "velocity", domain.RetentionVelocity),
		Geo:      NewStore[domain.GeoProfile](cache, "geo", domain.RetentionGeo),
		Behavior: NewStore[domain.BehaviorProfile](cache, "behavior", domain.RetentionBehavior),
		Device:   NewStore[domain.DeviceProfile](cache, "device", domain.RetentionDevice),
	}
}
