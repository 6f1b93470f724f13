package cache

import (
	"context"
	"time"

	"agentdash/internal/market"
	"agentdash/internal/storage"
)

// DefaultMaxAge is the staleness threshold for a cached snapshot.
const DefaultMaxAge = 5 * time.Minute

type entry struct {
	Snapshot market.Snapshot `json:"snapshot"`
	StoredAt time.Time       `json:"stored_at"`
}

// SnapshotCache keeps the last fetched market snapshot in a single slot.
type SnapshotCache struct {
	backend storage.Backend
	now     func() time.Time
}

// Option customises a SnapshotCache.
type Option func(*SnapshotCache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *SnapshotCache) {
		c.now = now
	}
}

// NewSnapshotCache binds the cache to a storage backend.
func NewSnapshotCache(backend storage.Backend, opts ...Option) *SnapshotCache {
	c := &SnapshotCache{backend: backend, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Write stores snap together with the current time, replacing any prior value.
func (c *SnapshotCache) Write(ctx context.Context, snap market.Snapshot) error {
	return storage.Set(ctx, c.backend, storage.KeyMarketSnapshot, entry{
		Snapshot: snap,
		StoredAt: c.now().UTC(),
	})
}

// ReadIfFresh returns the stored snapshot only if it is younger than maxAge.
func (c *SnapshotCache) ReadIfFresh(ctx context.Context, maxAge time.Duration) (market.Snapshot, bool, error) {
	e, err := storage.Get(ctx, c.backend, storage.KeyMarketSnapshot, entry{})
	if err != nil {
		return market.Snapshot{}, false, err
	}
	if e.StoredAt.IsZero() {
		return market.Snapshot{}, false, nil
	}
	if c.now().Sub(e.StoredAt) >= maxAge {
		return market.Snapshot{}, false, nil
	}
	return e.Snapshot, true, nil
}
