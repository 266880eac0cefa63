package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/wirl-lang/wirl/common/cache"
	"github.com/wirl-lang/wirl/internal/engine"
)

// cachedEntry is what CachedStore stores in the backing cache.Cache for a
// run's latest snapshot, keyed by run id.
type cachedEntry struct {
	Superstep int          `json:"superstep"`
	State     *engine.State `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
}

// CachedStore wraps a Store with a read-through cache.Cache in front of
// LoadLatest, the path a worker hits once each time it claims a run, to
// resume from the latest checkpoint (spec.md §4.5 step 3). Save invalidates
// the entry rather than updating it in place, since the Store of record
// (file or Postgres) is still the only writer whose result is trusted.
type CachedStore struct {
	Store
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedStore wraps store with c, caching LoadLatest results for ttl.
func NewCachedStore(store Store, c cache.Cache, ttl time.Duration) *CachedStore {
	return &CachedStore{Store: store, cache: c, ttl: ttl}
}

func (s *CachedStore) Save(ctx context.Context, runID string, state *engine.State) error {
	if err := s.Store.Save(ctx, runID, state); err != nil {
		return err
	}
	_ = s.cache.Delete(ctx, runID)
	return nil
}

func (s *CachedStore) LoadLatest(ctx context.Context, runID string) (*Snapshot, error) {
	if raw, ok, err := s.cache.Get(ctx, runID); err == nil && ok {
		var entry cachedEntry
		if err := json.Unmarshal(raw, &entry); err == nil {
			return &Snapshot{Superstep: entry.Superstep, State: entry.State, CreatedAt: entry.CreatedAt}, nil
		}
	}

	snap, err := s.Store.LoadLatest(ctx, runID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, err
	}

	if raw, err := json.Marshal(cachedEntry{Superstep: snap.Superstep, State: snap.State, CreatedAt: snap.CreatedAt}); err == nil {
		_ = s.cache.Set(ctx, runID, raw, s.ttl)
	}
	return snap, nil
}
