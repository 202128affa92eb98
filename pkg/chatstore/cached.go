package chatstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/sentichat/sentichat/pkg/apis/cache"
)

const DefaultHistoryCacheTTL = 10 * time.Minute

// CachedStore reads histories through a cache and invalidates them on every successful
// write. The cache is best effort: its failures are logged and never returned.
type CachedStore struct {
	Store
	cache cache.Cache
	ttl   time.Duration
}

func NewCachedStore(store Store, c cache.Cache, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultHistoryCacheTTL
	}
	return &CachedStore{Store: store, cache: c, ttl: ttl}
}

// Cached histories are keyed by a per-user generation that every write replaces, so a
// fetch that raced a write can only refill a key nobody reads anymore.
func generationKey(userID string) string {
	return "history-generation:" + userID
}

func historyKey(userID, generation string) string {
	return "history:" + userID + ":" + generation
}

// generation returns the current cache generation for userID, starting one if none is set.
// An empty result means the cache is unusable for this fetch.
func (c *CachedStore) generation(userID string) string {
	if b, err := c.cache.Get(generationKey(userID)); err == nil && len(b) > 0 {
		return string(b)
	}
	gen := uuid.NewString()
	if err := c.cache.Set(generationKey(userID), []byte(gen), c.ttl); err != nil {
		log.WithError(err).WithField("user", userID).Warn("couldn't start history cache generation")
		return ""
	}
	return gen
}

func (c *CachedStore) Fetch(ctx context.Context, userID string) ([]Turn, error) {
	gen := c.generation(userID)
	if gen == "" {
		return c.Store.Fetch(ctx, userID)
	}

	key := historyKey(userID, gen)
	if b, err := c.cache.Get(key); err == nil {
		var turns []Turn
		if err := json.Unmarshal(b, &turns); err == nil {
			log.WithField("key", key).Debug("history cache hit")
			if turns == nil {
				turns = []Turn{}
			}
			return turns, nil
		}
		log.WithError(err).WithField("key", key).Warn("discarding undecodable history cache entry")
	}

	turns, err := c.Store.Fetch(ctx, userID)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(turns); err == nil {
		if err := c.cache.Set(key, b, c.ttl); err != nil {
			log.WithError(err).Warn("couldn't persist history to cache")
		}
	}
	return turns, nil
}

func (c *CachedStore) Append(ctx context.Context, userID string, turns ...Turn) error {
	if err := c.Store.Append(ctx, userID, turns...); err != nil {
		return err
	}
	c.invalidate(userID)
	return nil
}

func (c *CachedStore) Clear(ctx context.Context, userID string) error {
	if err := c.Store.Clear(ctx, userID); err != nil {
		return err
	}
	c.invalidate(userID)
	return nil
}

func (c *CachedStore) invalidate(userID string) {
	if err := c.cache.Set(generationKey(userID), []byte(uuid.NewString()), c.ttl); err != nil {
		log.WithError(err).WithField("user", userID).Warn("couldn't invalidate cached history")
		if err := c.cache.Delete(generationKey(userID)); err != nil {
			log.WithError(err).WithField("user", userID).Warn("couldn't drop history cache generation")
		}
	}
}
