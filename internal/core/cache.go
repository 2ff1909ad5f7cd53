// Package core defines the ports of the booking engine and the small services that sit
// directly on top of them.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dtapi/booking-engine/internal/domain/model"
)

// CacheRepository defines the interface for caching operations.
// The core defines the interface and the data layer provides implementations.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// SetIfNotExists atomically sets a key only if it doesn't already exist.
	// Returns true if the key was set, false if it already existed.
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}

const translatorPoolKey = "booking:translator_pool:v1"

// TranslatorPoolCacheOptions bundles dependencies for NewTranslatorPoolCache.
type TranslatorPoolCacheOptions struct {
	Cache     CacheRepository     // Optional: nil disables caching
	Directory TranslatorDirectory // Required
	TTL       time.Duration       // Zero disables caching
	Logger    *slog.Logger
}

// TranslatorPoolCache serves translator pool snapshots. Within one TTL every caller sees the
// same snapshot, which keeps candidate computation deterministic across processes.
type TranslatorPoolCache struct {
	cache     CacheRepository
	directory TranslatorDirectory
	ttl       time.Duration
	logger    *slog.Logger
}

// NewTranslatorPoolCache creates a new TranslatorPoolCache.
func NewTranslatorPoolCache(opts TranslatorPoolCacheOptions) *TranslatorPoolCache {
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "translator_pool_cache")
	}
	return &TranslatorPoolCache{
		cache:     opts.Cache,
		directory: opts.Directory,
		ttl:       opts.TTL,
		logger:    logger,
	}
}

func (c *TranslatorPoolCache) enabled() bool {
	return c.cache != nil && c.ttl > 0
}

// Snapshot returns the translator pool, from cache when a fresh snapshot exists.
// Cache failures fall back to the directory.
func (c *TranslatorPoolCache) Snapshot(ctx context.Context) ([]*model.Translator, error) {
	if c.enabled() {
		raw, err := c.cache.Get(ctx, translatorPoolKey)
		switch {
		case err != nil:
			c.warn(ctx, "translator pool cache read failed", err)
		case len(raw) > 0:
			var pool []*model.Translator
			uerr := json.Unmarshal(raw, &pool)
			if uerr == nil {
				return pool, nil
			}
			c.warn(ctx, "translator pool cache entry is corrupt", uerr)
		}
	}

	pool, err := c.directory.ListTranslators(ctx)
	if err != nil {
		return nil, fmt.Errorf("list translators: %w", err)
	}

	if c.enabled() {
		raw, merr := json.Marshal(pool)
		if merr == nil {
			// Only the first writer within a TTL publishes, so concurrent misses converge on one snapshot.
			if _, serr := c.cache.SetIfNotExists(ctx, translatorPoolKey, raw, c.ttl); serr != nil {
				c.warn(ctx, "translator pool cache write failed", serr)
			}
		}
	}
	return pool, nil
}

// Invalidate drops the cached snapshot.
func (c *TranslatorPoolCache) Invalidate(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	_, err := c.cache.Delete(ctx, translatorPoolKey)
	return err
}

func (c *TranslatorPoolCache) warn(ctx context.Context, msg string, err error) {
	if c.logger != nil {
		c.logger.WarnContext(ctx, msg, "error", err)
	}
}
