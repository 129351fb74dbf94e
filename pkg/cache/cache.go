// Package cache implements the expiring hot cache in front of the durable
// store. The cache is advisory: misses and failures fall through to the
// store, and writes here are best-effort.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache is an expiring key-value store for hot lookups.
type Cache interface {
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key for ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes key.
	Delete(ctx context.Context, key string) error
}

// EntityKey builds the canonical cache key for an entity lookup.
func EntityKey(entityType, entityID string) string {
	return fmt.Sprintf("%s:%s", entityType, entityID)
}

// StateKey builds the cache key for an entity's current state.
func StateKey(entityType, entityID string) string {
	return fmt.Sprintf("state:%s:%s", entityType, entityID)
}
