// Package cache provides the response cache used for replaying identical
// chat requests, keyed by a content hash of the outbound body.
package cache

import (
	"context"
	"time"
)

// Service is the cache contract. Implementations marshal values themselves.
type Service interface {
	// Get retrieves a value and unmarshals it into dest.
	Get(ctx context.Context, key string, dest interface{}) error

	// Set stores a value with a TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error
}
