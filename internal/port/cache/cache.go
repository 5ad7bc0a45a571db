// Package cache defines the port for short-lived byte caches such as the
// resolved-principal cache in front of an Authenticator.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque values under string keys with a per-entry TTL.
// A miss is reported as found == false with a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
