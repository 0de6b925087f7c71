// Package cache defines the small key-value cache the Authenticator
// uses to avoid a store round trip on every request, with an in-memory
// implementation for a single instance and a Redis-backed one for a
// gateway running as more than one replica.
package cache

import (
	"context"
	"time"
)

// Service stores short-lived, JSON-marshaled values behind a string
// key. A miss (not found or expired) is reported as an error so the
// caller always falls through to its authoritative source.
type Service interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
