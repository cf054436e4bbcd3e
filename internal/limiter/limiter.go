// Package limiter defines interfaces and implementations for login rate limiting.
package limiter

import (
	"context"
	"time"
)

// Key identifies one throttled login stream: a tenant user email seen from one address.
type Key struct {
	ProjectID string
	Email     string
	IPHash    []byte
}

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether login is currently allowed and optional retry-after.
	Allow(ctx context.Context, k Key) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, k Key) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, k Key) (bool, time.Duration, error)
}
