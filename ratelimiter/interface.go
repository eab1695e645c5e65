package ratelimiter

import (
	"context"
	"time"
)

// Limiter paces requests to a provider.
// Implementations can be local (in-memory) or shared across processes.
type Limiter interface {
	// TryConsume takes n request slots if available.
	// Returns true if the slots were taken, false if insufficient capacity.
	TryConsume(n int) bool

	// TimeUntilAvailable returns how long until n slots would be available (read-only).
	TimeUntilAvailable(n int) time.Duration

	// WaitAndConsume waits until n slots are available, then takes them.
	// Returns error if context is cancelled or maxWait is exceeded.
	WaitAndConsume(ctx context.Context, n int, maxWait time.Duration) error
}
