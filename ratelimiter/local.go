package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrWaitExceeded is returned when the required wait is longer than the allowed maximum.
var ErrWaitExceeded = errors.New("rate limit wait exceeds max wait")

// RequestLimiter limits requests per refill interval with a single bucket.
type RequestLimiter struct {
	bucket *Bucket
}

// Ensure RequestLimiter implements Limiter.
var _ Limiter = (*RequestLimiter)(nil)

// New returns a limiter allowing requestsPerMinute requests each minute.
func New(requestsPerMinute int) *RequestLimiter {
	return NewWithInterval(requestsPerMinute, time.Minute)
}

// NewWithInterval returns a limiter allowing capacity requests per interval.
func NewWithInterval(capacity int, interval time.Duration) *RequestLimiter {
	return &RequestLimiter{bucket: NewBucket(capacity, capacity, interval)}
}

// TryConsume takes n slots if available.
func (rl *RequestLimiter) TryConsume(n int) bool {
	return rl.bucket.TryConsume(n)
}

// TimeUntilAvailable returns how long until n slots would be available.
func (rl *RequestLimiter) TimeUntilAvailable(n int) time.Duration {
	return rl.bucket.TimeUntilAvailable(n)
}

// WaitAndConsume waits until n slots are available (up to maxWait), then takes them.
// If maxWait is 0, there is no limit on how long to wait.
func (rl *RequestLimiter) WaitAndConsume(ctx context.Context, n int, maxWait time.Duration) error {
	for {
		if rl.bucket.TryConsume(n) {
			return nil
		}
		wait := rl.bucket.TimeUntilAvailable(n)
		if wait <= 0 {
			// Refill became due between the two calls.
			wait = time.Millisecond
		}
		if maxWait > 0 && wait > maxWait {
			return fmt.Errorf("%w: need %v, max %v", ErrWaitExceeded, wait, maxWait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Bucket is a fixed-window bucket: it refills to capacity once per interval.
type Bucket struct {
	mu             sync.Mutex
	capacity       int
	remaining      int
	refillInterval time.Duration
	lastRefill     time.Time
	now            func() time.Time
}

// NewBucket creates a new bucket holding initial slots out of capacity.
func NewBucket(capacity int, initial int, refillInterval time.Duration) *Bucket {
	return &Bucket{
		capacity:       capacity,
		remaining:      initial,
		refillInterval: refillInterval,
		lastRefill:     time.Now(),
		now:            time.Now,
	}
}

// refill must be called with mu held.
func (b *Bucket) refill() {
	now := b.now()
	if now.Sub(b.lastRefill) >= b.refillInterval {
		b.remaining = b.capacity
		b.lastRefill = now
	}
}

// TryConsume takes n slots if they are available.
func (b *Bucket) TryConsume(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if n <= b.remaining {
		b.remaining -= n
		return true
	}
	return false
}

// Remaining returns the current number of free slots.
func (b *Bucket) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	return b.remaining
}

// TimeUntilAvailable returns how long until n slots are free. It is zero when
// they are free now and the time to the next refill otherwise.
func (b *Bucket) TimeUntilAvailable(n int) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if n <= b.remaining {
		return 0
	}
	return b.refillInterval - b.now().Sub(b.lastRefill)
}
