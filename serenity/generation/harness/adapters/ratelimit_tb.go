package adapters

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	ports "github.com/ZanzyTHEbar/serenity/serenity/generation/harness/ports"
)

// TokenBucket admits generation requests per key. A key starts with capacity
// tokens and regains one every interval, accrued continuously.
type TokenBucket struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	capacity float64
	interval time.Duration
	now      func() time.Time
}

type bucket struct {
	tokens  float64
	updated time.Time
}

// NewTokenBucket creates a limiter. Non-positive arguments fall back to one
// token per second.
func NewTokenBucket(capacity int, interval time.Duration) *TokenBucket {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &TokenBucket{
		buckets:  make(map[string]*bucket),
		capacity: float64(capacity),
		interval: interval,
		now:      time.Now,
	}
}

// Acquire spends one token for key or fails with a *RateLimitError.
// Admission is not returned on release; only time refills the bucket.
func (tb *TokenBucket) Acquire(ctx context.Context, key string) (release func(), err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	b := tb.refilled(key)
	if b.tokens < 1 {
		return nil, &RateLimitError{
			Key:        key,
			RetryAfter: time.Duration((1 - b.tokens) * float64(tb.interval)),
		}
	}
	b.tokens--
	return func() {}, nil
}

// Remaining reports the whole tokens currently available for key.
func (tb *TokenBucket) Remaining(key string) int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return int(tb.refilled(key).tokens)
}

// refilled returns the bucket for key brought up to date. Callers hold mu.
func (tb *TokenBucket) refilled(key string) *bucket {
	now := tb.now()
	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: tb.capacity, updated: now}
		tb.buckets[key] = b
		return b
	}
	if elapsed := now.Sub(b.updated); elapsed > 0 {
		b.tokens = math.Min(tb.capacity, b.tokens+float64(elapsed)/float64(tb.interval))
		b.updated = now
	}
	return b
}

// ErrRateLimitExceeded matches every *RateLimitError with errors.Is.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// RateLimitError reports a refused admission and when a token will be available.
type RateLimitError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %q, retry after %s", e.Key, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimitExceeded }

var _ ports.RateLimiter = (*TokenBucket)(nil)
