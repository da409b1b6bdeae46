package harnessports

import "context"

// Tracer records one span per processed turn plus point events for the
// stages inside it (classification, fallbacks, crisis detection).
type Tracer interface {
	StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error))
	Event(ctx context.Context, name string, attrs map[string]any)
}

// RateLimiter admits generation work per key. release must be called once
// the admitted work is finished.
type RateLimiter interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
