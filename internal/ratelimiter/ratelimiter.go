// Package ratelimiter throttles requests per client key with token
// buckets from golang.org/x/time/rate.
package ratelimiter

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// idleTTL drops the bucket of a client that has been quiet this long.
const idleTTL = 10 * time.Minute

// RateLimiter keeps one token bucket per client key. All methods are safe
// for concurrent use.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets *expirable.LRU[string, *rate.Limiter]
}

// New allows perMinute requests per minute per key, with bursts of up to
// perMinute. perMinute = 0 disables limiting. maxKeys bounds memory; the
// least recently seen client is forgotten first.
func New(perMinute, maxKeys int) *RateLimiter {
	if perMinute <= 0 {
		return &RateLimiter{limit: rate.Inf}
	}
	return &RateLimiter{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		buckets: expirable.NewLRU[string, *rate.Limiter](maxKeys, nil, idleTTL),
	}
}

func (r *RateLimiter) bucket(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.buckets.Get(key); ok {
		return b
	}
	b := rate.NewLimiter(r.limit, r.burst)
	r.buckets.Add(key, b)
	return b
}

// Allow consumes one token for key and reports whether it was available.
func (r *RateLimiter) Allow(key string) bool {
	return r.AllowAt(key, time.Now())
}

func (r *RateLimiter) AllowAt(key string, now time.Time) bool {
	if r.limit == rate.Inf {
		return true
	}
	return r.bucket(key).AllowN(now, 1)
}

// Remaining reports how many whole requests key could make right now. ok
// is false when limiting is disabled.
func (r *RateLimiter) Remaining(key string) (n int, ok bool) {
	return r.RemainingAt(key, time.Now())
}

func (r *RateLimiter) RemainingAt(key string, now time.Time) (n int, ok bool) {
	if r.limit == rate.Inf {
		return 0, false
	}
	return int(r.bucket(key).TokensAt(now)), true
}
