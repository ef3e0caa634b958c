// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements an in-memory token-bucket rate limiter for the REST
// API with one bucket per caller (authenticated user, else client IP). Idle
// buckets are evicted opportunistically. Idempotent replays flagged by
// IdempotencyValidator do not consume tokens. Websocket traffic is limited
// per connection inside the realtime engine instead.
package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc selects the identity used to key a rate-limit bucket.
type KeyFunc func(*gin.Context) string

// KeyByUserOrIP keys by the authenticated user ("user:<id>") and falls back to
// the client address ("ip:<addr>").
func KeyByUserOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if uid := asString(c.Value(ctxKeyUserID)); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-key token-bucket limiter, safe for concurrent use.
type RateLimiter struct {
	limit rate.Limit
	burst int
	keyFn KeyFunc

	mu      sync.Mutex
	buckets map[string]*bucket
	idleTTL time.Duration
	lookups uint64
	sweepN  uint64
	now     func() time.Time
}

// NewRateLimiter returns a limiter refilling rps tokens per second with the
// given burst (coerced to at least 1).
func NewRateLimiter(rps float64, burst int, keyFn KeyFunc) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	if keyFn == nil {
		keyFn = KeyByUserOrIP()
	}
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		buckets: make(map[string]*bucket),
		idleTTL: 10 * time.Minute,
		sweepN:  5000,
		now:     time.Now,
	}
}

// limiterFor returns the bucket for key, sweeping idle buckets every sweepN
// lookups. The sweep runs first so a stale bucket is replaced, not refreshed.
func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= rl.sweepN {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.idleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lookups = 0
	}

	if b, ok := rl.buckets[key]; ok {
		b.lastSeen = now
		return b.limiter
	}
	lim := rate.NewLimiter(rl.limit, rl.burst)
	rl.buckets[key] = &bucket{limiter: lim, lastSeen: now}
	return lim
}

// size returns the number of live buckets.
func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay that must not consume tokens.
func IsRateBypass(c *gin.Context) bool {
	b, _ := c.Value(ctxKeyRateBypass).(bool)
	return b
}

// Handler returns the Gin middleware. Rejections answer 429 with the
// standard error envelope and a Retry-After hint in whole seconds.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		lim := rl.limiterFor(rl.keyFn(c))
		r := lim.ReserveN(rl.now(), 1)
		if r.OK() && r.Delay() == 0 {
			c.Next()
			return
		}
		retry := time.Second
		if r.OK() {
			retry = r.Delay()
			r.Cancel()
		}
		secs := int(retry.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": GetRequestID(c),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}
