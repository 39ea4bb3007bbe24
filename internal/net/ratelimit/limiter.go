// Package ratelimit throttles GC calls per account. One Limiter is shared
// across a whole bot pool; each account gets its own token bucket, so a
// burst of cross-bot retries cannot push any single session past the rate
// the GC tolerates.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter hands out one token bucket per account, created lazily on first
// use.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewLimiter builds a Limiter whose per-account buckets refill at rps
// tokens per second with the given burst capacity.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (l *Limiter) forAccount(account string) *rate.Limiter {
	l.mu.RLock()
	limiter, ok := l.limiters[account]
	l.mu.RUnlock()
	if ok {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.limiters[account]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.limiters[account] = limiter
	return limiter
}

// Allow reports whether a call for account may proceed right now, spending
// a token if so.
func (l *Limiter) Allow(account string) bool {
	return l.forAccount(account).Allow()
}

// Wait blocks until a call for account may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context, account string) error {
	return l.forAccount(account).Wait(ctx)
}

// Tokens returns the number of tokens currently available to account.
func (l *Limiter) Tokens(account string) float64 {
	return l.forAccount(account).Tokens()
}

// SetRPS retunes the refill rate of every existing bucket and of buckets
// created afterwards.
func (l *Limiter) SetRPS(rps float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rps = rps
	for _, limiter := range l.limiters {
		limiter.SetLimit(rate.Limit(rps))
	}
}
