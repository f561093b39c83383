// Package ratelimit implements a token bucket rate limiter keyed by client id.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/maxscroll/internal/clock"
)

// pruneEvery is how many Allow calls pass between idle-bucket sweeps.
const pruneEvery = 1024

// Limiter manages per-client rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*bucket
	defaultRate  rate.Limit
	defaultBurst int
	idleTTL      time.Duration
	clock        clock.Clock
	calls        int
}

type bucket struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// Config holds rate limiter configuration.
type Config struct {
	// DefaultRPS is the sustained events-per-second per client; <= 0 disables limiting.
	DefaultRPS   float64
	DefaultBurst int
	// IdleTTL drops buckets unused for this long. Defaults to ten minutes.
	IdleTTL time.Duration
	Clock   clock.Clock
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Limiter{
		limiters:     make(map[string]*bucket),
		defaultRate:  r,
		defaultBurst: burst,
		idleTTL:      ttl,
		clock:        clk,
	}
}

// Allow reports whether key may spend one token now. A nil Limiter allows
// everything.
func (l *Limiter) Allow(key string) bool {
	if l == nil || l.defaultRate == rate.Inf {
		return true
	}
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.calls%pruneEvery == 0 {
		l.pruneLocked(now)
	}
	b, exists := l.limiters[key]
	if !exists {
		b = &bucket{limiter: rate.NewLimiter(l.defaultRate, l.defaultBurst)}
		l.limiters[key] = b
	}
	b.lastUsed = now
	return b.limiter.AllowN(now, 1)
}

// Forget drops the bucket for key.
func (l *Limiter) Forget(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, key)
}

// Len returns the number of tracked buckets.
func (l *Limiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *Limiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.idleTTL)
	for key, b := range l.limiters {
		if b.lastUsed.Before(cutoff) {
			delete(l.limiters, key)
		}
	}
}
