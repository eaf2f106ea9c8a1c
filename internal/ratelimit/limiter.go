// Package ratelimit provides keyed token-bucket rate limiting for the
// reference applications' authentication endpoints.
package ratelimit

import (
	"net/netip"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config defines the rate limiting configuration.
type Config struct {
	RPS             float64        // Sustained requests per second per key
	Burst           int            // Bucket size per key
	CleanupInterval time.Duration  // How often idle limiters are dropped
	TrustedProxies  []netip.Prefix // Peers whose X-Forwarded-For is honored
}

// DefaultConfig allows bursts large enough for a full browser suite run
// against the same address.
var DefaultConfig = Config{
	RPS:             5,
	Burst:           50,
	CleanupInterval: 10 * time.Minute,
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// RateLimiter manages one limiter per key.
type RateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	config   Config
	now      func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewRateLimiter creates a rate limiter and starts its cleanup goroutine.
// Callers must call Stop.
func NewRateLimiter(config Config) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultConfig.CleanupInterval
	}
	rl := &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		config:   config,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}

	rl.wg.Add(1)
	go rl.cleanupLoop()

	return rl
}

// Allow reports whether a request for key is within limits and consumes a
// token if so.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiter(key).Allow()
}

// Remaining returns the approximate number of tokens left for key.
func (rl *RateLimiter) Remaining(key string) int {
	remaining := int(rl.limiter(key).Tokens())
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(rl.config.RPS), rl.config.Burst)}
		rl.limiters[key] = entry
	}
	entry.lastUsed = rl.now()
	return entry.limiter
}

// Cleanup removes limiters idle for longer than the cleanup interval.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.config.CleanupInterval)
	for key, entry := range rl.limiters {
		if entry.lastUsed.Before(cutoff) {
			delete(rl.limiters, key)
		}
	}
}

func (rl *RateLimiter) cleanupLoop() {
	defer rl.wg.Done()

	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine and waits for it. Safe to call twice.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCh)
	})
	rl.wg.Wait()
}

// ClientKey returns the client IP key function for the configured trusted
// proxies.
func (rl *RateLimiter) ClientKey() KeyFunc {
	return ClientIPBehind(rl.config.TrustedProxies)
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
