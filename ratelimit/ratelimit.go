package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	MaxRequests     int           // Maximum number of requests allowed
	WindowSize      time.Duration // Time window for rate limiting
	CleanupInterval time.Duration // How often to clean up expired entries
}

// DefaultConfig returns a default configuration
func DefaultConfig() *RateLimiterConfig {
	return &RateLimiterConfig{
		MaxRequests:     50,              // 50 requests
		WindowSize:      time.Second,     // per second
		CleanupInterval: 5 * time.Minute, // cleanup every 5 minutes
	}
}

// PerMinute returns a config allowing n requests per rolling minute
func PerMinute(n int) *RateLimiterConfig {
	return &RateLimiterConfig{
		MaxRequests:     n,
		WindowSize:      time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

// RateLimiter implements sliding window rate limiting keyed by client
type RateLimiter struct {
	config      *RateLimiterConfig
	requests    map[string][]time.Time // key -> request timestamps inside the window
	mu          sync.Mutex
	now         func() time.Time
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewRateLimiter creates a new rate limiter and starts its cleanup loop
func NewRateLimiter(config *RateLimiterConfig) *RateLimiter {
	if config == nil {
		config = DefaultConfig()
	}

	rl := &RateLimiter{
		config:      config,
		requests:    make(map[string][]time.Time),
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	go rl.cleanupExpiredEntries()

	return rl
}

// pruned drops timestamps at or before cutoff. Timestamps are appended in order.
func pruned(requests []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(requests) && !requests[i].After(cutoff) {
		i++
	}
	return requests[i:]
}

// Allow records a request for key and reports whether it fits in the window
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	valid := pruned(rl.requests[key], now.Add(-rl.config.WindowSize))

	if len(valid) >= rl.config.MaxRequests {
		rl.requests[key] = valid
		return false
	}

	rl.requests[key] = append(valid, now)
	return true
}

// GetStats returns the number of requests in the window and the oldest of them
func (rl *RateLimiter) GetStats(key string) (int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	valid := pruned(rl.requests[key], rl.now().Add(-rl.config.WindowSize))
	if len(valid) == 0 {
		return 0, time.Time{}
	}
	return len(valid), valid[0]
}

// Reset removes all entries for a given key
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.requests, key)
}

// cleanupExpiredEntries periodically removes expired entries to prevent memory leaks
func (rl *RateLimiter) cleanupExpiredEntries() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.config.WindowSize)
	for key, requests := range rl.requests {
		valid := pruned(requests, cutoff)
		if len(valid) == 0 {
			delete(rl.requests, key)
		} else {
			rl.requests[key] = valid
		}
	}
}

// Stop stops the cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

// RateLimitError represents a rate limit error
type RateLimitError struct {
	Key    string
	Limit  int
	Window time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for '%s': %d requests per %s", e.Key, e.Limit, e.Window)
}

// Check is Allow returning a *RateLimitError when the request is rejected
func (rl *RateLimiter) Check(key string) error {
	if rl.Allow(key) {
		return nil
	}
	return &RateLimitError{Key: key, Limit: rl.config.MaxRequests, Window: rl.config.WindowSize}
}
