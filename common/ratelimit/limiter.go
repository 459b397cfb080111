package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Clock abstracts time so window expiry is testable without sleeping
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now
func SystemClock() Clock { return systemClock{} }

// Result contains the result of a rate limit check
type Result struct {
	Allowed    bool          // Whether the request is allowed
	Current    int64         // Current count in the window (including this request if allowed)
	Limit      int64         // The limit that was checked
	RetryAfter time.Duration // Time until the window resets (0 if allowed)
}

type window struct {
	start time.Time
	count int64
}

// Limiter provides fixed-window rate limiting with per-key counters.
// State is process-local; each consumer throttles its own outbound calls.
type Limiter struct {
	clock  Clock
	logger Logger

	mu      sync.Mutex
	windows map[string]*window
}

// NewLimiter creates a rate limiter. Pass SystemClock() outside of tests.
func NewLimiter(clock Clock, logger Logger) *Limiter {
	return &Limiter{
		clock:   clock,
		logger:  logger,
		windows: make(map[string]*window),
	}
}

// Check counts a request against the key's fixed window and reports
// whether it is allowed. The counter is incremented only when allowed.
func (l *Limiter) Check(key string, limit int64, windowSize time.Duration) *Result {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, exists := l.windows[key]
	if !exists || now.Sub(w.start) >= windowSize {
		w = &window{start: now}
		l.windows[key] = w
	}

	if w.count >= limit {
		retryAfter := w.start.Add(windowSize).Sub(now)
		l.logger.Warn("rate limit exceeded",
			"key", key,
			"current", w.count,
			"limit", limit,
			"retry_after", retryAfter)
		return &Result{
			Allowed:    false,
			Current:    w.count,
			Limit:      limit,
			RetryAfter: retryAfter,
		}
	}

	w.count++
	l.logger.Debug("rate limit check passed",
		"key", key,
		"current", w.count,
		"limit", limit)

	return &Result{
		Allowed: true,
		Current: w.count,
		Limit:   limit,
	}
}

// CheckGlobalLimit checks the global service-wide rate limit
func (l *Limiter) CheckGlobalLimit(limit int64, windowSize time.Duration) *Result {
	return l.Check("rate_limit:global", limit, windowSize)
}

// CheckClientLimit checks the rate limit for a specific client
func (l *Limiter) CheckClientLimit(client string, limit int64, windowSize time.Duration) *Result {
	key := fmt.Sprintf("rate_limit:client:%s", client)
	return l.Check(key, limit, windowSize)
}

// CheckTieredLimit checks the rate limit for a scope at a given tier.
// Each tier gets its own counter so cheap calls are not starved by
// expensive ones.
func (l *Limiter) CheckTieredLimit(scope string, tier Tier) *Result {
	key := fmt.Sprintf("rate_limit:%s:tier:%s", scope, tier)
	cfg := ConfigForTier(tier)
	return l.Check(key, cfg.Limit, cfg.Window)
}

// CurrentCount returns the current count for a key without incrementing
func (l *Limiter) CurrentCount(key string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if w, exists := l.windows[key]; exists {
		return w.count
	}
	return 0
}

// ResetLimit clears a rate limit counter (for testing/admin)
func (l *Limiter) ResetLimit(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}
