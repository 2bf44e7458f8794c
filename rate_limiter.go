package errorexplorer

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// RateLimiter is a sliding-window admission guard on outbound sends. It is
// advisory self-throttling by the sender, independent of any server-side
// 429 responses (those are handled as transient failures by the transport).
type RateLimiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	timestamps  []time.Time
	logger      *zap.Logger
	now         func() time.Time
}

// NewRateLimiter creates a limiter admitting at most maxRequests sends per
// trailing window. Non-positive arguments fall back to the defaults
// (10 requests per 60s).
func NewRateLimiter(maxRequests int, window time.Duration, logger *zap.Logger) *RateLimiter {
	if maxRequests <= 0 {
		maxRequests = defaultRateLimitRequests
	}
	if window <= 0 {
		window = defaultRateLimitWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		timestamps:  make([]time.Time, 0, maxRequests),
		logger:      logger,
		now:         time.Now,
	}
}

// IsAllowed evicts timestamps that have aged out of the window, then admits
// and records the call unless the window is already full.
func (rl *RateLimiter) IsAllowed() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.evict(now)

	if len(rl.timestamps) >= rl.maxRequests {
		rl.logger.Debug("rate limit reached, rejecting event",
			zap.Int("max_requests", rl.maxRequests),
			zap.Duration("window", rl.window))
		return false
	}

	rl.timestamps = append(rl.timestamps, now)
	return true
}

// GetRemaining returns how many more sends the current window admits.
func (rl *RateLimiter) GetRemaining() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.evict(rl.now())
	return rl.maxRequests - len(rl.timestamps)
}

// Reset drops all tracked timestamps.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.timestamps = rl.timestamps[:0]
}

// evict drops timestamps older than the window. Timestamps are appended in
// order, so the retained suffix starts at the first still-fresh entry.
func (rl *RateLimiter) evict(now time.Time) {
	cutoff := now.Add(-rl.window)
	first := 0
	for first < len(rl.timestamps) && !rl.timestamps[first].After(cutoff) {
		first++
	}
	if first > 0 {
		rl.timestamps = append(rl.timestamps[:0], rl.timestamps[first:]...)
	}
}
