package errorexplorer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRateLimiter_AdmitsUpToMax(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute, zap.NewNop())

	assert.True(t, rl.IsAllowed())
	assert.True(t, rl.IsAllowed())
	assert.True(t, rl.IsAllowed())
	assert.False(t, rl.IsAllowed())
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute, zap.NewNop())
	rl.now = func() time.Time { return now }

	assert.True(t, rl.IsAllowed())
	assert.True(t, rl.IsAllowed())
	assert.False(t, rl.IsAllowed())

	// Advancing past the window frees the previously-rejected call.
	now = now.Add(61 * time.Second)
	assert.True(t, rl.IsAllowed())
}

func TestRateLimiter_PartialEviction(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute, zap.NewNop())
	rl.now = func() time.Time { return now }

	assert.True(t, rl.IsAllowed())
	now = now.Add(40 * time.Second)
	assert.True(t, rl.IsAllowed())
	assert.False(t, rl.IsAllowed())

	// Only the first timestamp has aged out at +70s.
	now = now.Add(30 * time.Second)
	assert.True(t, rl.IsAllowed())
	assert.False(t, rl.IsAllowed())
}

func TestRateLimiter_GetRemaining(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(5, time.Minute, zap.NewNop())
	rl.now = func() time.Time { return now }

	assert.Equal(t, 5, rl.GetRemaining())
	rl.IsAllowed()
	rl.IsAllowed()
	assert.Equal(t, 3, rl.GetRemaining())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 5, rl.GetRemaining())
}

func TestRateLimiter_Reset(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, zap.NewNop())

	assert.True(t, rl.IsAllowed())
	assert.False(t, rl.IsAllowed())

	rl.Reset()
	assert.True(t, rl.IsAllowed())
}

func TestRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(0, 0, nil)

	assert.Equal(t, defaultRateLimitRequests, rl.maxRequests)
	assert.Equal(t, defaultRateLimitWindow, rl.window)
}
