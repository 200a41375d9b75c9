package openrouter

import (
	"context"
	"sync"
	"time"
)

// A token bucket limiting how many describe requests reach OpenRouter. The
// free model tiers reject bursts, so callers wait here instead of receiving a
// 429 they would have no way to recover from.
type rateLimiter struct {
	mu       sync.Mutex // protect access to lastTime and tokens
	lastTime time.Time
	tokens   int

	window time.Duration
	rate   int

	now func() time.Time
}

// newRateLimiter creates a rate limiter admitting rate requests over window,
// e.g. newRateLimiter(20, time.Minute). A rate of zero or less disables
// limiting.
func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		window: window,
		rate:   rate,
		tokens: rate,
		now:    time.Now,
	}
	rl.lastTime = rl.now()
	return rl
}

// Acquire returns nil once a request may proceed. If ctx is Done first the
// context's error is returned.
func (rl *rateLimiter) Acquire(ctx context.Context) error {
	if rl.rate <= 0 {
		return nil
	}

	for {
		if rl.tryAcquire() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rl.window / time.Duration(rl.rate)):
			// Tokens accrue evenly across the window, so 1/rate of it is
			// enough for at least one to appear.
		}
	}
}

func (rl *rateLimiter) tryAcquire() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	elapsed := now.Sub(rl.lastTime)

	// Only advance lastTime by the time that produced whole tokens, otherwise
	// frequent polling would discard the fractional remainder forever.
	earned := int(elapsed.Nanoseconds() * int64(rl.rate) / rl.window.Nanoseconds())
	if earned > 0 {
		rl.tokens = min(rl.tokens+earned, rl.rate)
		rl.lastTime = now
	}
	if rl.tokens <= 0 {
		return false
	}

	rl.tokens--
	return true
}
