package session

import (
	"math"
	"math/rand"
	"time"
)

// NextReconnectDelay returns the delay before reconnect attempt N (0-based):
// BaseDelay * 2^N, capped by MaxDelay, scaled by a jitter factor drawn from
// [0.5, 1.0). A nil rng yields the unjittered delay.
func NextReconnectDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if cfg.BaseDelay <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if rng != nil {
		delay = delay * (0.5 + 0.5*rng.Float64())
	}
	if delay >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}
