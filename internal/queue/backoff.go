package queue

import (
	"math/rand"
	"time"
)

type BackoffConfig struct {
	BaseDelay time.Duration // e.g. 1s
	MaxDelay  time.Duration // e.g. 60s
}

func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		BaseDelay: 1 * time.Second,
		MaxDelay:  60 * time.Second,
	}
}

// NextDelay computes the redelivery delay using exponential backoff with full jitter.
// attempt is 1-based (1 => up to BaseDelay).
func NextDelay(attempt int, cfg BackoffConfig, rng *rand.Rand) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 1 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 60 * time.Second
	}

	// exponential: base * 2^(attempt-1), guarded against shift overflow
	delay := cfg.MaxDelay
	if attempt < 32 {
		delay = cfg.BaseDelay << (attempt - 1)
	}
	if delay > cfg.MaxDelay || delay <= 0 {
		delay = cfg.MaxDelay
	}

	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return time.Duration(rng.Int63n(int64(delay) + 1))
}
