package session

import (
	"math"
	"math/rand"
	"time"
)

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

// Retry counts consecutive failures of one kind.
type Retry struct {
	cfg     BackoffConfig
	rng     *rand.Rand
	attempt int
}

func NewRetry(cfg BackoffConfig, rng *rand.Rand) *Retry {
	return &Retry{cfg: cfg, rng: rng}
}

// Next records a failure and returns the delay before the next attempt.
func (r *Retry) Next() time.Duration {
	r.attempt++
	return NextBackoffDelay(r.cfg, r.attempt, r.rng)
}

func (r *Retry) Attempts() int {
	return r.attempt
}

// Reset clears the failure count after a success.
func (r *Retry) Reset() {
	r.attempt = 0
}
