package retry

import (
	"math"
	"math/rand"
	"time"
)

// Jitter bounds: delays are multiplied by a uniform factor in
// [1-jitterSpread, 1+jitterSpread].
const jitterSpread = 0.25

// Delay computes the backoff delay before the retry that follows the
// given attempt (1-based):
//
//	delay = min(initial * multiplier^(attempt-1), max)
//
// With jitter enabled the delay is multiplied by a uniform random
// factor in [0.75, 1.25] and floored to a whole millisecond.
func Delay(cfg *Config, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(cfg.GetInitialDelay()) * math.Pow(cfg.GetMultiplier(), float64(attempt-1))

	if maxDelay := float64(cfg.GetMaxDelay()); delay > maxDelay {
		delay = maxDelay
	}

	if cfg.JitterEnabled() {
		// math/rand is fine here: retry timing is not security-sensitive.
		delay *= 1 - jitterSpread + rand.Float64()*2*jitterSpread
	}

	ms := math.Floor(delay / float64(time.Millisecond))
	return time.Duration(ms) * time.Millisecond
}
