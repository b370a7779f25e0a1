package discovery

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	// MaxBackoff caps the wait between failed announces
	MaxBackoff = 300 * time.Second

	maxBackoffExponent = 5
	maxJitterSeconds   = 2.0
	jitterFraction     = 0.25
)

// Backoff returns the wait after the given number of consecutive failures:
// interval doubled per failure up to 2^5 and capped at MaxBackoff, plus
// jitter(min(2s, wait/4)) seconds. Zero failures yields the plain interval.
func Backoff(interval time.Duration, failures int, jitter func(max float64) float64) time.Duration {
	if failures <= 0 {
		return interval
	}

	exp := min(failures-1, maxBackoffExponent)
	wait := time.Duration(float64(interval) * math.Pow(2, float64(exp)))
	wait = min(wait, MaxBackoff)

	spread := math.Min(maxJitterSeconds, wait.Seconds()*jitterFraction)
	if jitter != nil && spread > 0 {
		wait += time.Duration(jitter(spread) * float64(time.Second))
	}
	return wait
}

func uniformJitter(max float64) float64 {
	return rand.Float64() * max
}
