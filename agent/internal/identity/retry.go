package identity

import (
	"math/rand"
	"time"
)

// retryCap bounds the wait between bootstrap attempts.
const retryCap = 60 * time.Second

// retryDelay is the wait after the given number of consecutive failed
// bootstrap attempts (counting from zero): initial doubled once per earlier
// failure and capped at retryCap, then moved by up to a quarter of itself.
// spread in [-1, 1] picks where in that band the delay lands.
func retryDelay(initial time.Duration, failures int, spread float64) time.Duration {
	d := initial
	for i := 0; i < failures && d < retryCap; i++ {
		d *= 2
	}
	if d > retryCap {
		d = retryCap
	}
	d += time.Duration(float64(d) * 0.25 * spread)
	if d < 0 {
		return 0
	}
	return d
}

// jitter returns a spread for retryDelay.
func jitter() float64 {
	return rand.Float64()*2 - 1 //nolint:gosec // not crypto
}
