package prefetch

import (
	"math"
	rand "math/rand/v2"
	"time"
)

// retryDelay returns the delay before retry number attempt (0-based).
//
// The delay is base*mult^attempt, capped at capDur when capDur > 0, plus a
// random jitter of up to jitter*delay. rng may be nil to use the package PRNG.
func retryDelay(attempt int, base time.Duration, mult float64, capDur time.Duration, jitter float64, rng *rand.Rand) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if mult < 1.0 {
		mult = 1.0
	}
	if attempt < 0 {
		attempt = 0
	}

	f := float64(base) * math.Pow(mult, float64(attempt))
	if capDur > 0 && f > float64(capDur) {
		f = float64(capDur)
	}
	if f > float64(math.MaxInt64/2) {
		f = float64(math.MaxInt64 / 2)
	}
	d := time.Duration(f)

	if jitter > 0 {
		span := int64(float64(d) * jitter)
		if span > 0 {
			var j int64
			if rng != nil {
				j = rng.Int64N(span)
			} else {
				j = rand.Int64N(span) //nolint:gosec // non-crypto backoff jitter
			}
			d += time.Duration(j)
		}
	}

	return d
}

// newRetryRNG returns a deterministic RNG only when a non-zero seed is provided.
// When seed == 0 it returns nil so callers use the package-level PRNG instead.
//
//nolint:gosec
func newRetryRNG(seed int64) *rand.Rand {
	if seed == 0 {
		return nil
	}
	s1 := uint64(seed)
	s2 := s1 ^ 0x9e3779b97f4a7c15

	return rand.New(rand.NewPCG(s1, s2))
}
