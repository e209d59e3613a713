// Package noise provides the injectable random source used for bounded
// perturbations. Tests fix a seed; production draws from the clock.
package noise

import (
	"math/rand"
	"time"
)

// Source yields uniform values in [0, 1).
type Source interface {
	Float64() float64
}

// Factory hands out one Source per computation. Sources are not shared
// across goroutines.
type Factory func() Source

// Seeded returns a factory whose sources all replay the same sequence.
func Seeded(seed int64) Factory {
	return func() Source {
		return rand.New(rand.NewSource(seed)) //nolint:gosec // reproducible perturbation, not security
	}
}

// Entropy returns a factory seeded from the clock on every call.
func Entropy() Factory {
	return func() Source {
		return rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // perturbation only
	}
}

// Flat returns a factory whose sources always yield the midpoint, which
// makes every symmetric perturbation zero.
func Flat() Factory {
	return func() Source { return flat{} }
}

type flat struct{}

func (flat) Float64() float64 { return 0.5 }

// Uniform draws from [lo, hi).
func Uniform(s Source, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + s.Float64()*(hi-lo)
}

// Symmetric draws from [-amp, amp).
func Symmetric(s Source, amp float64) float64 {
	if amp <= 0 {
		return 0
	}
	return (s.Float64()*2 - 1) * amp
}
