// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracekit Labs

package vanbus

// IntervalClass is the timing verdict on one inter-edge interval.
type IntervalClass int

// Interval classifications.
const (
	IntervalInvalid IntervalClass = iota
	IntervalHalf
	IntervalFull
)

// TimingRecovery tracks the half-bit duration of the self-clocked line. The
// estimate is seeded from the configured sample and bit rates and then
// follows the observed clock with an exponential moving average, so the
// configuration only has to be approximately right.
type TimingRecovery struct {
	halfBit float64 // current half-bit estimate, in ticks
	tol     float64 // tolerance fraction for classification
	alpha   float64 // EMA weight for accepted half-bit intervals
}

// NewTimingRecovery seeds the tracker from the configuration.
func NewTimingRecovery(cfg Config) *TimingRecovery {
	return &TimingRecovery{
		halfBit: float64(cfg.SampleRate) / (2 * float64(cfg.BitRate)),
		tol:     cfg.Tolerance,
		alpha:   cfg.EMAAlpha,
	}
}

// Classify places an interval of d ticks in the half-bit window, the
// full-bit window, or neither. The dead zone between the windows and
// anything beyond the full-bit window is invalid.
func (t *TimingRecovery) Classify(d uint64) IntervalClass {
	fd := float64(d)
	if fd >= t.halfBit*(1-t.tol) && fd <= t.halfBit*(1+t.tol) {
		return IntervalHalf
	}
	if fd >= 2*t.halfBit*(1-t.tol) && fd <= 2*t.halfBit*(1+t.tol) {
		return IntervalFull
	}
	return IntervalInvalid
}

// Observe folds an accepted interval into the estimate. Only half-bit
// intervals move the clock; full-bit intervals are accepted but not tracked,
// so isolated noise cannot drag the estimate.
func (t *TimingRecovery) Observe(d uint64, class IntervalClass) {
	if class != IntervalHalf {
		return
	}
	t.halfBit += t.alpha * (float64(d) - t.halfBit)
}

// Nearest returns the legal classification closest to an out-of-tolerance
// interval. Used by the line decoder's flag-and-continue glitch recovery.
func (t *TimingRecovery) Nearest(d uint64) IntervalClass {
	fd := float64(d)
	dHalf := fd - t.halfBit
	if dHalf < 0 {
		dHalf = -dHalf
	}
	dFull := fd - 2*t.halfBit
	if dFull < 0 {
		dFull = -dFull
	}
	if dHalf <= dFull {
		return IntervalHalf
	}
	return IntervalFull
}

// HalfBit returns the current half-bit estimate in ticks.
func (t *TimingRecovery) HalfBit() float64 {
	return t.halfBit
}

// FullMax returns the upper edge of the full-bit window. Intervals beyond it
// that end in a falling edge are idle gaps rather than glitches.
func (t *TimingRecovery) FullMax() float64 {
	return 2 * t.halfBit * (1 + t.tol)
}
