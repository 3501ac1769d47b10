// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracekit Labs

package vanbus

// BitValidity flags how a bit was obtained.
type BitValidity int

// Bit validity values.
const (
	// BitClean: decoded from well-classified intervals with consistent phase.
	BitClean BitValidity = iota
	// BitRecovered: inferred from an out-of-tolerance interval snapped to the
	// nearest legal width. Accepted, flagged, counted against the glitch
	// budget.
	BitRecovered
)

// Bit is one decoded logical bit with its origin tick range.
type Bit struct {
	Value     uint8
	Validity  BitValidity
	StartTick uint64
	EndTick   uint64
}

// ResyncKind distinguishes why the line decoder lost bit lock.
type ResyncKind int

// Resync kinds.
const (
	// ResyncGlitch: an interval had no plausible interpretation, or the
	// consecutive-recovery budget was exhausted.
	ResyncGlitch ResyncKind = iota
	// ResyncIdleGap: a recessive stretch longer than a bit cell ended in a
	// dominant edge. Normal between frames, fatal to an open frame.
	ResyncIdleGap
)

// Resync is a resynchronization event raised toward the frame state machine.
type Resync struct {
	Kind ResyncKind
	Tick uint64
}

// Line decoder phase: position of the last consumed edge within a bit cell.
type linePhase int

const (
	phaseBoundary linePhase = iota // last edge on a cell boundary
	phaseMid                       // last edge at the guaranteed mid-cell transition
)

// LineDecoder demodulates the biphase line code. Every bit cell carries a
// guaranteed mid-cell transition; the bit value is the direction of that
// transition (falling = 1, rising = 0, idle level recessive high). The phase
// flag tracks whether the next edge is expected at a cell boundary or at
// mid-cell, so decoding is a plain fold over the edge stream with no
// lookahead.
type LineDecoder struct {
	timing    *TimingRecovery
	anchored  bool
	phase     linePhase
	last      Edge
	recovered int // consecutive recovered bits
	budget    int
}

// NewLineDecoder creates a demodulator over the given clock tracker.
func NewLineDecoder(timing *TimingRecovery, cfg Config) *LineDecoder {
	return &LineDecoder{timing: timing, budget: cfg.GlitchBudget}
}

// Feed consumes one edge and returns at most one decoded bit, or a resync
// event when bit lock is lost. While unanchored, edges are discarded until a
// falling edge provides a cell-boundary anchor.
func (d *LineDecoder) Feed(e Edge) (Bit, bool, *Resync) {
	if !d.anchored {
		if !e.Rising {
			d.anchor(e)
		}
		return Bit{}, false, nil
	}

	delta := e.Tick - d.last.Tick
	class := d.timing.Classify(delta)
	validity := BitClean

	if class == IntervalInvalid {
		if float64(delta) > d.timing.FullMax() && !e.Rising {
			// Recessive gap ended by a dominant edge: the bus went idle.
			// Re-anchor on this edge and let the state machine decide what
			// it means for any open frame.
			rs := &Resync{Kind: ResyncIdleGap, Tick: e.Tick}
			d.anchor(e)
			return Bit{}, false, rs
		}
		if d.recovered >= d.budget {
			d.unsync()
			return Bit{}, false, &Resync{Kind: ResyncGlitch, Tick: e.Tick}
		}
		class = d.timing.Nearest(delta)
		validity = BitRecovered
		d.recovered++
	} else {
		d.timing.Observe(delta, class)
		d.recovered = 0
	}

	prev := d.last
	d.last = e

	switch d.phase {
	case phaseBoundary:
		if class == IntervalFull {
			// The guaranteed mid-cell transition is missing: structural
			// failure, not a width glitch. Abandon lock.
			d.unsync()
			return Bit{}, false, &Resync{Kind: ResyncGlitch, Tick: e.Tick}
		}
		d.phase = phaseMid
		return decodeMidEdge(e, prev, validity), true, nil
	default: // phaseMid
		if class == IntervalHalf {
			d.phase = phaseBoundary
			return Bit{}, false, nil
		}
		// Full interval from mid-cell lands on the next mid-cell edge.
		return decodeMidEdge(e, prev, validity), true, nil
	}
}

// anchor locks onto a falling edge as a cell boundary.
func (d *LineDecoder) anchor(e Edge) {
	d.anchored = true
	d.phase = phaseBoundary
	d.last = e
	d.recovered = 0
}

func (d *LineDecoder) unsync() {
	d.anchored = false
	d.recovered = 0
}

// decodeMidEdge reads the bit value off the mid-cell transition direction.
func decodeMidEdge(e, prev Edge, v BitValidity) Bit {
	var val uint8
	if !e.Rising {
		val = 1
	}
	return Bit{Value: val, Validity: v, StartTick: prev.Tick, EndTick: e.Tick}
}
