// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracekit Labs

package vanbus

import "io"

// Sample is one logic-level reading from the primary bus channel. Tick is an
// integer timestamp in sample-rate units; Level is the electrical state
// (true = recessive high, false = dominant low).
type Sample struct {
	Tick  uint64
	Level bool
}

// SampleSource supplies an ordered, possibly unbounded sample stream. It
// returns io.EOF once the stream ends. Sources are one-pass: the pipeline
// never rewinds or restarts them.
type SampleSource interface {
	ReadSample() (Sample, error)
}

// SliceSource replays an in-memory sample slice. Used by tests and by the
// synthetic capture generator.
type SliceSource struct {
	samples []Sample
	pos     int
}

// NewSliceSource creates a source that yields the given samples in order.
func NewSliceSource(samples []Sample) *SliceSource {
	return &SliceSource{samples: samples}
}

// ReadSample returns the next sample or io.EOF.
func (s *SliceSource) ReadSample() (Sample, error) {
	if s.pos >= len(s.samples) {
		return Sample{}, io.EOF
	}
	sample := s.samples[s.pos]
	s.pos++
	return sample, nil
}

// Edge is a logic-level transition derived from two consecutive samples of
// differing level. Edges are strictly ordered by tick.
type Edge struct {
	Tick   uint64
	Rising bool
}

// EdgeReader lazily converts a sample stream into an edge stream. Consecutive
// identical-level samples produce no edge; an empty input yields io.EOF
// immediately. Pure transform, no internal buffering beyond the last sample.
type EdgeReader struct {
	src      SampleSource
	last     Sample
	primed   bool
	lastTick uint64
}

// NewEdgeReader wraps a sample source.
func NewEdgeReader(src SampleSource) *EdgeReader {
	return &EdgeReader{src: src}
}

// ReadEdge pulls samples until the level changes and returns the transition.
// The edge carries the tick of the first sample at the new level.
func (r *EdgeReader) ReadEdge() (Edge, error) {
	if !r.primed {
		first, err := r.src.ReadSample()
		if err != nil {
			return Edge{}, err
		}
		r.last = first
		r.lastTick = first.Tick
		r.primed = true
	}
	for {
		s, err := r.src.ReadSample()
		if err != nil {
			return Edge{}, err
		}
		r.lastTick = s.Tick
		if s.Level != r.last.Level {
			r.last = s
			return Edge{Tick: s.Tick, Rising: s.Level}, nil
		}
		r.last = s
	}
}

// LastTick returns the tick of the most recently consumed sample. The
// pipeline uses it to timestamp truncation at end of stream.
func (r *EdgeReader) LastTick() uint64 {
	return r.lastTick
}
