// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracekit Labs

package vanbus

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Config holds the decode parameters. The zero value is not usable on its
// own; SampleRate must be set, everything else falls back to protocol
// defaults.
type Config struct {
	// SampleRate is the capture rate in samples per second. Required.
	SampleRate int

	// BitRate is the nominal line bit rate. Defaults to 125000 bit/s. The
	// clock tracker only needs this to be approximately right.
	BitRate int

	// Tolerance is the fractional width of the interval acceptance windows.
	Tolerance float64

	// EMAAlpha is the weight of each accepted half-bit interval in the
	// running clock estimate.
	EMAAlpha float64

	// MaxRun is the identical-bit run length after which a stuff bit is
	// expected.
	MaxRun int

	// GlitchBudget caps consecutive recovered bits before the line decoder
	// gives up and resynchronizes.
	GlitchBudget int
}

func (c Config) withDefaults() Config {
	if c.BitRate == 0 {
		c.BitRate = DefaultBitRate
	}
	if c.Tolerance == 0 {
		c.Tolerance = DefaultTolerance
	}
	if c.EMAAlpha == 0 {
		c.EMAAlpha = DefaultEMAAlpha
	}
	if c.MaxRun == 0 {
		c.MaxRun = DefaultMaxRun
	}
	if c.GlitchBudget == 0 {
		c.GlitchBudget = DefaultGlitchBudget
	}
	return c
}

// Validate checks the configuration for values the pipeline cannot work
// with. Defaults are applied first, so only explicitly bad values fail.
func (c Config) Validate() error {
	c = c.withDefaults()
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.BitRate <= 0 {
		return fmt.Errorf("bit rate must be positive, got %d", c.BitRate)
	}
	if c.SampleRate < 2*c.BitRate {
		return fmt.Errorf("sample rate %d cannot resolve half-bit cells at %d bit/s", c.SampleRate, c.BitRate)
	}
	if c.Tolerance <= 0 || c.Tolerance >= 0.5 {
		return fmt.Errorf("tolerance must be in (0, 0.5), got %g", c.Tolerance)
	}
	if c.EMAAlpha <= 0 || c.EMAAlpha > 1 {
		return fmt.Errorf("ema alpha must be in (0, 1], got %g", c.EMAAlpha)
	}
	if c.MaxRun < 1 {
		return fmt.Errorf("max run must be at least 1, got %d", c.MaxRun)
	}
	if c.GlitchBudget < 0 {
		return fmt.Errorf("glitch budget must not be negative, got %d", c.GlitchBudget)
	}
	return nil
}

// EventSink receives decode events in stream order. Implementations must not
// retain the Frame's internal slices beyond the call; Frame accessors return
// copies where that matters.
type EventSink interface {
	OnField(f Field)
	OnFrame(f *Frame)
	OnError(e DecodeError)
}

// Callbacks is a function-valued EventSink. Nil members are skipped, so
// callers wire only the events they care about.
type Callbacks struct {
	Field func(Field)
	Frame func(*Frame)
	Error func(DecodeError)
}

// OnField implements EventSink.
func (c *Callbacks) OnField(f Field) {
	if c.Field != nil {
		c.Field(f)
	}
}

// OnFrame implements EventSink.
func (c *Callbacks) OnFrame(f *Frame) {
	if c.Frame != nil {
		c.Frame(f)
	}
}

// OnError implements EventSink.
func (c *Callbacks) OnError(e DecodeError) {
	if c.Error != nil {
		c.Error(e)
	}
}

// Pipeline chains the full decode path over a sample source: edge
// extraction, clock tracking, line decode, frame state machine. Single
// goroutine, pull-driven; the sink sees events strictly in stream order.
type Pipeline struct {
	cfg     Config
	edges   *EdgeReader
	line    *LineDecoder
	decoder *Decoder
}

// NewPipeline assembles a decode pipeline. The configuration must pass
// Validate.
func NewPipeline(cfg Config, src SampleSource, sink EventSink) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg = cfg.withDefaults()
	timing := NewTimingRecovery(cfg)
	return &Pipeline{
		cfg:     cfg,
		edges:   NewEdgeReader(src),
		line:    NewLineDecoder(timing, cfg),
		decoder: NewDecoder(cfg, sink),
	}, nil
}

// Run pulls the source dry, feeding every decode event to the sink. It
// returns nil on a clean end of stream, the context error on cancellation,
// or the source error otherwise. An in-progress frame at end of stream is
// flushed as truncated.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			p.decoder.Flush(p.edges.LastTick())
			return err
		}
		edge, err := p.edges.ReadEdge()
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.decoder.Flush(p.edges.LastTick())
				return nil
			}
			return fmt.Errorf("read samples: %w", err)
		}
		bit, ok, rs := p.line.Feed(edge)
		if rs != nil {
			p.decoder.FeedResync(*rs)
		}
		if ok {
			p.decoder.FeedBit(bit)
		}
	}
}
