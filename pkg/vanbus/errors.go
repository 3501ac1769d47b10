// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracekit Labs

package vanbus

import "fmt"

// ErrorKind classifies why decoding of a frame (or a stretch of bus) failed.
type ErrorKind int

// Error kinds.
const (
	// ErrTiming: an inter-edge interval fell outside half- and full-bit
	// tolerance and recovery was not possible.
	ErrTiming ErrorKind = iota
	// ErrStuffing: a run of identical bits exceeded the stuff limit without
	// the expected complementary bit.
	ErrStuffing
	// ErrFraming: a fixed grammar pattern (SOF, EOD, ACK delimiter, EOF) or
	// range constraint did not match.
	ErrFraming
	// ErrChecksum: the recomputed CRC disagrees with the transmitted value.
	// Recorded on an otherwise well-formed frame, never an abandonment.
	ErrChecksum
	// ErrTruncation: the sample stream ended while a frame was open.
	ErrTruncation
)

// String returns the kind name used in formatted output.
func (k ErrorKind) String() string {
	switch k {
	case ErrTiming:
		return "timing error"
	case ErrStuffing:
		return "stuffing violation"
	case ErrFraming:
		return "framing error"
	case ErrChecksum:
		return "checksum mismatch"
	case ErrTruncation:
		return "truncation"
	default:
		return "unknown error"
	}
}

// DecodeError describes why a frame was abandoned or degraded. It is either
// attached to the emitted frame or, when no frame was in progress, delivered
// standalone through the event sink.
type DecodeError struct {
	Kind   ErrorKind
	Tick   uint64
	Reason string
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s at tick %d", e.Kind, e.Tick)
	}
	return fmt.Sprintf("%s at tick %d: %s", e.Kind, e.Tick, e.Reason)
}
