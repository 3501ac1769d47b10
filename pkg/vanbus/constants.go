// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracekit Labs

// Package vanbus decodes the VAN (Vehicle Area Network) field bus from raw
// logic-analyzer samples.
//
// The package is organized as a strict forward pipeline: samples become
// edges, edges become timing-classified intervals, intervals become logical
// bits, and bits are parsed by the frame state machine into typed frame and
// field events. Each stage owns only its own accumulator state and can be
// driven independently.
package vanbus

// Frame grammar bit widths.
const (
	SOFPattern   = 0x0E // start-of-frame byte, located on the raw bit stream
	SOFBits      = 8
	IdentBits    = 12
	ControlBits  = 4
	DataLenBits  = 6
	DataByteBits = 8
	ChecksumBits = 15
	EODBits      = 2
	EOFBits      = 3
)

// MaxPayloadSize is the protocol maximum payload length in bytes.
const MaxPayloadSize = 28

// CRC-15/VAN configuration.
const (
	crcPolynomial = 0x0F9D
	crcInitial    = 0x7FFF
	crcMask       = 0x7FFF
	crcTopBit     = 0x4000
)

// Decode defaults. Tolerance and run-length limits are configurable because
// captured hardware varies; these values match the bus at nominal timing.
const (
	DefaultBitRate      = 125000
	DefaultTolerance    = 0.25
	DefaultEMAAlpha     = 0.125
	DefaultMaxRun       = 4
	DefaultGlitchBudget = 1
)

// Frame state machine states (internal). SOF scanning happens in stateIdle;
// the remaining states each accumulate one grammar field.
const (
	stateIdle = iota
	stateIdentifier
	stateControl
	stateDataLen
	stateData
	stateChecksum
	stateEOD
	stateAck
	stateEOF
)

// FieldKind identifies a decoded frame field.
type FieldKind int

// Field kinds, in grammar order.
const (
	FieldSOF FieldKind = iota
	FieldIdentifier
	FieldControl
	FieldDataLength
	FieldDataByte
	FieldChecksum
	FieldEOD
	FieldAck
	FieldEOF
)

// String returns the short field name used in formatted output.
func (k FieldKind) String() string {
	switch k {
	case FieldSOF:
		return "SOF"
	case FieldIdentifier:
		return "ID"
	case FieldControl:
		return "COM"
	case FieldDataLength:
		return "LEN"
	case FieldDataByte:
		return "DATA"
	case FieldChecksum:
		return "CRC"
	case FieldEOD:
		return "EOD"
	case FieldAck:
		return "ACK"
	case FieldEOF:
		return "EOF"
	default:
		return "UNKNOWN"
	}
}

// FrameValidity is the overall verdict on an emitted frame.
type FrameValidity int

// Frame validity values.
const (
	FrameWellFormed FrameValidity = iota
	FrameTruncated
	FrameFramingError
)

// String returns the validity name used in formatted output.
func (v FrameValidity) String() string {
	switch v {
	case FrameWellFormed:
		return "WELL-FORMED"
	case FrameTruncated:
		return "TRUNCATED"
	case FrameFramingError:
		return "FRAMING-ERROR"
	default:
		return "UNKNOWN"
	}
}
