// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracekit Labs

package vanbus

// Field is a completed named bit-group within a frame, emitted incrementally
// as soon as it decodes. Index is only meaningful for FieldDataByte.
type Field struct {
	Kind      FieldKind
	Value     uint64
	Index     int
	Bits      int
	StartTick uint64
	EndTick   uint64
}

// Frame is one complete decoded protocol unit. At most one frame is in
// progress at any time; the state machine owns it exclusively until it is
// finalized or abandoned, after which it is immutable.
type Frame struct {
	ident    uint16
	ext      bool
	rak      bool
	rw       bool
	rtr      bool
	data     []byte
	crc      uint16
	crcValid bool
	ack      bool

	validity  FrameValidity
	err       *DecodeError
	startTick uint64
	endTick   uint64

	recoveredBits int
	stuffBits     int

	covered []uint8 // destuffed bits covered by the checksum
}

// Ident returns the 12-bit frame identifier.
func (f *Frame) Ident() uint16 {
	return f.ident
}

// Ext returns the EXT control flag.
func (f *Frame) Ext() bool {
	return f.ext
}

// Rak returns the RAK (reply-requested) control flag.
func (f *Frame) Rak() bool {
	return f.rak
}

// RW returns the R/W control flag.
func (f *Frame) RW() bool {
	return f.rw
}

// RTR returns the RTR control flag. Set means a request frame with no
// payload.
func (f *Frame) RTR() bool {
	return f.rtr
}

// Data returns the payload bytes (nil for request frames).
func (f *Frame) Data() []byte {
	return f.data
}

// CRC returns the transmitted 15-bit checksum value.
func (f *Frame) CRC() uint16 {
	return f.crc
}

// CRCValid reports whether the recomputed checksum matched the transmitted
// value. Only meaningful on frames that reached the checksum field.
func (f *Frame) CRCValid() bool {
	return f.crcValid
}

// Ack reports whether the ack slot carried a dominant (acknowledged) bit.
func (f *Frame) Ack() bool {
	return f.ack
}

// Validity returns the overall frame verdict.
func (f *Frame) Validity() FrameValidity {
	return f.validity
}

// Err returns the decode error attached to the frame, if any. A checksum
// mismatch is attached here while the frame stays well-formed.
func (f *Frame) Err() *DecodeError {
	return f.err
}

// StartTick returns the tick of the first start-of-frame bit.
func (f *Frame) StartTick() uint64 {
	return f.startTick
}

// EndTick returns the tick at which the frame was finalized or abandoned.
func (f *Frame) EndTick() uint64 {
	return f.endTick
}

// RecoveredBits returns how many bits were accepted via glitch recovery.
func (f *Frame) RecoveredBits() int {
	return f.recoveredBits
}

// StuffBits returns how many stuff bits were stripped from the frame.
func (f *Frame) StuffBits() int {
	return f.stuffBits
}

// CoveredBits returns a copy of the destuffed bit sequence the checksum
// covers (identifier through end of data).
func (f *Frame) CoveredBits() []uint8 {
	out := make([]uint8, len(f.covered))
	copy(out, f.covered)
	return out
}
