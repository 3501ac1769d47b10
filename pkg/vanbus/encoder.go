// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracekit Labs

package vanbus

import "fmt"

// FrameSpec describes a frame to encode. The checksum is computed from the
// covered bits unless CRC is set, which lets tests and fault injectors build
// frames with a deliberately wrong checksum.
type FrameSpec struct {
	Ident uint16
	Ext   bool
	Rak   bool
	RW    bool
	RTR   bool
	Data  []byte

	// CRC overrides the computed checksum when non-nil.
	CRC *uint16

	// AckSlot makes the ack slot dominant (frame acknowledged).
	AckSlot bool
}

// Encoder builds physical bit streams and modulated sample captures from
// frame specs. It is the exact inverse of the decode path and exists mainly
// to drive tests and synthetic captures.
type Encoder struct {
	cfg Config
}

// NewEncoder creates an encoder with the given parameters. Only BitRate,
// SampleRate and MaxRun matter for encoding.
func NewEncoder(cfg Config) *Encoder {
	return &Encoder{cfg: cfg.withDefaults()}
}

// BuildFrameBits produces the physical bit sequence of one frame: the
// start-of-frame byte, the stuffed body, checksum, end-of-data, ack and
// end-of-frame fields.
func (e *Encoder) BuildFrameBits(spec FrameSpec) ([]uint8, error) {
	if spec.Ident > (1<<IdentBits)-1 {
		return nil, fmt.Errorf("identifier 0x%X exceeds %d bits", spec.Ident, IdentBits)
	}
	if spec.RTR && len(spec.Data) > 0 {
		return nil, fmt.Errorf("request frame cannot carry %d payload bytes", len(spec.Data))
	}
	if len(spec.Data) > MaxPayloadSize {
		return nil, fmt.Errorf("payload of %d bytes exceeds maximum %d", len(spec.Data), MaxPayloadSize)
	}

	bits := appendValue(nil, SOFPattern, SOFBits)

	// Stuffed region: every body bit goes through the stuffer, and the
	// checksum covers the destuffed sequence from identifier to end of data.
	s := stuffer{max: e.cfg.MaxRun}
	body := bodyBits(spec)
	for _, b := range body {
		bits = s.append(bits, b)
	}

	crc := ComputeCRC(body)
	if spec.CRC != nil {
		crc = *spec.CRC & crcMask
	}
	for _, b := range appendValue(nil, uint64(crc), ChecksumBits) {
		bits = s.append(bits, b)
	}

	bits = append(bits, 0, 0) // end of data
	bits = append(bits, 1)    // ack delimiter
	if spec.AckSlot {
		bits = append(bits, 0)
	} else {
		bits = append(bits, 1)
	}
	bits = append(bits, 1, 1, 1) // end of frame
	return bits, nil
}

// Modulate renders a physical bit sequence as a biphase sample capture, with
// leadIn and leadOut idle bit cells around it. Cells carrying a one go
// high-then-low, cells carrying a zero go low-then-high, idle is high.
func (e *Encoder) Modulate(bits []uint8, leadIn, leadOut int) []Sample {
	half := e.cfg.SampleRate / (2 * e.cfg.BitRate)
	if half < 1 {
		half = 1
	}
	out := make([]Sample, 0, (len(bits)+leadIn+leadOut)*2*half)
	tick := uint64(0)
	emit := func(level bool, n int) {
		for i := 0; i < n; i++ {
			out = append(out, Sample{Tick: tick, Level: level})
			tick++
		}
	}

	emit(true, leadIn*2*half)
	for _, b := range bits {
		if b == 1 {
			emit(true, half)
			emit(false, half)
		} else {
			emit(false, half)
			emit(true, half)
		}
	}
	emit(true, leadOut*2*half)
	return out
}

// EncodeFrame builds and modulates one frame with a few idle cells on each
// side.
func (e *Encoder) EncodeFrame(spec FrameSpec) ([]Sample, error) {
	bits, err := e.BuildFrameBits(spec)
	if err != nil {
		return nil, err
	}
	return e.Modulate(bits, 4, 4), nil
}

// ChecksumOf returns the checksum a clean encoding of spec would carry.
func (e *Encoder) ChecksumOf(spec FrameSpec) uint16 {
	return ComputeCRC(bodyBits(spec))
}

// bodyBits renders the checksum-covered fields of a spec: identifier,
// control, and for data frames the length and payload.
func bodyBits(spec FrameSpec) []uint8 {
	bits := appendValue(nil, uint64(spec.Ident), IdentBits)
	bits = appendValue(bits, controlNibble(spec), ControlBits)
	if !spec.RTR {
		bits = appendValue(bits, uint64(len(spec.Data)), DataLenBits)
		for _, b := range spec.Data {
			bits = appendValue(bits, uint64(b), DataByteBits)
		}
	}
	return bits
}

// stuffer inserts a complementary bit whenever max identical bits have been
// emitted in a row. It mirrors the decoder's destuffer bit for bit.
type stuffer struct {
	max    int
	run    int
	runVal uint8
}

func (s *stuffer) append(bits []uint8, b uint8) []uint8 {
	if s.run == s.max {
		st := 1 - s.runVal
		bits = append(bits, st)
		s.run = 1
		s.runVal = st
	}
	if s.run > 0 && b == s.runVal {
		s.run++
	} else {
		s.run = 1
		s.runVal = b
	}
	return append(bits, b)
}

func controlNibble(spec FrameSpec) uint64 {
	var v uint64
	if spec.Ext {
		v |= 0x8
	}
	if spec.Rak {
		v |= 0x4
	}
	if spec.RW {
		v |= 0x2
	}
	if spec.RTR {
		v |= 0x1
	}
	return v
}

// appendValue appends the low n bits of v, most significant first.
func appendValue(bits []uint8, v uint64, n int) []uint8 {
	for i := n - 1; i >= 0; i-- {
		bits = append(bits, uint8(v>>uint(i))&1)
	}
	return bits
}
